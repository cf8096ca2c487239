package domain

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
)

// DocumentOpener opens the raw bytes of a submitted document.
type DocumentOpener func(ctx context.Context) (io.ReadCloser, error)

// DocumentHandle is what the queue hands to the explanation engine.
// It is owned by exactly one job for the duration of its processing.
type DocumentHandle struct {
	JobID    string
	Filename string
	open     DocumentOpener
}

// NewDocumentHandle creates a handle for the given job document.
func NewDocumentHandle(jobID, filename string, open DocumentOpener) DocumentHandle {
	return DocumentHandle{JobID: jobID, Filename: filename, open: open}
}

// Open returns a reader over the document bytes.
func (h DocumentHandle) Open(ctx context.Context) (io.ReadCloser, error) {
	if h.open == nil {
		return nil, errors.New("document handle has no opener")
	}
	return h.open(ctx)
}

// Extension returns the lower-case file extension without the leading dot.
func (h DocumentHandle) Extension() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(h.Filename)), ".")
}

// BaseName returns the file name without directory and extension.
func (h DocumentHandle) BaseName() string {
	base := filepath.Base(h.Filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
