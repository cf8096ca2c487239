package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrObjectNotFound is returned by Download when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage stores uploaded documents for the table-backed queue.
type ObjectStorage interface {
	// Upload uploads an object to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download downloads an object from storage
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the URL for accessing an object
	GetURL(key string) string

	// Delete deletes an object from storage
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)
}

// DocumentKey returns the object key for a job's uploaded document,
// e.g. "uploads/<id>.pptx".
func DocumentKey(jobID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return "uploads/" + jobID + ext
}

// ContentTypeFor guesses the upload content type from the file name.
func ContentTypeFor(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".pptx":
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	case ".md":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
