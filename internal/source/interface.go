package source

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/timmy/slidewise/internal/domain"
)

// Part is one ordered unit of a document, typically a slide.
type Part struct {
	Index   int         // Zero-based position within the document
	Content interface{} // Format-specific handle, only meaningful to the Document that produced it
}

// Document iterates over the parts of one opened document.
// Iteration is single-pass: once Next returns false it stays false.
type Document interface {
	// Next advances to the next part.
	// Returns:
	//   - bool: false when there are no more parts or an error occurred.
	Next() bool

	// Part returns the current part. Only valid after Next returned true.
	Part() Part

	// Err returns the first error hit while iterating, if any.
	Err() error

	// Render extracts the text of a part. An empty string means the part has no text.
	// Render may be called concurrently for different parts.
	// Parameters:
	//   - p: part produced by this document.
	// Returns:
	//   - string: extracted text.
	//   - error: non-nil if the part cannot be rendered.
	Render(p Part) (string, error)

	// Close releases the document's resources.
	Close() error
}

// Opener decodes one document format.
type Opener interface {
	// Name returns a short format name used in logs.
	Name() string

	// Extensions lists the lower-case file extensions (without dot) this opener handles.
	Extensions() []string

	// Open decodes the document read from r. r is only valid during the call.
	// Parameters:
	//   - ctx: context for cancellation.
	//   - name: original file name.
	//   - r: document bytes.
	// Returns:
	//   - Document: iterator over the document's parts.
	//   - error: non-nil if the document cannot be decoded.
	Open(ctx context.Context, name string, r io.Reader) (Document, error)
}

// Registry selects an Opener by file extension.
type Registry struct {
	mu      sync.RWMutex
	openers map[string]Opener
}

// NewRegistry creates a registry with the given openers registered.
func NewRegistry(openers ...Opener) *Registry {
	r := &Registry{openers: make(map[string]Opener)}
	for _, o := range openers {
		r.Register(o)
	}
	return r
}

// Register adds o for each of its extensions, replacing earlier registrations.
func (r *Registry) Register(o Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range o.Extensions() {
		r.openers[strings.ToLower(ext)] = o
	}
}

// Supports reports whether a document with the given extension can be opened.
func (r *Registry) Supports(ext string) bool {
	_, ok := r.lookup(ext)
	return ok
}

// Extensions returns every registered extension, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.openers))
	for ext := range r.openers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func (r *Registry) lookup(ext string) (Opener, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.openers[strings.TrimPrefix(strings.ToLower(ext), ".")]
	return o, ok
}

// Open opens the document behind h with the opener for its extension.
// Every failure is returned as a *domain.ParseError.
func (r *Registry) Open(ctx context.Context, h domain.DocumentHandle) (Document, error) {
	o, ok := r.lookup(h.Extension())
	if !ok {
		return nil, domain.NewParseError(h.Filename, fmt.Errorf("unsupported document type %q", h.Extension()))
	}

	rc, err := h.Open(ctx)
	if err != nil {
		return nil, domain.NewParseError(h.Filename, err)
	}
	defer rc.Close()

	doc, err := o.Open(ctx, h.Filename, rc)
	if err != nil {
		return nil, domain.NewParseError(h.Filename, err)
	}
	return doc, nil
}
