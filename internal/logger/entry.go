package logger

import (
	"context"
	"time"
)

// Entry carries metric fields (duration_ms, count, size, parts) for a single
// log line. The logger itself comes from the context passed at the call.
type Entry struct {
	fields Fields
}

// With starts an Entry with the given fields. fields may be nil.
// Example: logger.With(nil).WithParts(12).WithSince(start).Info(ctx, "Document explained")
func With(fields Fields) *Entry {
	e := &Entry{fields: make(Fields, len(fields))}
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

// With returns a copy of the Entry with fields merged in.
func (e *Entry) With(fields Fields) *Entry {
	merged := With(e.fields)
	for k, v := range fields {
		merged.fields[k] = v
	}
	return merged
}

// WithSince adds duration_ms measured from start.
func (e *Entry) WithSince(start time.Time) *Entry {
	return e.With(Fields{FieldDurationMs: time.Since(start).Milliseconds()})
}

func (e *Entry) WithCount(count int) *Entry {
	return e.With(Fields{FieldCount: count})
}

// WithSize adds a size in bytes.
func (e *Entry) WithSize(size int64) *Entry {
	return e.With(Fields{FieldSize: size})
}

func (e *Entry) WithStatus(status string) *Entry {
	return e.With(Fields{FieldStatus: status})
}

// WithParts adds the number of parts a document was split into.
func (e *Entry) WithParts(n int) *Entry {
	return e.With(Fields{FieldParts: n})
}

// Info logs at Info level with the context's logger.
func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Infof(format, args...)
}

// Warn logs at Warn level with the context's logger.
func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Warnf(format, args...)
}
