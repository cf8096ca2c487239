package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the explanation job ID
	FieldJobID = "job_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldDocument is the document file name being processed
	FieldDocument = "document"

	// FieldQueueBackend is the queue backing store (fs, table)
	FieldQueueBackend = "queue_backend"

	// FieldPartIndex is the zero-based position of a slide within its document
	FieldPartIndex = "part_index"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldParts is the number of parts in a document
	FieldParts = "parts"
)
