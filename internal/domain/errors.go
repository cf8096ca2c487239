package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a job does not exist.
	ErrNotFound = errors.New("job not found")

	// ErrInvalidState is returned when a transition is requested from the wrong status.
	ErrInvalidState = errors.New("job is in an invalid state for this operation")

	// ErrQueueInconsistency is returned when the queue references a job whose
	// document is missing or already consumed. The poller treats it as "no job".
	ErrQueueInconsistency = errors.New("queue references a missing document")
)

// ParseError is returned when a document cannot be opened or decoded at all.
// It is fatal for the job.
type ParseError struct {
	Document string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse document %q: %v", e.Document, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError wraps err as a ParseError for document.
func NewParseError(document string, err error) *ParseError {
	return &ParseError{Document: document, Err: err}
}

// PersistenceError wraps failures of the backing store while finalizing or failing a job.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// InvalidStateError builds an error that matches ErrInvalidState with the offending statuses.
func InvalidStateError(jobID string, have, want JobStatus) error {
	return fmt.Errorf("%w: job %s is %s, expected %s", ErrInvalidState, jobID, have, want)
}
