package queue

import (
	"context"
	"io"

	"github.com/timmy/slidewise/internal/domain"
)

// Queue is the contract between the poller and a durable job backlog.
// Every state change goes through one of its atomic transitions.
type Queue interface {
	// PeekNext returns the oldest pending job without changing it.
	// It returns nil, nil when nothing is pending.
	PeekNext(ctx context.Context) (*domain.Job, error)

	// BeginProcessing moves job from pending to processing and returns a handle
	// to its document. Returns domain.ErrNotFound if the job vanished and
	// domain.ErrInvalidState if it is no longer pending.
	BeginProcessing(ctx context.Context, job *domain.Job) (domain.DocumentHandle, error)

	// Finalize stores the artifact and moves job from processing to done.
	Finalize(ctx context.Context, job *domain.Job, artifact *domain.ExplanationArtifact) error

	// Fail moves job from processing to failed, recording cause.
	Fail(ctx context.Context, job *domain.Job, cause error) error
}

// Store is a Queue that also accepts submissions and answers status lookups.
type Store interface {
	Queue

	// Submit stores the document and creates a pending job for it.
	Submit(ctx context.Context, filename string, r io.Reader, size int64) (*domain.Job, error)

	// Lookup returns the current view of a job, or domain.ErrNotFound.
	Lookup(ctx context.Context, id string) (*domain.JobView, error)

	// Artifact returns the stored artifact of a done job, or domain.ErrNotFound.
	Artifact(ctx context.Context, id string) (*domain.ExplanationArtifact, error)
}

// Waker is implemented by queues that can signal new work before the poll interval elapses.
type Waker interface {
	Wake() <-chan struct{}
}

// Processor explains one document. It is satisfied by service.ExplainEngine.
type Processor interface {
	Process(ctx context.Context, h domain.DocumentHandle) (*domain.ExplanationArtifact, error)
}
