package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/slidewise/internal/domain"
	"github.com/timmy/slidewise/internal/logger"
	"github.com/timmy/slidewise/internal/repository"
	"github.com/timmy/slidewise/internal/storage"
	"gorm.io/gorm"
)

// TableQueue is a queue over the jobs table. Documents live in object storage.
type TableQueue struct {
	repo    *repository.JobRepository
	storage storage.ObjectStorage
	logger  *logger.Logger
}

// NewTableQueue creates a new table-backed queue.
// Parameters:
//   - repo: job repository used for all state changes.
//   - objectStorage: storage holding the uploaded documents.
//   - log: logger for queue events.
//
// Returns:
//   - *TableQueue: queue bound to repo and objectStorage.
func NewTableQueue(repo *repository.JobRepository, objectStorage storage.ObjectStorage, log *logger.Logger) *TableQueue {
	return &TableQueue{repo: repo, storage: objectStorage, logger: log}
}

// PeekNext returns the oldest pending row, ordered by submission time then id.
func (q *TableQueue) PeekNext(ctx context.Context) (*domain.Job, error) {
	return q.repo.FirstByStatus(ctx, domain.JobStatusPending)
}

// BeginProcessing moves the job to processing and returns a handle that
// downloads its document. A job whose document is missing from storage is
// failed on the spot and reported as domain.ErrQueueInconsistency.
// The poller still skips the tick on that error, but the job itself is not
// retried: it leaves pending so PeekNext cannot return it again.
func (q *TableQueue) BeginProcessing(ctx context.Context, job *domain.Job) (domain.DocumentHandle, error) {
	started, err := q.repo.Transition(ctx, job.ID, domain.JobStatusPending, domain.JobStatusProcessing,
		func(tx *gorm.DB, j *domain.Job) error {
			now := time.Now().UTC()
			j.StartedAt = &now
			return nil
		})
	if err != nil {
		return domain.DocumentHandle{}, err
	}
	*job = *started

	exists, err := q.storage.Exists(ctx, job.StorageKey)
	if err == nil && !exists {
		cause := fmt.Errorf("%w: %s", domain.ErrQueueInconsistency, job.StorageKey)
		if failErr := q.Fail(ctx, job, cause); failErr != nil {
			q.logger.WithError(failErr).WithField(logger.FieldJobID, job.ID).Error("Failed to fail job with missing document")
		}
		return domain.DocumentHandle{}, cause
	}

	key := job.StorageKey
	return domain.NewDocumentHandle(job.ID, job.Filename, func(ctx context.Context) (io.ReadCloser, error) {
		rc, err := q.storage.Download(ctx, key)
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrQueueInconsistency, key)
		}
		return rc, err
	}), nil
}

// Finalize writes the artifact row and the done status in one transaction.
func (q *TableQueue) Finalize(ctx context.Context, job *domain.Job, artifact *domain.ExplanationArtifact) error {
	done, err := q.repo.Transition(ctx, job.ID, domain.JobStatusProcessing, domain.JobStatusDone,
		func(tx *gorm.DB, j *domain.Job) error {
			now := time.Now().UTC()
			j.CompletedAt = &now
			return q.repo.WithTx(tx).SaveArtifact(ctx, domain.NewArtifactRecord(j.ID, artifact))
		})
	if err != nil {
		return wrapPersistence("finalize", err)
	}
	*job = *done
	return nil
}

// Fail records cause and moves the job to failed.
func (q *TableQueue) Fail(ctx context.Context, job *domain.Job, cause error) error {
	failed, err := q.repo.Transition(ctx, job.ID, domain.JobStatusProcessing, domain.JobStatusFailed,
		func(tx *gorm.DB, j *domain.Job) error {
			now := time.Now().UTC()
			j.CompletedAt = &now
			if cause != nil {
				j.ErrorMessage = cause.Error()
			}
			return nil
		})
	if err != nil {
		return wrapPersistence("fail", err)
	}
	*job = *failed
	return nil
}

// FailStale fails processing jobs that were handed off more than olderThan ago,
// typically left behind by a crash. Jobs are never re-queued.
// Returns the number of jobs failed.
func (q *TableQueue) FailStale(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := q.repo.ListStartedBefore(ctx, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, err
	}

	failed := 0
	for i := range stale {
		job := &stale[i]
		cause := fmt.Errorf("abandoned: processing since %s", job.StartedAt.Format(time.RFC3339))
		if err := q.Fail(ctx, job, cause); err != nil {
			if errors.Is(err, domain.ErrInvalidState) {
				continue
			}
			return failed, err
		}
		failed++
	}
	return failed, nil
}

// Submit uploads the document and creates its pending row in one transaction,
// so the poller never sees a job whose document is not yet stored.
func (q *TableQueue) Submit(ctx context.Context, filename string, r io.Reader, size int64) (*domain.Job, error) {
	id := uuid.New().String()
	name := filepath.Base(filename)
	job := &domain.Job{
		ID:          id,
		Filename:    name,
		StorageKey:  storage.DocumentKey(id, name),
		Status:      domain.JobStatusPending,
		SubmittedAt: time.Now().UTC(),
	}

	err := q.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := q.repo.WithTx(tx).Create(ctx, job); err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}
		if err := q.storage.Upload(ctx, job.StorageKey, r, size, storage.ContentTypeFor(name)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Lookup returns the job's current view; explanations are attached once done.
func (q *TableQueue) Lookup(ctx context.Context, id string) (*domain.JobView, error) {
	job, err := q.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &domain.JobView{
		ID:          job.ID,
		Status:      job.Status,
		Filename:    job.Filename,
		SubmittedAt: job.SubmittedAt,
	}
	switch job.Status {
	case domain.JobStatusDone:
		artifact, err := q.repo.GetArtifact(ctx, id)
		if err != nil {
			return nil, err
		}
		view.CompletedAt = job.CompletedAt
		view.Explanations = []string(artifact.Explanations)
	case domain.JobStatusFailed:
		view.CompletedAt = job.CompletedAt
		view.ErrorMessage = job.ErrorMessage
	}
	return view, nil
}

// Artifact returns the artifact of a done job.
func (q *TableQueue) Artifact(ctx context.Context, id string) (*domain.ExplanationArtifact, error) {
	job, err := q.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusDone {
		return nil, domain.ErrNotFound
	}
	artifact, err := q.repo.GetArtifact(ctx, id)
	if err != nil {
		return nil, err
	}
	return artifact.ToExplanationArtifact(), nil
}

// wrapPersistence leaves state errors untouched and tags everything else as a store failure.
func wrapPersistence(op string, err error) error {
	if errors.Is(err, domain.ErrInvalidState) || errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return &domain.PersistenceError{Op: op, Err: err}
}

var _ Store = (*TableQueue)(nil)
