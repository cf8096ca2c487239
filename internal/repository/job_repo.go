package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/slidewise/internal/domain"
	"gorm.io/gorm"
)

// JobMutator edits a job in place before its status change is written.
// It runs inside the transition's transaction; returning an error aborts it.
type JobMutator func(tx *gorm.DB, job *domain.Job) error

// JobRepository handles job and artifact persistence.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// WithTx returns a repository bound to an open transaction.
func (r *JobRepository) WithTx(tx *gorm.DB) *JobRepository {
	return &JobRepository{db: tx}
}

// DB exposes the underlying handle so callers can open a transaction.
func (r *JobRepository) DB() *gorm.DB {
	return r.db
}

// Create inserts a new job record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.Job: job record if found.
//   - error: domain.ErrNotFound when no row matches.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// FirstByStatus returns the oldest job with the given status, ordered by
// submission time and then by id. It returns nil, nil when there is none.
func (r *JobRepository) FirstByStatus(ctx context.Context, status domain.JobStatus) (*domain.Job, error) {
	var jobs []domain.Job
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("submitted_at ASC, id ASC").
		Limit(1).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

// ListByStatus retrieves jobs by status with pagination, oldest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: job status to filter by.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.Job: matching jobs.
//   - error: non-nil if the query fails.
func (r *JobRepository) ListByStatus(ctx context.Context, status domain.JobStatus, limit, offset int) ([]domain.Job, error) {
	var jobs []domain.Job
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("submitted_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error
	return jobs, err
}

// CountByStatus returns the number of jobs with the given status.
func (r *JobRepository) CountByStatus(ctx context.Context, status domain.JobStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Job{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// ListStartedBefore returns processing jobs whose hand-off happened before cutoff.
func (r *JobRepository) ListStartedBefore(ctx context.Context, cutoff time.Time) ([]domain.Job, error) {
	var jobs []domain.Job
	err := r.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", domain.JobStatusProcessing, cutoff).
		Order("started_at ASC").
		Find(&jobs).Error
	return jobs, err
}

// Transition atomically moves a job from one status to another.
// The row is re-read inside a transaction, mutate may adjust timestamps or write
// related rows, and the update is conditional on the job still being in from.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - from: status the job must currently have.
//   - to: target status; must be a legal successor of from.
//   - mutate: optional hook run in the same transaction before the update.
// Returns:
//   - *domain.Job: the job as written.
//   - error: domain.ErrNotFound, domain.ErrInvalidState, or a database error.
func (r *JobRepository) Transition(ctx context.Context, id string, from, to domain.JobStatus, mutate JobMutator) (*domain.Job, error) {
	if !domain.CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s is not allowed", domain.ErrInvalidState, from, to)
	}

	var updated domain.Job
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job domain.Job
		if err := tx.First(&job, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		if job.Status != from {
			return domain.InvalidStateError(id, job.Status, from)
		}

		job.Status = to
		if mutate != nil {
			if err := mutate(tx, &job); err != nil {
				return err
			}
		}

		res := tx.Model(&domain.Job{}).
			Where("id = ? AND status = ?", id, from).
			Updates(map[string]interface{}{
				"status":        job.Status,
				"started_at":    job.StartedAt,
				"completed_at":  job.CompletedAt,
				"error_message": job.ErrorMessage,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Another writer moved the job between the read and the update.
			return domain.InvalidStateError(id, "unknown", from)
		}

		updated = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// SaveArtifact inserts the artifact row for a job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - artifact: artifact row to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *JobRepository) SaveArtifact(ctx context.Context, artifact *domain.Artifact) error {
	return r.db.WithContext(ctx).Create(artifact).Error
}

// GetArtifact retrieves the artifact for a job.
// Returns domain.ErrNotFound when the job has no artifact.
func (r *JobRepository) GetArtifact(ctx context.Context, jobID string) (*domain.Artifact, error) {
	var artifact domain.Artifact
	if err := r.db.WithContext(ctx).First(&artifact, "job_id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &artifact, nil
}
