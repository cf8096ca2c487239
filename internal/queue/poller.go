package queue

import (
	"context"
	"errors"
	"time"

	"github.com/timmy/slidewise/internal/domain"
	"github.com/timmy/slidewise/internal/logger"
)

// DefaultPollInterval is how long the poller sleeps when no job is pending.
const DefaultPollInterval = 10 * time.Second

// StaleFailer is implemented by queues that can fail jobs abandoned in processing.
type StaleFailer interface {
	FailStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// PollerConfig holds configuration for the poller.
type PollerConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration // 0 disables stale recovery at start-up
	Backend    string        // queue backend name, for logs
}

// Poller is the single consumer of a Queue. It processes one job at a time.
type Poller struct {
	queue      Queue
	processor  Processor
	logger     *logger.Logger
	interval   time.Duration
	staleAfter time.Duration
	backend    string
}

// NewPoller creates a new poller.
// Parameters:
//   - q: queue to consume.
//   - processor: engine that explains each job's document.
//   - log: logger for poller events.
//   - cfg: poll interval and stale recovery; nil uses the defaults.
//
// Returns:
//   - *Poller: poller ready to Run.
func NewPoller(q Queue, processor Processor, log *logger.Logger, cfg *PollerConfig) *Poller {
	if cfg == nil {
		cfg = &PollerConfig{}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		queue:      q,
		processor:  processor,
		logger:     log,
		interval:   interval,
		staleAfter: cfg.StaleAfter,
		backend:    cfg.Backend,
	}
}

// Run drains the queue, sleeps for the poll interval (or until the queue wakes
// it), and repeats until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ctx = p.logger.WithField(logger.FieldQueueBackend, p.backend).WithContext(ctx)
	ctx = logger.SetComponent(ctx, "poller")

	p.recoverStale(ctx)

	var wake <-chan struct{}
	if w, ok := p.queue.(Waker); ok {
		wake = w.Wake()
	}

	logger.CtxInfo(ctx, "Poller started (interval %s)", p.interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.CtxInfo(ctx, "Poller stopped")
			return nil
		case <-timer.C:
		case <-wake:
			timer.Stop()
		}

		p.drain(ctx)
		timer.Reset(p.interval)
	}
}

// drain processes jobs back to back until none is available.
func (p *Poller) drain(ctx context.Context) {
	for ctx.Err() == nil {
		processed, err := p.RunOnce(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.FromContext(ctx).WithError(err).Error("Poll iteration failed")
			}
			return
		}
		if !processed {
			return
		}
	}
}

// RunOnce takes at most one job through hand-off, explanation and finalization.
// Returns:
//   - bool: true when a job was taken off the queue.
//   - error: queue failures that should end the current drain.
func (p *Poller) RunOnce(ctx context.Context) (bool, error) {
	job, err := p.queue.PeekNext(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	jobCtx := logger.SetJobID(ctx, job.ID)
	jobCtx = logger.SetDocument(jobCtx, job.Filename)
	log := logger.FromContext(jobCtx)

	h, err := p.queue.BeginProcessing(jobCtx, job)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrQueueInconsistency) || errors.Is(err, domain.ErrInvalidState) {
			log.WithError(err).Warn("Job could not be handed off, skipping this tick")
			return false, nil
		}
		return false, err
	}

	start := time.Now()
	log.Info("Job processing started")

	artifact, err := p.processor.Process(jobCtx, h)
	if ctx.Err() != nil {
		// Shutting down: the job stays in processing and partial results are dropped.
		logger.CtxWarn(jobCtx, "Job interrupted by shutdown after %s", time.Since(start).Round(time.Millisecond))
		return true, ctx.Err()
	}
	if err != nil {
		var parseErr *domain.ParseError
		if errors.As(err, &parseErr) {
			log.WithError(err).Warn("Document could not be parsed, failing job")
		} else {
			log.WithError(err).Error("Job processing failed")
		}
		p.fail(jobCtx, job, err)
		return true, nil
	}

	if err := p.queue.Finalize(jobCtx, job, artifact); err != nil {
		log.WithError(err).Error("Failed to finalize job")
		var perr *domain.PersistenceError
		if errors.As(err, &perr) {
			p.fail(jobCtx, job, err)
		}
		return true, nil
	}

	logger.With(logger.Fields{"explanations": len(artifact.Explanations)}).
		WithParts(artifact.PartCount).
		WithSince(start).WithStatus(string(domain.JobStatusDone)).Info(jobCtx, "Job finalized")
	return true, nil
}

// fail makes a single attempt to move the job to failed.
func (p *Poller) fail(ctx context.Context, job *domain.Job, cause error) {
	if err := p.queue.Fail(ctx, job, cause); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to mark job as failed; it stays in processing")
		return
	}
	logger.With(nil).WithStatus(string(domain.JobStatusFailed)).Info(ctx, "Job failed")
}

func (p *Poller) recoverStale(ctx context.Context) {
	if p.staleAfter <= 0 {
		return
	}
	sf, ok := p.queue.(StaleFailer)
	if !ok {
		return
	}
	n, err := sf.FailStale(ctx, p.staleAfter)
	if err != nil {
		logger.CtxError(ctx, "Stale job recovery failed: %v", err)
		return
	}
	if n > 0 {
		logger.With(nil).WithCount(n).Warn(ctx, "Failed stale processing jobs")
	}
}
