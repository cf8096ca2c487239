package queue

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/slidewise/internal/config"
	"github.com/timmy/slidewise/internal/domain"
	"github.com/timmy/slidewise/internal/logger"
	"github.com/timmy/slidewise/internal/repository"
	"github.com/timmy/slidewise/internal/storage"
)

type tableFixture struct {
	queue   *TableQueue
	repo    *repository.JobRepository
	storage *storage.LocalStorage
}

func newTableFixture(t *testing.T) *tableFixture {
	t.Helper()
	dir := t.TempDir()

	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(dir, "jobs.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	objects, err := storage.NewLocalStorage(filepath.Join(dir, "objects"), "")
	require.NoError(t, err)

	repo := repository.NewJobRepository(db)
	return &tableFixture{
		queue:   NewTableQueue(repo, objects, logger.NewNop()),
		repo:    repo,
		storage: objects,
	}
}

func TestTableQueueLifecycleDone(t *testing.T) {
	f := newTableFixture(t)
	ctx := context.Background()

	submitted, err := f.queue.Submit(ctx, "Week 2.pptx", strings.NewReader("deck"), 4)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, submitted.Status)

	exists, err := f.storage.Exists(ctx, submitted.StorageKey)
	require.NoError(t, err)
	assert.True(t, exists)

	job, err := f.queue.PeekNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, submitted.ID, job.ID)

	h, err := f.queue.BeginProcessing(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, job.Status)
	assert.NotNil(t, job.StartedAt)

	rc, err := h.Open(ctx)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "deck", string(data))

	next, err := f.queue.PeekNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)

	_, err = f.queue.BeginProcessing(ctx, job)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	artifact := &domain.ExplanationArtifact{LectureName: "Week 2", PartCount: 3, Explanations: []string{"a", "b"}, Positions: []int{0, 2}}
	require.NoError(t, f.queue.Finalize(ctx, job, artifact))
	assert.Equal(t, domain.JobStatusDone, job.Status)

	view, err := f.queue.Lookup(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDone, view.Status)
	assert.Equal(t, "Week 2.pptx", view.Filename)
	assert.Equal(t, []string{"a", "b"}, view.Explanations)
	assert.NotNil(t, view.CompletedAt)

	stored, err := f.queue.Artifact(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, artifact, stored)

	assert.ErrorIs(t, f.queue.Finalize(ctx, job, artifact), domain.ErrInvalidState)
}

func TestTableQueueFail(t *testing.T) {
	f := newTableFixture(t)
	ctx := context.Background()

	_, err := f.queue.Submit(ctx, "deck.pptx", strings.NewReader("x"), 1)
	require.NoError(t, err)
	job, err := f.queue.PeekNext(ctx)
	require.NoError(t, err)
	_, err = f.queue.BeginProcessing(ctx, job)
	require.NoError(t, err)

	require.NoError(t, f.queue.Fail(ctx, job, errors.New("parse failed")))

	view, err := f.queue.Lookup(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, view.Status)
	assert.Equal(t, "parse failed", view.ErrorMessage)
	assert.Empty(t, view.Explanations)

	_, err = f.queue.Artifact(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTableQueueFinalizeIsAtomic(t *testing.T) {
	f := newTableFixture(t)
	ctx := context.Background()

	_, err := f.queue.Submit(ctx, "deck.pptx", strings.NewReader("x"), 1)
	require.NoError(t, err)
	job, err := f.queue.PeekNext(ctx)
	require.NoError(t, err)
	_, err = f.queue.BeginProcessing(ctx, job)
	require.NoError(t, err)

	// an artifact row already exists, so the insert inside Finalize fails
	require.NoError(t, f.repo.SaveArtifact(ctx, &domain.Artifact{JobID: job.ID, LectureName: "stale"}))

	err = f.queue.Finalize(ctx, job, &domain.ExplanationArtifact{LectureName: "deck"})
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)

	stored, err := f.repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, stored.Status)
	assert.Nil(t, stored.CompletedAt)
}

func TestTableQueueMissingDocument(t *testing.T) {
	f := newTableFixture(t)
	ctx := context.Background()

	submitted, err := f.queue.Submit(ctx, "deck.pptx", strings.NewReader("x"), 1)
	require.NoError(t, err)
	require.NoError(t, f.storage.Delete(ctx, submitted.StorageKey))

	job, err := f.queue.PeekNext(ctx)
	require.NoError(t, err)
	_, err = f.queue.BeginProcessing(ctx, job)
	assert.ErrorIs(t, err, domain.ErrQueueInconsistency)

	// the job does not come back on the next tick
	next, err := f.queue.PeekNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)

	view, err := f.queue.Lookup(ctx, submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, view.Status)
}

func TestTableQueueOrder(t *testing.T) {
	f := newTableFixture(t)
	ctx := context.Background()

	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, j := range []*domain.Job{
		{ID: "c", Filename: "c.pptx", Status: domain.JobStatusPending, SubmittedAt: t0.Add(time.Minute)},
		{ID: "b", Filename: "b.pptx", Status: domain.JobStatusPending, SubmittedAt: t0},
		{ID: "a", Filename: "a.pptx", Status: domain.JobStatusPending, SubmittedAt: t0},
		{ID: "0", Filename: "0.pptx", Status: domain.JobStatusDone, SubmittedAt: t0.Add(-time.Hour)},
	} {
		require.NoError(t, f.repo.Create(ctx, j))
	}

	job, err := f.queue.PeekNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", job.ID)

	again, err := f.queue.PeekNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", again.ID)
}

func TestTableQueueFailStale(t *testing.T) {
	f := newTableFixture(t)
	ctx := context.Background()

	for _, name := range []string{"old.pptx", "fresh.pptx"} {
		_, err := f.queue.Submit(ctx, name, strings.NewReader("x"), 1)
		require.NoError(t, err)
		job, err := f.queue.PeekNext(ctx)
		require.NoError(t, err)
		_, err = f.queue.BeginProcessing(ctx, job)
		require.NoError(t, err)
		if name == "old.pptx" {
			require.NoError(t, f.repo.DB().Model(&domain.Job{}).
				Where("id = ?", job.ID).
				Update("started_at", time.Now().UTC().Add(-2*time.Hour)).Error)
		}
	}

	n, err := f.queue.FailStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	processing, err := f.repo.CountByStatus(ctx, domain.JobStatusProcessing)
	require.NoError(t, err)
	assert.EqualValues(t, 1, processing)

	failed, err := f.repo.ListByStatus(ctx, domain.JobStatusFailed, 10, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "old.pptx", failed[0].Filename)
	assert.Contains(t, failed[0].ErrorMessage, "abandoned")
}

func TestTableQueueLookupUnknown(t *testing.T) {
	f := newTableFixture(t)
	_, err := f.queue.Lookup(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
