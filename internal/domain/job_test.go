package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	testCases := []struct {
		name string
		from JobStatus
		to   JobStatus
		want bool
	}{
		{"pending to processing", JobStatusPending, JobStatusProcessing, true},
		{"processing to done", JobStatusProcessing, JobStatusDone, true},
		{"processing to failed", JobStatusProcessing, JobStatusFailed, true},
		{"pending to done", JobStatusPending, JobStatusDone, false},
		{"processing back to pending", JobStatusProcessing, JobStatusPending, false},
		{"done to processing", JobStatusDone, JobStatusProcessing, false},
		{"failed to pending", JobStatusFailed, JobStatusPending, false},
		{"same status", JobStatusPending, JobStatusPending, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanTransition(tc.from, tc.to))
		})
	}
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobStatusPending.IsTerminal())
	assert.False(t, JobStatusProcessing.IsTerminal())
	assert.True(t, JobStatusDone.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())

	assert.True(t, JobStatusDone.Valid())
	assert.False(t, JobStatus("queued").Valid())
}

func TestJobBefore(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	older := &Job{ID: "b", SubmittedAt: t0}
	newer := &Job{ID: "a", SubmittedAt: t0.Add(time.Second)}
	assert.True(t, older.Before(newer))
	assert.False(t, newer.Before(older))

	// identical submission time: identifier decides
	x := &Job{ID: "x", SubmittedAt: t0}
	y := &Job{ID: "y", SubmittedAt: t0}
	assert.True(t, x.Before(y))
	assert.False(t, y.Before(x))
	assert.False(t, x.Before(x))
}

func TestErrors(t *testing.T) {
	err := InvalidStateError("job-1", JobStatusDone, JobStatusProcessing)
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.Contains(t, err.Error(), "job-1 is done, expected processing")

	cause := errors.New("bad zip")
	var perr *ParseError
	assert.True(t, errors.As(NewParseError("deck.pptx", cause), &perr))
	assert.ErrorIs(t, perr, cause)
	assert.Equal(t, "deck.pptx", perr.Document)

	pe := &PersistenceError{Op: "finalize", Err: cause}
	assert.ErrorIs(t, pe, cause)
	assert.Contains(t, pe.Error(), "finalize")
}
