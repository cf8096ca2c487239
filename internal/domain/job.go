package domain

import "time"

// JobStatus represents the status of an explanation job.
// Values include JobStatusPending, JobStatusProcessing, JobStatusDone, and JobStatusFailed.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
)

// transitions lists every allowed status change. Anything absent is rejected.
var transitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing},
	JobStatusProcessing: {JobStatusDone, JobStatusFailed},
}

// CanTransition reports whether a job may move from one status to another.
// Parameters:
//   - from: current status.
//   - to: requested status.
// Returns:
//   - bool: true when the move is a forward step of the state machine.
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for statuses that never change again.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusDone, JobStatusFailed:
		return true
	}
	return false
}

// Job represents one submitted document awaiting or undergoing explanation.
type Job struct {
	ID           string     `gorm:"type:text;primaryKey" json:"id"`
	Filename     string     `gorm:"type:text;not null" json:"filename"`
	StorageKey   string     `gorm:"type:text" json:"storage_key,omitempty"`
	Status       JobStatus  `gorm:"type:text;not null;index:idx_jobs_status_submitted,priority:1;default:pending" json:"status"`
	SubmittedAt  time.Time  `gorm:"not null;index:idx_jobs_status_submitted,priority:2" json:"submitted_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
	OwnerID      *string    `gorm:"type:text;index" json:"owner_id,omitempty"`
}

// TableName returns the database table name for Job.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Job) TableName() string {
	return "jobs"
}

// Before reports whether j is served before other by the queue ordering:
// oldest submission first, ties broken by identifier.
func (j *Job) Before(other *Job) bool {
	if !j.SubmittedAt.Equal(other.SubmittedAt) {
		return j.SubmittedAt.Before(other.SubmittedAt)
	}
	return j.ID < other.ID
}

// JobView is the read model returned to status callers.
// Explanations and CompletedAt are only populated once the job is done.
type JobView struct {
	ID           string     `json:"id"`
	Status       JobStatus  `json:"status"`
	Filename     string     `json:"filename"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Explanations []string   `json:"explanations,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}
