package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// IntArray stores an int slice as JSON text.
type IntArray []int

// Value implements the driver.Valuer interface.
func (a IntArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface.
func (a *IntArray) Scan(value interface{}) error {
	if value == nil {
		*a = IntArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan IntArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// PartResult pairs a part position with its explanation, or with the
// diagnostic text that replaced it when the part could not be explained.
type PartResult struct {
	Position    int
	Explanation string
	Err         error
}

// Failed reports whether the result carries a diagnostic instead of an explanation.
func (r PartResult) Failed() bool {
	return r.Err != nil
}

// ExplanationArtifact is the terminal output of a job.
// The JSON keys match the files written by earlier versions of the explainer.
type ExplanationArtifact struct {
	LectureName  string   `json:"lecture name"`
	PartCount    int      `json:"number of slides"`
	Explanations []string `json:"explained slides"`
	Positions    []int    `json:"slide positions,omitempty"`
}

// Artifact is the persisted form of an ExplanationArtifact, keyed by job.
type Artifact struct {
	JobID        string      `gorm:"type:text;primaryKey" json:"job_id"`
	LectureName  string      `gorm:"type:text;not null" json:"lecture_name"`
	PartCount    int         `gorm:"not null" json:"part_count"`
	Explanations StringArray `gorm:"type:text" json:"explanations"`
	Positions    IntArray    `gorm:"type:text" json:"positions"`
	CreatedAt    time.Time   `json:"created_at"`
}

// TableName returns the database table name for Artifact.
func (Artifact) TableName() string {
	return "artifacts"
}

// NewArtifactRecord converts an ExplanationArtifact into its persisted row.
func NewArtifactRecord(jobID string, a *ExplanationArtifact) *Artifact {
	return &Artifact{
		JobID:        jobID,
		LectureName:  a.LectureName,
		PartCount:    a.PartCount,
		Explanations: StringArray(a.Explanations),
		Positions:    IntArray(a.Positions),
	}
}

// ToExplanationArtifact converts the persisted row back to the artifact shape.
func (a *Artifact) ToExplanationArtifact() *ExplanationArtifact {
	return &ExplanationArtifact{
		LectureName:  a.LectureName,
		PartCount:    a.PartCount,
		Explanations: []string(a.Explanations),
		Positions:    []int(a.Positions),
	}
}
