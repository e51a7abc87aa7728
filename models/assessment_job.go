package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AssessmentJobStatus represents the status of an assessment job
type AssessmentJobStatus string

const (
	JobStatusPending    AssessmentJobStatus = "pending"
	JobStatusInProgress AssessmentJobStatus = "in_progress"
	JobStatusCompleted  AssessmentJobStatus = "completed"
	JobStatusFailed     AssessmentJobStatus = "failed"
)

// AssessmentStep represents one pipeline stage of an assessment run
type AssessmentStep struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "pending", "in_progress", "completed", "failed"
}

// AssessmentSteps represents the ordered stage list of an assessment job
type AssessmentSteps []AssessmentStep

// Value implements driver.Valuer for JSONB
func (s AssessmentSteps) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB
func (s *AssessmentSteps) Scan(value interface{}) error {
	if value == nil {
		*s = make(AssessmentSteps, 0)
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*s = make(AssessmentSteps, 0)
		return nil
	}

	if len(bytes) == 0 {
		*s = make(AssessmentSteps, 0)
		return nil
	}

	return json.Unmarshal(bytes, s)
}

// JobCaseInput wraps CaseInput for JSONB storage on the job row
type JobCaseInput CaseInput

// Value implements driver.Valuer for JSONB
func (j JobCaseInput) Value() (driver.Value, error) {
	return json.Marshal(j)
}

// Scan implements sql.Scanner for JSONB
func (j *JobCaseInput) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	if len(bytes) == 0 {
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// JobResult wraps BreachImpactResult for JSONB storage on the job row
type JobResult BreachImpactResult

// Value implements driver.Valuer for JSONB
func (j JobResult) Value() (driver.Value, error) {
	return json.Marshal(j)
}

// Scan implements sql.Scanner for JSONB
func (j *JobResult) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	if len(bytes) == 0 {
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// AssessmentJob represents one asynchronous breach-impact assessment run.
// The synchronous /predict-breach-impact endpoint bypasses jobs entirely;
// jobs exist so the dashboard can enqueue an assessment and poll progress.
type AssessmentJob struct {
	ID           uuid.UUID           `json:"id"`
	Input        JobCaseInput        `json:"input"`
	Status       AssessmentJobStatus `json:"status"`
	CurrentStep  *string             `json:"current_step,omitempty"`
	Steps        AssessmentSteps     `json:"steps"`
	Result       *JobResult          `json:"result,omitempty"`
	ErrorMessage *string             `json:"error_message,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
}
