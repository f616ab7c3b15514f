package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// JobMetric captures the cost of a job's backend call.
type JobMetric struct {
	PromptTokens int   `db:"prompt_tokens" json:"prompt_tokens"`
	OutputTokens int   `db:"output_tokens" json:"output_tokens"`
	Calls        int   `db:"backend_calls" json:"backend_calls"`
	WallMillis   int64 `db:"wall_millis"   json:"wall_millis"`
}

// Job correlates one upload to one batch of daily analysis units. Status
// transitions only move forward: pending → in_progress → completed | failed.
// Jobs are never deleted; they are the audit trail of every backend call.
type Job struct {
	ID           uuid.UUID       `db:"id"            json:"id"`
	UploadID     uuid.UUID       `db:"upload_id"     json:"upload_id"`
	Status       string          `db:"status"        json:"status"`
	Result       json.RawMessage `db:"result"        json:"result,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	Trace        *string         `db:"trace"         json:"trace,omitempty"`
	Metric       JobMetric       `json:"metric"`
	StartedAt    *time.Time      `db:"started_at"   json:"started_at,omitempty"`
	CompletedAt  *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at"   json:"created_at"`
}
