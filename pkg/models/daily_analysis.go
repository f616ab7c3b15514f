package models

import (
	"time"

	"github.com/google/uuid"
)

// DailyAnalysis is the slice of a conversation's activity within one calendar
// date — the atomic unit of scoring. Unique per (conversation, analysis date).
// Response-time metrics are derived from the messages at ingestion; the five
// backend micro-metrics, the four pillar scores and the final index are
// written exactly once by the completing job and never mutated afterward.
type DailyAnalysis struct {
	ID             uuid.UUID  `db:"id"              json:"id"`
	ConversationID uuid.UUID  `db:"conversation_id" json:"conversation_id"`
	ChatID         string     `db:"chat_id"         json:"chat_id"`
	AnalysisDate   time.Time  `db:"analysis_date"   json:"analysis_date"`
	JobID          *uuid.UUID `db:"job_id"          json:"job_id,omitempty"`

	// Backend micro-metrics.
	SentimentScore     *float64 `db:"sentiment_score"     json:"sentiment_score,omitempty"`
	SentimentShift     *float64 `db:"sentiment_shift"     json:"sentiment_shift,omitempty"`
	ResolutionAchieved *float64 `db:"resolution_achieved" json:"resolution_achieved,omitempty"`
	FCRScore           *float64 `db:"fcr_score"           json:"fcr_score,omitempty"`
	CustomerEffort     *float64 `db:"customer_effort"     json:"customer_effort,omitempty"`

	// Time micro-metrics, in seconds.
	FirstResponseSeconds *float64 `db:"first_response_seconds" json:"first_response_seconds,omitempty"`
	AvgResponseSeconds   *float64 `db:"avg_response_seconds"   json:"avg_response_seconds,omitempty"`
	HandlingSeconds      *float64 `db:"handling_seconds"       json:"handling_seconds,omitempty"`

	// Derived pillar scores and final index. CSIScore is non-nil iff all
	// four pillar scores are non-nil.
	EffectivenessScore *float64 `db:"effectiveness_score" json:"effectiveness_score,omitempty"`
	EffortScore        *float64 `db:"effort_score"        json:"effort_score,omitempty"`
	EfficiencyScore    *float64 `db:"efficiency_score"    json:"efficiency_score,omitempty"`
	EmpathyScore       *float64 `db:"empathy_score"       json:"empathy_score,omitempty"`
	CSIScore           *float64 `db:"csi_score"           json:"csi_score,omitempty"`

	ScoredAt  *time.Time `db:"scored_at"  json:"scored_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}
