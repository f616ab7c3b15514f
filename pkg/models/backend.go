// Package models contains shared data models used across the PulseDesk codebase.
package models

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ScoringBackend is the core interface that all scoring integrations must
// implement. Never call a specific provider directly — always inject this
// interface. Exactly one concrete backend is active per deployment, selected
// by configuration at startup.
type ScoringBackend interface {
	// Analyze scores a batch of units in a single combined request. Results
	// are keyed by unit ID, so response ordering need not match input
	// ordering. Units the provider could not score come back as fallback
	// results rather than an error.
	Analyze(ctx context.Context, units []ScoringUnit) ([]UnitResult, Usage, error)
	// Name returns the provider identifier (e.g., "gemini", "openai").
	Name() string
}

// ScoringUnit is one conversation-day handed to the scoring backend.
type ScoringUnit struct {
	ID           uuid.UUID `json:"unit_id"`
	ChatID       string    `json:"chat_id"`
	AnalysisDate time.Time `json:"analysis_date"`
	Transcript   string    `json:"transcript"`
}

// UnitScores holds the micro-metrics a backend produces for one unit.
// All scores are on a 0-10 scale except SentimentShift ([-5,+5]) and
// CustomerEffort (1-7).
type UnitScores struct {
	SentimentScore     *float64 `json:"sentiment_score"`
	SentimentShift     *float64 `json:"sentiment_shift"`
	ResolutionAchieved *float64 `json:"resolution_achieved"`
	FCRScore           *float64 `json:"fcr_score"`
	CustomerEffort     *float64 `json:"customer_effort"`
	Topics             []string `json:"topics,omitempty"`
}

// UnitResult is the backend's verdict for a single unit. Fallback results
// carry mid-scale neutral scores and an error tag instead of real analysis.
type UnitResult struct {
	UnitID   uuid.UUID  `json:"unit_id"`
	Scores   UnitScores `json:"scores"`
	Fallback bool       `json:"fallback"`
	ErrorTag string     `json:"error_tag,omitempty"`
}

// Usage is the provider-reported cost of a batch call.
type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	OutputTokens int `json:"output_tokens"`
	Calls        int `json:"calls"`
}

// Add accumulates usage across retries.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.OutputTokens += other.OutputTokens
	u.Calls += other.Calls
}
