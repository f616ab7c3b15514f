package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Metric is a cached name → value rollup row, upserted by the aggregator for
// quick dashboard loading. It has no lifecycle beyond overwrite-on-recompute.
type Metric struct {
	ID           uuid.UUID       `db:"id"            json:"id"`
	Name         string          `db:"name"          json:"name"`
	Value        float64         `db:"value"         json:"value"`
	Metadata     json.RawMessage `db:"metadata"      json:"metadata,omitempty"`
	CalculatedAt time.Time       `db:"calculated_at" json:"calculated_at"`
	UpdatedAt    time.Time       `db:"updated_at"    json:"updated_at"`
}

// TopicCount is one bucket of the topic-frequency histogram.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// Rollup is the aggregate metric set over a population of scored units.
// A zero-valued Rollup is the correct answer when no scored units exist.
type Rollup struct {
	AvgCSI             float64      `json:"avg_csi"`
	AvgEffectiveness   float64      `json:"avg_effectiveness"`
	AvgEffort          float64      `json:"avg_effort"`
	AvgEfficiency      float64      `json:"avg_efficiency"`
	AvgEmpathy         float64      `json:"avg_empathy"`
	UnitsAnalyzed      int          `json:"units_analyzed"`
	SentimentPositive  int          `json:"sentiment_positive"`
	SentimentNegative  int          `json:"sentiment_negative"`
	SentimentNeutral   int          `json:"sentiment_neutral"`
	ResolutionRate     float64      `json:"resolution_rate"`
	FCRRate            float64      `json:"fcr_rate"`
	AvgResponseSeconds float64      `json:"avg_response_seconds"`
	TopTopics          []TopicCount `json:"top_topics"`
}

// DailyRollup is one row of the historical rollup, grouped by analysis date.
type DailyRollup struct {
	Date time.Time `json:"date"`
	Rollup
}
