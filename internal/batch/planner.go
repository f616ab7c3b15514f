// Package batch partitions pending analysis units into size- or cost-bounded
// batches for the scoring backend.
package batch

import (
	"log/slog"

	"github.com/powerpulse/pulsedesk/internal/config"
	"github.com/powerpulse/pulsedesk/pkg/models"
)

const (
	StrategyCount  = "count"
	StrategyTokens = "tokens"
)

// EstimateTokens approximates the token cost of one unit's transcript.
func EstimateTokens(u models.ScoringUnit) int {
	return len(u.Transcript) / 4
}

// Plan splits units into ordered batches. Batching is greedy and sequential:
// concatenating the returned batches reproduces the input in order, minus any
// dropped units. Under the token strategy, a unit whose own estimate exceeds
// the whole budget is dropped entirely rather than split.
func Plan(units []models.ScoringUnit, cfg config.BatchConfig) (batches [][]models.ScoringUnit, dropped []models.ScoringUnit) {
	if len(units) == 0 {
		return nil, nil
	}

	switch cfg.Strategy {
	case StrategyCount:
		return planByCount(units, cfg.MaxUnits), nil
	default:
		return planByTokens(units, cfg.TokenBudget)
	}
}

func planByCount(units []models.ScoringUnit, maxUnits int) [][]models.ScoringUnit {
	if maxUnits < 1 {
		maxUnits = 1
	}
	var batches [][]models.ScoringUnit
	for start := 0; start < len(units); start += maxUnits {
		end := start + maxUnits
		if end > len(units) {
			end = len(units)
		}
		batches = append(batches, units[start:end])
	}
	return batches
}

func planByTokens(units []models.ScoringUnit, budget int) (batches [][]models.ScoringUnit, dropped []models.ScoringUnit) {
	var current []models.ScoringUnit
	var spent int

	for _, u := range units {
		cost := EstimateTokens(u)
		if cost > budget {
			slog.Warn("unit exceeds token budget, dropping",
				"chat_id", u.ChatID,
				"date", u.AnalysisDate.Format("2006-01-02"),
				"estimated_tokens", cost,
				"budget", budget,
			)
			dropped = append(dropped, u)
			continue
		}
		if spent+cost > budget && len(current) > 0 {
			batches = append(batches, current)
			current = nil
			spent = 0
		}
		current = append(current, u)
		spent += cost
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches, dropped
}
