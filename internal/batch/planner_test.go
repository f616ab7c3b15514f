package batch

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/powerpulse/pulsedesk/internal/config"
	"github.com/powerpulse/pulsedesk/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unit builds a scoring unit whose transcript estimates to exactly tokens.
func unit(chatID string, tokens int) models.ScoringUnit {
	return models.ScoringUnit{
		ID:         uuid.New(),
		ChatID:     chatID,
		Transcript: strings.Repeat("x", tokens*4),
	}
}

func flatten(batches [][]models.ScoringUnit) []models.ScoringUnit {
	var out []models.ScoringUnit
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}

func TestPlanEmpty(t *testing.T) {
	batches, dropped := Plan(nil, config.BatchConfig{Strategy: StrategyTokens, TokenBudget: 100})
	assert.Nil(t, batches)
	assert.Nil(t, dropped)
}

func TestPlanByCount(t *testing.T) {
	units := []models.ScoringUnit{unit("a", 1), unit("b", 1), unit("c", 1), unit("d", 1), unit("e", 1)}
	batches, dropped := Plan(units, config.BatchConfig{Strategy: StrategyCount, MaxUnits: 2})

	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 2)
	assert.Len(t, batches[2], 1)
	assert.Empty(t, dropped)
	assert.Equal(t, units, flatten(batches))
}

func TestPlanByTokensExample(t *testing.T) {
	// Three 10-token conversations against a 20-token budget → [2, 1].
	units := []models.ScoringUnit{unit("a", 10), unit("b", 10), unit("c", 10)}
	batches, dropped := Plan(units, config.BatchConfig{Strategy: StrategyTokens, TokenBudget: 20})

	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 1)
	assert.Empty(t, dropped)
	assert.Equal(t, units, flatten(batches))
}

func TestPlanByTokensDropsOversized(t *testing.T) {
	units := []models.ScoringUnit{unit("small", 5), unit("huge", 50), unit("small2", 5)}
	batches, dropped := Plan(units, config.BatchConfig{Strategy: StrategyTokens, TokenBudget: 20})

	require.Len(t, dropped, 1)
	assert.Equal(t, "huge", dropped[0].ChatID)

	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
	assert.Equal(t, "small", batches[0][0].ChatID)
	assert.Equal(t, "small2", batches[0][1].ChatID)
}

func TestPlanPreservesOrder(t *testing.T) {
	var units []models.ScoringUnit
	for i := 0; i < 23; i++ {
		units = append(units, unit("c", 3))
	}

	for _, cfg := range []config.BatchConfig{
		{Strategy: StrategyCount, MaxUnits: 4},
		{Strategy: StrategyTokens, TokenBudget: 10},
	} {
		batches, dropped := Plan(units, cfg)
		assert.Empty(t, dropped)
		got := flatten(batches)
		require.Len(t, got, len(units))
		for i := range units {
			assert.Equal(t, units[i].ID, got[i].ID, "strategy %s index %d", cfg.Strategy, i)
		}
	}
}

func TestPlanByTokensRespectsBudget(t *testing.T) {
	units := []models.ScoringUnit{unit("a", 7), unit("b", 7), unit("c", 7), unit("d", 7)}
	batches, _ := Plan(units, config.BatchConfig{Strategy: StrategyTokens, TokenBudget: 15})

	for i, b := range batches {
		var total int
		for _, u := range b {
			total += EstimateTokens(u)
		}
		assert.LessOrEqual(t, total, 15, "batch %d", i)
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 10, EstimateTokens(models.ScoringUnit{Transcript: strings.Repeat("a", 40)}))
	assert.Equal(t, 0, EstimateTokens(models.ScoringUnit{}))
}
