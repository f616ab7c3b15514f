package scoring

import (
	"testing"
	"time"

	"github.com/powerpulse/pulsedesk/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(dir string, at time.Time) *models.Message {
	return &models.Message{Direction: dir, SentAt: at, Content: "hi"}
}

func TestComputeTimeMetricsEmpty(t *testing.T) {
	tm := ComputeTimeMetrics(nil)
	assert.Nil(t, tm.FirstResponseSeconds)
	assert.Nil(t, tm.AvgResponseSeconds)
	assert.Nil(t, tm.HandlingSeconds)
}

func TestComputeTimeMetricsBasicExchange(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	msgs := []*models.Message{
		msg(models.DirectionToCompany, base),
		msg(models.DirectionToClient, base.Add(2*time.Minute)),
		msg(models.DirectionToCompany, base.Add(5*time.Minute)),
		msg(models.DirectionToClient, base.Add(9*time.Minute)),
	}

	tm := ComputeTimeMetrics(msgs)
	require.NotNil(t, tm.FirstResponseSeconds)
	require.NotNil(t, tm.AvgResponseSeconds)
	require.NotNil(t, tm.HandlingSeconds)

	assert.InDelta(t, 120, *tm.FirstResponseSeconds, 1e-9)
	assert.InDelta(t, 180, *tm.AvgResponseSeconds, 1e-9) // (120+240)/2
	assert.InDelta(t, 540, *tm.HandlingSeconds, 1e-9)
}

func TestComputeTimeMetricsUnsortedInput(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	msgs := []*models.Message{
		msg(models.DirectionToClient, base.Add(1*time.Minute)),
		msg(models.DirectionToCompany, base),
	}

	tm := ComputeTimeMetrics(msgs)
	require.NotNil(t, tm.FirstResponseSeconds)
	assert.InDelta(t, 60, *tm.FirstResponseSeconds, 1e-9)
}

func TestComputeTimeMetricsNoAgentReply(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	msgs := []*models.Message{
		msg(models.DirectionToCompany, base),
		msg(models.DirectionToCompany, base.Add(time.Minute)),
	}

	tm := ComputeTimeMetrics(msgs)
	assert.Nil(t, tm.FirstResponseSeconds)
	assert.Nil(t, tm.AvgResponseSeconds)
	require.NotNil(t, tm.HandlingSeconds)
	assert.InDelta(t, 60, *tm.HandlingSeconds, 1e-9)
}

func TestComputeTimeMetricsBurstCountsOnce(t *testing.T) {
	// Several customer messages before one reply count as a single pending
	// question anchored at the first message.
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	msgs := []*models.Message{
		msg(models.DirectionToCompany, base),
		msg(models.DirectionToCompany, base.Add(30*time.Second)),
		msg(models.DirectionToClient, base.Add(2*time.Minute)),
	}

	tm := ComputeTimeMetrics(msgs)
	require.NotNil(t, tm.FirstResponseSeconds)
	assert.InDelta(t, 120, *tm.FirstResponseSeconds, 1e-9)
	require.NotNil(t, tm.AvgResponseSeconds)
	assert.InDelta(t, 120, *tm.AvgResponseSeconds, 1e-9)
}
