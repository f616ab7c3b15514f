package scoring

import (
	"testing"

	"github.com/powerpulse/pulsedesk/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func fullyScoredUnit() *models.DailyAnalysis {
	return &models.DailyAnalysis{
		SentimentScore:       f(8),
		SentimentShift:       f(1),
		ResolutionAchieved:   f(9),
		FCRScore:             f(7),
		CustomerEffort:       f(2),
		FirstResponseSeconds: f(600),
		AvgResponseSeconds:   f(300),
		HandlingSeconds:      f(1800),
	}
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	require.NoError(t, DefaultWeights.Validate())
}

func TestWeightsValidateRejectsBadSum(t *testing.T) {
	w := Weights{Effectiveness: 0.5, Effort: 0.5, Efficiency: 0.5, Empathy: 0.5}
	assert.Error(t, w.Validate())
}

func TestComputeSetsAllPillars(t *testing.T) {
	u := fullyScoredUnit()
	Compute(u, DefaultWeights)

	require.NotNil(t, u.EffectivenessScore)
	require.NotNil(t, u.EffortScore)
	require.NotNil(t, u.EfficiencyScore)
	require.NotNil(t, u.EmpathyScore)
	require.NotNil(t, u.CSIScore)

	assert.InDelta(t, 8.0, *u.EffectivenessScore, 1e-9)      // mean(9, 7)
	assert.InDelta(t, 8.333333333, *u.EffortScore, 1e-6)     // ((7-2)/6)*10
	assert.InDelta(t, 7.0, *u.EmpathyScore, 1e-9)            // mean(8, 1+5)
	// scaled(600,3600)=8.333, scaled(300,1800)=8.333, scaled(1800,7200)=7.5
	assert.InDelta(t, 8.055555555, *u.EfficiencyScore, 1e-6)
}

func TestCSINilWhenAnyPillarMissing(t *testing.T) {
	tests := []struct {
		name  string
		strip func(*models.DailyAnalysis)
	}{
		{"no effectiveness inputs", func(u *models.DailyAnalysis) {
			u.ResolutionAchieved = nil
			u.FCRScore = nil
		}},
		{"no effort input", func(u *models.DailyAnalysis) {
			u.CustomerEffort = nil
		}},
		{"no efficiency inputs", func(u *models.DailyAnalysis) {
			u.FirstResponseSeconds = nil
			u.AvgResponseSeconds = nil
			u.HandlingSeconds = nil
		}},
		{"no empathy inputs", func(u *models.DailyAnalysis) {
			u.SentimentScore = nil
			u.SentimentShift = nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := fullyScoredUnit()
			tt.strip(u)
			Compute(u, DefaultWeights)
			assert.Nil(t, u.CSIScore)
		})
	}
}

func TestPillarsArePartialAverages(t *testing.T) {
	u := fullyScoredUnit()
	u.FCRScore = nil // effectiveness falls back to resolution alone
	u.AvgResponseSeconds = nil
	u.HandlingSeconds = nil // efficiency from first response alone
	Compute(u, DefaultWeights)

	require.NotNil(t, u.EffectivenessScore)
	assert.InDelta(t, 9.0, *u.EffectivenessScore, 1e-9)
	require.NotNil(t, u.EfficiencyScore)
	assert.InDelta(t, 8.333333333, *u.EfficiencyScore, 1e-6)
	require.NotNil(t, u.CSIScore)
}

func TestEffortRescaling(t *testing.T) {
	tests := []struct {
		ces  float64
		want float64
	}{
		{1, 10.0},
		{4, 5.0},
		{7, 0.0},
	}
	for _, tt := range tests {
		u := fullyScoredUnit()
		u.CustomerEffort = f(tt.ces)
		Compute(u, DefaultWeights)
		require.NotNil(t, u.EffortScore)
		assert.InDelta(t, tt.want, *u.EffortScore, 1e-9, "ces=%v", tt.ces)
	}
}

func TestEffortMonotonicDecreasing(t *testing.T) {
	var prev *float64
	for ces := 1.0; ces <= 7.0; ces++ {
		u := fullyScoredUnit()
		u.CustomerEffort = f(ces)
		Compute(u, DefaultWeights)
		require.NotNil(t, u.EffortScore)
		if prev != nil {
			assert.Less(t, *u.EffortScore, *prev)
		}
		prev = u.EffortScore
	}
}

func TestCSIBounds(t *testing.T) {
	// All pillars at 10: resolution/fcr/sentiment maxed, ces=1, instant responses,
	// sentiment shift +5.
	u := &models.DailyAnalysis{
		SentimentScore:       f(10),
		SentimentShift:       f(5),
		ResolutionAchieved:   f(10),
		FCRScore:             f(10),
		CustomerEffort:       f(1),
		FirstResponseSeconds: f(0),
		AvgResponseSeconds:   f(0),
		HandlingSeconds:      f(0),
	}
	Compute(u, DefaultWeights)
	require.NotNil(t, u.CSIScore)
	assert.Equal(t, 10.0, *u.CSIScore)

	// All pillars at 0: everything bottomed out, responses beyond the caps.
	u = &models.DailyAnalysis{
		SentimentScore:       f(0),
		SentimentShift:       f(-5),
		ResolutionAchieved:   f(0),
		FCRScore:             f(0),
		CustomerEffort:       f(7),
		FirstResponseSeconds: f(100000),
		AvgResponseSeconds:   f(100000),
		HandlingSeconds:      f(100000),
	}
	Compute(u, DefaultWeights)
	require.NotNil(t, u.CSIScore)
	assert.Equal(t, 0.0, *u.CSIScore)
}

func TestEfficiencyFloorsAtZero(t *testing.T) {
	u := fullyScoredUnit()
	u.FirstResponseSeconds = f(7200) // double the cap
	u.AvgResponseSeconds = nil
	u.HandlingSeconds = nil
	Compute(u, DefaultWeights)
	require.NotNil(t, u.EfficiencyScore)
	assert.Equal(t, 0.0, *u.EfficiencyScore)
}

func TestCSIRoundedToTwoDecimals(t *testing.T) {
	u := fullyScoredUnit()
	Compute(u, DefaultWeights)
	require.NotNil(t, u.CSIScore)
	assert.Equal(t, *u.CSIScore, round2(*u.CSIScore))
}
