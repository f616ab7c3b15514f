// Package scoring derives the four pillar scores and the final CSI index
// from a unit's micro-metrics. All functions are pure transforms.
package scoring

import (
	"fmt"
	"math"

	"github.com/powerpulse/pulsedesk/pkg/models"
)

// Caps for the efficiency pillar, in seconds. A response time at or beyond
// the cap scores zero.
const (
	firstResponseCap = 3600
	avgResponseCap   = 1800
	handlingCap      = 7200
)

// Weights is a named CSI weight set. The four weights must sum to 1.
type Weights struct {
	Effectiveness float64
	Effort        float64
	Efficiency    float64
	Empathy       float64
}

// DefaultWeights is the canonical production weight set.
var DefaultWeights = Weights{
	Effectiveness: 0.35,
	Effort:        0.25,
	Efficiency:    0.25,
	Empathy:       0.15,
}

// Validate checks that the weights sum to 1 within 1e-9.
func (w Weights) Validate() error {
	sum := w.Effectiveness + w.Effort + w.Efficiency + w.Empathy
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("CSI weights must sum to 1.0, got %v", sum)
	}
	return nil
}

// Compute writes the pillar scores and final index onto the unit in place.
// Each pillar is a partial average over whichever of its micro-metrics are
// present; the final index is set only when all four pillars are present.
func Compute(u *models.DailyAnalysis, w Weights) {
	u.EffectivenessScore = mean(u.ResolutionAchieved, u.FCRScore)
	u.EffortScore = effort(u.CustomerEffort)
	u.EfficiencyScore = mean(
		scaled(u.FirstResponseSeconds, firstResponseCap),
		scaled(u.AvgResponseSeconds, avgResponseCap),
		scaled(u.HandlingSeconds, handlingCap),
	)
	u.EmpathyScore = empathy(u.SentimentScore, u.SentimentShift)

	if u.EffectivenessScore == nil || u.EffortScore == nil ||
		u.EfficiencyScore == nil || u.EmpathyScore == nil {
		u.CSIScore = nil
		return
	}

	csi := *u.EffectivenessScore*w.Effectiveness +
		*u.EffortScore*w.Effort +
		*u.EfficiencyScore*w.Efficiency +
		*u.EmpathyScore*w.Empathy
	u.CSIScore = ptr(round2(csi))
}

// effort remaps customer effort from the collected 1-7 scale to a 0-10 ease
// scale: ces=1 → 10, ces=4 → 5, ces=7 → 0.
func effort(ces *float64) *float64 {
	if ces == nil {
		return nil
	}
	return ptr(((7 - *ces) / 6) * 10)
}

// empathy averages the sentiment score with the sentiment shift remapped
// from [-5,+5] to [0,10].
func empathy(sentiment, shift *float64) *float64 {
	var shifted *float64
	if shift != nil {
		shifted = ptr(*shift + 5)
	}
	return mean(sentiment, shifted)
}

// scaled maps a duration v against a cap to a 0-10 score, linearly
// decreasing and floored at zero.
func scaled(v *float64, cap float64) *float64 {
	if v == nil {
		return nil
	}
	s := (1 - *v/cap) * 10
	if s < 0 {
		s = 0
	}
	return ptr(s)
}

// mean averages the non-nil inputs, or returns nil when all are nil.
func mean(vals ...*float64) *float64 {
	var sum float64
	var n int
	for _, v := range vals {
		if v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return ptr(sum / float64(n))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ptr(v float64) *float64 { return &v }
