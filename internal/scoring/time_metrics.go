package scoring

import (
	"sort"
	"time"

	"github.com/powerpulse/pulsedesk/pkg/models"
)

// TimeMetrics holds the response-time micro-metrics of one unit, in seconds.
type TimeMetrics struct {
	FirstResponseSeconds *float64
	AvgResponseSeconds   *float64
	HandlingSeconds      *float64
}

// ComputeTimeMetrics derives response and handling times from one unit's
// messages. A "response" is the first agent message after an unanswered
// customer message; handling time spans from the first message to the last.
func ComputeTimeMetrics(msgs []*models.Message) TimeMetrics {
	if len(msgs) == 0 {
		return TimeMetrics{}
	}

	sorted := make([]*models.Message, len(msgs))
	copy(sorted, msgs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].SentAt.Before(sorted[j].SentAt)
	})

	handling := sorted[len(sorted)-1].SentAt.Sub(sorted[0].SentAt).Seconds()

	var first *float64
	var responses []float64
	var pendingCustomer *time.Time

	for _, m := range sorted {
		switch m.Direction {
		case models.DirectionToCompany:
			if pendingCustomer == nil {
				t := m.SentAt
				pendingCustomer = &t
			}
		case models.DirectionToClient:
			if pendingCustomer != nil {
				delta := m.SentAt.Sub(*pendingCustomer).Seconds()
				if first == nil {
					first = &delta
				}
				responses = append(responses, delta)
				pendingCustomer = nil
			}
		}
	}

	tm := TimeMetrics{
		FirstResponseSeconds: first,
		HandlingSeconds:      &handling,
	}
	if len(responses) > 0 {
		var sum float64
		for _, r := range responses {
			sum += r
		}
		avg := sum / float64(len(responses))
		tm.AvgResponseSeconds = &avg
	}
	return tm
}
