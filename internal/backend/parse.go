package backend

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/powerpulse/pulsedesk/pkg/models"
)

// parsedResult is one element of the model's JSON array response.
type parsedResult struct {
	UnitID             string   `json:"unit_id"`
	SentimentScore     *float64 `json:"sentiment_score"`
	SentimentShift     *float64 `json:"sentiment_shift"`
	ResolutionAchieved *float64 `json:"resolution_achieved"`
	FCRScore           *float64 `json:"fcr_score"`
	CustomerEffort     *float64 `json:"customer_effort"`
	Topics             []string `json:"topics"`
}

// ParseResults maps a raw model response onto the input units. The response
// may be wrapped in markdown fences or preamble; the bounding JSON array
// substring is located and decoded. Units missing from the response, or the
// whole batch on an irrecoverable parse failure, are synthesized as fallback
// results; parsing alone never returns an error.
func ParseResults(text string, units []models.ScoringUnit) []models.UnitResult {
	body, ok := extractArray(text)
	if !ok {
		slog.Error("no JSON array found in backend response", "response_len", len(text))
		return fallbackAll(units, "parse_error: no JSON array in response")
	}

	var parsed []parsedResult
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		slog.Error("failed to decode backend response", "error", err)
		return fallbackAll(units, "parse_error: "+err.Error())
	}

	byID := make(map[uuid.UUID]parsedResult, len(parsed))
	for _, p := range parsed {
		id, err := uuid.Parse(p.UnitID)
		if err != nil {
			continue
		}
		byID[id] = p
	}

	results := make([]models.UnitResult, 0, len(units))
	for _, u := range units {
		p, ok := byID[u.ID]
		if !ok {
			slog.Warn("unit missing from backend response", "unit_id", u.ID, "chat_id", u.ChatID)
			results = append(results, FallbackResult(u, "missing_from_response"))
			continue
		}
		results = append(results, models.UnitResult{
			UnitID: u.ID,
			Scores: models.UnitScores{
				SentimentScore:     clamp(p.SentimentScore, 0, 10),
				SentimentShift:     clamp(p.SentimentShift, -5, 5),
				ResolutionAchieved: clamp(p.ResolutionAchieved, 0, 10),
				FCRScore:           clamp(p.FCRScore, 0, 10),
				CustomerEffort:     clamp(p.CustomerEffort, 1, 7),
				Topics:             p.Topics,
			},
		})
	}
	return results
}

// FallbackResult synthesizes a neutral, mid-scale result for a unit that
// could not be scored, tagged with the reason.
func FallbackResult(u models.ScoringUnit, tag string) models.UnitResult {
	return models.UnitResult{
		UnitID: u.ID,
		Scores: models.UnitScores{
			SentimentScore:     ptr(5),
			SentimentShift:     ptr(0),
			ResolutionAchieved: ptr(5),
			FCRScore:           ptr(5),
			CustomerEffort:     ptr(4),
			Topics:             []string{"general inquiry"},
		},
		Fallback: true,
		ErrorTag: tag,
	}
}

func fallbackAll(units []models.ScoringUnit, tag string) []models.UnitResult {
	results := make([]models.UnitResult, len(units))
	for i, u := range units {
		results[i] = FallbackResult(u, tag)
	}
	return results
}

// extractArray locates the bounding JSON array substring, tolerating
// markdown fences and surrounding prose.
func extractArray(text string) (string, bool) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

func clamp(v *float64, lo, hi float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	if c < lo {
		c = lo
	}
	if c > hi {
		c = hi
	}
	return &c
}

func ptr(v float64) *float64 { return &v }
