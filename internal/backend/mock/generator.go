// Package mock provides a deterministic scoring generator for tests and
// offline development.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/powerpulse/pulsedesk/pkg/models"
)

// MockGenerator satisfies backend.Generator for testing.
type MockGenerator struct {
	Name_        string
	GenerateFunc func(ctx context.Context, prompt string) (string, models.Usage, error)
}

func (m *MockGenerator) Name() string { return m.Name_ }

func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, models.Usage, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt)
	}
	return "", models.Usage{}, nil
}

// NewGenerator returns a MockGenerator that echoes every unit found in the
// prompt with fixed mid-to-high scores.
func NewGenerator() *MockGenerator {
	return &MockGenerator{
		Name_: "mock",
		GenerateFunc: func(_ context.Context, prompt string) (string, models.Usage, error) {
			ids := unitIDsFromPrompt(prompt)
			results := make([]map[string]any, len(ids))
			for i, id := range ids {
				results[i] = map[string]any{
					"unit_id":             id,
					"sentiment_score":     7.0,
					"sentiment_shift":     1.0,
					"resolution_achieved": 8.0,
					"fcr_score":           8.0,
					"customer_effort":     2.0,
					"topics":              []string{"account inquiry", "general support"},
				}
			}
			out, err := json.Marshal(results)
			if err != nil {
				return "", models.Usage{}, fmt.Errorf("mock: marshal response: %w", err)
			}
			usage := models.Usage{
				PromptTokens: len(prompt) / 4,
				OutputTokens: len(out) / 4,
			}
			return string(out), usage, nil
		},
	}
}

// NewFailingGenerator returns a MockGenerator that always returns the given error.
func NewFailingGenerator(err error) *MockGenerator {
	return &MockGenerator{
		Name_: "mock-failing",
		GenerateFunc: func(_ context.Context, _ string) (string, models.Usage, error) {
			return "", models.Usage{}, err
		},
	}
}

// NewEmptyGenerator returns a MockGenerator that always returns an empty response.
func NewEmptyGenerator() *MockGenerator {
	return &MockGenerator{
		Name_: "mock-empty",
		GenerateFunc: func(_ context.Context, _ string) (string, models.Usage, error) {
			return "", models.Usage{}, nil
		},
	}
}

// unitIDsFromPrompt decodes the first JSON array embedded in the prompt and
// collects the unit_id of each element, preserving order.
func unitIDsFromPrompt(prompt string) []string {
	start := strings.Index(prompt, "[")
	if start == -1 {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(prompt[start:]))
	var units []struct {
		UnitID string `json:"unit_id"`
	}
	if err := dec.Decode(&units); err != nil {
		return nil
	}
	ids := make([]string, 0, len(units))
	for _, u := range units {
		if u.UnitID != "" {
			ids = append(ids, u.UnitID)
		}
	}
	return ids
}
