package backend

import (
	"fmt"

	"github.com/powerpulse/pulsedesk/internal/backend/gemini"
	"github.com/powerpulse/pulsedesk/internal/backend/mock"
	"github.com/powerpulse/pulsedesk/internal/backend/openai"
	"github.com/powerpulse/pulsedesk/internal/config"
	"github.com/powerpulse/pulsedesk/pkg/models"
)

// New constructs the scoring backend selected by config. Called once at
// server startup.
func New(cfg config.BackendConfig) (models.ScoringBackend, error) {
	var gen Generator
	switch cfg.Provider {
	case "gemini":
		gen = gemini.NewClient(cfg.Gemini)
	case "openai":
		gen = openai.NewClient(cfg.OpenAI)
	case "mock":
		gen = mock.NewGenerator()
	default:
		return nil, fmt.Errorf("unknown scoring provider %q: must be one of gemini, openai, mock", cfg.Provider)
	}
	return NewAnalyzer(gen, cfg.Timeout, cfg.MaxRetries), nil
}
