// Package backend orchestrates scoring calls against a pluggable model
// provider: it builds batch prompts, retries transient failures with backoff,
// and parses responses into per-unit results.
package backend

import (
	"context"
	"log/slog"
	"time"

	"github.com/powerpulse/pulsedesk/pkg/models"
)

const baseBackoff = 500 * time.Millisecond

// Generator is the minimal surface a model provider exposes: one prompt in,
// raw text and token usage out.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, models.Usage, error)
	Name() string
}

// Analyzer implements models.ScoringBackend on top of a Generator.
type Analyzer struct {
	gen        Generator
	timeout    time.Duration
	maxRetries int
}

func NewAnalyzer(gen Generator, timeout time.Duration, maxRetries int) *Analyzer {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Analyzer{gen: gen, timeout: timeout, maxRetries: maxRetries}
}

func (a *Analyzer) Name() string {
	return a.gen.Name()
}

// Analyze scores a batch of units in one model call, retrying transient
// failures. When every attempt fails, all units are returned as fallback
// results with a nil error so callers can persist the neutral scores; a
// non-nil error means the call was aborted (context cancelled) and nothing
// should be written.
func (a *Analyzer) Analyze(ctx context.Context, units []models.ScoringUnit) ([]models.UnitResult, models.Usage, error) {
	if len(units) == 0 {
		return nil, models.Usage{}, nil
	}

	prompt := BuildPrompt(units)
	var usage models.Usage
	var lastErr error

	attempts := a.maxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := baseBackoff * (1 << (attempt - 1))
			if suggested, ok := suggestedDelay(lastErr); ok {
				delay = suggested
			}
			slog.Warn("retrying scoring call",
				"provider", a.gen.Name(),
				"attempt", attempt+1,
				"delay", delay,
				"error", lastErr,
			)
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, usage, err
			}
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if a.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		}
		text, u, err := a.gen.Generate(callCtx, prompt)
		if cancel != nil {
			cancel()
		}
		usage.Add(u)
		usage.Calls++

		if err == nil && text == "" {
			err = ErrEmptyResponse
		}
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, usage, ctx.Err()
			}
			continue
		}

		return ParseResults(text, units), usage, nil
	}

	slog.Error("scoring call exhausted retries, falling back",
		"provider", a.gen.Name(),
		"units", len(units),
		"error", lastErr,
	)
	tag := "backend_error"
	if lastErr != nil {
		tag = "backend_error: " + lastErr.Error()
	}
	return fallbackAll(units, tag), usage, nil
}

// Compile-time check that Analyzer implements ScoringBackend.
var _ models.ScoringBackend = (*Analyzer)(nil)

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
