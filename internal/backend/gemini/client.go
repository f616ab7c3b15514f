// Package gemini is a minimal client for the Gemini generateContent API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/powerpulse/pulsedesk/internal/config"
	"github.com/powerpulse/pulsedesk/pkg/models"
)

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
	Details []struct {
		Type       string `json:"@type"`
		RetryDelay string `json:"retryDelay"`
	} `json:"details"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("gemini API error %d (%s): %s", e.Code, e.Status, e.Message)
}

// RateLimitError is returned on 429 responses and carries any
// server-suggested retry delay.
type RateLimitError struct {
	Message string
	Delay   time.Duration
}

func (e *RateLimitError) Error() string {
	return "gemini: rate limited: " + e.Message
}

func (e *RateLimitError) RetryAfter() (time.Duration, bool) {
	return e.Delay, e.Delay > 0
}

// Client calls the Gemini generateContent endpoint for a single model.
type Client struct {
	cfg        config.GeminiConfig
	httpClient *http.Client
}

func NewClient(cfg config.GeminiConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *Client) Name() string { return "gemini" }

// Generate sends one prompt and returns the first candidate's text. Retrying
// is the caller's job; a 429 comes back as *RateLimitError so the caller can
// honor the server's suggested delay.
func (c *Client) Generate(ctx context.Context, prompt string) (string, models.Usage, error) {
	var usage models.Usage

	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{ResponseMimeType: "application/json"},
	})
	if err != nil {
		return "", usage, fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Model, c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", usage, fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", usage, fmt.Errorf("gemini: request failed: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return "", usage, fmt.Errorf("gemini: read response: %w", err)
	}

	var payload generateResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		if res.StatusCode != http.StatusOK {
			return "", usage, fmt.Errorf("gemini: status %d: %s", res.StatusCode, truncate(raw, 512))
		}
		return "", usage, fmt.Errorf("gemini: decode response: %w", err)
	}

	if res.StatusCode == http.StatusTooManyRequests {
		return "", usage, rateLimitError(payload.Error, res.Header.Get("Retry-After"))
	}
	if payload.Error != nil {
		return "", usage, payload.Error
	}
	if res.StatusCode != http.StatusOK {
		return "", usage, fmt.Errorf("gemini: status %d: %s", res.StatusCode, truncate(raw, 512))
	}

	if payload.UsageMetadata != nil {
		usage.PromptTokens = payload.UsageMetadata.PromptTokenCount
		usage.OutputTokens = payload.UsageMetadata.CandidatesTokenCount
	}

	if len(payload.Candidates) == 0 || len(payload.Candidates[0].Content.Parts) == 0 {
		return "", usage, nil
	}
	var sb strings.Builder
	for _, p := range payload.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), usage, nil
}

// rateLimitError builds a RateLimitError from the RetryInfo detail in the
// error body, falling back to the Retry-After header.
func rateLimitError(apiErr *apiError, retryAfter string) *RateLimitError {
	rl := &RateLimitError{Message: "too many requests"}
	if apiErr != nil {
		rl.Message = apiErr.Message
		for _, d := range apiErr.Details {
			if strings.HasSuffix(d.Type, "RetryInfo") && d.RetryDelay != "" {
				if delay, err := time.ParseDuration(d.RetryDelay); err == nil {
					rl.Delay = delay
					return rl
				}
			}
		}
	}
	if retryAfter != "" {
		if secs, err := time.ParseDuration(retryAfter + "s"); err == nil {
			rl.Delay = secs
		}
	}
	return rl
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
