// Package openai is a minimal client for the OpenAI Chat Completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/powerpulse/pulsedesk/internal/config"
	"github.com/powerpulse/pulsedesk/pkg/models"
)

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d: %s", e.StatusCode, e.Body)
}

// RetryAfter reports a server-suggested retry delay when the response
// carried a Retry-After header.
func (e *HTTPStatusError) RetryAfter() (time.Duration, bool) {
	return e.Delay, e.Delay > 0
}

// Client calls the Chat Completions endpoint with a fixed model.
type Client struct {
	cfg        config.OpenAIConfig
	httpClient *http.Client
}

func NewClient(cfg config.OpenAIConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *Client) Name() string { return "openai" }

// Generate sends one prompt as a user message and returns the first choice's
// content. Retrying is the caller's job.
func (c *Client) Generate(ctx context.Context, prompt string) (string, models.Usage, error) {
	var usage models.Usage

	body, err := json.Marshal(chatRequest{
		Model:          c.cfg.Model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", usage, fmt.Errorf("openai: marshal request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", usage, fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", usage, fmt.Errorf("openai: request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", usage, &HTTPStatusError{
			StatusCode: res.StatusCode,
			Body:       string(buf),
			Delay:      parseRetryAfter(res.Header.Get("Retry-After")),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return "", usage, fmt.Errorf("openai: read response: %w", err)
	}

	var payload chatResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", usage, fmt.Errorf("openai: decode response: %w", err)
	}

	if payload.Usage != nil {
		usage.PromptTokens = payload.Usage.PromptTokens
		usage.OutputTokens = payload.Usage.CompletionTokens
	}

	if len(payload.Choices) == 0 {
		return "", usage, nil
	}
	return payload.Choices[0].Message.Content, usage, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
