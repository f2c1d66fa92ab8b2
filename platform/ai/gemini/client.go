// Package gemini provides the completion-service client used by the
// scoring engine's content analysis.
package gemini

import (
	"context"
	"errors"
	"strings"
	"time"

	"leadpilot_backend/platform/apperr"
	"leadpilot_backend/platform/config"
	"leadpilot_backend/platform/logger"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// Client wraps the Gemini API behind the completion boundary: a prompt in,
// text out, bounded by a timeout. Any other outcome is reported as a typed
// failure so callers can fall back deterministically.
type Client struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewClient creates a Gemini-backed completion client. Returns nil without
// error when no API key is configured; callers treat a nil client as a
// permanently unavailable service.
func NewClient(ctx context.Context, cfg config.CompletionConfig, log *logger.Logger) (*Client, error) {
	if !cfg.IsCompletionEnabled() {
		return nil, nil
	}

	inner, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GetGeminiAPIKey(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	timeout := cfg.GetCompletionTimeout()
	if timeout <= 0 {
		timeout = 12 * time.Second
	}

	rps := cfg.GetCompletionRPS()
	if rps <= 0 {
		rps = 2
	}

	return &Client{
		client:  inner,
		model:   cfg.GetGeminiModel(),
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		log:     log,
	}, nil
}

// Complete sends the prompt to the model and returns the raw text response.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c == nil || c.client == nil {
		return "", apperr.UpstreamTimeout("completion service not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", apperr.Wrap(apperr.KindUpstreamTimeout, "completion rate wait", err)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", apperr.Wrap(apperr.KindUpstreamTimeout, "completion timed out", err)
		}
		return "", apperr.Wrap(apperr.KindUpstreamTimeout, "completion request failed", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", apperr.UpstreamParse("completion returned empty response")
	}

	return text, nil
}
