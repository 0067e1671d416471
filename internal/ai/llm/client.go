package llm

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"hyperliquid-trading-bot/internal/clock"
	"hyperliquid-trading-bot/internal/logging"
)

// Client pacing. A 429 opens a 2-minute backoff window that doubles on every
// consecutive rate limit until the cap.
const (
	minCallInterval = 15 * time.Second
	backoffBase     = 2 * time.Minute
	backoffCap      = 32 * time.Minute
)

// Config for the OpenAI-compatible chat completions endpoint.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Client talks to an OpenAI-compatible chat completions API with local
// pacing: a minimum interval between calls and exponential backoff after
// rate-limit responses.
type Client struct {
	cfg   Config
	http  *resty.Client
	clock clock.Clock
	log   *logging.Logger

	mu          sync.Mutex
	lastCall    time.Time
	backoffTill time.Time
	backoff     time.Duration
}

func NewClient(cfg Config, clk clock.Clock, log *logging.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	http := resty.New().
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")
	return &Client{
		cfg:   cfg,
		http:  http,
		clock: clk,
		log:   log.WithComponent("llm"),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends one prompt and returns the raw completion text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if err := c.waitTurn(ctx); err != nil {
		return "", err
	}

	var out chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: c.cfg.Model,
			Messages: []chatMessage{
				{Role: "system", Content: system},
				{Role: "user", Content: user},
			},
			MaxTokens:   c.cfg.MaxTokens,
			Temperature: c.cfg.Temperature,
		}).
		SetResult(&out).
		Post(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}

	if resp.StatusCode() == 429 {
		c.enterBackoff(resp.Header().Get("Retry-After"))
		return "", fmt.Errorf("llm rate limited")
	}
	if resp.IsError() {
		msg := resp.Status()
		if out.Error != nil {
			msg = out.Error.Message
		}
		return "", fmt.Errorf("llm request failed: %s", msg)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("llm response has no choices")
	}

	c.mu.Lock()
	c.lastCall = c.clock.Now()
	c.backoff = 0
	c.mu.Unlock()
	return out.Choices[0].Message.Content, nil
}

// waitTurn enforces the minimum call interval and any active backoff window.
// Rather than sleeping it rejects, so the trade decision proceeds without
// sentiment input.
func (c *Client) waitTurn(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if now.Before(c.backoffTill) {
		return fmt.Errorf("llm backing off for %s", c.backoffTill.Sub(now).Round(time.Second))
	}
	if !c.lastCall.IsZero() && now.Sub(c.lastCall) < minCallInterval {
		return fmt.Errorf("llm call interval not elapsed")
	}
	return nil
}

// enterBackoff starts or doubles the rate-limit backoff, honoring a
// Retry-After header when present.
func (c *Client) enterBackoff(retryAfter string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backoff == 0 {
		c.backoff = backoffBase
	} else {
		c.backoff *= 2
	}
	if c.backoff > backoffCap {
		c.backoff = backoffCap
	}
	wait := c.backoff
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
		wait = time.Duration(secs) * time.Second
	}
	c.backoffTill = c.clock.Now().Add(wait)
	c.log.Warn("llm rate limited, backing off", "wait", wait.String())
}
