package llm

import (
	"testing"
	"time"

	"hyperliquid-trading-bot/internal/clock"
	"hyperliquid-trading-bot/internal/logging"
)

func newTestClient(clk clock.Clock) *Client {
	return NewClient(Config{APIKey: "k", BaseURL: "http://127.0.0.1:0", Model: "m"},
		clk, logging.New(&logging.Config{Level: "ERROR"}))
}

func TestRateLimitBackoffSchedule(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	c := newTestClient(clk)

	if err := c.waitTurn(nil); err != nil {
		t.Fatalf("fresh client must be callable: %v", err)
	}

	// First 429 opens a 2-minute window.
	c.enterBackoff("")
	if err := c.waitTurn(nil); err == nil {
		t.Fatal("backoff window must reject calls")
	}
	clk.Advance(2*time.Minute - time.Second)
	if err := c.waitTurn(nil); err == nil {
		t.Fatal("window must hold for the full 2 minutes")
	}
	clk.Advance(time.Second)
	if err := c.waitTurn(nil); err != nil {
		t.Fatalf("window must clear after 2 minutes: %v", err)
	}

	// Repeats double: 4m, 8m, 16m, then the cap.
	wants := []time.Duration{4 * time.Minute, 8 * time.Minute, 16 * time.Minute, 32 * time.Minute, 32 * time.Minute}
	for i, want := range wants {
		c.enterBackoff("")
		if c.backoff != want {
			t.Fatalf("429 #%d: backoff = %s, want %s", i+2, c.backoff, want)
		}
		clk.Advance(want)
	}
}

func TestRateLimitRetryAfterOverride(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	c := newTestClient(clk)

	c.enterBackoff("45")
	clk.Advance(45 * time.Second)
	if err := c.waitTurn(nil); err != nil {
		t.Fatalf("Retry-After must bound the window: %v", err)
	}
	// The doubling sequence still advanced underneath the override.
	if c.backoff != backoffBase {
		t.Errorf("backoff = %s, want %s", c.backoff, backoffBase)
	}
}

func TestMinCallInterval(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	c := newTestClient(clk)

	c.lastCall = clk.Now()
	clk.Advance(10 * time.Second)
	if err := c.waitTurn(nil); err == nil {
		t.Fatal("calls inside the minimum interval must be rejected")
	}
	clk.Advance(5 * time.Second)
	if err := c.waitTurn(nil); err != nil {
		t.Fatalf("interval elapsed, call must proceed: %v", err)
	}
}
