// Package llm holds the sentiment-advisory client and the call gate that is
// the single source of truth for whether the external LLM may be invoked.
package llm

import (
	"fmt"
	"sync"
	"time"

	"hyperliquid-trading-bot/internal/autopilot"
	"hyperliquid-trading-bot/internal/clock"
	"hyperliquid-trading-bot/internal/logging"
)

const callHistorySize = 100

// GateConfig is the per-mode call budget.
type GateConfig struct {
	CallsPerDay    int
	MinScore       float64
	MinCooldown    time.Duration
	RequirePattern bool
	MinVolatility  float64
	MaxVolatility  float64
}

var gateConfigs = map[autopilot.Mode]GateConfig{
	autopilot.ModeAggressive: {
		CallsPerDay:   50,
		MinScore:      50,
		MinCooldown:   5 * time.Minute,
		MinVolatility: 0.2,
		MaxVolatility: 8.0,
	},
	autopilot.ModeModerate: {
		CallsPerDay:   20,
		MinScore:      60,
		MinCooldown:   10 * time.Minute,
		MinVolatility: 0.3,
		MaxVolatility: 6.0,
	},
	autopilot.ModeConservative: {
		CallsPerDay:    10,
		MinScore:       75,
		MinCooldown:    30 * time.Minute,
		RequirePattern: true,
		MinVolatility:  0.3,
		MaxVolatility:  4.0,
	},
}

// Denial reasons, in decision order. daily_limit is a hard block that force
// can never bypass.
const (
	DenyDailyLimit     = "daily_limit"
	DenyCooldown       = "cooldown"
	DenyLowScore       = "low_score"
	DenyNoPattern      = "no_pattern"
	DenyLowVolatility  = "low_volatility"
	DenyHighVolatility = "high_volatility"
)

// CallRecord is one accounted LLM invocation.
type CallRecord struct {
	Symbol    string    `json:"symbol"`
	Score     float64   `json:"score"`
	Reason    string    `json:"reason"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// GateRequest is the context for one gate decision.
type GateRequest struct {
	Mode       autopilot.Mode
	Score      float64
	Pattern    string // "" when no pattern detected
	Volatility float64
	Force      bool
}

// GateDecision is the gate's verdict.
type GateDecision struct {
	Allowed     bool          `json:"allowed"`
	Reason      string        `json:"reason,omitempty"`
	RemainingMs int64         `json:"remaining_ms,omitempty"`
	Bypassed    []string      `json:"bypassed,omitempty"`
	Budget      time.Duration `json:"-"`
}

// Gate enforces the per-mode LLM call budget. Callers must invoke RecordCall
// only after a successful LLM response so the accounting reflects real calls.
type Gate struct {
	clock clock.Clock
	log   *logging.Logger

	mu               sync.Mutex
	callsToday       int
	counterDay       string // calendar date, server-local
	lastCall         time.Time
	history          []CallRecord
	consecutiveSkips int
	lastSkipReason   string
}

func NewGate(clk clock.Clock, log *logging.Logger) *Gate {
	return &Gate{
		clock:      clk,
		log:        log.WithComponent("llm-gate"),
		counterDay: clk.Now().Format("2006-01-02"),
	}
}

// Check runs the decision ladder. Force bypasses everything but the daily
// limit; every bypassed check is reported and logged.
func (g *Gate) Check(req GateRequest) GateDecision {
	cfg, ok := gateConfigs[req.Mode]
	if !ok {
		cfg = gateConfigs[autopilot.ModeModerate]
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover()

	deny := func(reason string, remaining time.Duration) GateDecision {
		g.consecutiveSkips++
		g.lastSkipReason = reason
		d := GateDecision{Reason: reason}
		if remaining > 0 {
			d.RemainingMs = remaining.Milliseconds()
		}
		return d
	}

	if g.callsToday >= cfg.CallsPerDay {
		return deny(DenyDailyLimit, 0)
	}

	var bypassed []string
	fail := ""
	var remaining time.Duration

	if elapsed := g.clock.Now().Sub(g.lastCall); !g.lastCall.IsZero() && elapsed < cfg.MinCooldown {
		fail, remaining = DenyCooldown, cfg.MinCooldown-elapsed
	} else if req.Score < cfg.MinScore {
		fail = DenyLowScore
	} else if cfg.RequirePattern && req.Pattern == "" {
		fail = DenyNoPattern
	} else if req.Volatility < cfg.MinVolatility {
		fail = DenyLowVolatility
	} else if req.Volatility > cfg.MaxVolatility {
		fail = DenyHighVolatility
	}

	if fail != "" {
		if !req.Force {
			return deny(fail, remaining)
		}
		bypassed = append(bypassed, fail)
		g.log.Warn("llm gate check bypassed by force", "check", fail)
	}

	g.consecutiveSkips = 0
	return GateDecision{Allowed: true, Bypassed: bypassed}
}

// RecordCall accounts a successful LLM invocation.
func (g *Gate) RecordCall(symbol string, score float64, reason, callType string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover()

	g.callsToday++
	g.lastCall = g.clock.Now()
	g.history = append(g.history, CallRecord{
		Symbol:    symbol,
		Score:     score,
		Reason:    reason,
		Type:      callType,
		Timestamp: g.lastCall,
	})
	if len(g.history) > callHistorySize {
		g.history = g.history[len(g.history)-callHistorySize:]
	}
}

// rollover resets the daily counter when the calendar date changes.
// Callers must hold mu.
func (g *Gate) rollover() {
	day := g.clock.Now().Format("2006-01-02")
	if day != g.counterDay {
		g.counterDay = day
		g.callsToday = 0
	}
}

// Usage reports the gate's accounting for the status API.
func (g *Gate) Usage(mode autopilot.Mode) map[string]any {
	cfg := gateConfigs[mode]

	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover()

	history := make([]CallRecord, len(g.history))
	copy(history, g.history)
	return map[string]any{
		"calls_today":       g.callsToday,
		"calls_per_day":     cfg.CallsPerDay,
		"remaining":         cfg.CallsPerDay - g.callsToday,
		"last_call":         g.lastCall,
		"consecutive_skips": g.consecutiveSkips,
		"last_skip_reason":  g.lastSkipReason,
		"history":           history,
	}
}

// ModeConfig exposes the per-mode budget, for status reporting.
func ModeConfig(mode autopilot.Mode) (GateConfig, error) {
	cfg, ok := gateConfigs[mode]
	if !ok {
		return GateConfig{}, fmt.Errorf("unknown mode %q", mode)
	}
	return cfg, nil
}
