// Package risk is the engine's safety and control plane: arm/disarm with a
// confirmation phrase, the kill switch, pause windows, the daily-loss breaker,
// and per-asset trade cooldowns.
package risk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"hyperliquid-trading-bot/internal/autopilot"
	"hyperliquid-trading-bot/internal/clock"
	"hyperliquid-trading-bot/internal/logging"
)

// Confirmation phrases. Matched exactly, including case.
const (
	ArmPhrase       = "I UNDERSTAND THE RISKS"
	ResetKillPhrase = "RESET KILL SWITCH"
)

const defaultAssetCooldown = 5 * time.Minute

// State of the control plane. KillSwitchActive is absorbing; only an explicit
// reset with the confirmation phrase leaves it.
type State string

const (
	StateUnarmed    State = "unarmed"
	StateArmed      State = "armed"
	StateRunning    State = "running"
	StatePaused     State = "paused"
	StateKillActive State = "kill_switch_active"
)

var (
	ErrBadPhrase       = errors.New("confirmation phrase does not match")
	ErrKillActive      = errors.New("kill switch is active")
	ErrLiveDisabled    = errors.New("live trading is not enabled")
	ErrNetworkMismatch = errors.New("configured network does not match request")
	ErrNoCredentials   = errors.New("no agent credentials configured")
	ErrNotArmed        = errors.New("engine is not armed")
)

// Venue is the slice of the bridge the kill switch needs.
type Venue interface {
	CloseAllPositions(ctx context.Context, agent string) error
	CancelAllOrders(ctx context.Context, coin, agent string) error
}

// Config carries the control plane limits.
type Config struct {
	LiveTradingEnabled bool
	Network            string // "mainnet" or "testnet"
	DailyLossLimitPct  float64
	AssetCooldown      time.Duration
}

// Status is the externally visible control-plane snapshot.
type Status struct {
	State       State          `json:"state"`
	Mode        autopilot.Mode `json:"mode,omitempty"`
	ArmedBy     string         `json:"armed_by,omitempty"`
	ArmedAt     time.Time      `json:"armed_at,omitempty"`
	PauseReason string         `json:"pause_reason,omitempty"`
	PauseUntil  time.Time      `json:"pause_until,omitempty"`
	KillReason  string         `json:"kill_reason,omitempty"`
}

// Controller is the control-plane state machine for one engine.
type Controller struct {
	cfg   Config
	venue Venue
	clock clock.Clock
	log   *logging.Logger

	mu          sync.Mutex
	state       State
	mode        autopilot.Mode
	armedBy     string
	armedAt     time.Time
	pauseReason string
	pauseUntil  time.Time
	killReason  string
	lastTrade   map[string]time.Time // per-symbol cooldown marks
}

func NewController(cfg Config, venue Venue, clk clock.Clock, log *logging.Logger) *Controller {
	if cfg.AssetCooldown <= 0 {
		cfg.AssetCooldown = defaultAssetCooldown
	}
	return &Controller{
		cfg:       cfg,
		venue:     venue,
		clock:     clk,
		log:       log.WithComponent("control"),
		state:     StateUnarmed,
		lastTrade: make(map[string]time.Time),
	}
}

// Arm moves Unarmed -> Armed. Requires the exact confirmation phrase, the
// live-trading flag, a network match, and configured agent credentials. The
// kill switch blocks arming until it is reset.
func (c *Controller) Arm(phrase string, mode autopilot.Mode, network, armedBy string, hasCredentials bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateKillActive {
		return ErrKillActive
	}
	if phrase != ArmPhrase {
		return ErrBadPhrase
	}
	if !c.cfg.LiveTradingEnabled {
		return ErrLiveDisabled
	}
	if !strings.EqualFold(network, c.cfg.Network) {
		return fmt.Errorf("%w: configured %q, requested %q", ErrNetworkMismatch, c.cfg.Network, network)
	}
	if !hasCredentials {
		return ErrNoCredentials
	}

	c.state = StateArmed
	c.mode = mode
	c.armedBy = armedBy
	c.armedAt = c.clock.Now()
	c.log.Warn("engine armed for live trading", "mode", string(mode), "armed_by", armedBy, "network", network)
	return nil
}

// Disarm unconditionally returns to paper mode. The kill switch stays set.
func (c *Controller) Disarm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateKillActive {
		c.state = StateUnarmed
	}
	c.mode = ""
	c.armedBy = ""
	c.armedAt = time.Time{}
	c.log.Info("engine disarmed")
}

// Start moves Armed -> Running.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateKillActive:
		return ErrKillActive
	case StateArmed, StatePaused:
		c.state = StateRunning
		return nil
	case StateRunning:
		return nil
	default:
		return ErrNotArmed
	}
}

// Kill trips the kill switch: absorbing state, forces disarm, and attempts a
// best-effort close-all and cancel-all. Flatten failures are logged, never
// returned; the switch is set regardless.
func (c *Controller) Kill(ctx context.Context, reason, agent string) {
	c.mu.Lock()
	c.state = StateKillActive
	c.killReason = reason
	c.mode = ""
	c.armedBy = ""
	c.mu.Unlock()

	c.log.Error("kill switch activated", "reason", reason)
	if c.venue == nil {
		return
	}
	if err := c.venue.CloseAllPositions(ctx, agent); err != nil {
		c.log.Error("kill switch close-all failed", "error", err.Error())
	}
	if err := c.venue.CancelAllOrders(ctx, "", agent); err != nil {
		c.log.Error("kill switch cancel-all failed", "error", err.Error())
	}
}

// ResetKill leaves the absorbing state. Requires the exact reset phrase.
func (c *Controller) ResetKill(phrase string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if phrase != ResetKillPhrase {
		return ErrBadPhrase
	}
	if c.state != StateKillActive {
		return nil
	}
	c.state = StateUnarmed
	c.killReason = ""
	c.log.Warn("kill switch reset")
	return nil
}

// Pause suspends trading until the deadline. Scheduled by the position
// monitor after consecutive losses.
func (c *Controller) Pause(reason string, until time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return
	}
	c.state = StatePaused
	c.pauseReason = reason
	c.pauseUntil = until
	c.log.Warn("trading paused", "reason", reason, "until", until.Format(time.RFC3339))
}

// CanTrade reports whether the engine may open new positions, auto-resuming
// an expired pause. The second return is the blocking reason.
func (c *Controller) CanTrade() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateKillActive:
		return false, "kill switch active: " + c.killReason
	case StatePaused:
		if c.clock.Now().Before(c.pauseUntil) {
			return false, "paused: " + c.pauseReason
		}
		c.state = StateRunning
		c.pauseReason = ""
		return true, ""
	case StateRunning:
		return true, ""
	default:
		return false, "not armed"
	}
}

// RecordDailyLoss feeds the daily-loss breaker; breaching the limit trips the
// kill switch.
func (c *Controller) RecordDailyLoss(ctx context.Context, lossPct float64, agent string) {
	if c.cfg.DailyLossLimitPct <= 0 || lossPct < c.cfg.DailyLossLimitPct {
		return
	}
	c.Kill(ctx, fmt.Sprintf("daily loss %.2f%% breached limit %.2f%%", lossPct, c.cfg.DailyLossLimitPct), agent)
}

// CooldownActive reports whether the per-asset cooldown blocks a trade on
// symbol. Forced trades bypass the window but the bypass is logged.
func (c *Controller) CooldownActive(symbol string, force bool) bool {
	c.mu.Lock()
	last, ok := c.lastTrade[symbol]
	c.mu.Unlock()
	if !ok {
		return false
	}
	remaining := c.cfg.AssetCooldown - c.clock.Now().Sub(last)
	if remaining <= 0 {
		return false
	}
	if force {
		c.log.Warn("asset cooldown bypassed by forced trade", "symbol", symbol, "remaining", remaining.Round(time.Second).String())
		return false
	}
	return true
}

// MarkTraded starts the cooldown window for symbol.
func (c *Controller) MarkTraded(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastTrade[symbol] = c.clock.Now()
}

// Snapshot returns the current control-plane state.
func (c *Controller) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:       c.state,
		Mode:        c.mode,
		ArmedBy:     c.armedBy,
		ArmedAt:     c.armedAt,
		PauseReason: c.pauseReason,
		PauseUntil:  c.pauseUntil,
		KillReason:  c.killReason,
	}
}

// State returns the current state only.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
