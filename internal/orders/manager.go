// Package orders guarantees at-most-one active stop-loss and take-profit per
// (user, symbol), rate-limits trailing stop updates, and keeps take-profits
// fee-aware.
package orders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hyperliquid-trading-bot/internal/clock"
	"hyperliquid-trading-bot/internal/hyperliquid"
	"hyperliquid-trading-bot/internal/logging"
)

// Placement pacing and trailing rate limit.
const (
	cancelSettleDelay = 500 * time.Millisecond
	slSettleDelay     = 300 * time.Millisecond
	slUpdateInterval  = 30 * time.Second
)

// Venue is the slice of the bridge the manager needs.
type Venue interface {
	PlaceStopLoss(ctx context.Context, coin string, closeSide hyperliquid.OrderSide, size, triggerPrice float64, agent string) (*hyperliquid.OrderResult, error)
	PlaceTakeProfit(ctx context.Context, coin string, closeSide hyperliquid.OrderSide, size, triggerPrice float64, agent string) (*hyperliquid.OrderResult, error)
	CancelOrder(ctx context.Context, coin string, orderID int64, agent string) error
	CancelAllOrders(ctx context.Context, coin, agent string) error
}

// trackedOrders is the per-coin SL/TP bookkeeping.
type trackedOrders struct {
	slOrderID    int64
	tpOrderID    int64
	lastSLUpdate time.Time
}

// Manager owns SL/TP placement for one user's positions.
type Manager struct {
	venue Venue
	clock clock.Clock
	log   *logging.Logger
	sleep func(time.Duration)

	mu      sync.Mutex
	tracked map[string]*trackedOrders // keyed by coin
}

func NewManager(venue Venue, clk clock.Clock, log *logging.Logger) *Manager {
	return &Manager{
		venue:   venue,
		clock:   clk,
		log:     log.WithComponent("orders"),
		sleep:   time.Sleep,
		tracked: make(map[string]*trackedOrders),
	}
}

// PlaceResult reports which legs landed.
type PlaceResult struct {
	SLOrderID  int64
	TPOrderID  int64
	SLPlaced   bool
	TPPlaced   bool
	AdjustedTP float64
	SLErr      error
	TPErr      error
}

// PlaceSlTpOrders validates the take-profit against fees, cancels any resting
// orders for the coin, then places SL and TP with settle delays between the
// venue calls. Succeeds when at least one leg lands.
func (m *Manager) PlaceSlTpOrders(ctx context.Context, coin string, positionSide hyperliquid.OrderSide, qty, entry, sl, tp float64, agent string) (*PlaceResult, error) {
	result := &PlaceResult{AdjustedTP: ValidateTakeProfit(positionSide, entry, tp)}
	if result.AdjustedTP != tp {
		m.log.Info("take profit adjusted to smallest profitable level",
			"coin", coin, "requested", tp, "adjusted", result.AdjustedTP)
	}
	closeSide := positionSide.Opposite()

	if err := m.venue.CancelAllOrders(ctx, coin, agent); err != nil {
		m.log.Warn("cancel before SL/TP placement failed", "coin", coin, "error", err.Error())
	}
	m.sleep(cancelSettleDelay)

	slResult, slErr := m.venue.PlaceStopLoss(ctx, coin, closeSide, qty, sl, agent)
	if slErr != nil {
		result.SLErr = slErr
		m.log.Error("stop loss placement failed", "coin", coin, "error", slErr.Error())
	} else {
		result.SLPlaced = true
		result.SLOrderID = slResult.OrderID
	}
	m.sleep(slSettleDelay)

	tpResult, tpErr := m.venue.PlaceTakeProfit(ctx, coin, closeSide, qty, result.AdjustedTP, agent)
	if tpErr != nil {
		result.TPErr = tpErr
		m.log.Error("take profit placement failed", "coin", coin, "error", tpErr.Error())
	} else {
		result.TPPlaced = true
		result.TPOrderID = tpResult.OrderID
	}

	if !result.SLPlaced && !result.TPPlaced {
		return result, fmt.Errorf("both legs failed for %s: sl: %v, tp: %v", coin, slErr, tpErr)
	}

	m.mu.Lock()
	m.tracked[coin] = &trackedOrders{
		slOrderID:    result.SLOrderID,
		tpOrderID:    result.TPOrderID,
		lastSLUpdate: m.clock.Now(),
	}
	m.mu.Unlock()
	return result, nil
}

// UpdateStopLoss replaces the tracked stop with a new trigger price. Updates
// within 30s of the previous one are rejected unless forced. Cancel failures
// are ignored: the old stop may already have executed.
func (m *Manager) UpdateStopLoss(ctx context.Context, coin string, positionSide hyperliquid.OrderSide, qty, newSL float64, agent string, force bool) error {
	m.mu.Lock()
	state, ok := m.tracked[coin]
	if !ok {
		state = &trackedOrders{}
		m.tracked[coin] = state
	}
	if !force && m.clock.Now().Sub(state.lastSLUpdate) < slUpdateInterval {
		m.mu.Unlock()
		return fmt.Errorf("stop loss for %s updated %s ago, rate limited", coin, m.clock.Now().Sub(state.lastSLUpdate).Round(time.Second))
	}
	previousID := state.slOrderID
	m.mu.Unlock()

	if previousID != 0 {
		if err := m.venue.CancelOrder(ctx, coin, previousID, agent); err != nil {
			m.log.Warn("previous stop loss cancel failed, may have executed",
				"coin", coin, "order_id", previousID, "error", err.Error())
		}
	}

	result, err := m.venue.PlaceStopLoss(ctx, coin, positionSide.Opposite(), qty, newSL, agent)
	if err != nil {
		return fmt.Errorf("stop loss update for %s: %w", coin, err)
	}

	m.mu.Lock()
	state.slOrderID = result.OrderID
	state.lastSLUpdate = m.clock.Now()
	m.mu.Unlock()

	m.log.Info("stop loss updated", "coin", coin, "trigger", newSL, "order_id", result.OrderID)
	return nil
}

// ClearTrackedOrders drops the coin's bookkeeping. Called when the position
// monitor observes the venue-side position closed.
func (m *Manager) ClearTrackedOrders(coin string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tracked, coin)
}

// TrackedStopLoss returns the tracked SL order id for the coin, 0 if none.
func (m *Manager) TrackedStopLoss(coin string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.tracked[coin]; ok {
		return s.slOrderID
	}
	return 0
}

// ValidateTakeProfit returns the requested TP, or the smallest profitable
// trigger when the requested one would not cover round-trip taker fees.
// Solving qty*|tp-entry| > qty*taker*(entry+tp) gives the bound per side.
func ValidateTakeProfit(positionSide hyperliquid.OrderSide, entry, tp float64) float64 {
	taker := takerFee()
	if positionSide == hyperliquid.SideBuy {
		minTP := entry * (1 + taker) / (1 - taker) * tpSafetyMargin
		if tp < minTP {
			return minTP
		}
		return tp
	}
	maxTP := entry * (1 - taker) / (1 + taker) / tpSafetyMargin
	if tp > maxTP {
		return maxTP
	}
	return tp
}

// tpSafetyMargin nudges the break-even bound so the adjusted TP clears fees
// rather than exactly matching them.
const tpSafetyMargin = 1.001

func takerFee() float64 {
	f, _ := hyperliquid.TakerFeeRate.Float64()
	return f
}
