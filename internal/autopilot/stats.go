package autopilot

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"hyperliquid-trading-bot/internal/clock"
)

// DailyStats is the engine's per-day trading tally. Counters reset at the
// UTC day boundary; dailyPnl is the sum of net PnL of trades closed today.
type DailyStats struct {
	TradesToday       int             `json:"trades_today"`
	WinsToday         int             `json:"wins_today"`
	LossesToday       int             `json:"losses_today"`
	ConsecutiveLosses int             `json:"consecutive_losses"`
	ConsecutiveWins   int             `json:"consecutive_wins"`
	PauseUntil        time.Time       `json:"pause_until"`
	DailyPnl          decimal.Decimal `json:"daily_pnl"`
	LastTradeAt       time.Time       `json:"last_trade_at"`
	MaxDailyDrawdown  decimal.Decimal `json:"max_daily_drawdown"`
}

// statsTracker owns DailyStats for one user and handles UTC rollover.
type statsTracker struct {
	clock clock.Clock

	mu       sync.Mutex
	stats    DailyStats
	statsDay string // "2006-01-02" in UTC
}

func newStatsTracker(clk clock.Clock) *statsTracker {
	return &statsTracker{
		clock:    clk,
		statsDay: clk.Now().UTC().Format("2006-01-02"),
	}
}

// rollover resets counters when the UTC date has changed. Callers must hold mu.
func (t *statsTracker) rollover() {
	day := t.clock.Now().UTC().Format("2006-01-02")
	if day == t.statsDay {
		return
	}
	t.statsDay = day
	pauseUntil := t.stats.PauseUntil // pause windows survive the day boundary
	t.stats = DailyStats{PauseUntil: pauseUntil}
}

// Snapshot returns a copy of the current stats after rollover.
func (t *statsTracker) Snapshot() DailyStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	return t.stats
}

// RecordOpen counts a newly opened trade.
func (t *statsTracker) RecordOpen() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	t.stats.TradesToday++
	t.stats.LastTradeAt = t.clock.Now()
}

// RecordClose settles a closed trade's net PnL into the daily counters and
// returns the consecutive-loss count after the update.
func (t *statsTracker) RecordClose(netPnl decimal.Decimal) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()

	t.stats.DailyPnl = t.stats.DailyPnl.Add(netPnl)
	if t.stats.DailyPnl.IsNegative() && t.stats.DailyPnl.LessThan(t.stats.MaxDailyDrawdown) {
		t.stats.MaxDailyDrawdown = t.stats.DailyPnl
	}

	if netPnl.Sign() >= 0 {
		t.stats.WinsToday++
		t.stats.ConsecutiveWins++
		t.stats.ConsecutiveLosses = 0
	} else {
		t.stats.LossesToday++
		t.stats.ConsecutiveLosses++
		t.stats.ConsecutiveWins = 0
	}
	return t.stats.ConsecutiveLosses
}

// RecordRealized folds realized PnL that does not settle a trade, such as a
// partial close, into the daily total.
func (t *statsTracker) RecordRealized(netPnl decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()

	t.stats.DailyPnl = t.stats.DailyPnl.Add(netPnl)
	if t.stats.DailyPnl.IsNegative() && t.stats.DailyPnl.LessThan(t.stats.MaxDailyDrawdown) {
		t.stats.MaxDailyDrawdown = t.stats.DailyPnl
	}
}

// Pause blocks new entries until the deadline.
func (t *statsTracker) Pause(until time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.PauseUntil = until
}

// Paused reports whether a pause window is active.
func (t *statsTracker) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	return t.clock.Now().Before(t.stats.PauseUntil)
}

// WinRate returns today's win rate in [0,1]; zero with no closed trades.
func (t *statsTracker) WinRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()

	closed := t.stats.WinsToday + t.stats.LossesToday
	if closed == 0 {
		return 0
	}
	return float64(t.stats.WinsToday) / float64(closed)
}
