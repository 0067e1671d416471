package autopilot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"hyperliquid-trading-bot/internal/hyperliquid"
	"hyperliquid-trading-bot/internal/logging"
)

const (
	monitorInterval    = 10 * time.Second
	breakevenPnlPct    = 1.0
	partialClosePct    = 0.5
	statusLogInterval  = time.Minute
	syncedTradePattern = "synced from venue position"
)

// Monitor reconciles local trades against the venue and manages in-flight
// stops. Reconciliation runs before in-flight management each cycle so newly
// synced trades are tracked immediately.
type Monitor struct {
	engine *Engine
	log    *logging.Logger

	lastStatusLog map[string]time.Time // by symbol
}

func NewMonitor(engine *Engine) *Monitor {
	return &Monitor{
		engine:        engine,
		log:           engine.deps.Log.WithComponent("monitor").WithField("wallet", engine.wallet),
		lastStatusLog: make(map[string]time.Time),
	}
}

// Run cycles every 10 seconds until the context ends.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	m.log.Info("position monitor started")
	for {
		select {
		case <-ctx.Done():
			m.log.Info("position monitor stopped")
			return
		case <-ticker.C:
			if err := m.Cycle(ctx); err != nil {
				m.log.Error("monitor cycle failed", "error", err.Error())
			}
		}
	}
}

// Cycle runs one reconciliation pass followed by in-flight management.
func (m *Monitor) Cycle(ctx context.Context) error {
	e := m.engine
	positions, err := e.deps.Venue.GetPositions(ctx, e.agent)
	if err != nil {
		return fmt.Errorf("positions: %w", err)
	}

	bySymbol := make(map[string]hyperliquid.Position, len(positions))
	for _, p := range positions {
		bySymbol[hyperliquid.SymbolFromCoin(p.Coin)] = p
	}

	m.reconcile(ctx, bySymbol)
	m.manageOpen(ctx, bySymbol)
	return nil
}

// reconcile syncs the local open-trade set with the venue: venue positions
// without a local record are adopted, local records the venue no longer
// reports are closed out at the cached mid.
func (m *Monitor) reconcile(ctx context.Context, venuePositions map[string]hyperliquid.Position) {
	e := m.engine

	e.mu.Lock()
	local := make(map[string]*TradeRecord, len(e.openTrades))
	for symbol, trade := range e.openTrades {
		local[symbol] = trade
	}
	e.mu.Unlock()

	for symbol, pos := range venuePositions {
		if _, ok := local[symbol]; !ok {
			m.adoptPosition(ctx, symbol, pos)
		}
	}
	for symbol, trade := range local {
		if _, ok := venuePositions[symbol]; !ok {
			m.closeLocal(ctx, symbol, trade)
		}
	}
}

// adoptPosition synthesizes a local record for a venue position opened
// outside the engine (or lost over a restart) and protects it with SL/TP.
func (m *Monitor) adoptPosition(ctx context.Context, symbol string, pos hyperliquid.Position) {
	e := m.engine
	settings := e.Settings()
	entry, _ := pos.EntryPrice.Float64()
	qty, _ := pos.Size.Abs().Float64()
	side := hyperliquid.SideBuy
	dir := DirectionLong
	if !pos.IsLong() {
		side = hyperliquid.SideSell
		dir = DirectionShort
	}

	snap, err := e.deps.Markets.Snapshot(ctx, symbol)
	if err != nil {
		m.log.Warn("cannot snapshot for synced trade, using fixed SL/TP", "symbol", symbol, "error", err.Error())
		snap = &Snapshot{Symbol: symbol, Prices: []float64{entry}}
	}
	plan := BuildSLTP(snap, dir, entry, &settings, DetectRegime(snap))

	taker, _ := hyperliquid.TakerFeeRate.Float64()
	trade := &TradeRecord{
		ID:            uuid.New().String(),
		UserWallet:    e.wallet,
		Symbol:        symbol,
		Side:          side,
		EntryPrice:    pos.EntryPrice,
		Quantity:      pos.Size.Abs(),
		Leverage:      pos.Leverage,
		StopLoss:      decimal.NewFromFloat(plan.StopLoss),
		TakeProfit:    decimal.NewFromFloat(plan.TakeProfit),
		EntryFee:      decimal.NewFromFloat(taker * entry * qty),
		Status:        TradeOpen,
		ReasoningText: syncedTradePattern,
		Timestamp:     e.deps.Clock.Now().UnixMilli(),
	}
	if err := e.deps.TradeStore.Upsert(*trade); err != nil {
		m.log.Error("synced trade persist failed", "symbol", symbol, "error", err.Error())
	}

	coin := hyperliquid.CoinFromSymbol(symbol)
	if _, err := e.deps.Orders.PlaceSlTpOrders(ctx, coin, side, qty, entry, plan.StopLoss, plan.TakeProfit, e.agent); err != nil {
		m.log.Error("SL/TP placement for synced trade failed", "symbol", symbol, "error", err.Error())
	}

	e.mu.Lock()
	e.openTrades[symbol] = trade
	e.trailing[symbol] = &TrailingState{
		EntryPrice:  entry,
		CurrentStop: plan.StopLoss,
		HighestSeen: entry,
		LowestSeen:  entry,
	}
	e.mu.Unlock()
	m.log.Info("adopted venue position", "symbol", symbol, "side", string(side), "qty", qty, "entry", entry)
}

// closeLocal settles a trade the venue no longer reports: the SL or TP
// executed exchange-side. Exit price is the latest cached mid. The trade is
// detached from the tracked set first so the record mutation below is the
// monitor's alone.
func (m *Monitor) closeLocal(ctx context.Context, symbol string, trade *TradeRecord) {
	e := m.engine

	e.mu.Lock()
	delete(e.openTrades, symbol)
	delete(e.trailing, symbol)
	e.mu.Unlock()

	exitPrice := e.deps.Markets.MidPrice(symbol)
	if exitPrice <= 0 {
		exitPrice, _ = trade.EntryPrice.Float64()
	}

	taker, _ := hyperliquid.TakerFeeRate.Float64()
	trade.ExitFee = decimal.NewFromFloat(exitPrice).Mul(trade.Quantity).Mul(decimal.NewFromFloat(taker))
	trade.Close(decimal.NewFromFloat(exitPrice), e.deps.Clock.Now())

	if err := e.deps.TradeStore.Upsert(*trade); err != nil {
		m.log.Error("closed trade persist failed", "id", trade.ID, "error", err.Error())
	}
	e.deps.Orders.ClearTrackedOrders(hyperliquid.CoinFromSymbol(symbol))
	delete(m.lastStatusLog, symbol)

	losses := e.stats.RecordClose(trade.NetPnl)
	net, _ := trade.NetPnl.Float64()
	m.log.Info("venue-side close detected",
		"symbol", symbol, "exit", exitPrice, "net_pnl", net, "consecutive_losses", losses)

	if losses >= e.Settings().PauseAfterLosses {
		until := e.deps.Clock.Now().Add(e.deps.pauseDuration())
		e.stats.Pause(until)
		e.deps.Control.Pause(fmt.Sprintf("%d consecutive losses", losses), until)
	}
	m.feedLossBreaker(ctx)
}

// feedLossBreaker reports today's realized loss to the control plane as a
// percentage of account value. The breaker trips the kill switch when the
// configured daily limit is breached.
func (m *Monitor) feedLossBreaker(ctx context.Context) {
	e := m.engine
	daily := e.stats.Snapshot().DailyPnl
	if !daily.IsNegative() {
		return
	}
	balance, err := e.deps.Venue.GetBalance(ctx, e.agent)
	if err != nil {
		m.log.Warn("balance unavailable for daily-loss check", "error", err.Error())
		return
	}
	account, _ := balance.AccountValue.Float64()
	if account <= 0 {
		return
	}
	loss, _ := daily.Neg().Float64()
	e.deps.Control.RecordDailyLoss(ctx, loss/account*100, e.agent)
}

// manageOpen runs the in-flight state machine for every tracked trade whose
// position the venue still reports.
func (m *Monitor) manageOpen(ctx context.Context, venuePositions map[string]hyperliquid.Position) {
	e := m.engine

	e.mu.Lock()
	symbols := make([]string, 0, len(e.openTrades))
	for symbol := range e.openTrades {
		symbols = append(symbols, symbol)
	}
	e.mu.Unlock()

	for _, symbol := range symbols {
		if _, ok := venuePositions[symbol]; !ok {
			continue
		}
		price := e.deps.Markets.MidPrice(symbol)
		if price <= 0 {
			continue
		}
		m.manageTrade(ctx, symbol, price)
	}
}

// manageTrade works on a copy of the trailing state and publishes it back
// under the engine lock at the end, so concurrent snapshot readers never see
// a half-updated state.
func (m *Monitor) manageTrade(ctx context.Context, symbol string, price float64) {
	e := m.engine
	settings := e.Settings()

	e.mu.Lock()
	trade, ok := e.openTrades[symbol]
	tracked := e.trailing[symbol]
	if !ok || tracked == nil {
		e.mu.Unlock()
		return
	}
	state := *tracked
	long := trade.IsLong()
	side := trade.Side
	qty, _ := trade.Quantity.Float64()
	tp, _ := trade.TakeProfit.Float64()
	e.mu.Unlock()

	entry := state.EntryPrice
	if entry <= 0 {
		return
	}

	pnlPct := (price - entry) / entry * 100
	if !long {
		pnlPct = -pnlPct
	}
	if price > state.HighestSeen {
		state.HighestSeen = price
	}
	if state.LowestSeen == 0 || price < state.LowestSeen {
		state.LowestSeen = price
	}

	coin := hyperliquid.CoinFromSymbol(symbol)

	// Breakeven: once 1% in profit the stop moves to entry, never worse.
	if !state.BreakevenDone && pnlPct >= breakevenPnlPct && stopWorseThanEntry(state.CurrentStop, entry, long) {
		if err := e.deps.Orders.UpdateStopLoss(ctx, coin, side, qty, entry, e.agent, true); err != nil {
			m.log.Warn("breakeven move failed", "symbol", symbol, "error", err.Error())
		} else {
			state.CurrentStop = entry
			state.BreakevenDone = true
			m.log.Info("stop moved to breakeven", "symbol", symbol, "entry", entry)
		}
	}

	// Trailing activation and update.
	if !state.TrailingActivated && settings.EnableTrailingStop && pnlPct >= settings.TrailingActivationPct {
		state.TrailingActivated = true
		m.log.Info("trailing stop activated", "symbol", symbol, "pnl_pct", pnlPct)
	}
	if state.TrailingActivated {
		target := state.HighestSeen * (1 - settings.TrailingDistancePct/100)
		improves := target > state.CurrentStop
		if !long {
			target = state.LowestSeen * (1 + settings.TrailingDistancePct/100)
			improves = target < state.CurrentStop || state.CurrentStop == 0
		}
		if improves {
			if err := e.deps.Orders.UpdateStopLoss(ctx, coin, side, qty, target, e.agent, false); err != nil {
				m.log.Debug("trailing update deferred", "symbol", symbol, "error", err.Error())
			} else {
				state.CurrentStop = target
				m.log.Info("trailing stop raised", "symbol", symbol, "stop", target)
			}
		}
	}

	// Partial profit at half the TP distance.
	tpPct := abs(tp-entry) / entry * 100
	if !state.PartialTaken && pnlPct >= tpPct*0.5 {
		half := hyperliquid.RoundSize(coin, qty*partialClosePct)
		if half > 0 && half < qty {
			if _, err := e.deps.Venue.ExecuteLimitOrder(ctx, coin, side.Opposite(), half, price, settings.SlippagePct, e.agent); err != nil {
				m.log.Warn("partial close failed", "symbol", symbol, "error", err.Error())
			} else {
				state.PartialTaken = true
				gross := (price - entry) * half
				if !long {
					gross = (entry - price) * half
				}
				taker, _ := hyperliquid.TakerFeeRate.Float64()
				e.stats.RecordRealized(decimal.NewFromFloat(gross - taker*price*half))

				e.mu.Lock()
				trade.Quantity = trade.Quantity.Sub(decimal.NewFromFloat(half))
				record := *trade
				e.mu.Unlock()
				if err := e.deps.TradeStore.Upsert(record); err != nil {
					m.log.Error("partial-close persist failed", "id", record.ID, "error", err.Error())
				}
				m.feedLossBreaker(ctx)
				m.log.Info("partial profit taken", "symbol", symbol, "closed", half, "remaining_qty", qty-half)
			}
		}
	}

	e.mu.Lock()
	if cur := e.trailing[symbol]; cur != nil {
		*cur = state
	}
	e.mu.Unlock()

	// Status snapshot roughly once a minute per trade.
	now := e.deps.Clock.Now()
	if now.Sub(m.lastStatusLog[symbol]) >= statusLogInterval {
		m.lastStatusLog[symbol] = now
		m.log.Info("trade status",
			"symbol", symbol, "side", string(side), "entry", entry, "price", price,
			"pnl_pct", pnlPct, "stop", state.CurrentStop,
			"trailing", state.TrailingActivated, "partial", state.PartialTaken)
	}
}

// stopWorseThanEntry reports whether the current stop sits on the losing side
// of the entry price.
func stopWorseThanEntry(stop, entry float64, long bool) bool {
	if stop == 0 {
		return true
	}
	if long {
		return stop < entry
	}
	return stop > entry
}
