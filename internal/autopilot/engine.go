package autopilot

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"hyperliquid-trading-bot/internal/analysis"
	"hyperliquid-trading-bot/internal/clock"
	"hyperliquid-trading-bot/internal/hyperliquid"
	"hyperliquid-trading-bot/internal/logging"
	"hyperliquid-trading-bot/internal/orders"
)

const (
	bookDepth          = 10
	minSnapshotSamples = 30
	profitFeeMultiple  = 1.5
	historyLookback    = 30 * 24 * time.Hour
	historyLimit       = 200
)

// Venue is the slice of the bridge the engine needs.
type Venue interface {
	GetBalance(ctx context.Context, agent string) (*hyperliquid.Balance, error)
	GetPositions(ctx context.Context, agent string) ([]hyperliquid.Position, error)
	GetOrderBook(ctx context.Context, coin string, depth int) (*hyperliquid.OrderBook, error)
	ExecuteLimitOrder(ctx context.Context, coin string, side hyperliquid.OrderSide, size, price, slippagePct float64, agent string) (*hyperliquid.OrderResult, error)
	ClosePosition(ctx context.Context, coin, agent string) (*hyperliquid.OrderResult, error)
}

// OrderManager is the slice of the order manager the engine and monitor use.
type OrderManager interface {
	PlaceSlTpOrders(ctx context.Context, coin string, positionSide hyperliquid.OrderSide, qty, entry, sl, tp float64, agent string) (*orders.PlaceResult, error)
	UpdateStopLoss(ctx context.Context, coin string, positionSide hyperliquid.OrderSide, qty, newSL float64, agent string, force bool) error
	ClearTrackedOrders(coin string)
}

// Control is the safety-plane surface consulted every tick.
type Control interface {
	CanTrade() (bool, string)
	CooldownActive(symbol string, force bool) bool
	MarkTraded(symbol string)
	Pause(reason string, until time.Time)
	RecordDailyLoss(ctx context.Context, lossPct float64, agent string)
}

// MarketSource supplies per-symbol market snapshots and cached mids.
type MarketSource interface {
	Snapshot(ctx context.Context, symbol string) (*Snapshot, error)
	MidPrice(symbol string) float64
}

// SentimentAdvisory is the optional LLM verdict for an opportunity.
type SentimentAdvisory struct {
	Sentiment   string  `json:"sentiment"`
	NewsScore   float64 `json:"news_score"`
	ShouldBoost bool    `json:"should_boost"`
	ShouldAvoid bool    `json:"should_avoid"`
}

// SentimentRequest is the context handed to the sentiment gate.
type SentimentRequest struct {
	Symbol     string
	Direction  Direction
	Mode       Mode
	Price      float64
	Change24h  float64
	Volatility float64
	Score      float64
	UserPrompt string
	Force      bool
}

// SentimentGate wraps the LLM call gate plus client. Returns nil whenever the
// gate denies or the call fails; the trade proceeds without sentiment input.
type SentimentGate interface {
	Advise(ctx context.Context, req SentimentRequest) *SentimentAdvisory
}

// Deps wires the engine's collaborators.
type Deps struct {
	Venue      Venue
	Orders     OrderManager
	Control    Control
	Markets    MarketSource
	Sentiment  SentimentGate // nil disables the advisory
	TradeStore TradeStore
	Clock      clock.Clock
	Log        *logging.Logger

	// PauseDuration is the lockout after the consecutive-loss threshold or a
	// drawdown breach. Defaults to an hour.
	PauseDuration time.Duration
}

func (d *Deps) pauseDuration() time.Duration {
	if d.PauseDuration > 0 {
		return d.PauseDuration
	}
	return time.Hour
}

// Engine runs the per-user analysis loop: one tick per mode interval, twelve
// steps from preconditions to commit.
type Engine struct {
	wallet   string
	agent    string
	settings *Settings
	deps     Deps
	stats    *statsTracker
	log      *logging.Logger

	mu         sync.Mutex
	openTrades map[string]*TradeRecord   // by symbol
	trailing   map[string]*TrailingState // by symbol
	skips      int
	lastSkip   string
}

func NewEngine(wallet string, settings *Settings, deps Deps) *Engine {
	return &Engine{
		wallet:     wallet,
		agent:      wallet,
		settings:   settings,
		deps:       deps,
		stats:      newStatsTracker(deps.Clock),
		log:        deps.Log.WithComponent("engine").WithField("wallet", wallet),
		openTrades: make(map[string]*TradeRecord),
		trailing:   make(map[string]*TrailingState),
	}
}

// RecoverOpenTrades loads persisted open trades so reconciliation can sync
// them with the venue after a restart.
func (e *Engine) RecoverOpenTrades() error {
	since := e.deps.Clock.Now().Add(-historyLookback).UnixMilli()
	records, err := e.deps.TradeStore.Load(since, historyLimit)
	if err != nil {
		return fmt.Errorf("loading trade history: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range records {
		r := records[i]
		if r.Status != TradeOpen || r.UserWallet != e.wallet {
			continue
		}
		e.openTrades[r.Symbol] = &r
		entry, _ := r.EntryPrice.Float64()
		sl, _ := r.StopLoss.Float64()
		e.trailing[r.Symbol] = &TrailingState{
			EntryPrice:  entry,
			CurrentStop: sl,
			HighestSeen: entry,
			LowestSeen:  entry,
		}
		e.log.Info("recovered open trade", "symbol", r.Symbol, "id", r.ID)
	}
	return nil
}

// Run executes ticks at the mode interval until the context ends. Settings
// changes apply on the next tick; a mode change needs a restart to retime the
// loop.
func (e *Engine) Run(ctx context.Context) {
	mode := e.Settings().Mode
	ticker := time.NewTicker(mode.LoopInterval())
	defer ticker.Stop()

	e.log.Info("analysis loop started", "mode", string(mode), "interval", mode.LoopInterval().String())
	for {
		select {
		case <-ctx.Done():
			e.log.Info("analysis loop stopped")
			return
		case <-ticker.C:
			if err := e.Tick(ctx); err != nil {
				e.log.Error("tick failed", "error", err.Error())
			}
		}
	}
}

// skip counts a silent abort with its reason.
func (e *Engine) skip(reason string) error {
	e.mu.Lock()
	e.skips++
	e.lastSkip = reason
	e.mu.Unlock()
	e.log.Debug("tick skipped", "reason", reason)
	return nil
}

// Tick runs one full decision pass over a settings copy taken at the start,
// so a concurrent settings update cannot tear a decision in half.
func (e *Engine) Tick(ctx context.Context) error {
	settings := e.Settings()

	// Step 1: preconditions.
	if ok, reason := e.deps.Control.CanTrade(); !ok {
		return e.skip(reason)
	}
	if e.stats.Paused() {
		return e.skip("loss pause active")
	}
	stats := e.stats.Snapshot()
	if stats.TradesToday >= settings.MaxTradesPerDay {
		return e.skip("daily trade cap reached")
	}
	if settings.EnableSessionFilter {
		if session := EvaluateSession(e.deps.Clock.Now()); session.Recommendation == SessionAvoid {
			return e.skip("session filter: avoid")
		}
	}

	// Steps 2 and 3: snapshot the bag, pick the hottest symbol.
	snap, err := e.selectSymbol(ctx, settings.TradingBag)
	if err != nil {
		return err
	}
	if snap == nil {
		return e.skip("no symbol with enough data")
	}
	if e.deps.Control.CooldownActive(snap.Symbol, false) {
		return e.skip("asset cooldown: " + snap.Symbol)
	}

	e.mu.Lock()
	_, alreadyOpen := e.openTrades[snap.Symbol]
	openCount := len(e.openTrades)
	e.mu.Unlock()
	if alreadyOpen {
		return e.skip("position already open: " + snap.Symbol)
	}
	if openCount >= settings.MaxSimultaneousPos {
		return e.skip("max simultaneous positions reached")
	}

	// Step 4: order book.
	coin := hyperliquid.CoinFromSymbol(snap.Symbol)
	book, err := e.deps.Venue.GetOrderBook(ctx, coin, bookDepth)
	if err != nil {
		return fmt.Errorf("order book for %s: %w", coin, err)
	}
	snap.Book = book

	// Step 5: confluence.
	confluence := EvaluateConfluence(snap)
	if !confluence.Qualifies(&settings) {
		return e.skip(fmt.Sprintf("confluence not met: %s %d/%.0f",
			confluence.Direction, confluence.AlignedCount, confluence.TotalStrength))
	}

	// Step 6: regime.
	regime := DetectRegime(snap)
	if !regime.AllowsEntry(confluence.Direction, &settings) {
		return e.skip("regime blocks entry: " + string(regime.Regime))
	}

	// Step 7: correlation.
	positions, err := e.deps.Venue.GetPositions(ctx, e.agent)
	if err != nil {
		return fmt.Errorf("positions: %w", err)
	}
	if check := CheckCorrelation(snap.Symbol, positions); !check.Allowed {
		return e.skip(fmt.Sprintf("correlation limit: %s (%s)", check.Group, check.Reason))
	}

	// Step 8: sizing.
	balance, err := e.deps.Venue.GetBalance(ctx, e.agent)
	if err != nil {
		return fmt.Errorf("balance: %w", err)
	}
	history, err := e.deps.TradeStore.Load(e.deps.Clock.Now().Add(-historyLookback).UnixMilli(), historyLimit)
	if err != nil {
		e.log.Warn("trade history unavailable for sizing", "error", err.Error())
	}
	sizing := ComputeSizeMultiplier(stats, e.stats.WinRate(), confluence.TotalStrength, history, &settings, balance.AccountValue)
	if sizing.ShouldPause {
		e.deps.Control.Pause(sizing.Reason, e.deps.Clock.Now().Add(e.deps.pauseDuration()))
		return e.skip(sizing.Reason)
	}

	// Step 9: optional sentiment advisory.
	price := lastPrice(snap)
	if settings.EnableLLMSentiment && e.deps.Sentiment != nil {
		advisory := e.deps.Sentiment.Advise(ctx, SentimentRequest{
			Symbol:     snap.Symbol,
			Direction:  confluence.Direction,
			Mode:       settings.Mode,
			Price:      price,
			Change24h:  snap.Change24h,
			Volatility: analysis.CalculateVolatility(snap.Prices, 20),
			Score:      confluence.TotalStrength,
			UserPrompt: settings.UserPrompt,
		})
		if advisory != nil {
			if advisory.ShouldAvoid {
				return e.skip("sentiment advisory: avoid")
			}
			if advisory.ShouldBoost {
				// Advisory only; sizing is not altered.
				e.log.Info("sentiment boost noted", "symbol", snap.Symbol, "score", advisory.NewsScore)
			}
		}
	}

	// Step 10: SL/TP plan.
	plan := BuildSLTP(snap, confluence.Direction, price, &settings, regime)

	// Step 11: profitability gate.
	qty := positionQuantity(&settings, balance, sizing.Multiplier, price, coin)
	if qty <= 0 {
		return e.skip("computed quantity is zero")
	}
	if reason, ok := checkProfitability(price, plan.TakeProfit, qty); !ok {
		return e.skip(reason)
	}

	// Step 12: commit.
	return e.commit(ctx, &settings, snap, confluence, plan, qty, price)
}

// selectSymbol snapshots every bag symbol and returns the one with the top
// heat score. Alphabetical order breaks ties because only a strictly higher
// score replaces the leader.
func (e *Engine) selectSymbol(ctx context.Context, bag []string) (*Snapshot, error) {
	symbols := append([]string(nil), bag...)
	sort.Strings(symbols)

	var best *Snapshot
	bestScore := math.Inf(-1)
	for _, symbol := range symbols {
		snap, err := e.deps.Markets.Snapshot(ctx, symbol)
		if err != nil {
			e.log.Warn("snapshot unavailable", "symbol", symbol, "error", err.Error())
			continue
		}
		if len(snap.Prices) < minSnapshotSamples {
			continue
		}
		if score := heatScore(snap); score > bestScore {
			bestScore = score
			best = snap
		}
	}
	return best, nil
}

// heatScore ranks a symbol's tradability from activity and liquidity.
func heatScore(snap *Snapshot) float64 {
	vol := analysis.CalculateVolatility(snap.Prices, 20)
	mom := analysis.CalculateMomentum(snap.Prices, 5)
	trend := analysis.CalculateTrendStrength(snap.Prices, 20)

	score := vol*20 + math.Abs(mom)*15
	if trend.Direction != "sideways" && trend.Strength > 25 {
		score += 10
	}
	if snap.Volume24h > 0 {
		score += math.Log10(snap.Volume24h/1e6) * 5
	}
	return score
}

// positionQuantity sizes the order: margin is a percentage of account value
// scaled by the dynamic multiplier, notional applies leverage.
func positionQuantity(settings *Settings, balance *hyperliquid.Balance, multiplier, price float64, coin string) float64 {
	if price <= 0 {
		return 0
	}
	accountValue, _ := balance.AccountValue.Float64()
	margin := accountValue * settings.PositionSizePct / 100 * multiplier

	leverage := settings.MaxLeverage
	if venueCap := hyperliquid.MaxLeverage(coin); leverage > venueCap {
		leverage = venueCap
	}
	if leverage < 1 {
		leverage = 1
	}
	return hyperliquid.RoundSize(coin, margin*float64(leverage)/price)
}

// checkProfitability requires net profit at TP to be positive and to clear
// round-trip taker fees with margin.
func checkProfitability(entry, tp, qty float64) (string, bool) {
	taker, _ := hyperliquid.TakerFeeRate.Float64()
	fees := taker * (entry + tp) * qty
	gross := math.Abs(tp-entry) * qty
	net := gross - fees
	if net <= 0 {
		return "trade not profitable at TP after fees", false
	}
	if net < profitFeeMultiple*fees {
		return fmt.Sprintf("net profit at TP below %.1fx fees", profitFeeMultiple), false
	}
	return "", true
}

// commit places the entry and SL/TP pair, then records the trade.
func (e *Engine) commit(ctx context.Context, settings *Settings, snap *Snapshot, confluence *ConfluenceResult, plan *SLTPPlan, qty, price float64) error {
	coin := hyperliquid.CoinFromSymbol(snap.Symbol)
	side := hyperliquid.SideBuy
	if confluence.Direction == DirectionShort {
		side = hyperliquid.SideSell
	}

	result, err := e.deps.Venue.ExecuteLimitOrder(ctx, coin, side, qty, price, settings.SlippagePct, e.agent)
	if err != nil {
		return fmt.Errorf("entry order for %s: %w", coin, err)
	}

	entry := price
	if result.Filled && result.AvgFillPrice.IsPositive() {
		entry, _ = result.AvgFillPrice.Float64()
	}

	if _, err := e.deps.Orders.PlaceSlTpOrders(ctx, coin, side, qty, entry, plan.StopLoss, plan.TakeProfit, e.agent); err != nil {
		e.log.Error("SL/TP placement failed after entry", "coin", coin, "error", err.Error())
	}

	taker, _ := hyperliquid.TakerFeeRate.Float64()
	now := e.deps.Clock.Now()
	trade := &TradeRecord{
		ID:         uuid.New().String(),
		UserWallet: e.wallet,
		Symbol:     snap.Symbol,
		Side:       side,
		EntryPrice: decimal.NewFromFloat(entry),
		Quantity:   decimal.NewFromFloat(qty),
		Leverage:   settings.MaxLeverage,
		StopLoss:   decimal.NewFromFloat(plan.StopLoss),
		TakeProfit: decimal.NewFromFloat(plan.TakeProfit),
		EntryFee:   decimal.NewFromFloat(taker * entry * qty),
		Status:     TradeOpen,
		Confidence: confluence.TotalStrength,
		ReasoningText: fmt.Sprintf("%s confluence %d signals, strength %.0f, R:R %.2f",
			confluence.Direction, confluence.AlignedCount, confluence.TotalStrength, plan.RewardRisk),
		Timestamp: now.UnixMilli(),
	}
	if err := e.deps.TradeStore.Upsert(*trade); err != nil {
		e.log.Error("trade record persist failed", "id", trade.ID, "error", err.Error())
	}

	e.mu.Lock()
	e.openTrades[snap.Symbol] = trade
	e.trailing[snap.Symbol] = &TrailingState{
		EntryPrice:  entry,
		CurrentStop: plan.StopLoss,
		HighestSeen: entry,
		LowestSeen:  entry,
	}
	e.mu.Unlock()

	e.stats.RecordOpen()
	e.deps.Control.MarkTraded(snap.Symbol)
	e.log.Info("trade opened",
		"symbol", snap.Symbol, "side", string(side), "qty", qty, "entry", entry,
		"sl", plan.StopLoss, "tp", plan.TakeProfit, "strength", confluence.TotalStrength)
	return nil
}

// EngineStatus is the engine's externally visible snapshot.
type EngineStatus struct {
	Wallet     string        `json:"wallet"`
	Mode       Mode          `json:"mode"`
	OpenTrades []TradeRecord `json:"open_trades"`
	Stats      DailyStats    `json:"stats"`
	Skips      int           `json:"skips"`
	LastSkip   string        `json:"last_skip,omitempty"`
}

// Status reports open trades and daily stats.
func (e *Engine) Status() EngineStatus {
	e.mu.Lock()
	trades := make([]TradeRecord, 0, len(e.openTrades))
	for _, t := range e.openTrades {
		trades = append(trades, *t)
	}
	skips, lastSkip := e.skips, e.lastSkip
	mode := e.settings.Mode
	e.mu.Unlock()

	sort.Slice(trades, func(i, j int) bool { return trades[i].Symbol < trades[j].Symbol })
	return EngineStatus{
		Wallet:     e.wallet,
		Mode:       mode,
		OpenTrades: trades,
		Stats:      e.stats.Snapshot(),
		Skips:      skips,
		LastSkip:   lastSkip,
	}
}

// Settings returns a copy of the live settings.
func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.settings
}

// ApplySettings replaces the live settings. The analysis loop and monitor
// pick the change up on their next pass.
func (e *Engine) ApplySettings(s Settings) {
	e.mu.Lock()
	defer e.mu.Unlock()
	*e.settings = s
}

// TrailingSnapshot copies the per-symbol trailing state for persistence.
func (e *Engine) TrailingSnapshot() map[string]TrailingState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]TrailingState, len(e.trailing))
	for symbol, state := range e.trailing {
		out[symbol] = *state
	}
	return out
}

// RestoreTrailing merges persisted trailing state over the recovered
// defaults. Symbols without an open trade are ignored.
func (e *Engine) RestoreTrailing(saved map[string]TrailingState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for symbol, state := range saved {
		if _, ok := e.openTrades[symbol]; !ok {
			continue
		}
		s := state
		e.trailing[symbol] = &s
	}
}

func lastPrice(snap *Snapshot) float64 {
	if len(snap.Prices) == 0 {
		return 0
	}
	return snap.Prices[len(snap.Prices)-1]
}
