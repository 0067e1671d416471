package autopilot

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"hyperliquid-trading-bot/internal/clock"
	"hyperliquid-trading-bot/internal/hyperliquid"
	"hyperliquid-trading-bot/internal/logging"
	"hyperliquid-trading-bot/internal/orders"
)

type placedOrder struct {
	coin  string
	side  hyperliquid.OrderSide
	size  float64
	price float64
}

type fakeVenue struct {
	balance   *hyperliquid.Balance
	positions []hyperliquid.Position
	book      *hyperliquid.OrderBook
	placed    []placedOrder
	closed    []string
}

func (f *fakeVenue) GetBalance(context.Context, string) (*hyperliquid.Balance, error) {
	return f.balance, nil
}

func (f *fakeVenue) GetPositions(context.Context, string) ([]hyperliquid.Position, error) {
	return f.positions, nil
}

func (f *fakeVenue) GetOrderBook(context.Context, string, int) (*hyperliquid.OrderBook, error) {
	return f.book, nil
}

func (f *fakeVenue) ExecuteLimitOrder(_ context.Context, coin string, side hyperliquid.OrderSide, size, price, _ float64, _ string) (*hyperliquid.OrderResult, error) {
	f.placed = append(f.placed, placedOrder{coin: coin, side: side, size: size, price: price})
	return &hyperliquid.OrderResult{
		OrderID:      int64(len(f.placed)),
		Filled:       true,
		AvgFillPrice: decimal.NewFromFloat(price),
		FilledSize:   decimal.NewFromFloat(size),
	}, nil
}

func (f *fakeVenue) ClosePosition(_ context.Context, coin, _ string) (*hyperliquid.OrderResult, error) {
	f.closed = append(f.closed, coin)
	return &hyperliquid.OrderResult{}, nil
}

type slTpCall struct {
	coin   string
	sl, tp float64
}

type slUpdate struct {
	coin  string
	newSL float64
	force bool
}

type fakeOrders struct {
	slTp    []slTpCall
	updates []slUpdate
	cleared []string
}

func (f *fakeOrders) PlaceSlTpOrders(_ context.Context, coin string, _ hyperliquid.OrderSide, _, _, sl, tp float64, _ string) (*orders.PlaceResult, error) {
	f.slTp = append(f.slTp, slTpCall{coin: coin, sl: sl, tp: tp})
	return &orders.PlaceResult{SLPlaced: true, TPPlaced: true, SLOrderID: 1, TPOrderID: 2}, nil
}

func (f *fakeOrders) UpdateStopLoss(_ context.Context, coin string, _ hyperliquid.OrderSide, _, newSL float64, _ string, force bool) error {
	f.updates = append(f.updates, slUpdate{coin: coin, newSL: newSL, force: force})
	return nil
}

func (f *fakeOrders) ClearTrackedOrders(coin string) { f.cleared = append(f.cleared, coin) }

type pauseCall struct {
	reason string
	until  time.Time
}

type fakeControl struct {
	blocked     bool
	reason      string
	cooldown    map[string]bool
	pauses      []pauseCall
	marked      []string
	dailyLosses []float64
}

func (f *fakeControl) CanTrade() (bool, string) { return !f.blocked, f.reason }

func (f *fakeControl) CooldownActive(symbol string, _ bool) bool { return f.cooldown[symbol] }

func (f *fakeControl) MarkTraded(symbol string) { f.marked = append(f.marked, symbol) }

func (f *fakeControl) Pause(reason string, until time.Time) {
	f.pauses = append(f.pauses, pauseCall{reason: reason, until: until})
}

func (f *fakeControl) RecordDailyLoss(_ context.Context, lossPct float64, _ string) {
	f.dailyLosses = append(f.dailyLosses, lossPct)
}

type fakeMarkets struct {
	snaps map[string]*Snapshot
	mids  map[string]float64
}

func (f *fakeMarkets) Snapshot(_ context.Context, symbol string) (*Snapshot, error) {
	if s, ok := f.snaps[symbol]; ok {
		return s, nil
	}
	return &Snapshot{Symbol: symbol}, nil
}

func (f *fakeMarkets) MidPrice(symbol string) float64 { return f.mids[symbol] }

type memStore struct {
	records map[string]TradeRecord
}

func newMemStore() *memStore { return &memStore{records: make(map[string]TradeRecord)} }

func (s *memStore) Load(int64, int) ([]TradeRecord, error) {
	out := make([]TradeRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out, nil
}

func (s *memStore) Upsert(trade TradeRecord) error {
	s.records[trade.ID] = trade
	return nil
}

type engineFixture struct {
	engine  *Engine
	venue   *fakeVenue
	orders  *fakeOrders
	control *fakeControl
	markets *fakeMarkets
	store   *memStore
	clock   *clock.Fake
}

func newEngineFixture(t *testing.T, mode Mode) *engineFixture {
	t.Helper()
	settings := DefaultSettings(mode)
	settings.TradingBag = []string{"BTC-PERP"}
	settings.EnableLLMSentiment = false
	settings.UseSmartSLTP = false

	f := &engineFixture{
		venue:   &fakeVenue{balance: &hyperliquid.Balance{AccountValue: decimal.NewFromInt(1000)}},
		orders:  &fakeOrders{},
		control: &fakeControl{cooldown: make(map[string]bool)},
		markets: &fakeMarkets{snaps: make(map[string]*Snapshot), mids: make(map[string]float64)},
		store:   newMemStore(),
		clock:   clock.NewFake(time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC)),
	}
	f.engine = NewEngine("0xabc", &settings, Deps{
		Venue:      f.venue,
		Orders:     f.orders,
		Control:    f.control,
		Markets:    f.markets,
		TradeStore: f.store,
		Clock:      f.clock,
		Log:        logging.New(&logging.Config{Level: "ERROR"}),
	})
	return f
}

// uptrendSnapshot mirrors a clean long setup: rising closes, momentum, a
// bid-heavy book.
func uptrendSnapshot() *Snapshot {
	prices := rampPrices(100, 100, 0.25)
	return &Snapshot{
		Symbol:    "BTC-PERP",
		Prices:    prices,
		Volume24h: 250e6,
	}
}

func TestTickCommitsOnConfluencePass(t *testing.T) {
	f := newEngineFixture(t, ModeAggressive)
	snap := uptrendSnapshot()
	f.markets.snaps["BTC-PERP"] = snap
	f.venue.book = bidHeavyBook(snap.Prices[len(snap.Prices)-1], 65, 35)

	if err := f.engine.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if len(f.venue.placed) != 1 {
		t.Fatalf("placed orders = %d, want 1 (last skip: %s)", len(f.venue.placed), f.engine.Status().LastSkip)
	}
	entry := f.venue.placed[0]
	if entry.side != hyperliquid.SideBuy {
		t.Errorf("side = %s, want buy", entry.side)
	}
	if entry.coin != "BTC" {
		t.Errorf("coin = %s, want BTC", entry.coin)
	}

	if len(f.orders.slTp) != 1 {
		t.Fatalf("SL/TP placements = %d, want 1", len(f.orders.slTp))
	}
	legs := f.orders.slTp[0]
	if legs.sl >= entry.price || legs.tp <= entry.price {
		t.Errorf("long legs inverted: entry %v sl %v tp %v", entry.price, legs.sl, legs.tp)
	}

	status := f.engine.Status()
	if len(status.OpenTrades) != 1 {
		t.Fatalf("open trades = %d, want 1", len(status.OpenTrades))
	}
	trade := status.OpenTrades[0]
	if trade.Status != TradeOpen || trade.Side != hyperliquid.SideBuy {
		t.Errorf("trade = %+v", trade)
	}
	if len(f.store.records) != 1 {
		t.Error("trade record should be persisted")
	}
	if len(f.control.marked) != 1 || f.control.marked[0] != "BTC-PERP" {
		t.Error("cooldown should start on commit")
	}
	if status.Stats.TradesToday != 1 {
		t.Errorf("tradesToday = %d, want 1", status.Stats.TradesToday)
	}
}

func TestTickSkipsWithoutConfluence(t *testing.T) {
	f := newEngineFixture(t, ModeAggressive)
	f.markets.snaps["BTC-PERP"] = &Snapshot{
		Symbol: "BTC-PERP",
		Prices: flatPrices(100, 100),
	}
	f.venue.book = &hyperliquid.OrderBook{
		Bids:      []hyperliquid.OrderBookLevel{{Price: 99.9, Size: 10}},
		Asks:      []hyperliquid.OrderBookLevel{{Price: 100.1, Size: 10}},
		MidPrice:  100,
		Imbalance: 0.5,
	}

	if err := f.engine.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(f.venue.placed) != 0 {
		t.Fatal("no order may be placed without confluence")
	}
	if f.engine.Status().Skips != 1 {
		t.Errorf("skips = %d, want 1", f.engine.Status().Skips)
	}
}

func TestTickPreconditions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *engineFixture)
	}{
		{"control blocks", func(f *engineFixture) {
			f.control.blocked = true
			f.control.reason = "not armed"
		}},
		{"asset cooldown", func(f *engineFixture) {
			f.control.cooldown["BTC-PERP"] = true
		}},
		{"daily cap reached", func(f *engineFixture) {
			for i := 0; i < f.engine.settings.MaxTradesPerDay; i++ {
				f.engine.stats.RecordOpen()
			}
		}},
		{"position already open", func(f *engineFixture) {
			f.engine.openTrades["BTC-PERP"] = &TradeRecord{Symbol: "BTC-PERP", Status: TradeOpen}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t, ModeAggressive)
			snap := uptrendSnapshot()
			f.markets.snaps["BTC-PERP"] = snap
			f.venue.book = bidHeavyBook(snap.Prices[len(snap.Prices)-1], 65, 35)
			tt.setup(f)

			if err := f.engine.Tick(context.Background()); err != nil {
				t.Fatalf("tick: %v", err)
			}
			if len(f.venue.placed) != 0 {
				t.Fatal("precondition must block the order")
			}
			if f.engine.Status().Skips == 0 {
				t.Error("skip must be counted")
			}
		})
	}
}

func TestTickSessionFilterAvoid(t *testing.T) {
	f := newEngineFixture(t, ModeAggressive)
	f.engine.settings.EnableSessionFilter = true
	// 23:00 UTC Monday: no session active.
	f.clock.Set(time.Date(2026, 8, 24, 23, 0, 0, 0, time.UTC))

	snap := uptrendSnapshot()
	f.markets.snaps["BTC-PERP"] = snap
	f.venue.book = bidHeavyBook(snap.Prices[len(snap.Prices)-1], 65, 35)

	if err := f.engine.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(f.venue.placed) != 0 {
		t.Fatal("avoid session must block the trade")
	}
}

func TestTickCorrelationBlocks(t *testing.T) {
	f := newEngineFixture(t, ModeAggressive)
	snap := uptrendSnapshot()
	f.markets.snaps["BTC-PERP"] = snap
	f.venue.book = bidHeavyBook(snap.Prices[len(snap.Prices)-1], 65, 35)
	// Two BTC-correlated positions already open elsewhere.
	f.venue.positions = []hyperliquid.Position{
		{Coin: "ETH", Size: decimal.NewFromInt(1)},
		{Coin: "SOL", Size: decimal.NewFromInt(10)},
	}

	if err := f.engine.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(f.venue.placed) != 0 {
		t.Fatal("correlation cap must block the trade")
	}
}

func TestRecoverOpenTrades(t *testing.T) {
	f := newEngineFixture(t, ModeModerate)
	f.store.records["t1"] = TradeRecord{
		ID:         "t1",
		UserWallet: "0xabc",
		Symbol:     "BTC-PERP",
		Side:       hyperliquid.SideBuy,
		EntryPrice: decimal.NewFromInt(50000),
		Quantity:   decimal.RequireFromString("0.001"),
		StopLoss:   decimal.NewFromInt(49000),
		Status:     TradeOpen,
	}
	f.store.records["t2"] = TradeRecord{
		ID: "t2", UserWallet: "0xabc", Symbol: "ETH-PERP", Status: TradeClosed,
	}
	f.store.records["t3"] = TradeRecord{
		ID: "t3", UserWallet: "0xother", Symbol: "SOL-PERP", Status: TradeOpen,
	}

	if err := f.engine.RecoverOpenTrades(); err != nil {
		t.Fatal(err)
	}

	status := f.engine.Status()
	if len(status.OpenTrades) != 1 || status.OpenTrades[0].ID != "t1" {
		t.Fatalf("recovered = %+v, want only t1", status.OpenTrades)
	}
	if f.engine.trailing["BTC-PERP"] == nil {
		t.Error("trailing state should be rebuilt for recovered trades")
	}
}

func TestApplySettingsTakesEffectNextTick(t *testing.T) {
	f := newEngineFixture(t, ModeAggressive)
	snap := uptrendSnapshot()
	f.markets.snaps["BTC-PERP"] = snap
	f.venue.book = bidHeavyBook(snap.Prices[len(snap.Prices)-1], 65, 35)

	updated := f.engine.Settings()
	updated.MaxTradesPerDay = 1
	f.engine.ApplySettings(updated)
	f.engine.stats.RecordOpen()

	if err := f.engine.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(f.venue.placed) != 0 {
		t.Fatal("lowered daily cap must block the next tick")
	}
}

func TestSettingsReturnsCopy(t *testing.T) {
	f := newEngineFixture(t, ModeModerate)

	got := f.engine.Settings()
	got.MaxTradesPerDay = 999
	if f.engine.Settings().MaxTradesPerDay == 999 {
		t.Fatal("mutating the returned settings must not affect the engine")
	}
}

func TestCheckProfitability(t *testing.T) {
	// 4% TP on any sane quantity clears 1.5x fees at the 0.00035 taker rate.
	if reason, ok := checkProfitability(100, 104, 1); !ok {
		t.Errorf("4%% TP should pass: %s", reason)
	}
	// A TP right at entry cannot cover fees.
	if _, ok := checkProfitability(100, 100.01, 1); ok {
		t.Error("near-zero TP distance must fail")
	}
}
