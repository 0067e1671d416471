package autopilot

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"hyperliquid-trading-bot/internal/clock"
	"hyperliquid-trading-bot/internal/hyperliquid"
)

func TestModeProfiles(t *testing.T) {
	tests := []struct {
		mode     Mode
		interval time.Duration
		minConf  int
		minStr   float64
	}{
		{ModeAggressive, 8 * time.Second, 3, 50},
		{ModeModerate, 30 * time.Second, 4, 60},
		{ModeConservative, 120 * time.Second, 5, 70},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			if got := tt.mode.LoopInterval(); got != tt.interval {
				t.Errorf("interval = %s, want %s", got, tt.interval)
			}
			if got := tt.mode.MinConfirmations(); got != tt.minConf {
				t.Errorf("min confirmations = %d, want %d", got, tt.minConf)
			}
			if got := tt.mode.MinStrength(); got != tt.minStr {
				t.Errorf("min strength = %v, want %v", got, tt.minStr)
			}
		})
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"defaults pass", func(*Settings) {}, false},
		{"unknown mode", func(s *Settings) { s.Mode = "yolo" }, true},
		{"empty bag", func(s *Settings) { s.TradingBag = nil }, true},
		{"oversized bag", func(s *Settings) {
			s.TradingBag = []string{"A", "B", "C", "D", "E", "F"}
		}, true},
		{"position size over cap", func(s *Settings) { s.PositionSizePct = 15 }, true},
		{"zero stop loss", func(s *Settings) { s.StopLossPct = 0 }, true},
		{"too many positions", func(s *Settings) { s.MaxSimultaneousPos = 9 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings(ModeModerate)
			tt.mutate(&s)
			if err := s.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSettingsValidateFillsGaps(t *testing.T) {
	s := DefaultSettings(ModeConservative)
	s.MinConfirmations = 1 // below the mode floor
	s.MaxTradesPerDay = 0
	s.SlippagePct = 0

	if err := s.Validate(); err != nil {
		t.Fatal(err)
	}
	if s.MinConfirmations != 5 {
		t.Errorf("min confirmations = %d, want raised to mode floor 5", s.MinConfirmations)
	}
	if s.MaxTradesPerDay != 5 {
		t.Errorf("max trades = %d, want mode default 5", s.MaxTradesPerDay)
	}
	if s.SlippagePct <= 0 {
		t.Error("slippage must be backfilled")
	}
}

func TestTradeRecordClose(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	long := TradeRecord{
		Side:       hyperliquid.SideBuy,
		EntryPrice: decimal.NewFromInt(100),
		Quantity:   decimal.NewFromInt(2),
		EntryFee:   decimal.RequireFromString("0.07"),
		ExitFee:    decimal.RequireFromString("0.0735"),
		Status:     TradeOpen,
	}
	long.Close(decimal.NewFromInt(105), now)
	if !long.GrossPnl.Equal(decimal.NewFromInt(10)) {
		t.Errorf("gross = %s, want 10", long.GrossPnl)
	}
	if !long.NetPnl.Equal(decimal.RequireFromString("9.8565")) {
		t.Errorf("net = %s, want 9.8565", long.NetPnl)
	}
	if long.Status != TradeClosed || long.ExitTime != now.UnixMilli() {
		t.Errorf("close bookkeeping wrong: %+v", long)
	}

	short := TradeRecord{
		Side:       hyperliquid.SideSell,
		EntryPrice: decimal.NewFromInt(100),
		Quantity:   decimal.NewFromInt(2),
		Status:     TradeOpen,
	}
	short.Close(decimal.NewFromInt(95), now)
	if !short.GrossPnl.Equal(decimal.NewFromInt(10)) {
		t.Errorf("short gross = %s, want 10", short.GrossPnl)
	}
}

func TestStatsTrackerRollover(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 24, 23, 30, 0, 0, time.UTC))
	tracker := newStatsTracker(clk)

	tracker.RecordOpen()
	tracker.RecordClose(decimal.NewFromInt(5))
	tracker.RecordClose(decimal.NewFromInt(-3))
	stats := tracker.Snapshot()
	if stats.TradesToday != 1 || stats.WinsToday != 1 || stats.LossesToday != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if !stats.DailyPnl.Equal(decimal.NewFromInt(2)) {
		t.Errorf("dailyPnl = %s, want 2", stats.DailyPnl)
	}

	pauseUntil := clk.Now().Add(2 * time.Hour)
	tracker.Pause(pauseUntil)

	clk.Advance(time.Hour) // crosses the UTC day boundary
	stats = tracker.Snapshot()
	if stats.TradesToday != 0 || stats.WinsToday != 0 {
		t.Errorf("counters must reset at UTC midnight: %+v", stats)
	}
	if !stats.PauseUntil.Equal(pauseUntil) {
		t.Error("pause window must survive the day boundary")
	}
	if !tracker.Paused() {
		t.Error("pause should still be active after rollover")
	}
}

func TestStatsConsecutiveLosses(t *testing.T) {
	clk := clock.NewFake(time.Now())
	tracker := newStatsTracker(clk)

	if n := tracker.RecordClose(decimal.NewFromInt(-1)); n != 1 {
		t.Errorf("losses = %d, want 1", n)
	}
	if n := tracker.RecordClose(decimal.NewFromInt(-1)); n != 2 {
		t.Errorf("losses = %d, want 2", n)
	}
	if n := tracker.RecordClose(decimal.NewFromInt(4)); n != 0 {
		t.Errorf("win must reset the streak, got %d", n)
	}
	if rate := tracker.WinRate(); !almostEqual(rate, 1.0/3.0) {
		t.Errorf("win rate = %v, want 1/3", rate)
	}
}

func TestEvaluateSession(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want SessionRecommendation
	}{
		{"london new york overlap", time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC), SessionTrade},
		{"asia europe overlap", time.Date(2026, 8, 24, 7, 30, 0, 0, time.UTC), SessionTrade},
		{"lone asia session", time.Date(2026, 8, 24, 3, 0, 0, 0, time.UTC), SessionCaution},
		{"dead zone", time.Date(2026, 8, 24, 23, 0, 0, 0, time.UTC), SessionAvoid},
		{"weekend", time.Date(2026, 8, 22, 14, 0, 0, 0, time.UTC), SessionCaution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EvaluateSession(tt.at); got.Recommendation != tt.want {
				t.Errorf("recommendation = %s, want %s", got.Recommendation, tt.want)
			}
		})
	}
}

func TestCheckCorrelation(t *testing.T) {
	pos := func(coin string) hyperliquid.Position {
		return hyperliquid.Position{Coin: coin, Size: decimal.NewFromInt(1)}
	}

	tests := []struct {
		name      string
		candidate string
		open      []hyperliquid.Position
		allowed   bool
	}{
		{"ungrouped coin always allowed", "XYZ-PERP", []hyperliquid.Position{pos("ETH"), pos("SOL")}, true},
		{"first in group", "DOGE-PERP", nil, true},
		{"second in group", "SHIB-PERP", []hyperliquid.Position{pos("DOGE")}, true},
		{"third in group blocked", "PEPE-PERP", []hyperliquid.Position{pos("DOGE"), pos("SHIB")}, false},
		{"btc open tightens cap", "ETH-PERP", []hyperliquid.Position{pos("BTC")}, false},
		{"btc open other group fine", "DOGE-PERP", []hyperliquid.Position{pos("BTC")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := CheckCorrelation(tt.candidate, tt.open)
			if check.Allowed != tt.allowed {
				t.Errorf("allowed = %v (%s), want %v", check.Allowed, check.Reason, tt.allowed)
			}
		})
	}
}
