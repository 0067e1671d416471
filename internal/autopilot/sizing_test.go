package autopilot

import (
	"testing"

	"github.com/shopspring/decimal"
)

func sizingSettings() *Settings {
	s := DefaultSettings(ModeModerate)
	return &s
}

func TestComputeSizeMultiplierLadder(t *testing.T) {
	account := decimal.NewFromInt(1000)

	tests := []struct {
		name     string
		stats    DailyStats
		winRate  float64
		strength float64
		want     float64
	}{
		{"baseline", DailyStats{}, 0, 70, 1.0},
		{"one loss", DailyStats{ConsecutiveLosses: 1}, 0, 70, 0.75},
		{"two losses", DailyStats{ConsecutiveLosses: 2}, 0, 70, 0.5},
		{"three losses", DailyStats{ConsecutiveLosses: 3}, 0, 70, 0.25},
		{"five losses same as three", DailyStats{ConsecutiveLosses: 5}, 0, 70, 0.25},
		{"hot streak", DailyStats{ConsecutiveWins: 3}, 0.75, 70, 1.25},
		{"streak without win rate", DailyStats{ConsecutiveWins: 3}, 0.5, 70, 1.0},
		{"deep red day", DailyStats{DailyPnl: decimal.NewFromInt(-60)}, 0, 70, 0.5},
		{"green day", DailyStats{DailyPnl: decimal.NewFromInt(150)}, 0, 70, 1.1},
		{"strong signal", DailyStats{}, 0, 85, 1.2},
		{"weak signal", DailyStats{}, 0, 55, 0.8},
		{"stacked cuts clamp at floor", DailyStats{ConsecutiveLosses: 3, DailyPnl: decimal.NewFromInt(-60)}, 0, 55, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ComputeSizeMultiplier(tt.stats, tt.winRate, tt.strength, nil, sizingSettings(), account)
			// No history: half-Kelly is neutral and contributes x1.
			if !almostEqual(result.Multiplier, tt.want) {
				t.Errorf("multiplier = %v, want %v", result.Multiplier, tt.want)
			}
		})
	}
}

func TestComputeSizeMultiplierClamp(t *testing.T) {
	account := decimal.NewFromInt(1000)
	result := ComputeSizeMultiplier(
		DailyStats{ConsecutiveWins: 3, DailyPnl: decimal.NewFromInt(150)}, 0.9, 90, nil, sizingSettings(), account)
	if result.Multiplier < sizeMultiplierMin || result.Multiplier > sizeMultiplierMax {
		t.Errorf("multiplier %v escaped [%v, %v]", result.Multiplier, sizeMultiplierMin, sizeMultiplierMax)
	}
}

func TestHalfKelly(t *testing.T) {
	closed := func(net float64) TradeRecord {
		return TradeRecord{Status: TradeClosed, NetPnl: decimal.NewFromFloat(net)}
	}

	// 6 wins of +20, 4 losses of -10: W=0.6, R=2, kelly=0.6-0.4/2=0.4, half=0.2.
	var history []TradeRecord
	for i := 0; i < 6; i++ {
		history = append(history, closed(20))
	}
	for i := 0; i < 4; i++ {
		history = append(history, closed(-10))
	}
	if got := halfKelly(history); !almostEqual(got, 0.2) {
		t.Errorf("halfKelly = %v, want 0.2", got)
	}

	// Too few samples: neutral.
	if got := halfKelly(history[:5]); got != 0.5 {
		t.Errorf("halfKelly on thin history = %v, want 0.5", got)
	}

	// Negative edge clamps at zero.
	var losing []TradeRecord
	for i := 0; i < 2; i++ {
		losing = append(losing, closed(5))
	}
	for i := 0; i < 10; i++ {
		losing = append(losing, closed(-20))
	}
	if got := halfKelly(losing); got != 0 {
		t.Errorf("halfKelly on losing history = %v, want 0", got)
	}
}

func TestDrawdownFactor(t *testing.T) {
	account := decimal.NewFromInt(1000)
	settings := sizingSettings() // MaxDrawdownPct = 10

	half := ComputeSizeMultiplier(
		DailyStats{MaxDailyDrawdown: decimal.NewFromInt(-60)}, 0, 70, nil, settings, account)
	if !half.ShouldReduceSize || half.ShouldPause {
		t.Errorf("6%% drawdown: got %+v, want reduce without pause", half)
	}

	full := ComputeSizeMultiplier(
		DailyStats{MaxDailyDrawdown: decimal.NewFromInt(-120)}, 0, 70, nil, settings, account)
	if !full.ShouldPause {
		t.Errorf("12%% drawdown: got %+v, want pause", full)
	}
}
