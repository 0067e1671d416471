package autopilot

import (
	"github.com/shopspring/decimal"
)

// Multiplier clamp bounds.
const (
	sizeMultiplierMin = 0.25
	sizeMultiplierMax = 2.0
	kellyMultiplierLo = 0.5
	kellyMultiplierHi = 1.5
	kellyMinSamples   = 10
)

// SizingResult explains how the position-size multiplier was built.
type SizingResult struct {
	Multiplier       float64 `json:"multiplier"`
	KellyFraction    float64 `json:"kelly_fraction"`
	ShouldReduceSize bool    `json:"should_reduce_size"`
	ShouldPause      bool    `json:"should_pause"`
	Reason           string  `json:"reason,omitempty"`
}

// ComputeSizeMultiplier builds the dynamic multiplier from the day's record
// and the confluence strength. Starts at 1.0, applies the streak/PnL/strength
// ladder, clamps to [0.25, 2.0], then folds in half-Kelly and the drawdown
// factor.
func ComputeSizeMultiplier(stats DailyStats, winRate float64, strength float64, history []TradeRecord, settings *Settings, accountValue decimal.Decimal) *SizingResult {
	result := &SizingResult{Multiplier: 1.0}

	switch {
	case stats.ConsecutiveLosses >= 3:
		result.Multiplier *= 0.25
	case stats.ConsecutiveLosses == 2:
		result.Multiplier *= 0.5
	case stats.ConsecutiveLosses == 1:
		result.Multiplier *= 0.75
	}

	if stats.ConsecutiveWins >= 3 && winRate >= 0.7 {
		result.Multiplier *= 1.25
	}

	dailyPnl, _ := stats.DailyPnl.Float64()
	switch {
	case dailyPnl < -50:
		result.Multiplier *= 0.5
	case dailyPnl > 100:
		result.Multiplier *= 1.1
	}

	switch {
	case strength >= 80:
		result.Multiplier *= 1.2
	case strength < 60:
		result.Multiplier *= 0.8
	}

	result.Multiplier = clamp(result.Multiplier, sizeMultiplierMin, sizeMultiplierMax)

	result.KellyFraction = halfKelly(history)
	result.Multiplier *= clamp(result.KellyFraction*2, kellyMultiplierLo, kellyMultiplierHi)

	applyDrawdown(result, stats, settings, accountValue)
	result.Multiplier = clamp(result.Multiplier, sizeMultiplierMin, sizeMultiplierMax)
	return result
}

// halfKelly derives the Kelly fraction from closed-trade history and halves
// it. Returns 0.5 (a neutral ×1 after doubling) with too few samples or a
// degenerate win/loss profile.
func halfKelly(history []TradeRecord) float64 {
	var wins, losses int
	var winSum, lossSum decimal.Decimal
	for _, t := range history {
		if t.Status != TradeClosed {
			continue
		}
		if t.NetPnl.Sign() >= 0 {
			wins++
			winSum = winSum.Add(t.NetPnl)
		} else {
			losses++
			lossSum = lossSum.Add(t.NetPnl.Neg())
		}
	}
	if wins+losses < kellyMinSamples || wins == 0 || losses == 0 {
		return 0.5
	}

	avgWin, _ := winSum.Div(decimal.NewFromInt(int64(wins))).Float64()
	avgLoss, _ := lossSum.Div(decimal.NewFromInt(int64(losses))).Float64()
	if avgLoss <= 0 {
		return 0.5
	}

	w := float64(wins) / float64(wins+losses)
	r := avgWin / avgLoss
	kelly := w - (1-w)/r
	if kelly < 0 {
		kelly = 0
	}
	return kelly / 2
}

// applyDrawdown folds the daily drawdown against the configured ceiling:
// past half the limit sizing shrinks, past the full limit the engine pauses.
func applyDrawdown(result *SizingResult, stats DailyStats, settings *Settings, accountValue decimal.Decimal) {
	if settings.MaxDrawdownPct <= 0 || !accountValue.IsPositive() {
		return
	}
	drawdown, _ := stats.MaxDailyDrawdown.Neg().Div(accountValue).Float64()
	drawdownPct := drawdown * 100
	switch {
	case drawdownPct >= settings.MaxDrawdownPct:
		result.ShouldPause = true
		result.ShouldReduceSize = true
		result.Reason = "daily drawdown limit exceeded"
	case drawdownPct >= settings.MaxDrawdownPct/2:
		result.ShouldReduceSize = true
		result.Multiplier *= 0.5
		result.Reason = "daily drawdown approaching limit"
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
