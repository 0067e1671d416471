package autopilot

import (
	"hyperliquid-trading-bot/internal/analysis"
)

// Smart SL/TP tuning.
const (
	smartMinSamples    = 30
	atrBlendWeightBase = 0.6
	atrBlendWeightATR  = 0.4
	slClampFloorMult   = 0.5
	slClampCeilMult    = 2.0
	srSnapBufferPct    = 0.15
)

// SLTPPlan is the computed stop-loss / take-profit placement for an entry.
type SLTPPlan struct {
	StopLoss    float64 `json:"stop_loss"`
	TakeProfit  float64 `json:"take_profit"`
	SLPct       float64 `json:"sl_pct"`
	TPPct       float64 `json:"tp_pct"`
	RewardRisk  float64 `json:"reward_risk"`
	UsedSmart   bool    `json:"used_smart"`
	SnappedToSR bool    `json:"snapped_to_sr"`
}

// BuildSLTP computes the SL/TP pair for an entry at price in the given
// direction. With useSmartSLTP and enough history it blends the configured
// percentages with ATR-derived ones and adapts them to the regime; otherwise
// it applies the settings verbatim.
func BuildSLTP(snap *Snapshot, dir Direction, entry float64, settings *Settings, regime *RegimeResult) *SLTPPlan {
	slPct := settings.StopLossPct
	tpPct := settings.TakeProfitPct
	plan := &SLTPPlan{}

	if settings.UseSmartSLTP && len(snap.Candles) >= smartMinSamples && entry > 0 {
		plan.UsedSmart = true
		slPct, tpPct = smartPercents(snap, dir, entry, settings, regime)
	}

	plan.SLPct = slPct
	plan.TPPct = tpPct
	if dir == DirectionLong {
		plan.StopLoss = entry * (1 - slPct/100)
		plan.TakeProfit = entry * (1 + tpPct/100)
	} else {
		plan.StopLoss = entry * (1 + slPct/100)
		plan.TakeProfit = entry * (1 - tpPct/100)
	}

	if plan.UsedSmart {
		snapStopToLevels(plan, snap, dir, entry)
	}

	risk := abs(entry - plan.StopLoss)
	if risk > 0 {
		plan.RewardRisk = abs(plan.TakeProfit-entry) / risk
	}
	return plan
}

// smartPercents blends the configured SL/TP percentages 60/40 with ATR-based
// ones, then scales by regime, trend strength, volatility, and mode.
func smartPercents(snap *Snapshot, dir Direction, entry float64, settings *Settings, regime *RegimeResult) (slPct, tpPct float64) {
	atr := analysis.CalculateATR(snap.Candles, 14)
	atrPct := atr / entry * 100
	slPct = settings.StopLossPct*atrBlendWeightBase + atrPct*1.5*atrBlendWeightATR
	tpPct = settings.TakeProfitPct*atrBlendWeightBase + atrPct*3.0*atrBlendWeightATR

	if regime != nil {
		tpPct *= regime.TPMultiplier
		slPct *= regime.SLMultiplier

		// With the trend, targets stretch and stops tighten; against it,
		// the reverse.
		if regime.Trending() {
			if dir == regime.TrendDirection() {
				tpPct *= 1.5
				slPct *= 0.8
			} else {
				tpPct *= 0.8
				slPct *= 1.5
			}
		}
	}

	trend := analysis.CalculateTrendStrength(snap.Prices, 20)
	switch {
	case trend.Strength > 60:
		tpPct *= 1.2
	case trend.Strength < 25:
		tpPct *= 0.85
	}

	vol := analysis.CalculateVolatility(snap.Prices, 20)
	switch {
	case vol > 2.0:
		slPct *= 1.2
	case vol < 0.5:
		slPct *= 0.85
	}

	switch settings.Mode {
	case ModeAggressive:
		slPct *= 0.9
	case ModeConservative:
		slPct *= 1.15
		tpPct *= 1.1
	}

	slPct = clamp(slPct, settings.StopLossPct*slClampFloorMult, settings.StopLossPct*slClampCeilMult)
	return slPct, tpPct
}

// snapStopToLevels moves the stop just beyond support (longs) or resistance
// (shorts) when that level sits between the entry and the computed stop.
func snapStopToLevels(plan *SLTPPlan, snap *Snapshot, dir Direction, entry float64) {
	support, resistance := analysis.CalculateSupportResistance(snap.Prices, 20)
	buffer := srSnapBufferPct / 100

	if dir == DirectionLong && support > 0 {
		snapped := support * (1 - buffer)
		if snapped > plan.StopLoss && snapped < entry {
			plan.StopLoss = snapped
			plan.SnappedToSR = true
		}
	}
	if dir == DirectionShort && resistance > 0 {
		snapped := resistance * (1 + buffer)
		if snapped < plan.StopLoss && snapped > entry {
			plan.StopLoss = snapped
			plan.SnappedToSR = true
		}
	}
	if plan.SnappedToSR && entry > 0 {
		plan.SLPct = abs(entry-plan.StopLoss) / entry * 100
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
