package autopilot

import (
	"hyperliquid-trading-bot/internal/analysis"
)

// Regime classifies the prevailing market structure for a symbol.
type Regime string

const (
	RegimeTrendingUp   Regime = "trending_up"
	RegimeTrendingDown Regime = "trending_down"
	RegimeRanging      Regime = "ranging"
	RegimeVolatile     Regime = "volatile"
	RegimeUnknown      Regime = "unknown"
)

// Regime thresholds.
const (
	regimeADXTrending   = 25.0
	regimeVolatilityPct = 3.0
	regimeMinCandles    = 30
)

// RegimeResult carries the classification and the target adjustments it
// implies. Multipliers scale the base TP/SL distances.
type RegimeResult struct {
	Regime       Regime  `json:"regime"`
	ADX          float64 `json:"adx"`
	Volatility   float64 `json:"volatility"`
	TPMultiplier float64 `json:"tp_multiplier"`
	SLMultiplier float64 `json:"sl_multiplier"`
	Avoid        bool    `json:"avoid"`
}

// DetectRegime classifies the market from candles and the close series.
// Volatile wins over trending: wide swings make trend targets unreliable.
func DetectRegime(snap *Snapshot) *RegimeResult {
	result := &RegimeResult{Regime: RegimeUnknown, TPMultiplier: 1.0, SLMultiplier: 1.0}
	if len(snap.Candles) < regimeMinCandles {
		return result
	}

	adx := analysis.CalculateADX(snap.Candles, 14)
	vol := analysis.CalculateVolatility(snap.Prices, 20)
	result.ADX = adx.ADX
	result.Volatility = vol

	switch {
	case vol > regimeVolatilityPct:
		result.Regime = RegimeVolatile
		result.TPMultiplier = 0.5
		result.SLMultiplier = 1.5
		result.Avoid = true
	case adx.ADX > regimeADXTrending && adx.PlusDI > adx.MinusDI:
		result.Regime = RegimeTrendingUp
		result.TPMultiplier = 1.5
		result.SLMultiplier = 0.8
	case adx.ADX > regimeADXTrending && adx.MinusDI > adx.PlusDI:
		result.Regime = RegimeTrendingDown
		result.TPMultiplier = 1.5
		result.SLMultiplier = 0.8
	default:
		result.Regime = RegimeRanging
		result.TPMultiplier = 0.7
		result.SLMultiplier = 1.0
	}
	return result
}

// Trending reports whether the regime is directional.
func (r *RegimeResult) Trending() bool {
	return r.Regime == RegimeTrendingUp || r.Regime == RegimeTrendingDown
}

// TrendDirection maps the regime onto a trade direction.
func (r *RegimeResult) TrendDirection() Direction {
	switch r.Regime {
	case RegimeTrendingUp:
		return DirectionLong
	case RegimeTrendingDown:
		return DirectionShort
	default:
		return DirectionNeutral
	}
}

// AllowsEntry reports whether an entry in the given direction is permitted
// under this regime. Avoid regimes block entries unless the settings opt in;
// counter-trend entries need AllowCounterTrend.
func (r *RegimeResult) AllowsEntry(dir Direction, settings *Settings) bool {
	if r.Avoid && settings.Mode != ModeAggressive && !settings.AllowCounterTrend {
		return false
	}
	if r.Trending() && dir == r.TrendDirection().Opposite() && !settings.AllowCounterTrend {
		return false
	}
	return true
}
