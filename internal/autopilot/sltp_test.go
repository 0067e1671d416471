package autopilot

import (
	"testing"

	"hyperliquid-trading-bot/internal/hyperliquid"
)

func trendingCandles(start float64, n int, stepPct float64) []hyperliquid.Candle {
	out := make([]hyperliquid.Candle, n)
	p := start
	for i := range out {
		next := p * (1 + stepPct/100)
		out[i] = hyperliquid.Candle{Open: p, High: next * 1.001, Low: p * 0.999, Close: next}
		p = next
	}
	return out
}

func TestBuildSLTPFixedPercentages(t *testing.T) {
	settings := DefaultSettings(ModeModerate) // SL 2%, TP 4%
	settings.UseSmartSLTP = false
	snap := &Snapshot{Symbol: "BTC-PERP", Prices: flatPrices(100, 50)}

	long := BuildSLTP(snap, DirectionLong, 100, &settings, nil)
	if long.UsedSmart {
		t.Error("smart path must be off")
	}
	if !almostEqual(long.StopLoss, 98) || !almostEqual(long.TakeProfit, 104) {
		t.Errorf("long plan = sl %v tp %v, want 98/104", long.StopLoss, long.TakeProfit)
	}
	if !almostEqual(long.RewardRisk, 2) {
		t.Errorf("R:R = %v, want 2", long.RewardRisk)
	}

	short := BuildSLTP(snap, DirectionShort, 100, &settings, nil)
	if !almostEqual(short.StopLoss, 102) || !almostEqual(short.TakeProfit, 96) {
		t.Errorf("short plan = sl %v tp %v, want 102/96", short.StopLoss, short.TakeProfit)
	}
}

func TestBuildSLTPSmartRequiresSamples(t *testing.T) {
	settings := DefaultSettings(ModeModerate)
	snap := &Snapshot{
		Symbol:  "BTC-PERP",
		Prices:  flatPrices(100, 10),
		Candles: trendingCandles(100, 10, 0.1),
	}
	plan := BuildSLTP(snap, DirectionLong, 100, &settings, nil)
	if plan.UsedSmart {
		t.Error("fewer than 30 samples must fall back to fixed percentages")
	}
}

func TestBuildSLTPSmartClampsStop(t *testing.T) {
	settings := DefaultSettings(ModeModerate) // base SL 2%
	entry := 100.0
	// Violent candles push the ATR percentage far above the base.
	candles := make([]hyperliquid.Candle, 40)
	for i := range candles {
		candles[i] = hyperliquid.Candle{Open: 100, High: 112, Low: 88, Close: 100}
	}
	snap := &Snapshot{Symbol: "BTC-PERP", Prices: flatPrices(entry, 40), Candles: candles}

	plan := BuildSLTP(snap, DirectionLong, entry, &settings, DetectRegime(snap))
	if !plan.UsedSmart {
		t.Fatal("smart path should engage with 40 samples")
	}
	if plan.SLPct > settings.StopLossPct*slClampCeilMult+1e-9 {
		t.Errorf("SL pct %v exceeds 2x base %v", plan.SLPct, settings.StopLossPct*slClampCeilMult)
	}
	if plan.SLPct < settings.StopLossPct*slClampFloorMult-1e-9 {
		t.Errorf("SL pct %v below 0.5x base %v", plan.SLPct, settings.StopLossPct*slClampFloorMult)
	}
}

func TestBuildSLTPTrendStretchesTargets(t *testing.T) {
	settings := DefaultSettings(ModeModerate)
	candles := trendingCandles(100, 60, 0.4)
	prices := make([]float64, len(candles))
	for i, c := range candles {
		prices[i] = c.Close
	}
	entry := prices[len(prices)-1]
	snap := &Snapshot{Symbol: "BTC-PERP", Prices: prices, Candles: candles}

	regime := DetectRegime(snap)
	if regime.Regime != RegimeTrendingUp {
		t.Skipf("regime = %s, classification changed", regime.Regime)
	}

	with := BuildSLTP(snap, DirectionLong, entry, &settings, regime)
	against := BuildSLTP(snap, DirectionShort, entry, &settings, regime)
	if with.TPPct <= against.TPPct {
		t.Errorf("with-trend TP %v should exceed against-trend TP %v", with.TPPct, against.TPPct)
	}
}

func TestDetectRegime(t *testing.T) {
	up := &Snapshot{Candles: trendingCandles(100, 60, 0.4)}
	for _, c := range up.Candles {
		up.Prices = append(up.Prices, c.Close)
	}
	if r := DetectRegime(up); r.Regime != RegimeTrendingUp {
		t.Errorf("steady climb regime = %s, want trending_up", r.Regime)
	} else if r.TPMultiplier != 1.5 || r.SLMultiplier != 0.8 {
		t.Errorf("trending multipliers = %v/%v, want 1.5/0.8", r.TPMultiplier, r.SLMultiplier)
	}

	flat := &Snapshot{Prices: flatPrices(100, 60)}
	for i := 0; i < 60; i++ {
		flat.Candles = append(flat.Candles, hyperliquid.Candle{Open: 100, High: 100.2, Low: 99.8, Close: 100})
	}
	if r := DetectRegime(flat); r.Regime != RegimeRanging {
		t.Errorf("flat market regime = %s, want ranging", r.Regime)
	}

	thin := &Snapshot{Prices: flatPrices(100, 10)}
	if r := DetectRegime(thin); r.Regime != RegimeUnknown {
		t.Errorf("thin history regime = %s, want unknown", r.Regime)
	}
}

func TestRegimeAllowsEntry(t *testing.T) {
	volatile := &RegimeResult{Regime: RegimeVolatile, Avoid: true}
	up := &RegimeResult{Regime: RegimeTrendingUp}

	moderate := DefaultSettings(ModeModerate)
	aggressive := DefaultSettings(ModeAggressive)

	if volatile.AllowsEntry(DirectionLong, &moderate) {
		t.Error("volatile regime must block moderate mode")
	}
	if !volatile.AllowsEntry(DirectionLong, &aggressive) {
		t.Error("aggressive mode may trade a volatile regime")
	}
	if up.AllowsEntry(DirectionShort, &moderate) {
		t.Error("counter-trend short needs allowCounterTrend")
	}
	if !up.AllowsEntry(DirectionLong, &moderate) {
		t.Error("with-trend entry must be allowed")
	}
}
