package autopilot

import (
	"math"

	"hyperliquid-trading-bot/internal/analysis"
	"hyperliquid-trading-bot/internal/hyperliquid"
)

// Signal weights. Fixed across modes; modes vary only in how many aligned
// signals and how much strength they demand.
const (
	weightMACDCross  = 1.6
	weightEMAStack   = 1.5
	weightZScore     = 1.5
	weightOrderFlow  = 1.4
	weightStochRSI   = 1.4
	weightSupportRes = 1.3
	weightRSI        = 1.2
	weightBBSqueeze  = 1.2
	weightHighsLows  = 1.1
	weightMomentum   = 1.0
	weightImbalance  = 0.8
	weightZScoreWeak = 1.0
	weightFlowWeak   = 1.0
)

// Direction of a signal or a confluence decision.
type Direction string

const (
	DirectionLong    Direction = "long"
	DirectionShort   Direction = "short"
	DirectionNeutral Direction = "neutral"
)

// Opposite flips a non-neutral direction.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionLong:
		return DirectionShort
	case DirectionShort:
		return DirectionLong
	default:
		return DirectionNeutral
	}
}

// Signal is one weighted directional vote.
type Signal struct {
	Name      string    `json:"name"`
	Direction Direction `json:"direction"`
	Weight    float64   `json:"weight"`
	Strength  float64   `json:"strength"` // 0..100
}

// Snapshot is the per-symbol market state the decision engine evaluates.
type Snapshot struct {
	Symbol    string
	Prices    []float64
	Candles   []hyperliquid.Candle
	Book      *hyperliquid.OrderBook
	Trades    []hyperliquid.Trade
	Funding   *hyperliquid.Funding
	Volume24h float64
	Change24h float64
}

// ConfluenceResult aggregates the emitted signals into a decision.
type ConfluenceResult struct {
	Direction     Direction `json:"direction"`
	AlignedCount  int       `json:"aligned_count"`
	TotalStrength float64   `json:"total_strength"`
	Signals       []Signal  `json:"signals"`
}

// Qualifies reports whether the result clears the mode's floors.
func (r *ConfluenceResult) Qualifies(settings *Settings) bool {
	minConf := settings.MinConfirmations
	if minConf < settings.Mode.MinConfirmations() {
		minConf = settings.Mode.MinConfirmations()
	}
	return r.Direction != DirectionNeutral &&
		r.AlignedCount >= minConf &&
		r.TotalStrength >= settings.Mode.MinStrength()
}

// EvaluateConfluence runs the full indicator set over the snapshot and emits
// weighted directional signals. Only signals whose preconditions hold are
// emitted; a direction needs at least 2 more votes than the other side and
// at least 2 votes total.
func EvaluateConfluence(snap *Snapshot) *ConfluenceResult {
	var signals []Signal
	add := func(name string, dir Direction, weight, strength float64) {
		signals = append(signals, Signal{Name: name, Direction: dir, Weight: weight, Strength: strength})
	}

	prices := snap.Prices

	// MACD crossover.
	macd := analysis.CalculateMACD(prices, 12, 26, 9)
	switch macd.Crossover {
	case "bullish_cross":
		add("macd_cross", DirectionLong, weightMACDCross, 80)
	case "bearish_cross":
		add("macd_cross", DirectionShort, weightMACDCross, 80)
	}

	// EMA stack 9/21/50.
	if len(prices) >= 50 {
		ema9 := analysis.CalculateEMA(prices, 9)
		ema21 := analysis.CalculateEMA(prices, 21)
		ema50 := analysis.CalculateEMA(prices, 50)
		switch {
		case ema9 > ema21 && ema21 > ema50:
			add("ema_stack", DirectionLong, weightEMAStack, 70)
		case ema9 < ema21 && ema21 < ema50:
			add("ema_stack", DirectionShort, weightEMAStack, 70)
		}
	}

	// Z-score mean reversion.
	zscore := analysis.CalculateZScore(prices, 20)
	switch zscore.Signal {
	case "strong_buy":
		add("zscore", DirectionLong, weightZScore, 85)
	case "strong_sell":
		add("zscore", DirectionShort, weightZScore, 85)
	case "buy":
		add("zscore", DirectionLong, weightZScoreWeak, 65)
	case "sell":
		add("zscore", DirectionShort, weightZScoreWeak, 65)
	}

	// Order-flow delta.
	flow := analysis.CalculateOrderFlow(snap.Book)
	switch flow.Signal {
	case "strong_buy":
		add("order_flow", DirectionLong, weightOrderFlow, 75)
	case "strong_sell":
		add("order_flow", DirectionShort, weightOrderFlow, 75)
	case "buy":
		add("order_flow", DirectionLong, weightFlowWeak, 60)
	case "sell":
		add("order_flow", DirectionShort, weightFlowWeak, 60)
	}

	// RSI extremes.
	rsi := analysis.CalculateRSI(prices, 14)
	switch {
	case rsi < 30:
		add("rsi", DirectionLong, weightRSI, 70)
	case rsi > 70:
		add("rsi", DirectionShort, weightRSI, 70)
	}

	// Stochastic RSI extremes.
	stochRSI := analysis.CalculateStochRSI(prices, 14, 14)
	switch {
	case stochRSI < 20:
		add("stoch_rsi", DirectionLong, weightStochRSI, 65)
	case stochRSI > 80:
		add("stoch_rsi", DirectionShort, weightStochRSI, 65)
	}

	// Bollinger squeeze breakout in the trend direction.
	bb := analysis.CalculateBollinger(prices, 20, 2)
	if bb.Squeeze && len(prices) > 0 {
		price := prices[len(prices)-1]
		switch {
		case price > bb.Upper:
			add("bb_squeeze", DirectionLong, weightBBSqueeze, 65)
		case price < bb.Lower:
			add("bb_squeeze", DirectionShort, weightBBSqueeze, 65)
		}
	}

	// Proximity to support or resistance.
	if len(prices) > 0 {
		support, resistance := analysis.CalculateSupportResistance(prices, 20)
		price := prices[len(prices)-1]
		switch {
		case support > 0 && price >= support && (price-support)/support*100 < 1.0:
			add("support_resistance", DirectionLong, weightSupportRes, 65)
		case resistance > 0 && price <= resistance && (resistance-price)/resistance*100 < 1.0:
			add("support_resistance", DirectionShort, weightSupportRes, 65)
		}
	}

	// 5-sample momentum.
	momentum := analysis.CalculateMomentum(prices, 5)
	switch {
	case momentum > 1.0:
		add("momentum", DirectionLong, weightMomentum, 60)
	case momentum < -1.0:
		add("momentum", DirectionShort, weightMomentum, 60)
	}

	// Order-book imbalance.
	if snap.Book != nil {
		switch {
		case snap.Book.Imbalance > 0.6:
			add("imbalance", DirectionLong, weightImbalance, 55)
		case snap.Book.Imbalance < 0.4:
			add("imbalance", DirectionShort, weightImbalance, 55)
		}
	}

	// Higher-highs / lower-lows over the last swings.
	if dir := highsLows(snap.Candles); dir != DirectionNeutral {
		add("highs_lows", dir, weightHighsLows, 60)
	}

	return aggregate(signals)
}

// highsLows detects a higher-high/higher-low or lower-high/lower-low pattern
// over the last three candles.
func highsLows(candles []hyperliquid.Candle) Direction {
	if len(candles) < 3 {
		return DirectionNeutral
	}
	a, b, c := candles[len(candles)-3], candles[len(candles)-2], candles[len(candles)-1]
	if c.High > b.High && b.High > a.High && c.Low > b.Low && b.Low > a.Low {
		return DirectionLong
	}
	if c.High < b.High && b.High < a.High && c.Low < b.Low && b.Low < a.Low {
		return DirectionShort
	}
	return DirectionNeutral
}

// aggregate applies the direction rule and computes the winning side's
// weighted-average strength.
func aggregate(signals []Signal) *ConfluenceResult {
	result := &ConfluenceResult{Direction: DirectionNeutral, Signals: signals}

	var longCount, shortCount int
	for _, s := range signals {
		switch s.Direction {
		case DirectionLong:
			longCount++
		case DirectionShort:
			shortCount++
		}
	}

	switch {
	case longCount >= 2 && longCount >= shortCount+2:
		result.Direction = DirectionLong
		result.AlignedCount = longCount
	case shortCount >= 2 && shortCount >= longCount+2:
		result.Direction = DirectionShort
		result.AlignedCount = shortCount
	default:
		return result
	}

	var weightSum, weighted float64
	for _, s := range signals {
		if s.Direction != result.Direction {
			continue
		}
		weighted += s.Strength * s.Weight
		weightSum += s.Weight
	}
	if weightSum > 0 {
		result.TotalStrength = math.Round(weighted / weightSum)
	}
	return result
}
