package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"hyperliquid-trading-bot/internal/hyperliquid"
)

// Pure indicator functions over price and candle series. All return neutral
// defaults when the input is shorter than the period.

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// CalculateSMA returns the simple moving average of the last period values.
func CalculateSMA(prices []float64, period int) float64 {
	if len(prices) < period || period <= 0 {
		return 0
	}
	return stat.Mean(prices[len(prices)-period:], nil)
}

// CalculateEMA returns the last EMA value, seeded with the SMA of the first
// period samples.
func CalculateEMA(prices []float64, period int) float64 {
	series := emaSeries(prices, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// emaSeries computes the EMA for every index from period-1 onward.
func emaSeries(prices []float64, period int) []float64 {
	if len(prices) < period || period <= 0 {
		return nil
	}

	multiplier := 2.0 / float64(period+1)
	series := make([]float64, 0, len(prices)-period+1)

	ema := stat.Mean(prices[:period], nil)
	series = append(series, ema)
	for i := period; i < len(prices); i++ {
		ema = prices[i]*multiplier + ema*(1-multiplier)
		series = append(series, ema)
	}
	return series
}

// ============================================================================
// RSI
// ============================================================================

// CalculateRSI returns the Relative Strength Index in [0,100]; neutral 50
// when fewer than period+1 samples are available.
func CalculateRSI(prices []float64, period int) float64 {
	series := rsiSeries(prices, period)
	if len(series) == 0 {
		return 50
	}
	return series[len(series)-1]
}

// rsiSeries computes Wilder-smoothed RSI values for each close after warmup.
func rsiSeries(prices []float64, period int) []float64 {
	if len(prices) < period+1 || period <= 0 {
		return nil
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	series := make([]float64, 0, len(prices)-period)
	series = append(series, rsiValue(avgGain, avgLoss))

	for i := period + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		series = append(series, rsiValue(avgGain, avgLoss))
	}
	return series
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// ============================================================================
// MACD
// ============================================================================

// MACDResult holds the MACD line state and its crossover classification.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
	Trend     string // "bullish", "bearish", "neutral"
	Crossover string // "bullish_cross", "bearish_cross", "none"
}

// CalculateMACD computes MACD(fast,slow,signal) with the signal line as a
// true EMA over the MACD series. Crossover compares the current macd/signal
// relationship with the previous bar's.
func CalculateMACD(prices []float64, fastPeriod, slowPeriod, signalPeriod int) *MACDResult {
	if len(prices) < slowPeriod+signalPeriod {
		return &MACDResult{Trend: "neutral", Crossover: "none"}
	}

	fast := emaSeries(prices, fastPeriod)
	slow := emaSeries(prices, slowPeriod)

	// Align the fast series to the slow warmup.
	offset := len(fast) - len(slow)
	macdLine := make([]float64, len(slow))
	for i := range slow {
		macdLine[i] = fast[i+offset] - slow[i]
	}

	signalLine := emaSeries(macdLine, signalPeriod)
	if len(signalLine) < 2 || len(macdLine) < 2 {
		return &MACDResult{Trend: "neutral", Crossover: "none"}
	}

	curMACD := macdLine[len(macdLine)-1]
	prevMACD := macdLine[len(macdLine)-2]
	curSignal := signalLine[len(signalLine)-1]
	prevSignal := signalLine[len(signalLine)-2]

	result := &MACDResult{
		MACD:      curMACD,
		Signal:    curSignal,
		Histogram: curMACD - curSignal,
		Trend:     "neutral",
		Crossover: "none",
	}

	switch {
	case curMACD > curSignal:
		result.Trend = "bullish"
	case curMACD < curSignal:
		result.Trend = "bearish"
	}

	switch {
	case prevMACD <= prevSignal && curMACD > curSignal:
		result.Crossover = "bullish_cross"
	case prevMACD >= prevSignal && curMACD < curSignal:
		result.Crossover = "bearish_cross"
	}

	return result
}

// ============================================================================
// STOCHASTIC RSI
// ============================================================================

// CalculateStochRSI returns the stochastic of the RSI series in [0,100];
// neutral 50 on insufficient data.
func CalculateStochRSI(prices []float64, rsiPeriod, stochPeriod int) float64 {
	series := rsiSeries(prices, rsiPeriod)
	if len(series) < stochPeriod {
		return 50
	}

	window := series[len(series)-stochPeriod:]
	lowest, highest := window[0], window[0]
	for _, v := range window {
		if v < lowest {
			lowest = v
		}
		if v > highest {
			highest = v
		}
	}
	if highest == lowest {
		return 50
	}
	return (series[len(series)-1] - lowest) / (highest - lowest) * 100
}

// ============================================================================
// WILLIAMS %R
// ============================================================================

// CalculateWilliamsR returns Williams %R in [-100,0]; neutral -50 on
// insufficient data.
func CalculateWilliamsR(candles []hyperliquid.Candle, period int) float64 {
	if len(candles) < period || period <= 0 {
		return -50
	}

	window := candles[len(candles)-period:]
	highest, lowest := window[0].High, window[0].Low
	for _, c := range window {
		if c.High > highest {
			highest = c.High
		}
		if c.Low < lowest {
			lowest = c.Low
		}
	}
	if highest == lowest {
		return -50
	}
	close := candles[len(candles)-1].Close
	return (highest - close) / (highest - lowest) * -100
}

// ============================================================================
// CCI
// ============================================================================

// CalculateCCI returns the Commodity Channel Index; 0 on insufficient data.
func CalculateCCI(candles []hyperliquid.Candle, period int) float64 {
	if len(candles) < period || period <= 0 {
		return 0
	}

	window := candles[len(candles)-period:]
	typical := make([]float64, len(window))
	for i, c := range window {
		typical[i] = (c.High + c.Low + c.Close) / 3
	}

	mean := stat.Mean(typical, nil)
	meanDev := 0.0
	for _, tp := range typical {
		meanDev += math.Abs(tp - mean)
	}
	meanDev /= float64(period)
	if meanDev == 0 {
		return 0
	}
	return (typical[len(typical)-1] - mean) / (0.015 * meanDev)
}

// ============================================================================
// ADX
// ============================================================================

// ADXResult holds the directional index family.
type ADXResult struct {
	ADX     float64
	PlusDI  float64
	MinusDI float64
}

// CalculateADX computes ADX with +DI/-DI using Wilder smoothing. Requires
// 2*period+1 candles; zero result otherwise.
func CalculateADX(candles []hyperliquid.Candle, period int) *ADXResult {
	if len(candles) < 2*period+1 || period <= 0 {
		return &ADXResult{}
	}

	var trs, plusDMs, minusDMs []float64
	for i := 1; i < len(candles); i++ {
		cur, prev := candles[i], candles[i-1]

		tr := math.Max(cur.High-cur.Low,
			math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
		trs = append(trs, tr)

		upMove := cur.High - prev.High
		downMove := prev.Low - cur.Low
		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}
		plusDMs = append(plusDMs, plusDM)
		minusDMs = append(minusDMs, minusDM)
	}

	smoothTR := wilderSmooth(trs, period)
	smoothPlus := wilderSmooth(plusDMs, period)
	smoothMinus := wilderSmooth(minusDMs, period)

	var dxs []float64
	var plusDI, minusDI float64
	for i := range smoothTR {
		if smoothTR[i] == 0 {
			dxs = append(dxs, 0)
			continue
		}
		plusDI = smoothPlus[i] / smoothTR[i] * 100
		minusDI = smoothMinus[i] / smoothTR[i] * 100
		sum := plusDI + minusDI
		if sum == 0 {
			dxs = append(dxs, 0)
			continue
		}
		dxs = append(dxs, math.Abs(plusDI-minusDI)/sum*100)
	}

	if len(dxs) < period {
		return &ADXResult{PlusDI: plusDI, MinusDI: minusDI}
	}

	adx := stat.Mean(dxs[:period], nil)
	for i := period; i < len(dxs); i++ {
		adx = (adx*float64(period-1) + dxs[i]) / float64(period)
	}

	return &ADXResult{ADX: adx, PlusDI: plusDI, MinusDI: minusDI}
}

// wilderSmooth applies Wilder's smoothing over values with the given period.
func wilderSmooth(values []float64, period int) []float64 {
	if len(values) < period {
		return nil
	}

	out := make([]float64, 0, len(values)-period+1)
	sum := 0.0
	for _, v := range values[:period] {
		sum += v
	}
	out = append(out, sum)
	for i := period; i < len(values); i++ {
		sum = sum - sum/float64(period) + values[i]
		out = append(out, sum)
	}
	return out
}

// ============================================================================
// BOLLINGER BANDS
// ============================================================================

// BollingerResult holds the bands and their derived measures.
type BollingerResult struct {
	Upper     float64
	Middle    float64
	Lower     float64
	PercentB  float64
	Bandwidth float64 // percent of middle
	Squeeze   bool    // bandwidth < 4%
}

// squeezeBandwidthPct flags a volatility squeeze.
const squeezeBandwidthPct = 4.0

// CalculateBollinger computes Bollinger Bands with %B and bandwidth.
func CalculateBollinger(prices []float64, period int, mult float64) *BollingerResult {
	if len(prices) < period || period <= 0 {
		return &BollingerResult{PercentB: 0.5}
	}

	window := prices[len(prices)-period:]
	middle := stat.Mean(window, nil)
	sd := stat.StdDev(window, nil)
	// Population stddev matches the conventional band definition.
	sd *= math.Sqrt(float64(period-1) / float64(period))

	result := &BollingerResult{
		Upper:  middle + sd*mult,
		Middle: middle,
		Lower:  middle - sd*mult,
	}

	price := prices[len(prices)-1]
	if width := result.Upper - result.Lower; width > 0 {
		result.PercentB = (price - result.Lower) / width
	} else {
		result.PercentB = 0.5
	}
	if middle > 0 {
		result.Bandwidth = (result.Upper - result.Lower) / middle * 100
		result.Squeeze = result.Bandwidth < squeezeBandwidthPct
	}
	return result
}

// ============================================================================
// ATR AND VOLATILITY
// ============================================================================

// CalculateATR returns the average true range over the last period candles.
func CalculateATR(candles []hyperliquid.Candle, period int) float64 {
	if len(candles) < period+1 || period <= 0 {
		return 0
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		cur, prev := candles[i], candles[i-1]
		tr := math.Max(cur.High-cur.Low,
			math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
		sum += tr
	}
	return sum / float64(period)
}

// CalculateVolatility returns the standard deviation of percentage returns.
func CalculateVolatility(prices []float64, period int) float64 {
	if len(prices) < period+1 || period <= 1 {
		return 0
	}

	returns := make([]float64, 0, period)
	for i := len(prices) - period; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1]*100)
	}
	if len(returns) < 2 {
		return 0
	}
	return stat.StdDev(returns, nil)
}

// ============================================================================
// SUPPORT / RESISTANCE
// ============================================================================

// CalculateSupportResistance returns the lower-20% and upper-80% quantiles of
// the last lookback closes.
func CalculateSupportResistance(prices []float64, lookback int) (support, resistance float64) {
	if len(prices) == 0 {
		return 0, 0
	}
	if len(prices) > lookback {
		prices = prices[len(prices)-lookback:]
	}

	sorted := make([]float64, len(prices))
	copy(sorted, prices)
	sort.Float64s(sorted)

	support = stat.Quantile(0.2, stat.Empirical, sorted, nil)
	resistance = stat.Quantile(0.8, stat.Empirical, sorted, nil)
	return support, resistance
}

// ============================================================================
// TREND STRENGTH
// ============================================================================

// TrendResult is an ADX-like strength measure with a direction label.
type TrendResult struct {
	Strength  float64 // 0..100
	Direction string  // "up", "down", "sideways"
}

// CalculateTrendStrength measures directional persistence of the last period
// closes: net move scaled against the path length.
func CalculateTrendStrength(prices []float64, period int) *TrendResult {
	if len(prices) < period+1 || period <= 0 {
		return &TrendResult{Direction: "sideways"}
	}

	window := prices[len(prices)-period-1:]
	pathLength := 0.0
	for i := 1; i < len(window); i++ {
		pathLength += math.Abs(window[i] - window[i-1])
	}
	if pathLength == 0 {
		return &TrendResult{Direction: "sideways"}
	}

	net := window[len(window)-1] - window[0]
	strength := math.Abs(net) / pathLength * 100

	direction := "sideways"
	if strength >= 25 {
		if net > 0 {
			direction = "up"
		} else {
			direction = "down"
		}
	}
	return &TrendResult{Strength: strength, Direction: direction}
}

// ============================================================================
// Z-SCORE
// ============================================================================

// ZScoreResult carries the score and its threshold classification.
type ZScoreResult struct {
	Score  float64
	Signal string // "strong_buy", "buy", "neutral", "sell", "strong_sell"
}

// Z-score thresholds.
const (
	zScoreThreshold       = 2.0
	zScoreStrongThreshold = 2.5
)

// CalculateZScore measures the deviation of the last price from the period
// mean in standard deviations. Negative extremes signal buys (mean
// reversion), positive extremes sells.
func CalculateZScore(prices []float64, period int) *ZScoreResult {
	if len(prices) < period || period <= 1 {
		return &ZScoreResult{Signal: "neutral"}
	}

	window := prices[len(prices)-period:]
	mean := stat.Mean(window, nil)
	sd := stat.StdDev(window, nil)
	if sd == 0 {
		return &ZScoreResult{Signal: "neutral"}
	}

	score := (prices[len(prices)-1] - mean) / sd
	signal := "neutral"
	switch {
	case score <= -zScoreStrongThreshold:
		signal = "strong_buy"
	case score <= -zScoreThreshold:
		signal = "buy"
	case score >= zScoreStrongThreshold:
		signal = "strong_sell"
	case score >= zScoreThreshold:
		signal = "sell"
	}
	return &ZScoreResult{Score: score, Signal: signal}
}

// ============================================================================
// MOMENTUM
// ============================================================================

// CalculateMomentum returns the percent change over the last period samples.
func CalculateMomentum(prices []float64, period int) float64 {
	if len(prices) < period+1 || period <= 0 {
		return 0
	}
	past := prices[len(prices)-period-1]
	if past == 0 {
		return 0
	}
	return (prices[len(prices)-1] - past) / past * 100
}
