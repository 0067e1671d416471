package autopilot

import (
	"math"
	"testing"

	"hyperliquid-trading-bot/internal/hyperliquid"
)

// rampPrices returns n closes each growing by stepPct percent.
func rampPrices(start float64, n int, stepPct float64) []float64 {
	out := make([]float64, n)
	p := start
	for i := range out {
		out[i] = p
		p *= 1 + stepPct/100
	}
	return out
}

func flatPrices(price float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

// bidHeavyBook builds a book whose bid depth dominates the ask depth.
func bidHeavyBook(mid float64, bidSize, askSize float64) *hyperliquid.OrderBook {
	var bids, asks []hyperliquid.OrderBookLevel
	for i := 0; i < 5; i++ {
		bids = append(bids, hyperliquid.OrderBookLevel{Price: mid - float64(i+1), Size: bidSize})
		asks = append(asks, hyperliquid.OrderBookLevel{Price: mid + float64(i+1), Size: askSize})
	}
	total := 5 * (bidSize + askSize)
	return &hyperliquid.OrderBook{
		Bids:      bids,
		Asks:      asks,
		MidPrice:  mid,
		Imbalance: 5 * bidSize / total,
	}
}

func TestEvaluateConfluenceUptrend(t *testing.T) {
	prices := rampPrices(100, 100, 0.25)
	snap := &Snapshot{
		Symbol: "BTC-PERP",
		Prices: prices,
		Book:   bidHeavyBook(prices[len(prices)-1], 65, 35),
	}

	result := EvaluateConfluence(snap)
	if result.Direction != DirectionLong {
		t.Fatalf("direction = %s, want long (signals: %+v)", result.Direction, result.Signals)
	}
	if result.AlignedCount < 3 {
		t.Errorf("aligned count = %d, want >= 3", result.AlignedCount)
	}
	if result.TotalStrength < 50 {
		t.Errorf("strength = %.0f, want >= 50", result.TotalStrength)
	}

	settings := DefaultSettings(ModeAggressive)
	if !result.Qualifies(&settings) {
		t.Error("clear uptrend should qualify in aggressive mode")
	}
}

func TestEvaluateConfluenceFlatIsNeutral(t *testing.T) {
	snap := &Snapshot{
		Symbol: "BTC-PERP",
		Prices: flatPrices(100, 100),
		Book: &hyperliquid.OrderBook{
			Bids:      []hyperliquid.OrderBookLevel{{Price: 99, Size: 10}},
			Asks:      []hyperliquid.OrderBookLevel{{Price: 101, Size: 10}},
			Imbalance: 0.5,
		},
	}

	result := EvaluateConfluence(snap)
	if result.Direction != DirectionNeutral {
		t.Fatalf("flat market direction = %s, want neutral", result.Direction)
	}

	settings := DefaultSettings(ModeAggressive)
	if result.Qualifies(&settings) {
		t.Error("neutral result must never qualify")
	}
}

func TestAggregateDirectionRule(t *testing.T) {
	sig := func(dir Direction) Signal { return Signal{Direction: dir, Weight: 1, Strength: 60} }

	tests := []struct {
		name  string
		longs int
		short int
		want  Direction
	}{
		{"no signals", 0, 0, DirectionNeutral},
		{"single long", 1, 0, DirectionNeutral},
		{"two unopposed longs", 2, 0, DirectionLong},
		{"margin of one is neutral", 3, 2, DirectionNeutral},
		{"margin of two wins", 4, 2, DirectionLong},
		{"shorts win symmetrically", 1, 3, DirectionShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var signals []Signal
			for i := 0; i < tt.longs; i++ {
				signals = append(signals, sig(DirectionLong))
			}
			for i := 0; i < tt.short; i++ {
				signals = append(signals, sig(DirectionShort))
			}
			if got := aggregate(signals).Direction; got != tt.want {
				t.Errorf("direction = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAggregateStrengthIsWeightedAverage(t *testing.T) {
	signals := []Signal{
		{Direction: DirectionLong, Weight: 1.6, Strength: 80},
		{Direction: DirectionLong, Weight: 0.8, Strength: 50},
		{Direction: DirectionShort, Weight: 1.5, Strength: 90}, // losing side is excluded
	}
	// Margin is only one, so pad with another long vote.
	signals = append(signals, Signal{Direction: DirectionLong, Weight: 1.0, Strength: 60})

	result := aggregate(signals)
	if result.Direction != DirectionLong {
		t.Fatalf("direction = %s, want long", result.Direction)
	}
	want := math.Round((80*1.6 + 50*0.8 + 60*1.0) / (1.6 + 0.8 + 1.0))
	if result.TotalStrength != want {
		t.Errorf("strength = %v, want %v", result.TotalStrength, want)
	}
}

func TestHighsLows(t *testing.T) {
	candle := func(high, low float64) hyperliquid.Candle { return hyperliquid.Candle{High: high, Low: low} }

	rising := []hyperliquid.Candle{candle(101, 99), candle(102, 100), candle(103, 101)}
	if highsLows(rising) != DirectionLong {
		t.Error("rising highs and lows should read long")
	}

	falling := []hyperliquid.Candle{candle(103, 101), candle(102, 100), candle(101, 99)}
	if highsLows(falling) != DirectionShort {
		t.Error("falling highs and lows should read short")
	}

	mixed := []hyperliquid.Candle{candle(103, 99), candle(102, 100), candle(104, 98)}
	if highsLows(mixed) != DirectionNeutral {
		t.Error("mixed swings should read neutral")
	}
}
