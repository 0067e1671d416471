package analysis

import (
	"testing"

	"hyperliquid-trading-bot/internal/hyperliquid"
)

func levels(sizes ...float64) []hyperliquid.OrderBookLevel {
	out := make([]hyperliquid.OrderBookLevel, len(sizes))
	for i, s := range sizes {
		out[i] = hyperliquid.OrderBookLevel{Price: 100 - float64(i), Size: s}
	}
	return out
}

func TestCalculateOrderFlowClassification(t *testing.T) {
	tests := []struct {
		name string
		bids []hyperliquid.OrderBookLevel
		asks []hyperliquid.OrderBookLevel
		want string
	}{
		{"balanced book is neutral", levels(10, 10), levels(10, 10), "neutral"},
		{"mild bid pressure is buy", levels(12, 12), levels(9, 9), "buy"},
		{"heavy bid pressure is strong buy", levels(40, 40), levels(10, 10), "strong_buy"},
		{"mild ask pressure is sell", levels(9, 9), levels(12, 12), "sell"},
		{"heavy ask pressure is strong sell", levels(10, 10), levels(40, 40), "strong_sell"},
		{"empty book is neutral", nil, nil, "neutral"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book := &hyperliquid.OrderBook{Bids: tt.bids, Asks: tt.asks}
			result := CalculateOrderFlow(book)
			if result.Signal != tt.want {
				t.Errorf("signal = %s (delta %.1f%%), want %s", result.Signal, result.DeltaPct, tt.want)
			}
		})
	}
}

func TestCalculateOrderFlowInstitutional(t *testing.T) {
	// Two levels above 3x the median size.
	book := &hyperliquid.OrderBook{
		Bids: levels(1, 1, 1, 20),
		Asks: levels(1, 1, 1, 20),
	}
	if !CalculateOrderFlow(book).Institutional {
		t.Error("two outsized levels should flag institutional activity")
	}

	uniform := &hyperliquid.OrderBook{Bids: levels(5, 5, 5), Asks: levels(5, 5, 5)}
	if CalculateOrderFlow(uniform).Institutional {
		t.Error("uniform book should not flag institutional activity")
	}
}

func TestCalculateVWAP(t *testing.T) {
	trades := []hyperliquid.Trade{
		{Price: 100, Size: 1},
		{Price: 110, Size: 3},
	}
	result := CalculateVWAP(trades)
	if result == nil {
		t.Fatal("expected result")
	}
	// (100*1 + 110*3) / 4 = 107.5
	if result.VWAP != 107.5 {
		t.Errorf("VWAP = %v, want 107.5", result.VWAP)
	}
	if result.UpperBand <= result.VWAP || result.LowerBand >= result.VWAP {
		t.Error("bands must straddle the VWAP")
	}
	if result.Position != "above" {
		t.Errorf("position = %s, want above", result.Position)
	}
}

func TestCalculateVWAPNoVolume(t *testing.T) {
	if CalculateVWAP(nil) != nil {
		t.Error("no trades should return nil")
	}
	if CalculateVWAP([]hyperliquid.Trade{{Price: 100, Size: 0}}) != nil {
		t.Error("zero volume should return nil")
	}
}
