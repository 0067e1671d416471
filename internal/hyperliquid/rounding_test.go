package hyperliquid

import (
	"strconv"
	"testing"
)

func TestRoundPrice(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		want  float64
	}{
		{"btc integer bucket", 43251.7, 43252},
		{"just above 10k", 10000.4, 10000},
		{"just below 10k", 9999.64, 9999.6},
		{"eth tenth bucket", 2345.678, 2345.7},
		{"sol cent bucket", 123.456, 123.46},
		{"two digit", 12.3456, 12.346},
		{"unit bucket", 1.23456, 1.2346},
		{"sub unit", 0.123456, 0.12346},
		{"dust bucket", 0.0123456, 0.012346},
		{"exact value unchanged", 50000, 50000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundPrice(tt.price)
			if !almostEqual(got, tt.want) {
				t.Errorf("RoundPrice(%v) = %v, want %v", tt.price, got, tt.want)
			}
		})
	}
}

// Every rounded price must survive a decimal-string round trip exactly: the
// venue echoes back what we send, and any drift would break order matching.
func TestRoundPriceStringRoundTrip(t *testing.T) {
	prices := []float64{43251.7, 9999.64, 2345.678, 123.456, 12.3456, 1.23456, 0.123456, 0.0123456}

	for _, price := range prices {
		rounded := RoundPrice(price)
		wire := strconv.FormatFloat(rounded, 'f', -1, 64)
		back, err := strconv.ParseFloat(wire, 64)
		if err != nil {
			t.Fatalf("parse %q: %v", wire, err)
		}
		if back != rounded {
			t.Errorf("round trip %v -> %q -> %v", rounded, wire, back)
		}
	}
}

func TestRoundSize(t *testing.T) {
	tests := []struct {
		name string
		coin string
		size float64
		want float64
	}{
		{"btc rounds up at 4 decimals", "BTC", 0.00231, 0.0024},
		{"eth rounds up at 3 decimals", "ETH", 0.1501, 0.151},
		{"sol rounds up at 2 decimals", "SOL", 1.011, 1.02},
		{"doge integer sizes", "DOGE", 150.2, 151},
		{"unknown coin default 2", "NEWCOIN", 3.001, 3.01},
		{"exact size unchanged", "BTC", 0.5, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundSize(tt.coin, tt.size)
			if !almostEqual(got, tt.want) {
				t.Errorf("RoundSize(%s, %v) = %v, want %v", tt.coin, tt.size, got, tt.want)
			}
		})
	}
}

func TestMaxLeverage(t *testing.T) {
	tests := []struct {
		coin string
		want int
	}{
		{"BTC", 50},
		{"ETH", 50},
		{"SOL", 25},
		{"ARB", 20},
		{"AAVE", 10},
		{"UNKNOWN", 5},
	}

	for _, tt := range tests {
		if got := MaxLeverage(tt.coin); got != tt.want {
			t.Errorf("MaxLeverage(%s) = %d, want %d", tt.coin, got, tt.want)
		}
	}
}

func almostEqual(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}
