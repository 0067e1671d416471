package analysis

import (
	"math"

	"hyperliquid-trading-bot/internal/hyperliquid"
)

// VWAPResult holds the volume-weighted average price with one-sigma bands.
type VWAPResult struct {
	VWAP      float64
	UpperBand float64
	LowerBand float64
	Position  string // "above_upper", "above", "below", "below_lower"
}

// CalculateVWAP computes the volume-weighted average price of the trades with
// bands at one volume-weighted standard deviation. Returns nil when no trade
// carries volume.
func CalculateVWAP(trades []hyperliquid.Trade) *VWAPResult {
	var notional, volume float64
	for _, t := range trades {
		notional += t.Price * t.Size
		volume += t.Size
	}
	if volume == 0 {
		return nil
	}

	vwap := notional / volume

	var variance float64
	for _, t := range trades {
		diff := t.Price - vwap
		variance += diff * diff * t.Size
	}
	sigma := math.Sqrt(variance / volume)

	result := &VWAPResult{
		VWAP:      vwap,
		UpperBand: vwap + sigma,
		LowerBand: vwap - sigma,
	}

	last := trades[len(trades)-1].Price
	switch {
	case last > result.UpperBand:
		result.Position = "above_upper"
	case last > vwap:
		result.Position = "above"
	case last < result.LowerBand:
		result.Position = "below_lower"
	default:
		result.Position = "below"
	}
	return result
}
