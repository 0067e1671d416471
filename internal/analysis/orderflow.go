package analysis

import (
	"sort"

	"hyperliquid-trading-bot/internal/hyperliquid"
)

// OrderFlowResult classifies book pressure from the size delta of the sides.
type OrderFlowResult struct {
	DeltaPct      float64 // (bids - asks) / (bids + asks) * 100
	Signal        string  // "strong_buy", "buy", "neutral", "sell", "strong_sell"
	Institutional bool    // >= 2 levels exceeding 3x median size
}

// Order-flow classification thresholds (percent delta).
const (
	flowThreshold       = 10.0
	flowStrongThreshold = 30.0
)

// institutionalMinLevels is the wall count that marks institutional activity.
const institutionalMinLevels = 2

// CalculateOrderFlow measures bid/ask size delta across the whole book and
// flags institutional activity when multiple outsized levels are present.
func CalculateOrderFlow(book *hyperliquid.OrderBook) *OrderFlowResult {
	if book == nil {
		return &OrderFlowResult{Signal: "neutral"}
	}

	var bidSize, askSize float64
	sizes := make([]float64, 0, len(book.Bids)+len(book.Asks))
	for _, lvl := range book.Bids {
		bidSize += lvl.Size
		sizes = append(sizes, lvl.Size)
	}
	for _, lvl := range book.Asks {
		askSize += lvl.Size
		sizes = append(sizes, lvl.Size)
	}

	total := bidSize + askSize
	if total == 0 {
		return &OrderFlowResult{Signal: "neutral"}
	}

	result := &OrderFlowResult{
		DeltaPct: (bidSize - askSize) / total * 100,
	}

	switch {
	case result.DeltaPct >= flowStrongThreshold:
		result.Signal = "strong_buy"
	case result.DeltaPct >= flowThreshold:
		result.Signal = "buy"
	case result.DeltaPct <= -flowStrongThreshold:
		result.Signal = "strong_sell"
	case result.DeltaPct <= -flowThreshold:
		result.Signal = "sell"
	default:
		result.Signal = "neutral"
	}

	if len(sizes) >= 3 {
		sort.Float64s(sizes)
		median := sizes[len(sizes)/2]
		if median > 0 {
			outsized := 0
			for _, s := range sizes {
				if s > median*3 {
					outsized++
				}
			}
			result.Institutional = outsized >= institutionalMinLevels
		}
	}
	return result
}
