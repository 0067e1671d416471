package hyperliquid

import "sort"

// wallMultiple marks a level as a wall when its size exceeds this multiple of
// the median level size.
const wallMultiple = 3.0

// topLevels is the depth used for the imbalance calculation.
const topLevels = 5

// BuildOrderBook normalizes raw levels into an OrderBook with derived fields.
// Bids are sorted descending and asks ascending regardless of input order.
func BuildOrderBook(symbol string, bids, asks []OrderBookLevel, timestamp int64) *OrderBook {
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	book := &OrderBook{
		Symbol:    symbol,
		Bids:      bids,
		Asks:      asks,
		Timestamp: timestamp,
	}

	if len(bids) > 0 && len(asks) > 0 {
		bestBid := bids[0].Price
		bestAsk := asks[0].Price
		book.MidPrice = (bestBid + bestAsk) / 2
		book.Spread = bestAsk - bestBid
		if book.MidPrice > 0 {
			book.SpreadPct = book.Spread / book.MidPrice * 100
		}
	}

	book.Imbalance = bookImbalance(bids, asks)
	book.BidWall = findWall(bids)
	book.AskWall = findWall(asks)

	return book
}

// bookImbalance is the top-5 bid share of top-5 total size; 0.5 when empty.
func bookImbalance(bids, asks []OrderBookLevel) float64 {
	var bidSize, askSize float64
	for i := 0; i < len(bids) && i < topLevels; i++ {
		bidSize += bids[i].Size
	}
	for i := 0; i < len(asks) && i < topLevels; i++ {
		askSize += asks[i].Size
	}
	total := bidSize + askSize
	if total == 0 {
		return 0.5
	}
	return bidSize / total
}

// findWall returns the largest level whose size exceeds 3x the median level
// size, or nil when no level qualifies.
func findWall(levels []OrderBookLevel) *OrderBookLevel {
	if len(levels) < 3 {
		return nil
	}

	sizes := make([]float64, len(levels))
	for i, l := range levels {
		sizes[i] = l.Size
	}
	sort.Float64s(sizes)
	median := sizes[len(sizes)/2]
	if median == 0 {
		return nil
	}

	var wall *OrderBookLevel
	for i := range levels {
		if levels[i].Size > median*wallMultiple {
			if wall == nil || levels[i].Size > wall.Size {
				wall = &levels[i]
			}
		}
	}
	return wall
}
