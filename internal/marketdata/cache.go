package marketdata

import (
	"sync"
	"time"

	"hyperliquid-trading-bot/internal/clock"
	"hyperliquid-trading-bot/internal/hyperliquid"
)

// Ring capacities per symbol.
const (
	tradeRingSize       = 100
	liquidationRingSize = 50
	priceRingSize       = 100
)

// dayWindow is the lookback for 24h change and the retention of the 24h ring.
const dayWindow = 24 * time.Hour

// pricePoint is one mid-price sample.
type pricePoint struct {
	price float64
	at    time.Time
}

// symbolCache holds everything cached for one symbol.
type symbolCache struct {
	book    *hyperliquid.OrderBook
	trades  []hyperliquid.Trade       // newest last, capped at tradeRingSize
	liqs    []hyperliquid.Liquidation // newest last, capped at liquidationRingSize
	funding *hyperliquid.Funding
	prices  []pricePoint // newest last, capped at priceRingSize
	daily   []pricePoint // newest last, pruned to dayWindow
}

// Cache is the per-symbol market state store fed by the wire loop and read by
// analysis loops. All methods are safe for concurrent use; getters return
// copies so callers never alias wire-loop state.
type Cache struct {
	clock clock.Clock

	mu      sync.RWMutex
	symbols map[string]*symbolCache
}

// NewCache creates an empty cache.
func NewCache(clk clock.Clock) *Cache {
	return &Cache{
		clock:   clk,
		symbols: make(map[string]*symbolCache),
	}
}

func (c *Cache) symbol(symbol string) *symbolCache {
	sc, ok := c.symbols[symbol]
	if !ok {
		sc = &symbolCache{}
		c.symbols[symbol] = sc
	}
	return sc
}

// SetOrderBook stores the latest book and samples its mid into the price rings.
func (c *Cache) SetOrderBook(book *hyperliquid.OrderBook) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	sc := c.symbol(book.Symbol)
	sc.book = book

	if book.MidPrice > 0 {
		point := pricePoint{price: book.MidPrice, at: now}
		sc.prices = appendCapped(sc.prices, point, priceRingSize)
		sc.daily = append(sc.daily, point)
		cutoff := now.Add(-dayWindow)
		for len(sc.daily) > 0 && sc.daily[0].at.Before(cutoff) {
			sc.daily = sc.daily[1:]
		}
	}
}

// AddTrade appends a trade to the symbol's ring.
func (c *Cache) AddTrade(trade hyperliquid.Trade) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sc := c.symbol(trade.Symbol)
	sc.trades = appendCapped(sc.trades, trade, tradeRingSize)
}

// AddLiquidation appends a liquidation to the symbol's ring.
func (c *Cache) AddLiquidation(liq hyperliquid.Liquidation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sc := c.symbol(liq.Symbol)
	sc.liqs = appendCapped(sc.liqs, liq, liquidationRingSize)
}

// SetFunding stores the latest funding context.
func (c *Cache) SetFunding(funding hyperliquid.Funding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.symbol(funding.Symbol).funding = &funding
}

// GetOrderBook returns the latest book for a symbol, or nil.
func (c *Cache) GetOrderBook(symbol string) *hyperliquid.OrderBook {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sc, ok := c.symbols[symbol]
	if !ok || sc.book == nil {
		return nil
	}
	book := *sc.book
	return &book
}

// GetPrice returns the latest mid price for a symbol, zero when unknown.
func (c *Cache) GetPrice(symbol string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sc, ok := c.symbols[symbol]
	if !ok || len(sc.prices) == 0 {
		return 0
	}
	return sc.prices[len(sc.prices)-1].price
}

// GetRecentTrades returns up to limit most recent trades, newest last.
func (c *Cache) GetRecentTrades(symbol string, limit int) []hyperliquid.Trade {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sc, ok := c.symbols[symbol]
	if !ok {
		return nil
	}
	trades := sc.trades
	if limit > 0 && len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	out := make([]hyperliquid.Trade, len(trades))
	copy(out, trades)
	return out
}

// GetLiquidations returns the symbol's recent liquidations, newest last.
func (c *Cache) GetLiquidations(symbol string) []hyperliquid.Liquidation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sc, ok := c.symbols[symbol]
	if !ok {
		return nil
	}
	out := make([]hyperliquid.Liquidation, len(sc.liqs))
	copy(out, sc.liqs)
	return out
}

// GetFunding returns the latest funding context, or nil.
func (c *Cache) GetFunding(symbol string) *hyperliquid.Funding {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sc, ok := c.symbols[symbol]
	if !ok || sc.funding == nil {
		return nil
	}
	funding := *sc.funding
	return &funding
}

// GetPriceHistory returns recent mid samples, newest last.
func (c *Cache) GetPriceHistory(symbol string) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sc, ok := c.symbols[symbol]
	if !ok {
		return nil
	}
	out := make([]float64, len(sc.prices))
	for i, p := range sc.prices {
		out[i] = p.price
	}
	return out
}

// VolumeProfile sums notional by trade side over the window and returns
// buyNotional, sellNotional and the buy ratio (0.5 when no volume).
func (c *Cache) VolumeProfile(symbol string, window time.Duration) (buy, sell, ratio float64) {
	cutoff := c.clock.Now().Add(-window).UnixMilli()

	c.mu.RLock()
	defer c.mu.RUnlock()

	sc, ok := c.symbols[symbol]
	if !ok {
		return 0, 0, 0.5
	}
	for _, t := range sc.trades {
		if t.Timestamp < cutoff {
			continue
		}
		notional := t.Price * t.Size
		if t.Side == "buy" {
			buy += notional
		} else {
			sell += notional
		}
	}
	total := buy + sell
	if total == 0 {
		return buy, sell, 0.5
	}
	return buy, sell, buy / total
}

// Change24h returns the percent change of the latest mid against the oldest
// sample within 24h; the oldest available sample is used when history is
// shorter than a day. Zero when fewer than two samples exist.
func (c *Cache) Change24h(symbol string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sc, ok := c.symbols[symbol]
	if !ok || len(sc.daily) < 2 {
		return 0
	}
	oldest := sc.daily[0].price
	latest := sc.daily[len(sc.daily)-1].price
	if oldest == 0 {
		return 0
	}
	return (latest - oldest) / oldest * 100
}

// Symbols returns the symbols with any cached state.
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		out = append(out, s)
	}
	return out
}

// appendCapped appends keeping at most capSize newest entries.
func appendCapped[T any](ring []T, item T, capSize int) []T {
	ring = append(ring, item)
	if len(ring) > capSize {
		ring = ring[len(ring)-capSize:]
	}
	return ring
}
