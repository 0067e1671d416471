package marketdata

import (
	"fmt"
	"testing"
	"time"

	"hyperliquid-trading-bot/internal/clock"
	"hyperliquid-trading-bot/internal/hyperliquid"
)

func TestTradeRingCapped(t *testing.T) {
	fake := clock.NewFake(time.Unix(1700000000, 0))
	cache := NewCache(fake)

	for i := 0; i < tradeRingSize+20; i++ {
		cache.AddTrade(hyperliquid.Trade{
			Symbol:    "BTC-PERP",
			Side:      "buy",
			Price:     float64(i),
			Timestamp: int64(i),
		})
	}

	trades := cache.GetRecentTrades("BTC-PERP", 0)
	if len(trades) != tradeRingSize {
		t.Fatalf("ring size = %d, want %d", len(trades), tradeRingSize)
	}
	if trades[len(trades)-1].Price != float64(tradeRingSize+19) {
		t.Errorf("newest trade dropped: last price = %v", trades[len(trades)-1].Price)
	}
	if trades[0].Price != 20 {
		t.Errorf("oldest retained = %v, want 20", trades[0].Price)
	}
}

func TestVolumeProfile(t *testing.T) {
	fake := clock.NewFake(time.Unix(1700000000, 0))
	cache := NewCache(fake)
	now := fake.Now().UnixMilli()

	// 600 buy notional and 400 sell notional inside the window.
	cache.AddTrade(hyperliquid.Trade{Symbol: "ETH-PERP", Side: "buy", Price: 100, Size: 6, Timestamp: now - 5000})
	cache.AddTrade(hyperliquid.Trade{Symbol: "ETH-PERP", Side: "sell", Price: 100, Size: 4, Timestamp: now - 5000})
	// Stale trade outside the 60s window.
	cache.AddTrade(hyperliquid.Trade{Symbol: "ETH-PERP", Side: "sell", Price: 100, Size: 50, Timestamp: now - 120000})

	buy, sell, ratio := cache.VolumeProfile("ETH-PERP", 60*time.Second)
	if buy != 600 || sell != 400 {
		t.Errorf("volume = %v/%v, want 600/400", buy, sell)
	}
	if ratio != 0.6 {
		t.Errorf("ratio = %v, want 0.6", ratio)
	}
}

func TestVolumeProfileEmpty(t *testing.T) {
	cache := NewCache(clock.NewFake(time.Unix(1700000000, 0)))
	_, _, ratio := cache.VolumeProfile("SOL-PERP", time.Minute)
	if ratio != 0.5 {
		t.Errorf("empty ratio = %v, want 0.5", ratio)
	}
}

func TestChange24hUsesOldestAvailable(t *testing.T) {
	fake := clock.NewFake(time.Unix(1700000000, 0))
	cache := NewCache(fake)

	setMid := func(px float64) {
		cache.SetOrderBook(&hyperliquid.OrderBook{Symbol: "BTC-PERP", MidPrice: px})
	}

	setMid(100)
	fake.Advance(time.Hour)
	setMid(105)
	fake.Advance(time.Hour)
	setMid(110)

	change := cache.Change24h("BTC-PERP")
	if change != 10 {
		t.Errorf("change = %v, want 10", change)
	}
}

func TestChange24hPrunesOldSamples(t *testing.T) {
	fake := clock.NewFake(time.Unix(1700000000, 0))
	cache := NewCache(fake)

	setMid := func(px float64) {
		cache.SetOrderBook(&hyperliquid.OrderBook{Symbol: "BTC-PERP", MidPrice: px})
	}

	setMid(50) // will age out of the 24h window
	fake.Advance(25 * time.Hour)
	setMid(100)
	fake.Advance(time.Hour)
	setMid(120)

	change := cache.Change24h("BTC-PERP")
	if change != 20 {
		t.Errorf("change = %v, want 20 (stale baseline must be pruned)", change)
	}
}

func TestGettersReturnCopies(t *testing.T) {
	fake := clock.NewFake(time.Unix(1700000000, 0))
	cache := NewCache(fake)

	cache.SetOrderBook(&hyperliquid.OrderBook{Symbol: "BTC-PERP", MidPrice: 100})
	book := cache.GetOrderBook("BTC-PERP")
	book.MidPrice = 0

	if cache.GetOrderBook("BTC-PERP").MidPrice != 100 {
		t.Error("caller mutation leaked into cache")
	}
}

func TestPriceRingCapped(t *testing.T) {
	fake := clock.NewFake(time.Unix(1700000000, 0))
	cache := NewCache(fake)

	for i := 0; i < priceRingSize+10; i++ {
		cache.SetOrderBook(&hyperliquid.OrderBook{Symbol: "SOL-PERP", MidPrice: float64(i + 1)})
		fake.Advance(time.Second)
	}

	history := cache.GetPriceHistory("SOL-PERP")
	if len(history) != priceRingSize {
		t.Fatalf("history size = %d, want %d", len(history), priceRingSize)
	}
	if cache.GetPrice("SOL-PERP") != float64(priceRingSize+10) {
		t.Errorf("latest price = %v", cache.GetPrice("SOL-PERP"))
	}
}

func TestLiquidationRingCapped(t *testing.T) {
	cache := NewCache(clock.NewFake(time.Unix(1700000000, 0)))
	for i := 0; i < liquidationRingSize+5; i++ {
		cache.AddLiquidation(hyperliquid.Liquidation{
			Symbol: "BTC-PERP", Side: "long", Price: float64(i), Timestamp: int64(i),
		})
	}
	liqs := cache.GetLiquidations("BTC-PERP")
	if len(liqs) != liquidationRingSize {
		t.Fatalf("ring size = %d, want %d", len(liqs), liquidationRingSize)
	}
}

func TestSymbolsListing(t *testing.T) {
	cache := NewCache(clock.NewFake(time.Unix(1700000000, 0)))
	for i := 0; i < 3; i++ {
		cache.AddTrade(hyperliquid.Trade{Symbol: fmt.Sprintf("C%d-PERP", i)})
	}
	if got := len(cache.Symbols()); got != 3 {
		t.Errorf("symbols = %d, want 3", got)
	}
}
