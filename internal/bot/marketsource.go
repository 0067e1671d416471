package bot

import (
	"context"
	"fmt"
	"time"

	"hyperliquid-trading-bot/internal/autopilot"
	"hyperliquid-trading-bot/internal/clock"
	"hyperliquid-trading-bot/internal/hyperliquid"
	"hyperliquid-trading-bot/internal/marketdata"
)

const (
	candleInterval = "5m"
	candleLookback = 120 * 5 * time.Minute
	tradeWindow    = 100
)

// marketSource adapts the websocket cache plus the info client to the
// snapshot shape the decision engine consumes. Prices and the book come from
// the cache; candles are fetched on demand since the wire feed carries none.
type marketSource struct {
	markets *marketdata.Service
	info    *hyperliquid.InfoClient
	clock   clock.Clock
}

func newMarketSource(markets *marketdata.Service, info *hyperliquid.InfoClient, clk clock.Clock) *marketSource {
	return &marketSource{markets: markets, info: info, clock: clk}
}

func (m *marketSource) Snapshot(ctx context.Context, symbol string) (*autopilot.Snapshot, error) {
	cache := m.markets.Cache()
	prices := cache.GetPriceHistory(symbol)
	if len(prices) == 0 {
		return nil, fmt.Errorf("no cached prices for %s", symbol)
	}

	coin := hyperliquid.CoinFromSymbol(symbol)
	now := m.clock.Now()
	candles, err := m.info.CandleSnapshot(ctx, coin, candleInterval,
		now.Add(-candleLookback).UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("candles for %s: %w", symbol, err)
	}

	buy, sell, _ := cache.VolumeProfile(symbol, 24*time.Hour)
	return &autopilot.Snapshot{
		Symbol:    symbol,
		Prices:    prices,
		Candles:   candles,
		Book:      cache.GetOrderBook(symbol),
		Trades:    cache.GetRecentTrades(symbol, tradeWindow),
		Funding:   cache.GetFunding(symbol),
		Volume24h: buy + sell,
		Change24h: cache.Change24h(symbol),
	}, nil
}

func (m *marketSource) MidPrice(symbol string) float64 {
	return m.markets.Cache().GetPrice(symbol)
}
