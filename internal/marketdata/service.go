package marketdata

import (
	"encoding/json"
	"fmt"
	"sync"

	"hyperliquid-trading-bot/internal/clock"
	"hyperliquid-trading-bot/internal/hyperliquid"
	"hyperliquid-trading-bot/internal/logging"
)

// Service is the engine's market-data plane: one websocket, per-symbol caches
// and a typed fan-out. Watch adds a symbol's channel set; unknown frames are
// dropped silently.
type Service struct {
	ws         *WSClient
	cache      *Cache
	dispatcher *Dispatcher
	log        *logging.Logger

	liquidationFeed bool

	mu      sync.Mutex
	watched map[string]struct{} // coins
	status  ConnectionStatus
}

// NewService wires the websocket client, cache and dispatcher together.
func NewService(wsURL string, liquidationFeed bool, clk clock.Clock, log *logging.Logger) *Service {
	s := &Service{
		cache:           NewCache(clk),
		dispatcher:      NewDispatcher(log),
		log:             log.WithComponent("marketdata"),
		liquidationFeed: liquidationFeed,
		watched:         make(map[string]struct{}),
		status:          StatusDisconnected,
	}
	s.ws = NewWSClient(wsURL, s.handleMessage, s.handleStatus, log)
	return s
}

// Start opens the websocket connection loop.
func (s *Service) Start() error {
	if err := s.ws.Start(); err != nil {
		return fmt.Errorf("start market data: %w", err)
	}
	if s.liquidationFeed {
		if err := s.ws.Subscribe("liquidations", ""); err != nil {
			s.log.Warn("liquidation feed subscribe failed", "error", err.Error())
		}
	}
	return nil
}

// Stop tears down the connection and fan-out.
func (s *Service) Stop() {
	s.ws.Stop()
	s.dispatcher.Close()
}

// Watch subscribes a symbol's channel set: book, trades, asset context.
func (s *Service) Watch(symbol string) error {
	coin := hyperliquid.CoinFromSymbol(symbol)

	s.mu.Lock()
	if _, ok := s.watched[coin]; ok {
		s.mu.Unlock()
		return nil
	}
	s.watched[coin] = struct{}{}
	s.mu.Unlock()

	for _, subType := range []string{"l2Book", "trades", "activeAssetCtx"} {
		if err := s.ws.Subscribe(subType, coin); err != nil {
			return fmt.Errorf("watch %s: %w", symbol, err)
		}
	}
	s.log.Info("watching symbol", "symbol", symbol)
	return nil
}

// Unwatch drops a symbol's subscriptions. Cached state is retained.
func (s *Service) Unwatch(symbol string) {
	coin := hyperliquid.CoinFromSymbol(symbol)

	s.mu.Lock()
	if _, ok := s.watched[coin]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.watched, coin)
	s.mu.Unlock()

	for _, subType := range []string{"l2Book", "trades", "activeAssetCtx"} {
		if err := s.ws.Unsubscribe(subType, coin); err != nil {
			s.log.Warn("unsubscribe failed", "symbol", symbol, "channel", subType, "error", err.Error())
		}
	}
}

// Subscribe registers a fan-out callback; returns the unsubscribe func.
func (s *Service) Subscribe(event EventType, callback func(Event)) func() {
	return s.dispatcher.Subscribe(event, callback)
}

// Cache exposes the read side for analysis loops.
func (s *Service) Cache() *Cache { return s.cache }

// Status returns the current connection status.
func (s *Service) Status() ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Service) handleStatus(status ConnectionStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()

	s.dispatcher.Publish(Event{Type: EventStatus, Data: status})
}

// wsFrame is the envelope of every venue message.
type wsFrame struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// handleMessage parses one frame and updates caches before fanning out.
// Unknown channels and malformed payloads are dropped; the wire loop never
// dies on a decoder error.
func (s *Service) handleMessage(raw []byte) {
	var frame wsFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return
	}

	switch frame.Channel {
	case "l2Book":
		s.handleBook(frame.Data)
	case "trades":
		s.handleTrades(frame.Data)
	case "activeAssetCtx":
		s.handleAssetCtx(frame.Data)
	case "liquidations":
		s.handleLiquidations(frame.Data)
	case "pong", "subscriptionResponse":
		// keepalive and acks carry no state
	default:
	}
}

func (s *Service) handleBook(data json.RawMessage) {
	var payload struct {
		Coin   string `json:"coin"`
		Time   int64  `json:"time"`
		Levels [][]struct {
			Px string `json:"px"`
			Sz string `json:"sz"`
			N  int    `json:"n"`
		} `json:"levels"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || len(payload.Levels) < 2 {
		return
	}

	parseSide := func(idx int) []hyperliquid.OrderBookLevel {
		levels := make([]hyperliquid.OrderBookLevel, 0, len(payload.Levels[idx]))
		for _, lvl := range payload.Levels[idx] {
			price, err := hyperliquid.ParseWireAmount(lvl.Px)
			if err != nil {
				continue
			}
			size, err := hyperliquid.ParseWireAmount(lvl.Sz)
			if err != nil {
				continue
			}
			priceF, _ := price.Float64()
			sizeF, _ := size.Float64()
			levels = append(levels, hyperliquid.OrderBookLevel{Price: priceF, Size: sizeF, NumOrders: lvl.N})
		}
		return levels
	}

	book := hyperliquid.BuildOrderBook(
		hyperliquid.SymbolFromCoin(payload.Coin), parseSide(0), parseSide(1), payload.Time)

	s.cache.SetOrderBook(book)
	s.dispatcher.Publish(Event{Type: EventOrderBook, Symbol: book.Symbol, Data: book})
}

func (s *Service) handleTrades(data json.RawMessage) {
	var payload []struct {
		Coin string `json:"coin"`
		Side string `json:"side"` // "B" buy, "A" sell
		Px   string `json:"px"`
		Sz   string `json:"sz"`
		Time int64  `json:"time"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}

	for _, t := range payload {
		price, err := hyperliquid.ParseWireAmount(t.Px)
		if err != nil {
			continue
		}
		size, err := hyperliquid.ParseWireAmount(t.Sz)
		if err != nil {
			continue
		}
		side := "sell"
		if t.Side == "B" {
			side = "buy"
		}
		priceF, _ := price.Float64()
		sizeF, _ := size.Float64()
		trade := hyperliquid.Trade{
			Symbol:    hyperliquid.SymbolFromCoin(t.Coin),
			Side:      side,
			Price:     priceF,
			Size:      sizeF,
			Timestamp: t.Time,
		}
		s.cache.AddTrade(trade)
		s.dispatcher.Publish(Event{Type: EventTrade, Symbol: trade.Symbol, Data: trade})
	}
}

func (s *Service) handleAssetCtx(data json.RawMessage) {
	var payload struct {
		Coin string `json:"coin"`
		Ctx  struct {
			Funding      string `json:"funding"`
			Premium      string `json:"premium"`
			OpenInterest string `json:"openInterest"`
		} `json:"ctx"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.Coin == "" {
		return
	}

	funding := hyperliquid.Funding{
		Symbol:    hyperliquid.SymbolFromCoin(payload.Coin),
		Timestamp: s.cache.clock.Now().UnixMilli(),
	}
	if rate, err := hyperliquid.ParseWireAmount(payload.Ctx.Funding); err == nil {
		funding.FundingRate, _ = rate.Float64()
	}
	if premium, err := hyperliquid.ParseWireAmount(payload.Ctx.Premium); err == nil {
		funding.PredictedRate, _ = premium.Float64()
	}
	if oi, err := hyperliquid.ParseWireAmount(payload.Ctx.OpenInterest); err == nil {
		funding.OpenInterest, _ = oi.Float64()
	}

	s.cache.SetFunding(funding)
	s.dispatcher.Publish(Event{Type: EventFunding, Symbol: funding.Symbol, Data: funding})
}

func (s *Service) handleLiquidations(data json.RawMessage) {
	var payload []struct {
		Coin string `json:"coin"`
		Side string `json:"side"` // "long" or "short" side liquidated
		Px   string `json:"px"`
		Sz   string `json:"sz"`
		Time int64  `json:"time"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}

	for _, l := range payload {
		price, err := hyperliquid.ParseWireAmount(l.Px)
		if err != nil {
			continue
		}
		size, err := hyperliquid.ParseWireAmount(l.Sz)
		if err != nil {
			continue
		}
		priceF, _ := price.Float64()
		sizeF, _ := size.Float64()
		liq := hyperliquid.Liquidation{
			Symbol:    hyperliquid.SymbolFromCoin(l.Coin),
			Side:      l.Side,
			Price:     priceF,
			Size:      sizeF,
			Timestamp: l.Time,
		}
		s.cache.AddLiquidation(liq)
		s.dispatcher.Publish(Event{Type: EventLiquidation, Symbol: liq.Symbol, Data: liq})
	}
}
