package hyperliquid

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"hyperliquid-trading-bot/internal/logging"
)

// Retry policy for venue operations.
const (
	retryAttempts = 3
	retryBase     = 1 * time.Second
	retryBudget   = 30 * time.Second
)

// ErrNoAgent is returned when an operation references an unregistered agent.
var ErrNoAgent = errors.New("no agent registered")

// agentSlot pairs an adapter with the mutex that serializes its signed
// operations. The venue rejects out-of-order nonces per agent key.
type agentSlot struct {
	mu      sync.Mutex
	adapter ExchangeAdapter
}

// Bridge is the engine-facing venue facade. Reads go to the info endpoint;
// signed operations are dispatched to the per-agent adapter with retry and
// failure classification applied uniformly.
type Bridge struct {
	info *InfoClient
	log  *logging.Logger

	mu           sync.RWMutex
	agents       map[string]*agentSlot // keyed by lowercase user wallet
	defaultAgent string
}

// NewBridge creates a bridge over the info client. Agents are registered
// separately as users arm.
func NewBridge(info *InfoClient, log *logging.Logger) *Bridge {
	return &Bridge{
		info:   info,
		log:    log.WithComponent("bridge"),
		agents: make(map[string]*agentSlot),
	}
}

// RegisterAgent binds an adapter to a user wallet. The first registered agent
// becomes the default for calls that omit the agent.
func (b *Bridge) RegisterAgent(userWallet string, adapter ExchangeAdapter) {
	key := strings.ToLower(userWallet)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.agents[key] = &agentSlot{adapter: adapter}
	if b.defaultAgent == "" {
		b.defaultAgent = key
	}
}

// RemoveAgent drops an agent binding.
func (b *Bridge) RemoveAgent(userWallet string) {
	key := strings.ToLower(userWallet)

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.agents, key)
	if b.defaultAgent == key {
		b.defaultAgent = ""
		for k := range b.agents {
			b.defaultAgent = k
			break
		}
	}
}

// slot resolves the agent slot, falling back to the default agent.
func (b *Bridge) slot(agent string) (*agentSlot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	key := strings.ToLower(agent)
	if key == "" {
		key = b.defaultAgent
	}
	s, ok := b.agents[key]
	if !ok {
		return nil, fmt.Errorf("%w for wallet %q", ErrNoAgent, agent)
	}
	return s, nil
}

// withRetry runs op under the bridge retry policy: exponential backoff from
// 1s, 3 attempts, 30s total budget. Unauthorized and invalid-response
// failures are never retried.
func (b *Bridge) withRetry(ctx context.Context, name string, op func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, retryBudget)
	defer cancel()

	backoff := retryBase
	var lastErr error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if ve, ok := AsVenueError(lastErr); ok && !ve.Retryable() {
			return lastErr
		}
		if attempt == retryAttempts {
			break
		}

		b.log.Warn("venue operation failed, retrying",
			"op", name, "attempt", attempt, "backoff", backoff.String(), "error", lastErr.Error())
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("%s: retry budget exhausted: %w", name, lastErr)
		}
		backoff *= 2
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, retryAttempts, lastErr)
}

// GetBalance returns the agent's margin summary.
func (b *Bridge) GetBalance(ctx context.Context, agent string) (*Balance, error) {
	s, err := b.slot(agent)
	if err != nil {
		return nil, err
	}

	var balance *Balance
	err = b.withRetry(ctx, "get_balance", func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		var opErr error
		balance, opErr = s.adapter.Balance(ctx)
		return opErr
	})
	return balance, err
}

// GetPositions returns non-flat positions for the agent.
func (b *Bridge) GetPositions(ctx context.Context, agent string) ([]Position, error) {
	s, err := b.slot(agent)
	if err != nil {
		return nil, err
	}

	var all []Position
	err = b.withRetry(ctx, "get_positions", func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		var opErr error
		all, opErr = s.adapter.Positions(ctx)
		return opErr
	})
	if err != nil {
		return nil, err
	}

	positions := all[:0]
	for _, p := range all {
		if !p.IsFlat() {
			positions = append(positions, p)
		}
	}
	return positions, nil
}

// HasOpenPosition reports whether the agent holds a non-flat position in coin.
func (b *Bridge) HasOpenPosition(ctx context.Context, coin, agent string) (bool, error) {
	positions, err := b.GetPositions(ctx, agent)
	if err != nil {
		return false, err
	}
	for _, p := range positions {
		if p.Coin == coin {
			return true, nil
		}
	}
	return false, nil
}

// GetOrderBook returns the normalized L2 snapshot. Public data, no agent.
func (b *Bridge) GetOrderBook(ctx context.Context, coin string, depth int) (*OrderBook, error) {
	var book *OrderBook
	err := b.withRetry(ctx, "get_orderbook", func(ctx context.Context) error {
		var opErr error
		book, opErr = b.info.L2Book(ctx, coin, depth)
		return opErr
	})
	return book, err
}

// ExecuteMarketOrder places an immediate order at venue-rounded size.
func (b *Bridge) ExecuteMarketOrder(ctx context.Context, coin string, side OrderSide, size float64, agent string) (*OrderResult, error) {
	return b.placeOrder(ctx, agent, "market_order", OrderRequest{
		Coin: coin,
		Side: side,
		Size: RoundSize(coin, size),
	})
}

// ExecuteLimitOrder places a limit order with slippage applied toward the
// taker side: buys pay up, sells give down.
func (b *Bridge) ExecuteLimitOrder(ctx context.Context, coin string, side OrderSide, size, price, slippagePct float64, agent string) (*OrderResult, error) {
	adjusted := price * (1 + slippagePct)
	if side == SideSell {
		adjusted = price * (1 - slippagePct)
	}
	return b.placeOrder(ctx, agent, "limit_order", OrderRequest{
		Coin:       coin,
		Side:       side,
		Size:       RoundSize(coin, size),
		LimitPrice: RoundPrice(adjusted),
	})
}

// PlaceStopLoss places a reduce-only stop trigger on the closing side.
func (b *Bridge) PlaceStopLoss(ctx context.Context, coin string, closeSide OrderSide, size, triggerPrice float64, agent string) (*OrderResult, error) {
	return b.placeTrigger(ctx, agent, TriggerRequest{
		Coin:         coin,
		Side:         closeSide,
		Size:         RoundSize(coin, size),
		Kind:         TriggerStopLoss,
		TriggerPrice: RoundPrice(triggerPrice),
	})
}

// PlaceTakeProfit places a reduce-only take-profit trigger on the closing side.
func (b *Bridge) PlaceTakeProfit(ctx context.Context, coin string, closeSide OrderSide, size, triggerPrice float64, agent string) (*OrderResult, error) {
	return b.placeTrigger(ctx, agent, TriggerRequest{
		Coin:         coin,
		Side:         closeSide,
		Size:         RoundSize(coin, size),
		Kind:         TriggerTakeProfit,
		TriggerPrice: RoundPrice(triggerPrice),
	})
}

func (b *Bridge) placeOrder(ctx context.Context, agent, name string, req OrderRequest) (*OrderResult, error) {
	s, err := b.slot(agent)
	if err != nil {
		return nil, err
	}

	var result *OrderResult
	err = b.withRetry(ctx, name, func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		var opErr error
		result, opErr = s.adapter.PlaceOrder(ctx, req)
		return opErr
	})
	return result, err
}

func (b *Bridge) placeTrigger(ctx context.Context, agent string, req TriggerRequest) (*OrderResult, error) {
	s, err := b.slot(agent)
	if err != nil {
		return nil, err
	}

	var result *OrderResult
	err = b.withRetry(ctx, "trigger_"+string(req.Kind), func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		var opErr error
		result, opErr = s.adapter.PlaceTrigger(ctx, req)
		return opErr
	})
	return result, err
}

// CancelOrder cancels one resting order.
func (b *Bridge) CancelOrder(ctx context.Context, coin string, orderID int64, agent string) error {
	s, err := b.slot(agent)
	if err != nil {
		return err
	}
	return b.withRetry(ctx, "cancel_order", func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.adapter.CancelOrder(ctx, coin, orderID)
	})
}

// CancelAllOrders cancels all resting orders, optionally scoped to a coin.
func (b *Bridge) CancelAllOrders(ctx context.Context, coin, agent string) error {
	s, err := b.slot(agent)
	if err != nil {
		return err
	}
	return b.withRetry(ctx, "cancel_all", func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.adapter.CancelAllOrders(ctx, coin)
	})
}

// GetOpenOrders lists the agent's resting orders.
func (b *Bridge) GetOpenOrders(ctx context.Context, agent string) ([]OpenOrder, error) {
	s, err := b.slot(agent)
	if err != nil {
		return nil, err
	}

	var orders []OpenOrder
	err = b.withRetry(ctx, "open_orders", func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		var opErr error
		orders, opErr = s.adapter.OpenOrders(ctx)
		return opErr
	})
	return orders, err
}

// ClosePosition market-closes the agent's position in coin by placing the
// opposite-side order for the current size. No-op when already flat.
func (b *Bridge) ClosePosition(ctx context.Context, coin, agent string) (*OrderResult, error) {
	positions, err := b.GetPositions(ctx, agent)
	if err != nil {
		return nil, err
	}

	for _, p := range positions {
		if p.Coin != coin {
			continue
		}
		side := SideSell
		if !p.IsLong() {
			side = SideBuy
		}
		size, _ := p.Size.Abs().Float64()
		return b.placeOrder(ctx, agent, "close_position", OrderRequest{
			Coin:       coin,
			Side:       side,
			Size:       RoundSize(coin, size),
			ReduceOnly: true,
		})
	}
	return nil, nil
}

// CloseAllPositions market-closes every position for the agent. Used by the
// kill switch; attempts all positions before reporting the first error.
func (b *Bridge) CloseAllPositions(ctx context.Context, agent string) error {
	s, err := b.slot(agent)
	if err != nil {
		return err
	}
	return b.withRetry(ctx, "close_all", func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.adapter.CloseAll(ctx)
	})
}

// Info exposes the underlying info client for public-data consumers.
func (b *Bridge) Info() *InfoClient { return b.info }
