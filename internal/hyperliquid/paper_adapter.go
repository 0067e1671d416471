package hyperliquid

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"hyperliquid-trading-bot/internal/clock"
	"hyperliquid-trading-bot/internal/logging"
)

// PaperAdapter simulates the exchange for paper mode. Orders fill immediately
// at the live mid with taker fees applied; trigger legs rest locally and are
// never executed, monitoring closes positions the same way it does live.
type PaperAdapter struct {
	info  *InfoClient
	clock clock.Clock
	log   *logging.Logger

	mu        sync.Mutex
	balance   decimal.Decimal
	positions map[string]*Position
	orders    map[int64]OpenOrder
	nextID    int64
}

// NewPaperAdapter creates a simulator funded with startingBalance USDC.
func NewPaperAdapter(info *InfoClient, startingBalance decimal.Decimal, clk clock.Clock, log *logging.Logger) *PaperAdapter {
	return &PaperAdapter{
		info:      info,
		clock:     clk,
		log:       log.WithComponent("paper-adapter"),
		balance:   startingBalance,
		positions: make(map[string]*Position),
		orders:    make(map[int64]OpenOrder),
		nextID:    1,
	}
}

func (a *PaperAdapter) Balance(ctx context.Context) (*Balance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	marginUsed := decimal.Zero
	for _, p := range a.positions {
		marginUsed = marginUsed.Add(p.PositionValue.Div(decimal.NewFromInt(int64(p.Leverage))))
	}
	return &Balance{
		AccountValue: a.balance,
		Withdrawable: a.balance.Sub(marginUsed),
		MarginUsed:   marginUsed,
	}, nil
}

func (a *PaperAdapter) Positions(ctx context.Context) ([]Position, error) {
	mids, err := a.info.AllMids(ctx)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	positions := make([]Position, 0, len(a.positions))
	for coin, p := range a.positions {
		out := *p
		if mid, ok := mids[coin]; ok {
			out.UnrealizedPnl = mid.Sub(p.EntryPrice).Mul(p.Size)
			out.PositionValue = mid.Mul(p.Size.Abs())
		}
		positions = append(positions, out)
	}
	return positions, nil
}

func (a *PaperAdapter) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	mids, err := a.info.AllMids(ctx)
	if err != nil {
		return nil, err
	}
	mid, ok := mids[req.Coin]
	if !ok {
		return nil, newVenueError(KindInvalidResponse, "no mid for "+req.Coin, nil)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	size := decimal.NewFromFloat(req.Size)
	signed := size
	if req.Side == SideSell {
		signed = size.Neg()
	}

	fee := mid.Mul(size).Mul(TakerFeeRate)
	a.balance = a.balance.Sub(fee)

	pos, exists := a.positions[req.Coin]
	if !exists {
		a.positions[req.Coin] = &Position{
			Coin:          req.Coin,
			Size:          signed,
			EntryPrice:    mid,
			PositionValue: mid.Mul(size),
			Leverage:      MaxLeverage(req.Coin),
		}
	} else {
		newSize := pos.Size.Add(signed)
		if newSize.Abs().LessThan(flatThreshold) {
			// Closing: realize pnl against the entry.
			pnl := mid.Sub(pos.EntryPrice).Mul(pos.Size)
			a.balance = a.balance.Add(pnl)
			delete(a.positions, req.Coin)
		} else if pos.Size.Sign() == signed.Sign() {
			// Adding: volume-weighted entry.
			notional := pos.EntryPrice.Mul(pos.Size.Abs()).Add(mid.Mul(size))
			pos.EntryPrice = notional.Div(newSize.Abs())
			pos.Size = newSize
			pos.PositionValue = mid.Mul(newSize.Abs())
		} else {
			// Reducing: realize pnl on the closed slice.
			closed := decimal.Min(size, pos.Size.Abs())
			direction := decimal.NewFromInt(int64(pos.Size.Sign()))
			pnl := mid.Sub(pos.EntryPrice).Mul(closed).Mul(direction)
			a.balance = a.balance.Add(pnl)
			pos.Size = newSize
			pos.PositionValue = mid.Mul(newSize.Abs())
		}
	}

	id := a.nextID
	a.nextID++
	a.log.Info("paper fill", "coin", req.Coin, "side", req.Side, "size", req.Size, "px", mid.String())
	return &OrderResult{OrderID: id, Filled: true, AvgFillPrice: mid, FilledSize: size}, nil
}

func (a *PaperAdapter) PlaceTrigger(ctx context.Context, req TriggerRequest) (*OrderResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextID
	a.nextID++
	a.orders[id] = OpenOrder{
		Coin:         req.Coin,
		OrderID:      id,
		Side:         req.Side,
		Size:         req.Size,
		TriggerPrice: req.TriggerPrice,
		IsTrigger:    true,
		ReduceOnly:   true,
		Timestamp:    a.clock.Now().UnixMilli(),
	}
	return &OrderResult{OrderID: id, Filled: false}, nil
}

func (a *PaperAdapter) CancelOrder(ctx context.Context, coin string, orderID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.orders[orderID]; !ok {
		return newVenueError(KindVenueError, "order not found", nil)
	}
	delete(a.orders, orderID)
	return nil
}

func (a *PaperAdapter) CancelAllOrders(ctx context.Context, coin string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, o := range a.orders {
		if coin == "" || o.Coin == coin {
			delete(a.orders, id)
		}
	}
	return nil
}

func (a *PaperAdapter) OpenOrders(ctx context.Context) ([]OpenOrder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	orders := make([]OpenOrder, 0, len(a.orders))
	for _, o := range a.orders {
		orders = append(orders, o)
	}
	return orders, nil
}

func (a *PaperAdapter) CloseAll(ctx context.Context) error {
	a.mu.Lock()
	coins := make([]string, 0, len(a.positions))
	sizes := make(map[string]OrderRequest, len(a.positions))
	for coin, p := range a.positions {
		side := SideSell
		if !p.IsLong() {
			side = SideBuy
		}
		size, _ := p.Size.Abs().Float64()
		coins = append(coins, coin)
		sizes[coin] = OrderRequest{Coin: coin, Side: side, Size: size, ReduceOnly: true}
	}
	a.mu.Unlock()

	var firstErr error
	for _, coin := range coins {
		if _, err := a.PlaceOrder(ctx, sizes[coin]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
