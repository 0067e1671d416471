package hyperliquid

import "context"

// ExchangeAdapter is the signed-operation surface of the venue. The bridge
// composes one adapter per agent; implementations are the native signer, the
// signing subprocess, and the paper simulator.
type ExchangeAdapter interface {
	// Balance returns the account margin summary.
	Balance(ctx context.Context) (*Balance, error)

	// Positions returns all open positions, dust included. Callers filter
	// with IsFlat.
	Positions(ctx context.Context) ([]Position, error)

	// PlaceOrder submits a market or limit order. Prices and sizes must
	// already be rounded to venue precision.
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)

	// PlaceTrigger submits a reduce-only stop-loss or take-profit leg.
	PlaceTrigger(ctx context.Context, req TriggerRequest) (*OrderResult, error)

	// CancelOrder cancels one resting order by id.
	CancelOrder(ctx context.Context, coin string, orderID int64) error

	// CancelAllOrders cancels every resting order, or only those for coin
	// when coin is non-empty.
	CancelAllOrders(ctx context.Context, coin string) error

	// OpenOrders lists resting orders, trigger legs included.
	OpenOrders(ctx context.Context) ([]OpenOrder, error)

	// CloseAll market-closes every open position. Used by the kill switch;
	// best effort, returns the first error after attempting all.
	CloseAll(ctx context.Context) error
}
