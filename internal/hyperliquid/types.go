package hyperliquid

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Fee constants published by the venue. Accounting uses decimals so fee and
// PnL totals do not drift.
var (
	TakerFeeRate = decimal.RequireFromString("0.00035")
	MakerFeeRate = decimal.RequireFromString("0.0001")
)

// FundingInterval is the venue's funding settlement period.
const FundingInterval = time.Hour

// CoinFromSymbol strips the -PERP suffix; the bare coin is what the venue
// bridge speaks, the -PERP form is used everywhere else.
func CoinFromSymbol(symbol string) string {
	return strings.TrimSuffix(strings.ToUpper(symbol), "-PERP")
}

// SymbolFromCoin returns the venue-qualified perpetual identifier.
func SymbolFromCoin(coin string) string {
	return strings.ToUpper(coin) + "-PERP"
}

// AgentCredentials is a subordinate signing key approved by the user's master
// wallet. The engine never holds the master key.
type AgentCredentials struct {
	UserWallet   string    `json:"user_wallet"`
	AgentAddress string    `json:"agent_address"`
	AgentKey     string    `json:"agent_key"`
	AgentName    string    `json:"agent_name"`
	ApprovedAt   time.Time `json:"approved_at"`
}

// Balance is the account margin summary.
type Balance struct {
	AccountValue decimal.Decimal `json:"account_value"`
	Withdrawable decimal.Decimal `json:"withdrawable"`
	MarginUsed   decimal.Decimal `json:"margin_used"`
}

// Position is a venue-reported perpetual position. Size is signed: positive
// long, negative short.
type Position struct {
	Coin          string          `json:"coin"`
	Size          decimal.Decimal `json:"size"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	PositionValue decimal.Decimal `json:"position_value"`
	UnrealizedPnl decimal.Decimal `json:"unrealized_pnl"`
	Leverage      int             `json:"leverage"`
}

// flatThreshold is the size below which a position is treated as closed.
var flatThreshold = decimal.RequireFromString("0.00001")

// IsFlat reports whether the position size is dust.
func (p *Position) IsFlat() bool {
	return p.Size.Abs().LessThan(flatThreshold)
}

// IsLong reports position direction.
func (p *Position) IsLong() bool { return p.Size.Sign() > 0 }

// OrderBookLevel is one price level of the L2 book.
type OrderBookLevel struct {
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	NumOrders int     `json:"num_orders,omitempty"`
}

// OrderBook is the normalized L2 snapshot with derived fields.
type OrderBook struct {
	Symbol    string           `json:"symbol"`
	Bids      []OrderBookLevel `json:"bids"` // descending by price
	Asks      []OrderBookLevel `json:"asks"` // ascending by price
	MidPrice  float64          `json:"mid_price"`
	Spread    float64          `json:"spread"`
	SpreadPct float64          `json:"spread_pct"`
	Imbalance float64          `json:"imbalance"` // top-5 bid share, 0..1
	BidWall   *OrderBookLevel  `json:"bid_wall,omitempty"`
	AskWall   *OrderBookLevel  `json:"ask_wall,omitempty"`
	Timestamp int64            `json:"timestamp"` // ms
}

// Trade is one public trade tick.
type Trade struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"` // "buy" or "sell"
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	Timestamp int64   `json:"timestamp"` // ms
}

// Liquidation is one liquidation tick.
type Liquidation struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"` // "long" or "short"
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	Timestamp int64   `json:"timestamp"` // ms
}

// Funding is the per-symbol funding/open-interest context. PredictedRate is
// carried verbatim from the wire "premium" field.
type Funding struct {
	Symbol        string  `json:"symbol"`
	FundingRate   float64 `json:"funding_rate"`
	PredictedRate float64 `json:"predicted_rate"`
	OpenInterest  float64 `json:"open_interest"`
	Timestamp     int64   `json:"timestamp"` // ms
}

// Candle is one OHLCV bar from candleSnapshot.
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// AssetContext is per-asset market context from metaAndAssetCtxs.
type AssetContext struct {
	Coin         string  `json:"coin"`
	MarkPrice    float64 `json:"mark_price"`
	MidPrice     float64 `json:"mid_price"`
	FundingRate  float64 `json:"funding_rate"`
	Premium      float64 `json:"premium"`
	OpenInterest float64 `json:"open_interest"`
	DayVolume    float64 `json:"day_volume"` // 24h notional volume
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// Opposite returns the closing side for a position side.
func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderRequest describes a market or limit order.
type OrderRequest struct {
	Coin       string
	Side       OrderSide
	Size       float64
	LimitPrice float64 // 0 for market
	ReduceOnly bool
}

// TriggerKind selects the conditional order leg.
type TriggerKind string

const (
	TriggerStopLoss   TriggerKind = "sl"
	TriggerTakeProfit TriggerKind = "tp"
)

// TriggerRequest describes a reduce-only trigger order.
type TriggerRequest struct {
	Coin         string
	Side         OrderSide // side of the closing order
	Size         float64
	Kind         TriggerKind
	TriggerPrice float64
}

// OrderResult is the normalized venue response for order placement.
type OrderResult struct {
	OrderID      int64           `json:"order_id"`
	Filled       bool            `json:"filled"`
	AvgFillPrice decimal.Decimal `json:"avg_fill_price"`
	FilledSize   decimal.Decimal `json:"filled_size"`
	Raw          string          `json:"raw,omitempty"`
}

// OpenOrder is one resting order reported by the venue.
type OpenOrder struct {
	Coin         string    `json:"coin"`
	OrderID      int64     `json:"order_id"`
	Side         OrderSide `json:"side"`
	Size         float64   `json:"size"`
	LimitPrice   float64   `json:"limit_price"`
	TriggerPrice float64   `json:"trigger_price,omitempty"`
	IsTrigger    bool      `json:"is_trigger"`
	ReduceOnly   bool      `json:"reduce_only"`
	Timestamp    int64     `json:"timestamp"`
}
