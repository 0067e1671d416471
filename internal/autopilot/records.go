package autopilot

import (
	"time"

	"github.com/shopspring/decimal"

	"hyperliquid-trading-bot/internal/hyperliquid"
)

// TradeStatus is the lifecycle state of a trade record. Transitions are
// open -> closed or open -> cancelled only.
type TradeStatus string

const (
	TradeOpen      TradeStatus = "open"
	TradeClosed    TradeStatus = "closed"
	TradeCancelled TradeStatus = "cancelled"
)

// TradeRecord is the authoritative account of one trade. Accounting fields
// are decimals; once closed, NetPnl = GrossPnl - EntryFee - ExitFee.
type TradeRecord struct {
	ID            string                `json:"id"`
	UserWallet    string                `json:"user_wallet,omitempty"`
	Symbol        string                `json:"symbol"`
	Side          hyperliquid.OrderSide `json:"side"`
	EntryPrice    decimal.Decimal       `json:"entry_price"`
	Quantity      decimal.Decimal       `json:"quantity"`
	Leverage      int                   `json:"leverage"`
	StopLoss      decimal.Decimal       `json:"stop_loss"`
	TakeProfit    decimal.Decimal       `json:"take_profit"`
	EntryFee      decimal.Decimal       `json:"entry_fee"`
	ExitFee       decimal.Decimal       `json:"exit_fee"`
	ExitPrice     decimal.Decimal       `json:"exit_price,omitempty"`
	ExitTime      int64                 `json:"exit_time,omitempty"` // ms
	Status        TradeStatus           `json:"status"`
	GrossPnl      decimal.Decimal       `json:"gross_pnl,omitempty"`
	NetPnl        decimal.Decimal       `json:"net_pnl,omitempty"`
	Confidence    float64               `json:"confidence"`
	ReasoningText string                `json:"reasoning_text,omitempty"`
	Timestamp     int64                 `json:"timestamp"` // ms
}

// IsLong reports the direction of the trade.
func (t *TradeRecord) IsLong() bool { return t.Side == hyperliquid.SideBuy }

// Close marks the record closed at exitPrice, settling gross and net PnL.
func (t *TradeRecord) Close(exitPrice decimal.Decimal, exitTime time.Time) {
	t.ExitPrice = exitPrice
	t.ExitTime = exitTime.UnixMilli()
	t.Status = TradeClosed

	diff := exitPrice.Sub(t.EntryPrice)
	if !t.IsLong() {
		diff = diff.Neg()
	}
	t.GrossPnl = diff.Mul(t.Quantity)
	t.NetPnl = t.GrossPnl.Sub(t.EntryFee).Sub(t.ExitFee)
}

// TrailingState tracks in-flight stop management for one open trade.
type TrailingState struct {
	EntryPrice        float64 `json:"entry_price"`
	CurrentStop       float64 `json:"current_stop"`
	HighestSeen       float64 `json:"highest_seen"`
	LowestSeen        float64 `json:"lowest_seen"`
	TrailingActivated bool    `json:"trailing_activated"`
	PartialTaken      bool    `json:"partial_taken"`
	BreakevenDone     bool    `json:"breakeven_done"`
}

// TradeStore persists trade records. Upsert must be atomic per record;
// concurrent writers for the same id serialize last-writer-wins.
type TradeStore interface {
	Load(sinceTs int64, limit int) ([]TradeRecord, error)
	Upsert(trade TradeRecord) error
}

// SettingsStore persists per-wallet settings.
type SettingsStore interface {
	Get(wallet string) (*Settings, error)
	Put(wallet string, settings Settings) error
}

// AgentStore persists agent credentials with at-rest protection.
type AgentStore interface {
	Get(wallet string) (*hyperliquid.AgentCredentials, error)
	Put(wallet string, creds hyperliquid.AgentCredentials) error
	Delete(wallet string) error
}
