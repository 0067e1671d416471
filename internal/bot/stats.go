package bot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"hyperliquid-trading-bot/internal/autopilot"
)

// PerformanceSummary aggregates a wallet's closed and open trades.
type PerformanceSummary struct {
	Wallet       string          `json:"wallet"`
	TotalTrades  int             `json:"total_trades"`
	OpenTrades   int             `json:"open_trades"`
	Wins         int             `json:"wins"`
	Losses       int             `json:"losses"`
	WinRate      float64         `json:"win_rate"`
	GrossPnl     decimal.Decimal `json:"gross_pnl"`
	NetPnl       decimal.Decimal `json:"net_pnl"`
	Fees         decimal.Decimal `json:"fees"`
	Volume       decimal.Decimal `json:"volume"`
	AvgWin       decimal.Decimal `json:"avg_win"`
	AvgLoss      decimal.Decimal `json:"avg_loss"`
	ProfitFactor float64         `json:"profit_factor"`
	BestTrade    decimal.Decimal `json:"best_trade"`
	WorstTrade   decimal.Decimal `json:"worst_trade"`
}

// summarize folds trade records into a summary. Only closed trades count
// toward PnL; volume includes both legs of closed trades.
func summarize(wallet string, records []autopilot.TradeRecord) PerformanceSummary {
	s := PerformanceSummary{Wallet: wallet}
	var winSum, lossSum decimal.Decimal

	for _, r := range records {
		switch r.Status {
		case autopilot.TradeOpen:
			s.OpenTrades++
			s.Volume = s.Volume.Add(r.EntryPrice.Mul(r.Quantity))
			continue
		case autopilot.TradeCancelled:
			continue
		}

		s.TotalTrades++
		s.GrossPnl = s.GrossPnl.Add(r.GrossPnl)
		s.NetPnl = s.NetPnl.Add(r.NetPnl)
		s.Fees = s.Fees.Add(r.EntryFee).Add(r.ExitFee)
		s.Volume = s.Volume.Add(r.EntryPrice.Mul(r.Quantity)).Add(r.ExitPrice.Mul(r.Quantity))

		if r.NetPnl.IsPositive() {
			s.Wins++
			winSum = winSum.Add(r.NetPnl)
		} else {
			s.Losses++
			lossSum = lossSum.Add(r.NetPnl)
		}
		if s.TotalTrades == 1 || r.NetPnl.GreaterThan(s.BestTrade) {
			s.BestTrade = r.NetPnl
		}
		if s.TotalTrades == 1 || r.NetPnl.LessThan(s.WorstTrade) {
			s.WorstTrade = r.NetPnl
		}
	}

	if s.TotalTrades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.TotalTrades)
	}
	if s.Wins > 0 {
		s.AvgWin = winSum.Div(decimal.NewFromInt(int64(s.Wins)))
	}
	if s.Losses > 0 {
		s.AvgLoss = lossSum.Div(decimal.NewFromInt(int64(s.Losses)))
	}
	if lossSum.IsNegative() {
		pf, _ := winSum.Div(lossSum.Neg()).Float64()
		s.ProfitFactor = pf
	} else if winSum.IsPositive() {
		s.ProfitFactor = -1 // no losing trades yet
	}
	return s
}

// Performance summarizes one wallet's trades since sinceTs.
func (b *Bot) Performance(wallet string, sinceTs int64) (PerformanceSummary, error) {
	records, err := b.TradeHistory(wallet, sinceTs, 0)
	if err != nil {
		return PerformanceSummary{}, err
	}
	return summarize(wallet, records), nil
}

// LeaderboardEntry is one wallet's ranked aggregate.
type LeaderboardEntry struct {
	Wallet  string          `json:"wallet"`
	NetPnl  decimal.Decimal `json:"net_pnl"`
	Volume  decimal.Decimal `json:"volume"`
	Fees    decimal.Decimal `json:"fees"`
	Trades  int             `json:"trades"`
	WinRate float64         `json:"win_rate"`
}

// Leaderboard ranks every wallet with trade history. sortBy is one of pnl,
// volume, fees, trades, winrate; ties break on wallet for a stable order.
func (b *Bot) Leaderboard(sortBy string, sinceTs int64) ([]LeaderboardEntry, error) {
	records, err := b.stores.Trades.Load(sinceTs, 0)
	if err != nil {
		return nil, err
	}

	byWallet := make(map[string][]autopilot.TradeRecord)
	for _, r := range records {
		if r.UserWallet == "" {
			continue
		}
		key := strings.ToLower(r.UserWallet)
		byWallet[key] = append(byWallet[key], r)
	}

	entries := make([]LeaderboardEntry, 0, len(byWallet))
	for wallet, trades := range byWallet {
		sum := summarize(wallet, trades)
		entries = append(entries, LeaderboardEntry{
			Wallet:  wallet,
			NetPnl:  sum.NetPnl,
			Volume:  sum.Volume,
			Fees:    sum.Fees,
			Trades:  sum.TotalTrades,
			WinRate: sum.WinRate,
		})
	}

	less, err := leaderboardLess(sortBy, entries)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, less)
	return entries, nil
}

func leaderboardLess(sortBy string, entries []LeaderboardEntry) (func(i, j int) bool, error) {
	tiebreak := func(i, j int) bool { return entries[i].Wallet < entries[j].Wallet }

	switch sortBy {
	case "", "pnl":
		return func(i, j int) bool {
			if !entries[i].NetPnl.Equal(entries[j].NetPnl) {
				return entries[i].NetPnl.GreaterThan(entries[j].NetPnl)
			}
			return tiebreak(i, j)
		}, nil
	case "volume":
		return func(i, j int) bool {
			if !entries[i].Volume.Equal(entries[j].Volume) {
				return entries[i].Volume.GreaterThan(entries[j].Volume)
			}
			return tiebreak(i, j)
		}, nil
	case "fees":
		return func(i, j int) bool {
			if !entries[i].Fees.Equal(entries[j].Fees) {
				return entries[i].Fees.GreaterThan(entries[j].Fees)
			}
			return tiebreak(i, j)
		}, nil
	case "trades":
		return func(i, j int) bool {
			if entries[i].Trades != entries[j].Trades {
				return entries[i].Trades > entries[j].Trades
			}
			return tiebreak(i, j)
		}, nil
	case "winrate":
		return func(i, j int) bool {
			if entries[i].WinRate != entries[j].WinRate {
				return entries[i].WinRate > entries[j].WinRate
			}
			return tiebreak(i, j)
		}, nil
	default:
		return nil, fmt.Errorf("unknown sort key %q", sortBy)
	}
}
