package autopilot

import (
	"strings"

	"hyperliquid-trading-bot/internal/hyperliquid"
)

// Correlation groups. Coins in one group tend to move together, so stacking
// positions inside a group concentrates risk rather than diversifying it.
var correlationGroups = map[string][]string{
	"btc_correlated": {"BTC", "ETH", "SOL", "BNB", "AVAX", "LTC", "BCH"},
	"meme":           {"DOGE", "SHIB", "PEPE", "WIF", "BONK", "FLOKI"},
	"defi":           {"UNI", "AAVE", "MKR", "CRV", "LDO", "SNX", "COMP"},
	"layer2":         {"ARB", "OP", "MATIC", "STRK", "ZK", "BLAST"},
	"ai":             {"FET", "RNDR", "TAO", "WLD", "NEAR", "GRT"},
}

const (
	maxCorrelatedPositions        = 2
	maxCorrelatedWithBTCOpenCount = 1
)

// correlationGroup returns the group name for a coin, or "".
func correlationGroup(coin string) string {
	upper := strings.ToUpper(coin)
	for name, coins := range correlationGroups {
		for _, c := range coins {
			if c == upper {
				return name
			}
		}
	}
	return ""
}

// CorrelationCheck decides whether opening candidate alongside the open
// positions would over-concentrate a correlated group. A live BTC position
// tightens the btc_correlated budget to one.
type CorrelationCheck struct {
	Allowed bool   `json:"allowed"`
	Group   string `json:"group,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func CheckCorrelation(candidate string, open []hyperliquid.Position) CorrelationCheck {
	coin := hyperliquid.CoinFromSymbol(candidate)
	group := correlationGroup(coin)
	if group == "" {
		return CorrelationCheck{Allowed: true}
	}

	var inGroup int
	var btcOpen bool
	for _, p := range open {
		if p.IsFlat() {
			continue
		}
		if strings.EqualFold(p.Coin, "BTC") {
			btcOpen = true
		}
		if correlationGroup(p.Coin) == group {
			inGroup++
		}
	}

	limit := maxCorrelatedPositions
	if group == "btc_correlated" && btcOpen && !strings.EqualFold(coin, "BTC") {
		limit = maxCorrelatedWithBTCOpenCount
	}
	if inGroup >= limit {
		return CorrelationCheck{
			Allowed: false,
			Group:   group,
			Reason:  "correlated exposure limit reached",
		}
	}
	return CorrelationCheck{Allowed: true, Group: group}
}
