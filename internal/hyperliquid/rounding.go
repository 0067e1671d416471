package hyperliquid

import (
	"math"
	"strings"
)

// szDecimals is the per-coin size precision table published by the venue.
// Unknown coins default to 2 decimals.
var szDecimals = map[string]int{
	"BTC":   4,
	"ETH":   3,
	"SOL":   2,
	"AVAX":  2,
	"LINK":  1,
	"DOGE":  0,
	"XRP":   0,
	"ARB":   1,
	"OP":    1,
	"MATIC": 1,
	"SUI":   1,
	"WIF":   0,
	"PEPE":  0,
	"INJ":   1,
	"TIA":   1,
	"APT":   2,
}

const defaultSzDecimals = 2

// RoundPrice rounds a price to the venue's tick bucket for its magnitude.
// The bucket is chosen from the current price, so 9999.6 rounds to 0.1
// precision while 10000.4 rounds to an integer.
func RoundPrice(price float64) float64 {
	var tick float64
	switch {
	case price >= 10000:
		tick = 1
	case price >= 1000:
		tick = 0.1
	case price >= 100:
		tick = 0.01
	case price >= 10:
		tick = 0.001
	case price >= 1:
		tick = 0.0001
	case price >= 0.1:
		tick = 0.00001
	default:
		tick = 0.000001
	}
	return math.Round(price/tick) * tick
}

// RoundSize rounds a size up to the coin's size precision. Rounding up keeps
// orders above the venue's minimum-notional requirement.
func RoundSize(coin string, size float64) float64 {
	decimals, ok := szDecimals[strings.ToUpper(coin)]
	if !ok {
		decimals = defaultSzDecimals
	}
	factor := math.Pow10(decimals)
	return math.Ceil(size*factor) / factor
}

// SizeDecimals returns the size precision for a coin.
func SizeDecimals(coin string) int {
	if d, ok := szDecimals[strings.ToUpper(coin)]; ok {
		return d
	}
	return defaultSzDecimals
}

// MaxLeverage returns the venue's per-symbol leverage cap by liquidity tier.
// Unknown symbols get the most conservative tier.
func MaxLeverage(coin string) int {
	switch strings.ToUpper(coin) {
	case "BTC", "ETH":
		return 50
	case "SOL", "XRP", "BNB", "AVAX", "LINK", "DOGE":
		return 25
	case "ARB", "OP", "MATIC", "SUI", "INJ", "TIA", "APT", "LTC", "ATOM":
		return 20
	case "AAVE", "CRV", "UNI", "SNX", "FTM", "NEAR", "SEI":
		return 10
	default:
		return 5
	}
}
