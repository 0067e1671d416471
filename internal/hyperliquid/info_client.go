package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"hyperliquid-trading-bot/internal/logging"
)

// InfoClient speaks the venue's HTTP info endpoint: a single POST URL that
// dispatches on the "type" field of the JSON body. Prices and sizes arrive as
// decimal strings and are parsed through decimals, never directly to floats.
type InfoClient struct {
	http *resty.Client
	log  *logging.Logger
}

// NewInfoClient creates an info client with retry and timeout defaults
// matching the bridge policy (base 1s backoff, 3 attempts, 30s budget).
func NewInfoClient(infoURL string, timeout time.Duration, log *logging.Logger) *InfoClient {
	client := resty.New().
		SetBaseURL(infoURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(8 * time.Second).
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})

	return &InfoClient{
		http: client,
		log:  log.WithComponent("info-client"),
	}
}

func (c *InfoClient) post(ctx context.Context, body map[string]interface{}) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post("")
	if err != nil {
		return nil, newVenueError(KindTimeout, "info request failed", err)
	}

	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return nil, newVenueError(KindRateLimited, "info endpoint rate limited", nil)
	case resp.StatusCode() == http.StatusUnauthorized, resp.StatusCode() == http.StatusForbidden:
		return nil, newVenueError(KindUnauthorized, "info endpoint rejected request", nil)
	case resp.StatusCode() != http.StatusOK:
		return nil, &VenueError{Kind: KindVenueError, Code: resp.StatusCode(), Message: string(resp.Body())}
	}

	return resp.Body(), nil
}

// AllMids returns the current mid price for every listed coin.
func (c *InfoClient) AllMids(ctx context.Context) (map[string]decimal.Decimal, error) {
	body, err := c.post(ctx, map[string]interface{}{"type": "allMids"})
	if err != nil {
		return nil, err
	}

	var raw map[string]string
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, newVenueError(KindInvalidResponse, "allMids payload", err)
	}

	mids := make(map[string]decimal.Decimal, len(raw))
	for coin, px := range raw {
		d, err := decimal.NewFromString(px)
		if err != nil {
			c.log.Debug("dropping unparseable mid", "coin", coin, "px", px)
			continue
		}
		mids[coin] = d
	}
	return mids, nil
}

// metaPayload is the raw universe response.
type metaPayload struct {
	Universe []struct {
		Name        string `json:"name"`
		SzDecimals  int    `json:"szDecimals"`
		MaxLeverage int    `json:"maxLeverage"`
	} `json:"universe"`
}

// assetCtxPayload is the raw per-asset context; values are decimal strings.
type assetCtxPayload struct {
	Funding      string `json:"funding"`
	OpenInterest string `json:"openInterest"`
	PrevDayPx    string `json:"prevDayPx"`
	DayNtlVlm    string `json:"dayNtlVlm"`
	Premium      string `json:"premium"`
	MarkPx       string `json:"markPx"`
	MidPx        string `json:"midPx"`
}

// MetaAndAssetCtxs returns asset contexts keyed by coin. The response is
// positional: [meta, assetCtxs[]], with assetCtxs aligned to meta.universe.
func (c *InfoClient) MetaAndAssetCtxs(ctx context.Context) (map[string]*AssetContext, error) {
	body, err := c.post(ctx, map[string]interface{}{"type": "metaAndAssetCtxs"})
	if err != nil {
		return nil, err
	}

	var positional []json.RawMessage
	if err := json.Unmarshal(body, &positional); err != nil || len(positional) < 2 {
		return nil, newVenueError(KindInvalidResponse, "metaAndAssetCtxs shape", err)
	}

	var meta metaPayload
	if err := json.Unmarshal(positional[0], &meta); err != nil {
		return nil, newVenueError(KindInvalidResponse, "meta payload", err)
	}

	var ctxs []assetCtxPayload
	if err := json.Unmarshal(positional[1], &ctxs); err != nil {
		return nil, newVenueError(KindInvalidResponse, "assetCtxs payload", err)
	}

	result := make(map[string]*AssetContext, len(meta.Universe))
	for i, asset := range meta.Universe {
		if i >= len(ctxs) {
			break
		}
		raw := ctxs[i]
		result[asset.Name] = &AssetContext{
			Coin:         asset.Name,
			MarkPrice:    parseWireDecimal(raw.MarkPx),
			MidPrice:     parseWireDecimal(raw.MidPx),
			FundingRate:  parseWireDecimal(raw.Funding),
			Premium:      parseWireDecimal(raw.Premium),
			OpenInterest: parseWireDecimal(raw.OpenInterest),
			DayVolume:    parseWireDecimal(raw.DayNtlVlm),
		}
	}
	return result, nil
}

// l2Payload is the raw order book snapshot: levels[0] bids, levels[1] asks.
type l2Payload struct {
	Coin   string `json:"coin"`
	Time   int64  `json:"time"`
	Levels [][]struct {
		Px string `json:"px"`
		Sz string `json:"sz"`
		N  int    `json:"n"`
	} `json:"levels"`
}

// L2Book returns the normalized order book snapshot for a coin, truncated to
// depth levels per side.
func (c *InfoClient) L2Book(ctx context.Context, coin string, depth int) (*OrderBook, error) {
	body, err := c.post(ctx, map[string]interface{}{"type": "l2Book", "coin": coin})
	if err != nil {
		return nil, err
	}

	var raw l2Payload
	if err := json.Unmarshal(body, &raw); err != nil || len(raw.Levels) < 2 {
		return nil, newVenueError(KindInvalidResponse, "l2Book payload", err)
	}

	parseSide := func(idx int) []OrderBookLevel {
		side := raw.Levels[idx]
		if depth > 0 && len(side) > depth {
			side = side[:depth]
		}
		levels := make([]OrderBookLevel, 0, len(side))
		for _, lvl := range side {
			levels = append(levels, OrderBookLevel{
				Price:     parseWireDecimal(lvl.Px),
				Size:      parseWireDecimal(lvl.Sz),
				NumOrders: lvl.N,
			})
		}
		return levels
	}

	return BuildOrderBook(SymbolFromCoin(coin), parseSide(0), parseSide(1), raw.Time), nil
}

// candlePayload is one raw OHLCV bar.
type candlePayload struct {
	T int64  `json:"t"` // open time ms
	E int64  `json:"T"` // close time ms
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
	V string `json:"v"`
}

// CandleSnapshot returns OHLCV bars for a coin and interval.
func (c *InfoClient) CandleSnapshot(ctx context.Context, coin, interval string, startTime, endTime int64) ([]Candle, error) {
	body, err := c.post(ctx, map[string]interface{}{
		"type": "candleSnapshot",
		"req": map[string]interface{}{
			"coin":      coin,
			"interval":  interval,
			"startTime": startTime,
			"endTime":   endTime,
		},
	})
	if err != nil {
		return nil, err
	}

	var raw []candlePayload
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, newVenueError(KindInvalidResponse, "candleSnapshot payload", err)
	}

	candles := make([]Candle, 0, len(raw))
	for _, bar := range raw {
		candles = append(candles, Candle{
			OpenTime:  bar.T,
			CloseTime: bar.E,
			Open:      parseWireDecimal(bar.O),
			High:      parseWireDecimal(bar.H),
			Low:       parseWireDecimal(bar.L),
			Close:     parseWireDecimal(bar.C),
			Volume:    parseWireDecimal(bar.V),
		})
	}
	return candles, nil
}

// FundingHistory returns recent funding samples for a coin.
func (c *InfoClient) FundingHistory(ctx context.Context, coin string, startTime int64) ([]Funding, error) {
	body, err := c.post(ctx, map[string]interface{}{
		"type":      "fundingHistory",
		"coin":      coin,
		"startTime": startTime,
	})
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Coin        string `json:"coin"`
		FundingRate string `json:"fundingRate"`
		Premium     string `json:"premium"`
		Time        int64  `json:"time"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, newVenueError(KindInvalidResponse, "fundingHistory payload", err)
	}

	out := make([]Funding, 0, len(raw))
	for _, f := range raw {
		out = append(out, Funding{
			Symbol:        SymbolFromCoin(f.Coin),
			FundingRate:   parseWireDecimal(f.FundingRate),
			PredictedRate: parseWireDecimal(f.Premium),
			Timestamp:     f.Time,
		})
	}
	return out, nil
}

// AssetIndexes returns the coin → universe index mapping from meta. The
// exchange endpoint addresses assets by index, not name.
func (c *InfoClient) AssetIndexes(ctx context.Context) (map[string]int, error) {
	body, err := c.post(ctx, map[string]interface{}{"type": "meta"})
	if err != nil {
		return nil, err
	}

	var meta metaPayload
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, newVenueError(KindInvalidResponse, "meta payload", err)
	}

	indexes := make(map[string]int, len(meta.Universe))
	for i, asset := range meta.Universe {
		indexes[asset.Name] = i
	}
	return indexes, nil
}

// clearinghousePayload is the raw account state for a user wallet.
type clearinghousePayload struct {
	MarginSummary struct {
		AccountValue    string `json:"accountValue"`
		TotalMarginUsed string `json:"totalMarginUsed"`
	} `json:"marginSummary"`
	Withdrawable   string `json:"withdrawable"`
	AssetPositions []struct {
		Position struct {
			Coin          string `json:"coin"`
			Szi           string `json:"szi"`
			EntryPx       string `json:"entryPx"`
			PositionValue string `json:"positionValue"`
			UnrealizedPnl string `json:"unrealizedPnl"`
			Leverage      struct {
				Value int `json:"value"`
			} `json:"leverage"`
		} `json:"position"`
	} `json:"assetPositions"`
}

// ClearinghouseState returns the margin summary and open positions for a user
// wallet. Accounting fields keep full wire precision.
func (c *InfoClient) ClearinghouseState(ctx context.Context, userWallet string) (*Balance, []Position, error) {
	body, err := c.post(ctx, map[string]interface{}{"type": "clearinghouseState", "user": userWallet})
	if err != nil {
		return nil, nil, err
	}

	var raw clearinghousePayload
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, nil, newVenueError(KindInvalidResponse, "clearinghouseState payload", err)
	}

	accountValue, err := ParseWireAmount(raw.MarginSummary.AccountValue)
	if err != nil {
		return nil, nil, newVenueError(KindInvalidResponse, "account value", err)
	}
	withdrawable, err := ParseWireAmount(raw.Withdrawable)
	if err != nil {
		return nil, nil, newVenueError(KindInvalidResponse, "withdrawable", err)
	}
	marginUsed, err := ParseWireAmount(raw.MarginSummary.TotalMarginUsed)
	if err != nil {
		return nil, nil, newVenueError(KindInvalidResponse, "margin used", err)
	}

	balance := &Balance{
		AccountValue: accountValue,
		Withdrawable: withdrawable,
		MarginUsed:   marginUsed,
	}

	positions := make([]Position, 0, len(raw.AssetPositions))
	for _, ap := range raw.AssetPositions {
		p := ap.Position
		size, err := ParseWireAmount(p.Szi)
		if err != nil {
			c.log.Warn("dropping position with bad size", "coin", p.Coin, "szi", p.Szi)
			continue
		}
		entry, _ := decimal.NewFromString(p.EntryPx)
		value, _ := decimal.NewFromString(p.PositionValue)
		upnl, _ := decimal.NewFromString(p.UnrealizedPnl)
		positions = append(positions, Position{
			Coin:          p.Coin,
			Size:          size,
			EntryPrice:    entry,
			PositionValue: value,
			UnrealizedPnl: upnl,
			Leverage:      p.Leverage.Value,
		})
	}
	return balance, positions, nil
}

// OpenOrders returns the user's resting orders, trigger legs included.
func (c *InfoClient) OpenOrders(ctx context.Context, userWallet string) ([]OpenOrder, error) {
	body, err := c.post(ctx, map[string]interface{}{"type": "frontendOpenOrders", "user": userWallet})
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Coin       string `json:"coin"`
		Oid        int64  `json:"oid"`
		Side       string `json:"side"` // "B" bid, "A" ask
		Sz         string `json:"sz"`
		LimitPx    string `json:"limitPx"`
		TriggerPx  string `json:"triggerPx"`
		IsTrigger  bool   `json:"isTrigger"`
		ReduceOnly bool   `json:"reduceOnly"`
		Timestamp  int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, newVenueError(KindInvalidResponse, "openOrders payload", err)
	}

	orders := make([]OpenOrder, 0, len(raw))
	for _, o := range raw {
		side := SideSell
		if o.Side == "B" {
			side = SideBuy
		}
		orders = append(orders, OpenOrder{
			Coin:         o.Coin,
			OrderID:      o.Oid,
			Side:         side,
			Size:         parseWireDecimal(o.Sz),
			LimitPrice:   parseWireDecimal(o.LimitPx),
			TriggerPrice: parseWireDecimal(o.TriggerPx),
			IsTrigger:    o.IsTrigger,
			ReduceOnly:   o.ReduceOnly,
			Timestamp:    o.Timestamp,
		})
	}
	return orders, nil
}

// parseWireDecimal parses a venue decimal string through a decimal so the
// exact wire value is preserved before any float conversion. Empty and
// malformed strings become zero.
func parseWireDecimal(s string) float64 {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}

// ParseWireAmount parses a venue decimal string keeping full precision, for
// accounting paths (balances, position sizes, fills).
func ParseWireAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing wire amount %q: %w", s, err)
	}
	return d, nil
}
