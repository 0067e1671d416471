package hyperliquid

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/go-resty/resty/v2"

	"hyperliquid-trading-bot/internal/logging"
)

// signingChainID is fixed by the venue's typed-data domain, independent of the
// chain the agent key lives on.
var signingChainID = big.NewInt(1337)

// SignerAdapter signs exchange actions natively with the agent's secp256k1 key
// and posts them to the exchange endpoint. Reads go through the info client.
type SignerAdapter struct {
	creds      AgentCredentials
	privateKey *ecdsa.PrivateKey
	network    string // "mainnet" or "testnet"

	info *InfoClient
	http *resty.Client
	log  *logging.Logger

	mu      sync.Mutex
	indexes map[string]int
}

// NewSignerAdapter parses the agent key and prepares the exchange client. The
// master wallet key is never accepted here.
func NewSignerAdapter(exchangeURL, network string, creds AgentCredentials, info *InfoClient, timeout time.Duration, log *logging.Logger) (*SignerAdapter, error) {
	keyHex := creds.AgentKey
	if len(keyHex) >= 2 && keyHex[:2] == "0x" {
		keyHex = keyHex[2:]
	}
	privateKey, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse agent key: %w", err)
	}

	derived := crypto.PubkeyToAddress(privateKey.PublicKey)
	if creds.AgentAddress != "" && common.HexToAddress(creds.AgentAddress) != derived {
		return nil, fmt.Errorf("agent key does not match agent address %s", creds.AgentAddress)
	}

	client := resty.New().
		SetBaseURL(exchangeURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &SignerAdapter{
		creds:      creds,
		privateKey: privateKey,
		network:    network,
		info:       info,
		http:       client,
		log:        log.WithComponent("signer-adapter"),
	}, nil
}

func (a *SignerAdapter) Balance(ctx context.Context) (*Balance, error) {
	balance, _, err := a.info.ClearinghouseState(ctx, a.creds.UserWallet)
	return balance, err
}

func (a *SignerAdapter) Positions(ctx context.Context) ([]Position, error) {
	_, positions, err := a.info.ClearinghouseState(ctx, a.creds.UserWallet)
	return positions, err
}

func (a *SignerAdapter) OpenOrders(ctx context.Context) ([]OpenOrder, error) {
	return a.info.OpenOrders(ctx, a.creds.UserWallet)
}

// wireOrder is the venue's compact order encoding: a asset index, b isBuy,
// p price, s size, r reduceOnly, t order type.
type wireOrder struct {
	Asset      int                    `json:"a"`
	IsBuy      bool                   `json:"b"`
	Price      string                 `json:"p"`
	Size       string                 `json:"s"`
	ReduceOnly bool                   `json:"r"`
	Type       map[string]interface{} `json:"t"`
}

func (a *SignerAdapter) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	asset, err := a.assetIndex(ctx, req.Coin)
	if err != nil {
		return nil, err
	}

	price := req.LimitPrice
	tif := "Gtc"
	if price == 0 {
		// Market orders are IOC limits priced through the book; the caller
		// supplies the aggression via LimitPrice for real limits.
		mids, err := a.info.AllMids(ctx)
		if err != nil {
			return nil, err
		}
		mid, ok := mids[req.Coin]
		if !ok {
			return nil, newVenueError(KindInvalidResponse, "no mid for "+req.Coin, nil)
		}
		midF, _ := mid.Float64()
		if req.Side == SideBuy {
			price = RoundPrice(midF * 1.005)
		} else {
			price = RoundPrice(midF * 0.995)
		}
		tif = "Ioc"
	}

	order := wireOrder{
		Asset:      asset,
		IsBuy:      req.Side == SideBuy,
		Price:      formatWire(price),
		Size:       formatWire(req.Size),
		ReduceOnly: req.ReduceOnly,
		Type:       map[string]interface{}{"limit": map[string]interface{}{"tif": tif}},
	}
	return a.submitOrders(ctx, []wireOrder{order})
}

func (a *SignerAdapter) PlaceTrigger(ctx context.Context, req TriggerRequest) (*OrderResult, error) {
	asset, err := a.assetIndex(ctx, req.Coin)
	if err != nil {
		return nil, err
	}

	tpsl := "sl"
	if req.Kind == TriggerTakeProfit {
		tpsl = "tp"
	}

	order := wireOrder{
		Asset:      asset,
		IsBuy:      req.Side == SideBuy,
		Price:      formatWire(req.TriggerPrice),
		Size:       formatWire(req.Size),
		ReduceOnly: true,
		Type: map[string]interface{}{
			"trigger": map[string]interface{}{
				"isMarket":  true,
				"triggerPx": formatWire(req.TriggerPrice),
				"tpsl":      tpsl,
			},
		},
	}
	return a.submitOrders(ctx, []wireOrder{order})
}

func (a *SignerAdapter) CancelOrder(ctx context.Context, coin string, orderID int64) error {
	asset, err := a.assetIndex(ctx, coin)
	if err != nil {
		return err
	}
	action := map[string]interface{}{
		"type":    "cancel",
		"cancels": []map[string]interface{}{{"a": asset, "o": orderID}},
	}
	_, err = a.postAction(ctx, action)
	return err
}

func (a *SignerAdapter) CancelAllOrders(ctx context.Context, coin string) error {
	orders, err := a.OpenOrders(ctx)
	if err != nil {
		return err
	}

	cancels := make([]map[string]interface{}, 0, len(orders))
	for _, o := range orders {
		if coin != "" && o.Coin != coin {
			continue
		}
		asset, err := a.assetIndex(ctx, o.Coin)
		if err != nil {
			return err
		}
		cancels = append(cancels, map[string]interface{}{"a": asset, "o": o.OrderID})
	}
	if len(cancels) == 0 {
		return nil
	}

	_, err = a.postAction(ctx, map[string]interface{}{"type": "cancel", "cancels": cancels})
	return err
}

func (a *SignerAdapter) CloseAll(ctx context.Context) error {
	positions, err := a.Positions(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	for _, p := range positions {
		if p.IsFlat() {
			continue
		}
		side := SideSell
		if !p.IsLong() {
			side = SideBuy
		}
		size, _ := p.Size.Abs().Float64()
		_, err := a.PlaceOrder(ctx, OrderRequest{
			Coin:       p.Coin,
			Side:       side,
			Size:       RoundSize(p.Coin, size),
			ReduceOnly: true,
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// submitOrders posts a signed order action and normalizes the first status.
func (a *SignerAdapter) submitOrders(ctx context.Context, orders []wireOrder) (*OrderResult, error) {
	action := map[string]interface{}{
		"type":     "order",
		"orders":   orders,
		"grouping": "na",
	}
	body, err := a.postAction(ctx, action)
	if err != nil {
		return nil, err
	}
	return parseOrderResponse(body)
}

// postAction signs an action with the agent key and posts it to the exchange
// endpoint. Signing failures never retry; venue 5xx retries are left to the
// bridge so the same nonce is never reused.
func (a *SignerAdapter) postAction(ctx context.Context, action map[string]interface{}) ([]byte, error) {
	nonce := time.Now().UnixMilli()

	sig, err := a.signAction(action, nonce)
	if err != nil {
		return nil, fmt.Errorf("sign action: %w", err)
	}

	payload := map[string]interface{}{
		"action":    action,
		"nonce":     nonce,
		"signature": sig,
	}

	resp, err := a.http.R().SetContext(ctx).SetBody(payload).Post("")
	if err != nil {
		return nil, newVenueError(KindTimeout, "exchange request failed", err)
	}

	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return nil, newVenueError(KindRateLimited, "exchange rate limited", nil)
	case resp.StatusCode() == http.StatusUnauthorized, resp.StatusCode() == http.StatusForbidden:
		return nil, newVenueError(KindUnauthorized, "agent not approved for wallet", nil)
	case resp.StatusCode() != http.StatusOK:
		return nil, &VenueError{Kind: KindVenueError, Code: resp.StatusCode(), Message: string(resp.Body())}
	}

	var status struct {
		Status   string          `json:"status"`
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(resp.Body(), &status); err != nil {
		return nil, newVenueError(KindInvalidResponse, "exchange response", err)
	}
	if status.Status != "ok" {
		return nil, &VenueError{Kind: KindVenueError, Message: string(resp.Body())}
	}
	return status.Response, nil
}

// signAction hashes the action with its nonce into a connection id, then signs
// the venue's Agent typed-data envelope with the agent key.
func (a *SignerAdapter) signAction(action map[string]interface{}, nonce int64) (map[string]interface{}, error) {
	actionBytes, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("encode action: %w", err)
	}

	nonceBytes := make([]byte, 8)
	for i := 0; i < 8; i++ {
		nonceBytes[7-i] = byte(nonce >> (8 * i))
	}
	connectionID := crypto.Keccak256Hash(actionBytes, nonceBytes)

	source := "a"
	if a.network == "testnet" {
		source = "b"
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Agent": {
				{Name: "source", Type: "string"},
				{Name: "connectionId", Type: "bytes32"},
			},
		},
		PrimaryType: "Agent",
		Domain: apitypes.TypedDataDomain{
			Name:              "Exchange",
			Version:           "1",
			ChainId:           (*ethmath.HexOrDecimal256)(new(big.Int).Set(signingChainID)),
			VerifyingContract: common.Address{}.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"source":       source,
			"connectionId": connectionID.Bytes(),
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("typed data hash: %w", err)
	}

	sig, err := crypto.Sign(hash, a.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}

	return map[string]interface{}{
		"r": "0x" + common.Bytes2Hex(sig[:32]),
		"s": "0x" + common.Bytes2Hex(sig[32:64]),
		"v": sig[64],
	}, nil
}

// assetIndex resolves a coin to its universe index, fetching meta once.
func (a *SignerAdapter) assetIndex(ctx context.Context, coin string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.indexes == nil {
		indexes, err := a.info.AssetIndexes(ctx)
		if err != nil {
			return 0, err
		}
		a.indexes = indexes
	}

	idx, ok := a.indexes[coin]
	if !ok {
		return 0, newVenueError(KindInvalidResponse, "unknown asset "+coin, nil)
	}
	return idx, nil
}

// parseOrderResponse normalizes the per-order status array. A single order is
// submitted per action, so only the first status matters.
func parseOrderResponse(body []byte) (*OrderResult, error) {
	var resp struct {
		Type string `json:"type"`
		Data struct {
			Statuses []struct {
				Resting *struct {
					Oid int64 `json:"oid"`
				} `json:"resting"`
				Filled *struct {
					Oid     int64  `json:"oid"`
					TotalSz string `json:"totalSz"`
					AvgPx   string `json:"avgPx"`
				} `json:"filled"`
				Error string `json:"error"`
			} `json:"statuses"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newVenueError(KindInvalidResponse, "order response", err)
	}
	if len(resp.Data.Statuses) == 0 {
		return nil, newVenueError(KindInvalidResponse, "order response missing status", nil)
	}

	st := resp.Data.Statuses[0]
	switch {
	case st.Error != "":
		return nil, &VenueError{Kind: KindVenueError, Message: st.Error}
	case st.Filled != nil:
		avg, err := ParseWireAmount(st.Filled.AvgPx)
		if err != nil {
			return nil, newVenueError(KindInvalidResponse, "fill price", err)
		}
		size, err := ParseWireAmount(st.Filled.TotalSz)
		if err != nil {
			return nil, newVenueError(KindInvalidResponse, "fill size", err)
		}
		return &OrderResult{OrderID: st.Filled.Oid, Filled: true, AvgFillPrice: avg, FilledSize: size}, nil
	case st.Resting != nil:
		return &OrderResult{OrderID: st.Resting.Oid, Filled: false}, nil
	default:
		return nil, newVenueError(KindInvalidResponse, "order response shape", nil)
	}
}

// formatWire renders a price or size as the venue's shortest decimal string.
func formatWire(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
