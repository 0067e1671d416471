package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"hyperliquid-trading-bot/internal/logging"
)

// SubprocessAdapter delegates signed operations to an external signing binary.
// The binary accepts one subcommand per invocation and prints a single line of
// JSON on stdout. Agent credentials are prefixed to every invocation as
// `--agent-key KEY --wallet ADDR` so the engine process never signs.
type SubprocessAdapter struct {
	binary string
	creds  AgentCredentials
	log    *logging.Logger
}

// NewSubprocessAdapter wraps a signing binary.
func NewSubprocessAdapter(binary string, creds AgentCredentials, log *logging.Logger) *SubprocessAdapter {
	return &SubprocessAdapter{
		binary: binary,
		creds:  creds,
		log:    log.WithComponent("subprocess-adapter"),
	}
}

// subprocessResult is the uniform envelope the signing binary prints.
type subprocessResult struct {
	Ok    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// run invokes the binary with credential prefix args plus the subcommand and
// decodes the single-line JSON envelope. The agent key is never logged.
func (a *SubprocessAdapter) run(ctx context.Context, args ...string) (json.RawMessage, error) {
	full := make([]string, 0, len(args)+4)
	if a.creds.AgentKey != "" {
		full = append(full, "--agent-key", a.creds.AgentKey)
	}
	if a.creds.UserWallet != "" {
		full = append(full, "--wallet", a.creds.UserWallet)
	}
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, a.binary, full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	a.log.Debug("invoking signer", "subcommand", args[0])
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, newVenueError(KindTimeout, "signer subprocess timed out", ctx.Err())
		}
		return nil, newVenueError(KindVenueError,
			fmt.Sprintf("signer subprocess failed: %s", strings.TrimSpace(stderr.String())), err)
	}

	line := strings.TrimSpace(stdout.String())
	// Only the last line is the envelope; the binary may emit progress lines.
	if idx := strings.LastIndexByte(line, '\n'); idx >= 0 {
		line = line[idx+1:]
	}

	var result subprocessResult
	if err := json.Unmarshal([]byte(line), &result); err != nil {
		return nil, newVenueError(KindInvalidResponse, "signer output is not JSON", err)
	}
	if !result.Ok {
		return nil, classifySubprocessError(result.Error)
	}
	return result.Data, nil
}

// classifySubprocessError maps the binary's error strings onto the bridge
// failure taxonomy so retry decisions stay uniform across adapters.
func classifySubprocessError(msg string) *VenueError {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"):
		return newVenueError(KindTimeout, msg, nil)
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "429"):
		return newVenueError(KindRateLimited, msg, nil)
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "not approved"),
		strings.Contains(lower, "does not exist"):
		return newVenueError(KindUnauthorized, msg, nil)
	default:
		return newVenueError(KindVenueError, msg, nil)
	}
}

func (a *SubprocessAdapter) Balance(ctx context.Context) (*Balance, error) {
	data, err := a.run(ctx, "balance")
	if err != nil {
		return nil, err
	}

	var raw struct {
		AccountValue string `json:"account_value"`
		Withdrawable string `json:"withdrawable"`
		MarginUsed   string `json:"margin_used"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, newVenueError(KindInvalidResponse, "balance payload", err)
	}

	accountValue, err := ParseWireAmount(raw.AccountValue)
	if err != nil {
		return nil, newVenueError(KindInvalidResponse, "account value", err)
	}
	withdrawable, err := ParseWireAmount(raw.Withdrawable)
	if err != nil {
		return nil, newVenueError(KindInvalidResponse, "withdrawable", err)
	}
	marginUsed, err := ParseWireAmount(raw.MarginUsed)
	if err != nil {
		return nil, newVenueError(KindInvalidResponse, "margin used", err)
	}
	return &Balance{AccountValue: accountValue, Withdrawable: withdrawable, MarginUsed: marginUsed}, nil
}

func (a *SubprocessAdapter) Positions(ctx context.Context) ([]Position, error) {
	data, err := a.run(ctx, "positions")
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Coin          string `json:"coin"`
		Size          string `json:"size"`
		EntryPrice    string `json:"entry_price"`
		PositionValue string `json:"position_value"`
		UnrealizedPnl string `json:"unrealized_pnl"`
		Leverage      int    `json:"leverage"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, newVenueError(KindInvalidResponse, "positions payload", err)
	}

	positions := make([]Position, 0, len(raw))
	for _, p := range raw {
		size, err := ParseWireAmount(p.Size)
		if err != nil {
			a.log.Warn("dropping position with bad size", "coin", p.Coin, "size", p.Size)
			continue
		}
		entry, _ := ParseWireAmount(p.EntryPrice)
		value, _ := ParseWireAmount(p.PositionValue)
		upnl, _ := ParseWireAmount(p.UnrealizedPnl)
		positions = append(positions, Position{
			Coin:          p.Coin,
			Size:          size,
			EntryPrice:    entry,
			PositionValue: value,
			UnrealizedPnl: upnl,
			Leverage:      p.Leverage,
		})
	}
	return positions, nil
}

func (a *SubprocessAdapter) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	args := []string{"order", req.Coin, string(req.Side), formatWire(req.Size)}
	if req.LimitPrice > 0 {
		args = append(args, "limit", formatWire(req.LimitPrice))
	} else {
		args = append(args, "market")
	}
	if req.ReduceOnly {
		args = append(args, "--reduce-only")
	}

	data, err := a.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return parseSubprocessOrder(data)
}

func (a *SubprocessAdapter) PlaceTrigger(ctx context.Context, req TriggerRequest) (*OrderResult, error) {
	data, err := a.run(ctx, "trigger", req.Coin, string(req.Side),
		formatWire(req.Size), string(req.Kind), formatWire(req.TriggerPrice))
	if err != nil {
		return nil, err
	}
	return parseSubprocessOrder(data)
}

func (a *SubprocessAdapter) CancelOrder(ctx context.Context, coin string, orderID int64) error {
	_, err := a.run(ctx, "cancel", coin, strconv.FormatInt(orderID, 10))
	return err
}

func (a *SubprocessAdapter) CancelAllOrders(ctx context.Context, coin string) error {
	args := []string{"cancel_all"}
	if coin != "" {
		args = append(args, coin)
	}
	_, err := a.run(ctx, args...)
	return err
}

func (a *SubprocessAdapter) OpenOrders(ctx context.Context) ([]OpenOrder, error) {
	data, err := a.run(ctx, "open_orders")
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Coin         string `json:"coin"`
		OrderID      int64  `json:"order_id"`
		Side         string `json:"side"`
		Size         string `json:"size"`
		LimitPrice   string `json:"limit_price"`
		TriggerPrice string `json:"trigger_price"`
		IsTrigger    bool   `json:"is_trigger"`
		ReduceOnly   bool   `json:"reduce_only"`
		Timestamp    int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, newVenueError(KindInvalidResponse, "open orders payload", err)
	}

	orders := make([]OpenOrder, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, OpenOrder{
			Coin:         o.Coin,
			OrderID:      o.OrderID,
			Side:         OrderSide(o.Side),
			Size:         parseWireDecimal(o.Size),
			LimitPrice:   parseWireDecimal(o.LimitPrice),
			TriggerPrice: parseWireDecimal(o.TriggerPrice),
			IsTrigger:    o.IsTrigger,
			ReduceOnly:   o.ReduceOnly,
			Timestamp:    o.Timestamp,
		})
	}
	return orders, nil
}

func (a *SubprocessAdapter) CloseAll(ctx context.Context) error {
	_, err := a.run(ctx, "close_all")
	return err
}

// parseSubprocessOrder decodes the binary's order result payload.
func parseSubprocessOrder(data json.RawMessage) (*OrderResult, error) {
	var raw struct {
		OrderID      int64  `json:"order_id"`
		Filled       bool   `json:"filled"`
		AvgFillPrice string `json:"avg_fill_price"`
		FilledSize   string `json:"filled_size"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, newVenueError(KindInvalidResponse, "order payload", err)
	}

	result := &OrderResult{OrderID: raw.OrderID, Filled: raw.Filled}
	if raw.Filled {
		avg, err := ParseWireAmount(raw.AvgFillPrice)
		if err != nil {
			return nil, newVenueError(KindInvalidResponse, "fill price", err)
		}
		size, err := ParseWireAmount(raw.FilledSize)
		if err != nil {
			return nil, newVenueError(KindInvalidResponse, "fill size", err)
		}
		result.AvgFillPrice = avg
		result.FilledSize = size
	}
	return result, nil
}
