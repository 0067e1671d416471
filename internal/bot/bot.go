// Package bot composes the trading engine: one market-data plane shared by
// all users, and per-wallet sessions each owning a control plane, an order
// manager, an analysis loop and a position monitor.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"hyperliquid-trading-bot/config"
	"hyperliquid-trading-bot/internal/ai/llm"
	"hyperliquid-trading-bot/internal/autopilot"
	"hyperliquid-trading-bot/internal/clock"
	"hyperliquid-trading-bot/internal/hyperliquid"
	"hyperliquid-trading-bot/internal/logging"
	"hyperliquid-trading-bot/internal/marketdata"
	"hyperliquid-trading-bot/internal/orders"
	"hyperliquid-trading-bot/internal/risk"
	"hyperliquid-trading-bot/internal/storage"
)

const (
	paperStartingBalance  = 10_000
	trailingSaveInterval  = 30 * time.Second
	defaultRequestTimeout = 30 * time.Second
	exchangePathFromInfo  = "/exchange"
	infoPathSuffix        = "/info"
)

var ErrUnknownSignerMode = errors.New("unknown signer mode")

// Stores bundles the persistence backends the bot uses. Trailing is optional;
// when nil, trailing state survives restarts only via the trade records.
type Stores struct {
	Trades   autopilot.TradeStore
	Settings autopilot.SettingsStore
	Agents   autopilot.AgentStore
	Trailing *storage.TrailingSnapshotStore
}

// Session is one wallet's engine stack. Settings live inside the engine and
// are read and replaced through its accessors.
type Session struct {
	wallet  string
	control *risk.Controller
	orders  *orders.Manager
	engine  *autopilot.Engine
	monitor *autopilot.Monitor

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (s *Session) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Bot is the top-level orchestrator behind the HTTP API.
type Bot struct {
	cfg     *config.Config
	clk     clock.Clock
	log     *logging.Logger
	info    *hyperliquid.InfoClient
	bridge  *hyperliquid.Bridge
	markets *marketdata.Service
	source  *marketSource
	stores  Stores
	gate    *llm.Gate
	advisor autopilot.SentimentGate // nil when the AI plane is disabled

	mu       sync.Mutex
	sessions map[string]*Session // keyed by lowercase wallet
}

// New wires the shared planes. Stores are built by the caller so backend
// selection (files, Postgres, Vault, Redis) stays out of the orchestrator.
func New(cfg *config.Config, stores Stores, clk clock.Clock, log *logging.Logger) *Bot {
	timeout := time.Duration(cfg.HyperliquidConfig.RequestTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	info := hyperliquid.NewInfoClient(cfg.HyperliquidConfig.InfoURL, timeout, log)
	bridge := hyperliquid.NewBridge(info, log)
	markets := marketdata.NewService(cfg.HyperliquidConfig.WebsocketURL, cfg.TradingConfig.LiquidationFeed, clk, log)

	b := &Bot{
		cfg:      cfg,
		clk:      clk,
		log:      log.WithComponent("bot"),
		info:     info,
		bridge:   bridge,
		markets:  markets,
		source:   newMarketSource(markets, info, clk),
		stores:   stores,
		gate:     llm.NewGate(clk, log),
		sessions: make(map[string]*Session),
	}

	if cfg.AIConfig.Enabled && cfg.AIConfig.APIKey != "" {
		client := llm.NewClient(llm.Config{
			APIKey:      cfg.AIConfig.APIKey,
			BaseURL:     cfg.AIConfig.BaseURL,
			Model:       cfg.AIConfig.Model,
			MaxTokens:   cfg.AIConfig.MaxTokens,
			Temperature: cfg.AIConfig.Temperature,
			Timeout:     time.Duration(cfg.AIConfig.TimeoutSecs) * time.Second,
		}, clk, log)
		b.advisor = newSentimentGate(b.gate, client, log)
	}
	return b
}

// Start opens the market-data plane.
func (b *Bot) Start() error {
	return b.markets.Start()
}

// Stop tears down every session and the market-data plane.
func (b *Bot) Stop() {
	b.mu.Lock()
	sessions := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.mu.Unlock()

	for _, s := range sessions {
		b.stopSession(s)
	}
	b.markets.Stop()
}

// Bridge exposes the venue facade for direct API passthroughs.
func (b *Bot) Bridge() *hyperliquid.Bridge { return b.bridge }

// Markets exposes the market-data plane.
func (b *Bot) Markets() *marketdata.Service { return b.markets }

// Gate exposes the LLM call gate for the usage endpoint.
func (b *Bot) Gate() *llm.Gate { return b.gate }

// Session returns the wallet's session, creating it on first use. New
// sessions trade paper until live credentials are registered and armed.
func (b *Bot) Session(wallet string) (*Session, error) {
	key := strings.ToLower(wallet)

	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[key]; ok {
		return s, nil
	}

	settings, err := b.loadSettings(wallet)
	if err != nil {
		return nil, err
	}

	if creds, err := b.stores.Agents.Get(wallet); err == nil {
		if err := b.registerAdapter(wallet, *creds); err != nil {
			return nil, err
		}
	} else if errors.Is(err, storage.ErrNotFound) {
		b.bridge.RegisterAgent(wallet, hyperliquid.NewPaperAdapter(
			b.info, decimal.NewFromInt(paperStartingBalance), b.clk, b.log))
	} else {
		return nil, fmt.Errorf("loading agent credentials: %w", err)
	}

	control := risk.NewController(risk.Config{
		LiveTradingEnabled: b.cfg.TradingConfig.LiveTradingEnabled,
		Network:            b.cfg.HyperliquidConfig.Network,
		DailyLossLimitPct:  b.cfg.RiskConfig.DailyLossLimitPct,
		AssetCooldown:      time.Duration(b.cfg.RiskConfig.CooldownMinutes) * time.Minute,
	}, b.bridge, b.clk, b.log)

	manager := orders.NewManager(b.bridge, b.clk, b.log)
	engine := autopilot.NewEngine(wallet, settings, autopilot.Deps{
		Venue:         b.bridge,
		Orders:        manager,
		Control:       control,
		Markets:       b.source,
		Sentiment:     b.advisor,
		TradeStore:    b.stores.Trades,
		Clock:         b.clk,
		Log:           b.log,
		PauseDuration: time.Duration(b.cfg.RiskConfig.PauseAfterLossMins) * time.Minute,
	})

	s := &Session{
		wallet:  wallet,
		control: control,
		orders:  manager,
		engine:  engine,
		monitor: autopilot.NewMonitor(engine),
	}
	b.sessions[key] = s
	return s, nil
}

func (b *Bot) loadSettings(wallet string) (*autopilot.Settings, error) {
	settings, err := b.stores.Settings.Get(wallet)
	if errors.Is(err, storage.ErrNotFound) {
		defaults := autopilot.DefaultSettings(autopilot.Mode(b.cfg.TradingConfig.DefaultMode))
		if err := defaults.Validate(); err != nil {
			return nil, fmt.Errorf("default settings invalid: %w", err)
		}
		return &defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("stored settings invalid: %w", err)
	}
	return settings, nil
}

// RegisterAgent stores the credentials and binds the matching adapter. The
// key is write-only from here on: persisted sealed, never logged.
func (b *Bot) RegisterAgent(wallet string, creds hyperliquid.AgentCredentials) error {
	if creds.AgentKey == "" || creds.AgentAddress == "" {
		return errors.New("agent credentials incomplete")
	}
	if err := b.registerAdapter(wallet, creds); err != nil {
		return err
	}
	if err := b.stores.Agents.Put(wallet, creds); err != nil {
		return fmt.Errorf("persisting agent credentials: %w", err)
	}
	b.log.Info("agent registered", "wallet", wallet, "agent_address", creds.AgentAddress)
	return nil
}

func (b *Bot) registerAdapter(wallet string, creds hyperliquid.AgentCredentials) error {
	switch b.cfg.HyperliquidConfig.SignerMode {
	case "native":
		adapter, err := hyperliquid.NewSignerAdapter(
			exchangeURL(b.cfg.HyperliquidConfig.InfoURL),
			b.cfg.HyperliquidConfig.Network,
			creds, b.info,
			time.Duration(b.cfg.HyperliquidConfig.RequestTimeoutSecs)*time.Second,
			b.log)
		if err != nil {
			return fmt.Errorf("building signer: %w", err)
		}
		b.bridge.RegisterAgent(wallet, adapter)
	case "subprocess":
		b.bridge.RegisterAgent(wallet, hyperliquid.NewSubprocessAdapter(
			b.cfg.HyperliquidConfig.SignerBinary, creds, b.log))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSignerMode, b.cfg.HyperliquidConfig.SignerMode)
	}
	return nil
}

// Arm prepares a session for live trading. The mode becomes the session's
// trading mode and is persisted.
func (b *Bot) Arm(wallet, phrase string, mode autopilot.Mode, network, armedBy string) error {
	s, err := b.Session(wallet)
	if err != nil {
		return err
	}

	_, credErr := b.stores.Agents.Get(wallet)
	if err := s.control.Arm(phrase, mode, network, armedBy, credErr == nil); err != nil {
		return err
	}

	settings := s.engine.Settings()
	settings.Mode = mode
	if err := settings.Validate(); err != nil {
		return err
	}
	s.engine.ApplySettings(settings)
	if err := b.stores.Settings.Put(wallet, settings); err != nil {
		b.log.Error("settings persist failed after arm", "wallet", wallet, "error", err.Error())
	}
	return nil
}

// Disarm returns the session to paper mode and stops its loops.
func (b *Bot) Disarm(wallet string) error {
	s, err := b.Session(wallet)
	if err != nil {
		return err
	}
	b.stopSession(s)
	s.control.Disarm()
	return nil
}

// StartTrading launches the analysis loop and position monitor.
func (b *Bot) StartTrading(ctx context.Context, wallet string) error {
	s, err := b.Session(wallet)
	if err != nil {
		return err
	}
	if err := s.control.Start(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	settings := s.engine.Settings()
	for _, symbol := range settings.TradingBag {
		if err := b.markets.Watch(symbol); err != nil {
			b.log.Warn("symbol watch failed", "symbol", symbol, "error", err.Error())
		}
	}
	if err := s.engine.RecoverOpenTrades(); err != nil {
		b.log.Warn("trade recovery failed", "wallet", wallet, "error", err.Error())
	}
	b.restoreTrailing(ctx, s)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.engine.Run(runCtx)
	go s.monitor.Run(runCtx)
	if b.stores.Trailing != nil {
		go b.trailingSaveLoop(runCtx, s)
	}

	b.log.Info("trading started", "wallet", wallet, "mode", string(settings.Mode))
	return nil
}

// StopTrading halts the loops without disarming.
func (b *Bot) StopTrading(wallet string) error {
	s, err := b.Session(wallet)
	if err != nil {
		return err
	}
	b.stopSession(s)
	return nil
}

func (b *Bot) stopSession(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		b.log.Info("trading stopped", "wallet", s.wallet)
	}
}

// Kill trips the session's kill switch and stops its loops.
func (b *Bot) Kill(ctx context.Context, wallet, reason string) error {
	s, err := b.Session(wallet)
	if err != nil {
		return err
	}
	b.stopSession(s)
	s.control.Kill(ctx, reason, wallet)
	return nil
}

// ResetKill clears the kill switch with the confirmation phrase.
func (b *Bot) ResetKill(wallet, phrase string) error {
	s, err := b.Session(wallet)
	if err != nil {
		return err
	}
	return s.control.ResetKill(phrase)
}

// Settings returns a copy of the session's settings.
func (b *Bot) Settings(wallet string) (autopilot.Settings, error) {
	s, err := b.Session(wallet)
	if err != nil {
		return autopilot.Settings{}, err
	}
	return s.engine.Settings(), nil
}

// UpdateSettings validates, persists and applies new settings. Running loops
// pick the change up on their next tick.
func (b *Bot) UpdateSettings(wallet string, settings autopilot.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s, err := b.Session(wallet)
	if err != nil {
		return err
	}
	if err := b.stores.Settings.Put(wallet, settings); err != nil {
		return fmt.Errorf("persisting settings: %w", err)
	}
	s.engine.ApplySettings(settings)
	for _, symbol := range settings.TradingBag {
		if s.running() {
			if err := b.markets.Watch(symbol); err != nil {
				b.log.Warn("symbol watch failed", "symbol", symbol, "error", err.Error())
			}
		}
	}
	return nil
}

// Status is the combined session snapshot for the status endpoints.
type Status struct {
	Control    risk.Status                 `json:"control"`
	Engine     autopilot.EngineStatus      `json:"engine"`
	Running    bool                        `json:"running"`
	Connection marketdata.ConnectionStatus `json:"connection"`
	Network    string                      `json:"network"`
}

// Status reports the full session state.
func (b *Bot) Status(wallet string) (*Status, error) {
	s, err := b.Session(wallet)
	if err != nil {
		return nil, err
	}
	return &Status{
		Control:    s.control.Snapshot(),
		Engine:     s.engine.Status(),
		Running:    s.running(),
		Connection: b.markets.Status(),
		Network:    b.cfg.HyperliquidConfig.Network,
	}, nil
}

// TradeHistory returns the wallet's persisted trades, newest first.
func (b *Bot) TradeHistory(wallet string, sinceTs int64, limit int) ([]autopilot.TradeRecord, error) {
	records, err := b.stores.Trades.Load(sinceTs, 0)
	if err != nil {
		return nil, err
	}
	key := strings.ToLower(wallet)
	out := make([]autopilot.TradeRecord, 0, len(records))
	for _, r := range records {
		if strings.ToLower(r.UserWallet) != key {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Positions lists the wallet's open venue positions.
func (b *Bot) Positions(ctx context.Context, wallet string) ([]hyperliquid.Position, error) {
	return b.bridge.GetPositions(ctx, wallet)
}

// OpenOrders lists the wallet's resting orders.
func (b *Bot) OpenOrders(ctx context.Context, wallet string) ([]hyperliquid.OpenOrder, error) {
	return b.bridge.GetOpenOrders(ctx, wallet)
}

// CloseAll market-closes every open position for the wallet.
func (b *Bot) CloseAll(ctx context.Context, wallet string) error {
	return b.bridge.CloseAllPositions(ctx, wallet)
}

// CancelAllOrders cancels the wallet's resting orders, scoped to coin when
// coin is non-empty.
func (b *Bot) CancelAllOrders(ctx context.Context, wallet, coin string) error {
	return b.bridge.CancelAllOrders(ctx, coin, wallet)
}

// restoreTrailing overlays persisted trailing snapshots onto the recovered
// trades so stop management resumes where it left off.
func (b *Bot) restoreTrailing(ctx context.Context, s *Session) {
	if b.stores.Trailing == nil {
		return
	}
	saved, err := b.stores.Trailing.LoadAll(ctx, s.wallet)
	if err != nil {
		b.log.Warn("trailing state restore failed", "wallet", s.wallet, "error", err.Error())
		return
	}
	s.engine.RestoreTrailing(saved)
}

// trailingSaveLoop mirrors trailing state into Redis on a fixed cadence.
func (b *Bot) trailingSaveLoop(ctx context.Context, s *Session) {
	ticker := time.NewTicker(trailingSaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for symbol, state := range s.engine.TrailingSnapshot() {
				if err := b.stores.Trailing.Save(ctx, s.wallet, symbol, state); err != nil {
					b.log.Warn("trailing state save failed", "symbol", symbol, "error", err.Error())
				}
			}
		}
	}
}

// exchangeURL derives the signed-action endpoint from the info endpoint.
func exchangeURL(infoURL string) string {
	if strings.HasSuffix(infoURL, infoPathSuffix) {
		return strings.TrimSuffix(infoURL, infoPathSuffix) + exchangePathFromInfo
	}
	return infoURL + exchangePathFromInfo
}
