package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hyperliquid-trading-bot/config"
	"hyperliquid-trading-bot/internal/bot"
	"hyperliquid-trading-bot/internal/clock"
	"hyperliquid-trading-bot/internal/logging"
	"hyperliquid-trading-bot/internal/storage"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{}
	cfg.HyperliquidConfig.InfoURL = "http://127.0.0.1:0/info"
	cfg.HyperliquidConfig.WebsocketURL = "ws://127.0.0.1:0/ws"
	cfg.HyperliquidConfig.Network = "testnet"
	cfg.HyperliquidConfig.SignerMode = "native"
	cfg.TradingConfig.DefaultMode = "moderate"
	cfg.StorageConfig.DataDir = dir
	cfg.ServerConfig.AllowedOrigins = "*"
	if mutate != nil {
		mutate(cfg)
	}

	trades, err := storage.NewTradeFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	settings, err := storage.NewSettingsFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	agents, err := storage.NewAgentFileStore(dir, "test secret")
	if err != nil {
		t.Fatal(err)
	}

	log := logging.New(&logging.Config{Level: "ERROR"})
	b := bot.New(cfg, bot.Stores{Trades: trades, Settings: settings, Agents: agents}, clock.Real{}, log)
	return NewServer(cfg, b, log)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response is not JSON: %s", w.Body.String())
	}
	code, _ := payload["error"].(string)
	return code
}

func TestArmRejectsBadPhrase(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.TradingConfig.LiveTradingEnabled = true
	})

	w := do(t, s, http.MethodPost, "/trading/arm",
		`{"confirmation":"i understand the risks","mode":"testnet","wallet":"0xa"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if code := errorCode(t, w); code != "bad_phrase" {
		t.Errorf("error = %q, want bad_phrase", code)
	}
}

func TestArmRejectsWhenLiveDisabled(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodPost, "/trading/arm",
		`{"confirmation":"I UNDERSTAND THE RISKS","mode":"testnet","wallet":"0xa"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if code := errorCode(t, w); code != "live_disabled" {
		t.Errorf("error = %q, want live_disabled", code)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodGet, "/trading/settings?wallet=0xa", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get defaults status = %d: %s", w.Code, w.Body.String())
	}
	var settings map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &settings); err != nil {
		t.Fatal(err)
	}
	if settings["mode"] != "moderate" {
		t.Errorf("default mode = %v, want moderate", settings["mode"])
	}

	// Oversized position size must be rejected by validation.
	w = do(t, s, http.MethodPost, "/trading/settings",
		`{"wallet":"0xa","mode":"moderate","trading_bag":["BTC-PERP"],"position_size_pct":50,
		  "stop_loss_pct":2,"take_profit_pct":4,"max_simultaneous_positions":2}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid settings status = %d", w.Code)
	}
	if code := errorCode(t, w); code != "invalid_settings" {
		t.Errorf("error = %q, want invalid_settings", code)
	}
}

func TestWalletRequired(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodGet, "/trading/status", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if code := errorCode(t, w); code != "missing_wallet" {
		t.Errorf("error = %q, want missing_wallet", code)
	}
}

func TestLeaderboardRejectsUnknownSortKey(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodGet, "/trading/leaderboard?sortBy=vibes", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if code := errorCode(t, w); code != "bad_sort_key" {
		t.Errorf("error = %q, want bad_sort_key", code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	secret := "jwt test secret"
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.AuthConfig.Enabled = true
		cfg.AuthConfig.JWTSecret = secret
	})

	w := do(t, s, http.MethodGet, "/trading/status", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", w.Code)
	}

	token, err := IssueToken(secret, "0xa", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/trading/status", strings.NewReader(""))
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("authed status = %d: %s", w.Code, w.Body.String())
	}

	// The wallet claim stands in for an explicit wallet parameter.
	var status map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if _, ok := status["control"]; !ok {
		t.Errorf("status payload missing control section: %v", status)
	}
}

func TestRegisterAgentValidation(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodPost, "/trading/register-agent",
		`{"masterAddress":"0xa","agentAddress":"0xagent"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing key status = %d, want 400", w.Code)
	}
}
