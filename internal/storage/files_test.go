package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"hyperliquid-trading-bot/internal/autopilot"
	"hyperliquid-trading-bot/internal/hyperliquid"
)

func TestSettingsFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSettingsFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.Get("0xAbC"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing wallet: got %v, want ErrNotFound", err)
	}

	settings := autopilot.DefaultSettings(autopilot.ModeConservative)
	settings.MaxLeverage = 3
	if err := store.Put("0xAbC", settings); err != nil {
		t.Fatal(err)
	}

	// Wallet lookup is case insensitive.
	got, err := store.Get("0xABC")
	if err != nil {
		t.Fatal(err)
	}
	if got.Mode != autopilot.ModeConservative || got.MaxLeverage != 3 {
		t.Errorf("round trip mismatch: %+v", got)
	}

	// A fresh store must read the same data back from disk.
	reopened, err := NewSettingsFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	got, err = reopened.Get("0xabc")
	if err != nil {
		t.Fatal(err)
	}
	if got.MaxLeverage != 3 {
		t.Errorf("reopened leverage = %d, want 3", got.MaxLeverage)
	}
}

func TestTradeFileStoreLoadOrdering(t *testing.T) {
	dir := t.TempDir()
	store, err := NewTradeFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC).UnixMilli()
	for i, symbol := range []string{"BTC-PERP", "ETH-PERP", "SOL-PERP", "DOGE-PERP"} {
		record := autopilot.TradeRecord{
			ID:         symbol,
			Symbol:     symbol,
			Side:       hyperliquid.SideBuy,
			EntryPrice: decimal.NewFromInt(100),
			Quantity:   decimal.NewFromInt(1),
			Status:     autopilot.TradeOpen,
			Timestamp:  base + int64(i)*60_000,
		}
		if err := store.Upsert(record); err != nil {
			t.Fatal(err)
		}
	}

	// since filters, newest first, limit caps.
	got, err := store.Load(base+60_000, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Symbol != "DOGE-PERP" || got[1].Symbol != "SOL-PERP" {
		t.Errorf("Load = %+v, want DOGE then SOL", got)
	}

	// Upsert with the same id replaces, never duplicates.
	update := autopilot.TradeRecord{ID: "BTC-PERP", Symbol: "BTC-PERP", Status: autopilot.TradeClosed, Timestamp: base}
	if err := store.Upsert(update); err != nil {
		t.Fatal(err)
	}
	all, err := store.Load(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("records = %d, want 4", len(all))
	}
	for _, r := range all {
		if r.ID == "BTC-PERP" && r.Status != autopilot.TradeClosed {
			t.Error("upsert must replace the existing record")
		}
	}

	// Reopen picks up the flushed file.
	reopened, err := NewTradeFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	all, err = reopened.Load(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("reopened records = %d, want 4", len(all))
	}
}

func TestAgentFileStoreEncryptsAtRest(t *testing.T) {
	dir := t.TempDir()
	store, err := NewAgentFileStore(dir, "correct horse battery staple")
	if err != nil {
		t.Fatal(err)
	}

	creds := hyperliquid.AgentCredentials{
		UserWallet:   "0xUser",
		AgentAddress: "0xAgentAddr",
		AgentKey:     "deadbeefcafe0123456789",
		AgentName:    "bot-agent",
		ApprovedAt:   time.Now().UTC().Truncate(time.Second),
	}
	if err := store.Put("0xUser", creds); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get("0xUSER")
	if err != nil {
		t.Fatal(err)
	}
	if got.AgentKey != creds.AgentKey || got.AgentAddress != creds.AgentAddress {
		t.Errorf("round trip mismatch: %+v", got)
	}

	// The on-disk file must not contain the key material in the clear.
	raw, err := os.ReadFile(filepath.Join(dir, agentsFile))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), creds.AgentKey) {
		t.Error("agent key leaked into agents.json in plaintext")
	}
	if strings.Contains(string(raw), creds.AgentAddress) {
		t.Error("agent address leaked into agents.json in plaintext")
	}

	// A store opened with a different secret cannot unseal the entry.
	wrong, err := NewAgentFileStore(dir, "not the secret")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wrong.Get("0xUser"); err == nil {
		t.Error("wrong secret must fail to unseal")
	}

	if err := store.Delete("0xuser"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get("0xUser"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted agent: got %v, want ErrNotFound", err)
	}
}

func TestAgentFileStoreRequiresSecret(t *testing.T) {
	if _, err := NewAgentFileStore(t.TempDir(), ""); err == nil {
		t.Error("empty secret must be rejected")
	}
}

func TestWriteAtomicLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	if err := writeAtomic(path, []byte(`{"a":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := writeAtomic(path, []byte(`{"a":2}`)); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"a":2}` {
		t.Errorf("content = %s, want second write", data)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file must not survive the rename")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("perm = %o, want 0600", info.Mode().Perm())
	}
}

func TestSecretBoxSealFreshness(t *testing.T) {
	box := newSecretBox("secret")
	a, err := box.seal([]byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := box.seal([]byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("identical payloads must seal to different ciphertexts")
	}

	plain, err := box.open(a)
	if err != nil {
		t.Fatal(err)
	}
	if string(plain) != "payload" {
		t.Errorf("open = %q", plain)
	}

	if _, err := box.open("not base64!!"); err == nil {
		t.Error("garbage input must fail")
	}
	if _, err := box.open("QQ=="); err == nil {
		t.Error("truncated input must fail")
	}
}
