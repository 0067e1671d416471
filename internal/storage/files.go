// Package storage implements the persistence contracts: JSON file stores
// with atomic writes, an optional Postgres backend, a Vault-backed agent
// store, and Redis snapshots for trailing-state crash recovery.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"hyperliquid-trading-bot/internal/autopilot"
	"hyperliquid-trading-bot/internal/hyperliquid"
)

// File names under the data directory.
const (
	settingsFile = "bot-settings.json"
	tradesFile   = "trades.json"
	agentsFile   = "agents.json"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("record not found")

// writeAtomic writes data via a temp file and rename so a crash mid-write
// never leaves a truncated file behind.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// SettingsFileStore persists per-wallet settings in bot-settings.json.
type SettingsFileStore struct {
	path string

	mu       sync.Mutex
	settings map[string]autopilot.Settings // keyed by lowercase wallet
}

func NewSettingsFileStore(dataDir string) (*SettingsFileStore, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	s := &SettingsFileStore{
		path:     filepath.Join(dataDir, settingsFile),
		settings: make(map[string]autopilot.Settings),
	}
	if err := readJSON(s.path, &s.settings); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SettingsFileStore) Get(wallet string) (*autopilot.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings, ok := s.settings[strings.ToLower(wallet)]
	if !ok {
		return nil, fmt.Errorf("settings for %s: %w", wallet, ErrNotFound)
	}
	return &settings, nil
}

func (s *SettingsFileStore) Put(wallet string, settings autopilot.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[strings.ToLower(wallet)] = settings
	return s.flush()
}

// flush writes the whole map atomically. Callers must hold mu.
func (s *SettingsFileStore) flush() error {
	data, err := json.MarshalIndent(s.settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	return writeAtomic(s.path, data)
}

// TradeFileStore persists trade records in trades.json.
type TradeFileStore struct {
	path string

	mu     sync.Mutex
	trades map[string]autopilot.TradeRecord // keyed by trade id
}

func NewTradeFileStore(dataDir string) (*TradeFileStore, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	s := &TradeFileStore{
		path:   filepath.Join(dataDir, tradesFile),
		trades: make(map[string]autopilot.TradeRecord),
	}

	var records []autopilot.TradeRecord
	if err := readJSON(s.path, &records); err != nil {
		return nil, err
	}
	for _, r := range records {
		s.trades[r.ID] = r
	}
	return s, nil
}

// Load returns trades at or after sinceTs, newest first, capped at limit.
func (s *TradeFileStore) Load(sinceTs int64, limit int) ([]autopilot.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]autopilot.TradeRecord, 0, len(s.trades))
	for _, r := range s.trades {
		if r.Timestamp >= sinceTs {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Upsert replaces the record with the same id, last writer wins.
func (s *TradeFileStore) Upsert(trade autopilot.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[trade.ID] = trade
	return s.flush()
}

func (s *TradeFileStore) flush() error {
	records := make([]autopilot.TradeRecord, 0, len(s.trades))
	for _, r := range s.trades {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp < records[j].Timestamp })

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding trades: %w", err)
	}
	return writeAtomic(s.path, data)
}

// AgentFileStore persists agent credentials in agents.json, encrypted at
// rest. Values are sealed per entry so a leaked file exposes nothing without
// the secret.
type AgentFileStore struct {
	path   string
	cipher *secretBox

	mu     sync.Mutex
	agents map[string]string // lowercase wallet -> sealed credentials
}

func NewAgentFileStore(dataDir, secret string) (*AgentFileStore, error) {
	if secret == "" {
		return nil, errors.New("agent store requires an encryption secret")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	s := &AgentFileStore{
		path:   filepath.Join(dataDir, agentsFile),
		cipher: newSecretBox(secret),
		agents: make(map[string]string),
	}
	if err := readJSON(s.path, &s.agents); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *AgentFileStore) Get(wallet string) (*hyperliquid.AgentCredentials, error) {
	s.mu.Lock()
	sealed, ok := s.agents[strings.ToLower(wallet)]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("agent for %s: %w", wallet, ErrNotFound)
	}

	plain, err := s.cipher.open(sealed)
	if err != nil {
		return nil, fmt.Errorf("unsealing agent credentials: %w", err)
	}
	var creds hyperliquid.AgentCredentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, fmt.Errorf("decoding agent credentials: %w", err)
	}
	return &creds, nil
}

func (s *AgentFileStore) Put(wallet string, creds hyperliquid.AgentCredentials) error {
	plain, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encoding agent credentials: %w", err)
	}
	sealed, err := s.cipher.seal(plain)
	if err != nil {
		return fmt.Errorf("sealing agent credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[strings.ToLower(wallet)] = sealed
	return s.flush()
}

func (s *AgentFileStore) Delete(wallet string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.agents, strings.ToLower(wallet))
	return s.flush()
}

func (s *AgentFileStore) flush() error {
	data, err := json.MarshalIndent(s.agents, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding agents: %w", err)
	}
	return writeAtomic(s.path, data)
}
