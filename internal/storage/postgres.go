package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hyperliquid-trading-bot/internal/autopilot"
)

const pgQueryTimeout = 5 * time.Second

// PostgresStore backs TradeStore and SettingsStore with a pgx pool. The
// schema is created on connect; trades store the full record as JSONB beside
// the columns used for querying.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS trades (
			id         TEXT PRIMARY KEY,
			wallet     TEXT NOT NULL,
			symbol     TEXT NOT NULL,
			status     TEXT NOT NULL,
			ts         BIGINT NOT NULL,
			record     JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS trades_ts_idx ON trades (ts DESC);
		CREATE TABLE IF NOT EXISTS settings (
			wallet     TEXT PRIMARY KEY,
			payload    JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() { s.pool.Close() }

// Load returns trades at or after sinceTs, newest first.
func (s *PostgresStore) Load(sinceTs int64, limit int) ([]autopilot.TradeRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pgQueryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM trades WHERE ts >= $1 ORDER BY ts DESC LIMIT $2`, sinceTs, limit)
	if err != nil {
		return nil, fmt.Errorf("loading trades: %w", err)
	}
	defer rows.Close()

	var out []autopilot.TradeRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}
		var record autopilot.TradeRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("decoding trade: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// Upsert writes the record keyed by id, last writer wins.
func (s *PostgresStore) Upsert(trade autopilot.TradeRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), pgQueryTimeout)
	defer cancel()

	payload, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("encoding trade: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO trades (id, wallet, symbol, status, ts, record)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, ts = EXCLUDED.ts, record = EXCLUDED.record`,
		trade.ID, strings.ToLower(trade.UserWallet), trade.Symbol, string(trade.Status), trade.Timestamp, payload)
	if err != nil {
		return fmt.Errorf("upserting trade %s: %w", trade.ID, err)
	}
	return nil
}

// Get reads a wallet's settings.
func (s *PostgresStore) Get(wallet string) (*autopilot.Settings, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pgQueryTimeout)
	defer cancel()

	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM settings WHERE wallet = $1`, strings.ToLower(wallet)).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("settings for %s: %w", wallet, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	var settings autopilot.Settings
	if err := json.Unmarshal(payload, &settings); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	return &settings, nil
}

// Put writes a wallet's settings.
func (s *PostgresStore) Put(wallet string, settings autopilot.Settings) error {
	ctx, cancel := context.WithTimeout(context.Background(), pgQueryTimeout)
	defer cancel()

	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO settings (wallet, payload, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (wallet) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`,
		strings.ToLower(wallet), payload)
	if err != nil {
		return fmt.Errorf("storing settings: %w", err)
	}
	return nil
}
