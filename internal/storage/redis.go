package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"hyperliquid-trading-bot/internal/autopilot"
)

const (
	trailingKeyPrefix = "trailing:"
	trailingTTL       = 7 * 24 * time.Hour
)

// TrailingSnapshotStore mirrors per-trade trailing state into Redis so a
// restart can resume stop management where the previous process left off.
type TrailingSnapshotStore struct {
	rdb *redis.Client
}

func NewTrailingSnapshotStore(addr, password string, db int) (*TrailingSnapshotStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &TrailingSnapshotStore{rdb: rdb}, nil
}

func trailingKey(wallet, symbol string) string {
	return trailingKeyPrefix + strings.ToLower(wallet) + ":" + symbol
}

// Save overwrites the snapshot for one open trade. Entries expire after a
// week so abandoned trades do not accumulate.
func (s *TrailingSnapshotStore) Save(ctx context.Context, wallet, symbol string, state autopilot.TrailingState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding trailing state: %w", err)
	}
	if err := s.rdb.Set(ctx, trailingKey(wallet, symbol), payload, trailingTTL).Err(); err != nil {
		return fmt.Errorf("saving trailing state for %s: %w", symbol, err)
	}
	return nil
}

func (s *TrailingSnapshotStore) Load(ctx context.Context, wallet, symbol string) (*autopilot.TrailingState, error) {
	payload, err := s.rdb.Get(ctx, trailingKey(wallet, symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("trailing state for %s: %w", symbol, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading trailing state for %s: %w", symbol, err)
	}

	var state autopilot.TrailingState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("decoding trailing state: %w", err)
	}
	return &state, nil
}

// Delete drops the snapshot once the trade is closed.
func (s *TrailingSnapshotStore) Delete(ctx context.Context, wallet, symbol string) error {
	if err := s.rdb.Del(ctx, trailingKey(wallet, symbol)).Err(); err != nil {
		return fmt.Errorf("deleting trailing state for %s: %w", symbol, err)
	}
	return nil
}

// LoadAll returns every stored snapshot for a wallet, keyed by symbol.
func (s *TrailingSnapshotStore) LoadAll(ctx context.Context, wallet string) (map[string]autopilot.TrailingState, error) {
	pattern := trailingKeyPrefix + strings.ToLower(wallet) + ":*"
	out := make(map[string]autopilot.TrailingState)

	iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		payload, err := s.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", key, err)
		}
		var state autopilot.TrailingState
		if err := json.Unmarshal(payload, &state); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", key, err)
		}
		symbol := key[strings.LastIndex(key, ":")+1:]
		out[symbol] = state
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning trailing state: %w", err)
	}
	return out, nil
}

func (s *TrailingSnapshotStore) Close() error { return s.rdb.Close() }
