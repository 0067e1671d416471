package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"hyperliquid-trading-bot/config"
	"hyperliquid-trading-bot/internal/api"
	"hyperliquid-trading-bot/internal/bot"
	"hyperliquid-trading-bot/internal/clock"
	"hyperliquid-trading-bot/internal/logging"
	"hyperliquid-trading-bot/internal/storage"
)

func main() {
	// .env is optional; environment always wins over config.json.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		Component:  "main",
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})
	logging.SetDefault(logger)

	stores, cleanup, err := buildStores(cfg, logger)
	if err != nil {
		logger.Fatal("store initialization failed", "error", err.Error())
	}
	defer cleanup()

	engine := bot.New(cfg, stores, clock.Real{}, logger)
	if err := engine.Start(); err != nil {
		logger.Fatal("market data start failed", "error", err.Error())
	}

	server := api.NewServer(cfg, engine, logger)
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			logger.Error("api server failed", "error", err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", "error", err.Error())
	}
	engine.Stop()
	logger.Info("shutdown complete")
}

// buildStores selects the persistence backends: Postgres over JSON files for
// trades and settings when a DSN is configured, Vault over the encrypted file
// for agents when enabled, plus optional Redis trailing snapshots.
func buildStores(cfg *config.Config, logger *logging.Logger) (bot.Stores, func(), error) {
	var stores bot.Stores
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.DatabaseConfig.DSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		pg, err := storage.NewPostgresStore(ctx, cfg.DatabaseConfig.DSN)
		if err != nil {
			return stores, cleanup, err
		}
		closers = append(closers, pg.Close)
		stores.Trades = pg
		stores.Settings = pg
		logger.Info("using postgres for trades and settings")
	} else {
		trades, err := storage.NewTradeFileStore(cfg.StorageConfig.DataDir)
		if err != nil {
			return stores, cleanup, err
		}
		settings, err := storage.NewSettingsFileStore(cfg.StorageConfig.DataDir)
		if err != nil {
			return stores, cleanup, err
		}
		stores.Trades = trades
		stores.Settings = settings
	}

	if cfg.VaultConfig.Enabled {
		agents, err := storage.NewVaultAgentStore(storage.VaultConfig{
			Address:    cfg.VaultConfig.Address,
			Token:      cfg.VaultConfig.Token,
			MountPath:  cfg.VaultConfig.MountPath,
			SecretPath: cfg.VaultConfig.SecretPath,
			CACert:     cfg.VaultConfig.CACert,
		})
		if err != nil {
			return stores, cleanup, err
		}
		stores.Agents = agents
		logger.Info("using vault for agent credentials")
	} else {
		agents, err := storage.NewAgentFileStore(cfg.StorageConfig.DataDir, cfg.StorageConfig.EncryptionSecret)
		if err != nil {
			return stores, cleanup, err
		}
		stores.Agents = agents
	}

	if cfg.RedisConfig.Enabled {
		trailing, err := storage.NewTrailingSnapshotStore(
			cfg.RedisConfig.Address, cfg.RedisConfig.Password, cfg.RedisConfig.DB)
		if err != nil {
			return stores, cleanup, err
		}
		closers = append(closers, func() { _ = trailing.Close() })
		stores.Trailing = trailing
		logger.Info("using redis for trailing-state snapshots")
	}

	return stores, cleanup, nil
}
