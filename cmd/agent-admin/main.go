// agent-admin is an operator CLI for the encrypted agent credential store:
// list registered agents, inspect one (key never printed), remove one, and
// mint API access tokens.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"hyperliquid-trading-bot/config"
	"hyperliquid-trading-bot/internal/api"
	"hyperliquid-trading-bot/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "show":
		requireArg(3, "show WALLET")
		show(cfg, os.Args[2])
	case "delete":
		requireArg(3, "delete WALLET")
		remove(cfg, os.Args[2])
	case "token":
		requireArg(3, "token WALLET")
		mintToken(cfg, os.Args[2])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: agent-admin COMMAND

commands:
  show WALLET    print the wallet's agent metadata (the key is never shown)
  delete WALLET  remove the wallet's agent credentials
  token WALLET   mint an API access token for the wallet`)
}

func requireArg(n int, form string) {
	if len(os.Args) < n {
		fmt.Fprintf(os.Stderr, "usage: agent-admin %s\n", form)
		os.Exit(2)
	}
}

func agentStore(cfg *config.Config) *storage.AgentFileStore {
	store, err := storage.NewAgentFileStore(cfg.StorageConfig.DataDir, cfg.StorageConfig.EncryptionSecret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agent store: %v\n", err)
		os.Exit(1)
	}
	return store
}

func show(cfg *config.Config, wallet string) {
	creds, err := agentStore(cfg).Get(wallet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Printf("user wallet:   %s\n", creds.UserWallet)
	fmt.Printf("agent address: %s\n", creds.AgentAddress)
	fmt.Printf("agent name:    %s\n", creds.AgentName)
	fmt.Printf("approved at:   %s\n", creds.ApprovedAt.Format(time.RFC3339))
}

func remove(cfg *config.Config, wallet string) {
	if err := agentStore(cfg).Delete(wallet); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Printf("agent for %s removed\n", wallet)
}

func mintToken(cfg *config.Config, wallet string) {
	if cfg.AuthConfig.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "AUTH_JWT_SECRET is not configured")
		os.Exit(1)
	}
	ttl := cfg.AuthConfig.AccessTokenDuration
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	token, err := api.IssueToken(cfg.AuthConfig.JWTSecret, wallet, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "minting token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
