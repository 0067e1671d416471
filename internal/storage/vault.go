package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	vault "github.com/hashicorp/vault/api"

	"hyperliquid-trading-bot/internal/hyperliquid"
)

const vaultTimeout = 10 * time.Second

// VaultAgentStore keeps agent credentials in a Vault KV v2 engine instead of
// the encrypted JSON file. Keys never touch local disk.
type VaultAgentStore struct {
	client     *vault.Client
	mountPath  string
	secretPath string
}

type VaultConfig struct {
	Address    string
	Token      string
	MountPath  string
	SecretPath string
	CACert     string
}

func NewVaultAgentStore(cfg VaultConfig) (*VaultAgentStore, error) {
	vc := vault.DefaultConfig()
	vc.Address = cfg.Address
	if cfg.CACert != "" {
		if err := vc.ConfigureTLS(&vault.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("configuring vault TLS: %w", err)
		}
	}

	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("creating vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	return &VaultAgentStore{
		client:     client,
		mountPath:  cfg.MountPath,
		secretPath: strings.Trim(cfg.SecretPath, "/"),
	}, nil
}

func (s *VaultAgentStore) walletPath(wallet string) string {
	return s.secretPath + "/" + strings.ToLower(wallet)
}

func (s *VaultAgentStore) Get(wallet string) (*hyperliquid.AgentCredentials, error) {
	ctx, cancel := context.WithTimeout(context.Background(), vaultTimeout)
	defer cancel()

	secret, err := s.client.KVv2(s.mountPath).Get(ctx, s.walletPath(wallet))
	if err != nil {
		if strings.Contains(err.Error(), "secret not found") {
			return nil, fmt.Errorf("agent for %s: %w", wallet, ErrNotFound)
		}
		return nil, fmt.Errorf("reading agent from vault: %w", err)
	}

	payload, err := json.Marshal(secret.Data)
	if err != nil {
		return nil, fmt.Errorf("re-encoding vault data: %w", err)
	}
	var creds hyperliquid.AgentCredentials
	if err := json.Unmarshal(payload, &creds); err != nil {
		return nil, fmt.Errorf("decoding agent credentials: %w", err)
	}
	return &creds, nil
}

func (s *VaultAgentStore) Put(wallet string, creds hyperliquid.AgentCredentials) error {
	ctx, cancel := context.WithTimeout(context.Background(), vaultTimeout)
	defer cancel()

	data := map[string]any{
		"user_wallet":   creds.UserWallet,
		"agent_address": creds.AgentAddress,
		"agent_key":     creds.AgentKey,
		"agent_name":    creds.AgentName,
		"approved_at":   creds.ApprovedAt,
	}
	if _, err := s.client.KVv2(s.mountPath).Put(ctx, s.walletPath(wallet), data); err != nil {
		return fmt.Errorf("writing agent to vault: %w", err)
	}
	return nil
}

func (s *VaultAgentStore) Delete(wallet string) error {
	ctx, cancel := context.WithTimeout(context.Background(), vaultTimeout)
	defer cancel()

	if err := s.client.KVv2(s.mountPath).Delete(ctx, s.walletPath(wallet)); err != nil {
		return fmt.Errorf("deleting agent from vault: %w", err)
	}
	return nil
}
