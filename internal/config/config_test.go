package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stellar/go-stellar-sdk/keypair"
	"github.com/stellar/go-stellar-sdk/network"
)

func baseEnv(t *testing.T) map[string]string {
	t.Helper()
	signer, err := keypair.Random()
	if err != nil {
		t.Fatalf("random keypair: %v", err)
	}
	owner, err := keypair.Random()
	if err != nil {
		t.Fatalf("random keypair: %v", err)
	}
	return map[string]string{
		"SIGNING_SECRET_KEY": signer.Seed(),
		"OWNER_PUBLIC_KEY":   owner.Address(),
	}
}

func loadWith(env map[string]string) (*Config, error) {
	return load(context.Background(), envconfig.MapLookuper(env))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadWith(baseEnv(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.StellarNetwork != "testnet" || cfg.LedgerBackend != LedgerStellar {
		t.Fatalf("unexpected network/backend defaults: %s/%s", cfg.StellarNetwork, cfg.LedgerBackend)
	}
	if cfg.WithdrawalWaitTime != 72*time.Hour {
		t.Fatalf("expected default wait time 72h, got %s", cfg.WithdrawalWaitTime)
	}
	if cfg.AllowZeroAmountWithdrawals {
		t.Fatal("expected zero-amount withdrawals to be disabled by default")
	}
	if cfg.NATSSubjectPrefix != "cardfund" || cfg.Port != 8080 {
		t.Fatalf("unexpected defaults: prefix=%s port=%d", cfg.NATSSubjectPrefix, cfg.Port)
	}
	if cfg.NetworkPassphrase() != network.TestNetworkPassphrase {
		t.Fatalf("unexpected passphrase %q", cfg.NetworkPassphrase())
	}
	if cfg.DefaultHorizonURL() != "https://horizon-testnet.stellar.org" {
		t.Fatalf("unexpected horizon url %q", cfg.DefaultHorizonURL())
	}
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv(t)
	env["STELLAR_NETWORK"] = "mainnet"
	env["HORIZON_URL"] = "https://horizon.example.com"
	env["WITHDRAWAL_WAIT_TIME"] = "30m"
	env["ALLOW_ZERO_AMOUNT_WITHDRAWALS"] = "true"
	env["CORS_ORIGINS"] = "https://a.example,https://b.example"

	cfg, err := loadWith(env)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NetworkPassphrase() != network.PublicNetworkPassphrase {
		t.Fatalf("unexpected passphrase %q", cfg.NetworkPassphrase())
	}
	if cfg.DefaultHorizonURL() != "https://horizon.example.com" {
		t.Fatalf("expected HORIZON_URL override, got %q", cfg.DefaultHorizonURL())
	}
	if cfg.WithdrawalWaitTime != 30*time.Minute || !cfg.AllowZeroAmountWithdrawals {
		t.Fatalf("unexpected withdrawal policy: %s zero=%v", cfg.WithdrawalWaitTime, cfg.AllowZeroAmountWithdrawals)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("expected 2 CORS origins, got %v", cfg.CORSOrigins)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"bad network", "STELLAR_NETWORK", "futurenet", "STELLAR_NETWORK"},
		{"public key as signer", "SIGNING_SECRET_KEY", "GABC", "SIGNING_SECRET_KEY"},
		{"bad owner", "OWNER_PUBLIC_KEY", "not-a-key", "OWNER_PUBLIC_KEY"},
		{"bad settler", "SETTLER_PUBLIC_KEY", "not-a-key", "SETTLER_PUBLIC_KEY"},
		{"bad backend", "LEDGER_BACKEND", "sqlite", "LEDGER_BACKEND"},
		{"negative wait", "WITHDRAWAL_WAIT_TIME", "-1h", "WITHDRAWAL_WAIT_TIME"},
		{"zero skew", "AUTH_MAX_CLOCK_SKEW", "0s", "AUTH_MAX_CLOCK_SKEW"},
		{"port out of range", "PORT", "70000", "PORT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := baseEnv(t)
			env[tt.key] = tt.value
			_, err := loadWith(env)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}

	t.Run("memory ledger is refused on mainnet", func(t *testing.T) {
		env := baseEnv(t)
		env["STELLAR_NETWORK"] = "mainnet"
		env["LEDGER_BACKEND"] = LedgerMemory
		if _, err := loadWith(env); err == nil {
			t.Fatal("expected mainnet + memory ledger to be rejected")
		}
	})

	t.Run("missing required key", func(t *testing.T) {
		env := baseEnv(t)
		delete(env, "OWNER_PUBLIC_KEY")
		if _, err := loadWith(env); err == nil {
			t.Fatal("expected missing OWNER_PUBLIC_KEY to fail")
		}
	})
}
