package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stellar/go-stellar-sdk/keypair"
	"github.com/stellar/go-stellar-sdk/network"
)

const (
	LedgerStellar = "stellar"
	LedgerMemory  = "memory"
)

type Config struct {
	StellarNetwork   string `env:"STELLAR_NETWORK,default=testnet"`
	HorizonURL       string `env:"HORIZON_URL"`
	SigningSecretKey string `env:"SIGNING_SECRET_KEY,required"`
	OwnerPublicKey   string `env:"OWNER_PUBLIC_KEY,required"`
	SettlerPublicKey string `env:"SETTLER_PUBLIC_KEY"`
	LedgerBackend    string `env:"LEDGER_BACKEND,default=stellar"`

	// DatabaseURL selects the Postgres store. Empty runs on the in-memory store.
	DatabaseURL       string `env:"DATABASE_URL"`
	RedisURL          string `env:"REDIS_URL"`
	NATSURL           string `env:"NATS_URL"`
	NATSSubjectPrefix string `env:"NATS_SUBJECT_PREFIX,default=cardfund"`

	WithdrawalWaitTime         time.Duration `env:"WITHDRAWAL_WAIT_TIME,default=72h"`
	AllowZeroAmountWithdrawals bool          `env:"ALLOW_ZERO_AMOUNT_WITHDRAWALS,default=false"`

	AuthMaxClockSkew time.Duration `env:"AUTH_MAX_CLOCK_SKEW,default=5m"`
	RateLimitMax     int           `env:"RATE_LIMIT_MAX,default=120"`
	RateLimitWindow  time.Duration `env:"RATE_LIMIT_WINDOW,default=1m"`
	IdempotencyTTL   time.Duration `env:"IDEMPOTENCY_TTL,default=24h"`

	Port        int      `env:"PORT,default=8080"`
	LogLevel    string   `env:"LOG_LEVEL,default=info"`
	CORSOrigins []string `env:"CORS_ORIGINS"`

	// HTTP server timeouts
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT,default=15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT,default=30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT,default=60s"`
}

func Load() (*Config, error) {
	return load(context.Background(), envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.StellarNetwork != "testnet" && c.StellarNetwork != "mainnet" {
		return fmt.Errorf("STELLAR_NETWORK must be 'testnet' or 'mainnet', got %q", c.StellarNetwork)
	}

	if !strings.HasPrefix(c.SigningSecretKey, "S") {
		return fmt.Errorf("SIGNING_SECRET_KEY must be a valid Stellar secret key (starts with 'S')")
	}
	if _, err := keypair.ParseFull(c.SigningSecretKey); err != nil {
		return fmt.Errorf("SIGNING_SECRET_KEY is not a valid Stellar secret key: %w", err)
	}

	if _, err := keypair.ParseAddress(c.OwnerPublicKey); err != nil {
		return fmt.Errorf("OWNER_PUBLIC_KEY is not a valid Stellar public key: %w", err)
	}
	if c.SettlerPublicKey != "" {
		if _, err := keypair.ParseAddress(c.SettlerPublicKey); err != nil {
			return fmt.Errorf("SETTLER_PUBLIC_KEY is not a valid Stellar public key: %w", err)
		}
	}

	if c.LedgerBackend != LedgerStellar && c.LedgerBackend != LedgerMemory {
		return fmt.Errorf("LEDGER_BACKEND must be %q or %q, got %q", LedgerStellar, LedgerMemory, c.LedgerBackend)
	}
	if c.LedgerBackend == LedgerMemory && c.StellarNetwork == "mainnet" {
		return fmt.Errorf("LEDGER_BACKEND=memory cannot be used with STELLAR_NETWORK=mainnet")
	}

	if c.WithdrawalWaitTime < 0 {
		return fmt.Errorf("WITHDRAWAL_WAIT_TIME must not be negative")
	}
	if c.AuthMaxClockSkew <= 0 {
		return fmt.Errorf("AUTH_MAX_CLOCK_SKEW must be positive")
	}
	if c.RateLimitMax < 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must not be negative")
	}
	if c.RateLimitMax > 0 && c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive when rate limiting is enabled")
	}
	if c.RedisURL != "" && c.IdempotencyTTL <= 0 {
		return fmt.Errorf("IDEMPOTENCY_TTL must be positive")
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}

	return nil
}

func (c *Config) NetworkPassphrase() string {
	if c.StellarNetwork == "mainnet" {
		return network.PublicNetworkPassphrase
	}
	return network.TestNetworkPassphrase
}

func (c *Config) DefaultHorizonURL() string {
	if c.HorizonURL != "" {
		return c.HorizonURL
	}
	if c.StellarNetwork == "mainnet" {
		return "https://horizon.stellar.org"
	}
	return "https://horizon-testnet.stellar.org"
}
