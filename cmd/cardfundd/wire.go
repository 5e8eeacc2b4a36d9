package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/stellar/go-stellar-sdk/clients/horizonclient"
	"github.com/stellar/go-stellar-sdk/keypair"

	"github.com/card-fund-service/internal/config"
	"github.com/card-fund-service/internal/events"
	"github.com/card-fund-service/internal/ledger"
	"github.com/card-fund-service/internal/service"
	"github.com/card-fund-service/internal/stellar"
	"github.com/card-fund-service/internal/store"
)

const (
	connectTimeout = 10 * time.Second
	horizonTimeout = 30 * time.Second

	// localHoldingBalance seeds the in-process holding account in local mode.
	localHoldingBalance = 10_000 * 10_000_000
)

type dependencies struct {
	engine      *service.Engine
	redis       *redis.Client
	localLedger *ledger.Memory
	closers     []func()
}

func (d *dependencies) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func wire(ctx context.Context, cfg *config.Config) (*dependencies, error) {
	deps := &dependencies{}
	fail := func(err error) (*dependencies, error) {
		deps.close()
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	st, err := openStore(connectCtx, cfg, deps)
	if err != nil {
		return fail(err)
	}

	opts := service.Options{
		Store:           st,
		Signatures:      stellar.SignatureVerifier{},
		Publisher:       events.Log{},
		Costs:           stellar.Costs(stellar.BaseReserveStroops),
		DefaultWaitTime: cfg.WithdrawalWaitTime,
		AllowZeroAmount: cfg.AllowZeroAmountWithdrawals,
	}

	switch cfg.LedgerBackend {
	case config.LedgerMemory:
		holding, err := keypair.ParseFull(cfg.SigningSecretKey)
		if err != nil {
			return fail(fmt.Errorf("parse signing key: %w", err))
		}
		l := ledger.NewMemory(holding.Address(), localHoldingBalance)
		opts.Accounts, opts.Assets, opts.Funding = l, l, l
		opts.HoldingAddress = l.HoldingAddress()
		deps.localLedger = l
		log.Warn().Msg("running on the in-process ledger; balances are not persisted")
	default:
		client := &horizonclient.Client{
			HorizonURL: cfg.DefaultHorizonURL(),
			HTTP:       &http.Client{Timeout: horizonTimeout},
		}
		l, err := stellar.NewLedger(client, cfg.SigningSecretKey, cfg.NetworkPassphrase())
		if err != nil {
			return fail(err)
		}
		opts.Accounts, opts.Assets, opts.Funding = l, l, l
		opts.HoldingAddress = l.HoldingAddress()
	}
	opts.DomainSeparator = stellar.DomainSeparator(cfg.NetworkPassphrase(), opts.HoldingAddress)

	if cfg.NATSURL != "" {
		bus, err := events.ConnectNATS(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			return fail(err)
		}
		deps.closers = append(deps.closers, bus.Close)
		opts.Publisher = bus
	}

	if cfg.RedisURL != "" {
		client, err := connectRedis(connectCtx, cfg.RedisURL)
		if err != nil {
			return fail(err)
		}
		deps.closers = append(deps.closers, func() { client.Close() })
		deps.redis = client
	}

	deps.engine = service.NewEngine(opts)
	return deps, nil
}

func openStore(ctx context.Context, cfg *config.Config, deps *dependencies) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set; using the in-memory store")
		return store.NewMemory(), nil
	}

	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		return nil, err
	}
	pool, err := connectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	deps.closers = append(deps.closers, pool.Close)
	return store.NewPostgres(pool), nil
}

func connectPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
