// Command cardfundd serves the card fund custody API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/card-fund-service/internal/config"
	"github.com/card-fund-service/internal/middleware"
	"github.com/card-fund-service/internal/server"
	"github.com/card-fund-service/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("cardfundd terminated with error")
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	if _, err := deps.engine.Deploy(ctx, service.DeployInput{
		Owner:   cfg.OwnerPublicKey,
		Settler: cfg.SettlerPublicKey,
	}); err != nil && service.KindOf(err) != service.ErrAlreadyExists {
		return fmt.Errorf("deploy: %w", err)
	}

	router := server.NewRouter(server.Options{
		Engine:            deps.engine,
		StellarNetwork:    cfg.StellarNetwork,
		NetworkPassphrase: cfg.NetworkPassphrase(),
		CORSOrigins:       cfg.CORSOrigins,
		MaxClockSkew:      cfg.AuthMaxClockSkew,
		AuthLimiter:       middleware.NewAuthAttemptLimiter(5, 5*time.Minute, 15*time.Minute),
		RateLimiter:       middleware.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow),
		Idempotency:       deps.redis,
		IdempotencyTTL:    cfg.IdempotencyTTL,
		LocalLedger:       deps.localLedger,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str("addr", srv.Addr).
			Str("network", cfg.StellarNetwork).
			Str("ledger", cfg.LedgerBackend).
			Str("holding", deps.engine.HoldingAddress()).
			Msg("starting cardfundd")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		log.Info().Msg("server stopped gracefully")
		return nil
	})

	return g.Wait()
}
