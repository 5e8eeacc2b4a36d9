// Package server assembles the HTTP API: routes, middleware and their wiring to the engine.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/card-fund-service/internal/handler"
	"github.com/card-fund-service/internal/handler/admin"
	"github.com/card-fund-service/internal/ledger"
	"github.com/card-fund-service/internal/middleware"
	"github.com/card-fund-service/internal/service"
)

type Options struct {
	Engine            *service.Engine
	StellarNetwork    string
	NetworkPassphrase string
	CORSOrigins       []string

	MaxClockSkew   time.Duration
	AuthLimiter    *middleware.AuthAttemptLimiter
	RateLimiter    *middleware.RateLimiter
	Idempotency    *redis.Client
	IdempotencyTTL time.Duration

	// LocalLedger enables the /v1/dev endpoints that stand in for external payments.
	LocalLedger *ledger.Memory
}

// NewRouter builds the HTTP handler for the card fund API.
func NewRouter(opts Options) http.Handler {
	e := opts.Engine
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.AccessLog)
	r.Use(middleware.SecurityHeaders)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders: []string{
				"Content-Type",
				middleware.CallerHeader,
				middleware.TimestampHeader,
				middleware.SignatureHeader,
				middleware.IdempotencyKeyHeader,
			},
			ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", middleware.ReplayedHeader},
			MaxAge:         300,
		}))
	}

	r.Method(http.MethodGet, "/health", handler.NewHealthHandler(e, opts.StellarNetwork))
	r.Method(http.MethodGet, "/info", handler.NewInfoHandler(e, opts.NetworkPassphrase))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitMiddleware(opts.RateLimiter))

			r.Method(http.MethodGet, "/system", handler.NewSystemHandler(e))
			r.Method(http.MethodGet, "/channels/{address}", handler.NewGetChannelHandler(e))
			r.Method(http.MethodGet, "/card-funds", handler.NewFindCardFundHandler(e))
			r.Method(http.MethodGet, "/card-funds/{address}", handler.NewGetCardFundHandler(e))
			r.Method(http.MethodGet, "/card-funds/{address}/balances", handler.NewCardFundBalancesHandler(e))
			r.Method(http.MethodGet, "/withdrawals/{principal}", handler.NewPendingWithdrawalHandler(e))
			r.Method(http.MethodGet, "/allowlist/{asset}", handler.NewAllowlistEntryHandler(e))
			r.Method(http.MethodGet, "/quotes/card-fund", handler.NewQuoteHandler(e, handler.QuoteCardFund))
			r.Method(http.MethodGet, "/quotes/channel", handler.NewQuoteHandler(e, handler.QuoteChannel))
			r.Method(http.MethodGet, "/quotes/allowlist", handler.NewQuoteHandler(e, handler.QuoteAllowlist))
			r.Method(http.MethodGet, "/events", handler.NewListEventsHandler(e))
		})

		// Signed, mutating routes.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireJSON)
			r.Use(middleware.CallerAuth(opts.MaxClockSkew, opts.AuthLimiter))
			r.Use(middleware.RateLimitMiddleware(opts.RateLimiter))
			r.Use(middleware.Idempotency(opts.Idempotency, opts.IdempotencyTTL))

			r.Route("/admin", func(r chi.Router) {
				r.Method(http.MethodPost, "/ownership", admin.NewTransferOwnershipHandler(e))
				r.Method(http.MethodPost, "/settler", admin.NewSetSettlerHandler(e))
				r.Method(http.MethodPost, "/pauser", admin.NewSetPauserHandler(e))
				r.Method(http.MethodPost, "/approval-key", admin.NewSetApprovalKeyHandler(e))
				r.Method(http.MethodPost, "/withdrawal-wait-time", admin.NewSetWithdrawalWaitTimeHandler(e))
				r.Method(http.MethodPost, "/pause", admin.NewPauseHandler(e))
				r.Method(http.MethodPost, "/unpause", admin.NewUnpauseHandler(e))
				r.Method(http.MethodPost, "/upgrade", admin.NewUpgradeHandler(e))
				r.Method(http.MethodPost, "/destroy", admin.NewDestroyHandler(e))
			})

			r.Method(http.MethodPost, "/channels", handler.NewCreateChannelHandler(e))
			r.Method(http.MethodDelete, "/channels/{address}", handler.NewCloseChannelHandler(e))
			r.Method(http.MethodPost, "/channels/{address}/assets", handler.NewEnableChannelAssetHandler(e))
			r.Method(http.MethodDelete, "/channels/{address}/assets/{asset}", handler.NewDisableChannelAssetHandler(e))

			r.Method(http.MethodPost, "/card-funds", handler.NewCreateCardFundHandler(e))
			r.Method(http.MethodDelete, "/card-funds/{address}", handler.NewCloseCardFundHandler(e))
			r.Method(http.MethodPost, "/card-funds/{address}/recover", handler.NewRecoverCardFundHandler(e))
			r.Method(http.MethodPost, "/card-funds/{address}/assets", handler.NewEnableCardFundAssetHandler(e))
			r.Method(http.MethodDelete, "/card-funds/{address}/assets/{asset}", handler.NewDisableCardFundAssetHandler(e))
			r.Method(http.MethodPost, "/card-funds/{address}/debits", handler.NewDebitHandler(e))
			r.Method(http.MethodPost, "/card-funds/{address}/refunds", handler.NewRefundHandler(e))
			r.Method(http.MethodPost, "/card-funds/{address}/withdrawals", handler.NewRequestWithdrawalHandler(e))
			r.Method(http.MethodDelete, "/card-funds/{address}/withdrawals", handler.NewCancelWithdrawalHandler(e))
			r.Method(http.MethodPost, "/card-funds/{address}/withdrawals/execute", handler.NewExecuteWithdrawalHandler(e))
			r.Method(http.MethodPost, "/card-funds/{address}/withdrawals/approved", handler.NewApprovedWithdrawalHandler(e))

			r.Method(http.MethodPost, "/allowlist", handler.NewAddAllowlistHandler(e))
			r.Method(http.MethodDelete, "/allowlist/{asset}", handler.NewRemoveAllowlistHandler(e))
			r.Method(http.MethodPut, "/allowlist/{asset}/settlement-address", handler.NewSetSettlementAddressHandler(e))
			r.Method(http.MethodPost, "/settlements", handler.NewSettleHandler(e))

			if opts.LocalLedger != nil {
				r.Method(http.MethodPost, "/dev/payments", handler.NewDevPaymentHandler(opts.LocalLedger))
				r.Method(http.MethodPost, "/dev/deposits", handler.NewDevDepositHandler(opts.LocalLedger))
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.RespondError(w, http.StatusNotFound, "not_found", "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handler.RespondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	return r
}
