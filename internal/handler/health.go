package handler

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/card-fund-service/internal/model"
	"github.com/card-fund-service/internal/service"
)

type HealthHandler struct {
	engine         *service.Engine
	stellarNetwork string
	startTime      time.Time
}

func NewHealthHandler(engine *service.Engine, stellarNetwork string) *HealthHandler {
	return &HealthHandler{
		engine:         engine,
		stellarNetwork: stellarNetwork,
		startTime:      time.Now(),
	}
}

type HealthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	StellarNetwork  string `json:"stellar_network"`
	HoldingAccount  string `json:"holding_account"`
	HoldingBalance  string `json:"holding_balance"`
	Deployed        bool   `json:"deployed"`
	Paused          bool   `json:"paused"`
	ActiveCardFunds uint64 `json:"active_card_funds"`
	ActiveChannels  uint64 `json:"active_channels"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:         "healthy",
		Version:        "1.0.0",
		StellarNetwork: h.stellarNetwork,
		HoldingAccount: h.engine.HoldingAddress(),
		HoldingBalance: "unknown",
		UptimeSeconds:  int64(time.Since(h.startTime).Seconds()),
	}

	if err := h.engine.Ping(r.Context()); err != nil {
		log.Error().Err(err).Msg("store ping failed")
		resp.Status = "unhealthy"
		RespondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	if bal, err := h.engine.Balance(r.Context(), h.engine.HoldingAddress(), model.NativeAsset); err != nil {
		log.Error().Err(err).Msg("failed to get holding account balance")
		resp.Status = "degraded"
	} else {
		resp.HoldingBalance = FormatAmount(bal)
	}

	if sys, err := h.engine.System(r.Context()); err == nil {
		resp.Deployed = !sys.Destroyed
		resp.Paused = sys.Paused
		resp.ActiveCardFunds = sys.ActiveCardFunds
		resp.ActiveChannels = sys.ActiveChannels
	}

	RespondJSON(w, http.StatusOK, resp)
}
