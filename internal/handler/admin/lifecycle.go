package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/card-fund-service/internal/handler"
	"github.com/card-fund-service/internal/middleware"
	"github.com/card-fund-service/internal/service"
)

func respondSystem(w http.ResponseWriter, r *http.Request, engine *service.Engine) {
	sys, err := engine.System(r.Context())
	if err != nil {
		service.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, sys)
}

// --- Role Assignment ---

// SetAddressHandler assigns one of the system roles or keys to the address in the body.
type SetAddressHandler struct {
	engine *service.Engine
	apply  func(ctx context.Context, caller, address string) error
}

type setAddressRequest struct {
	Address string `json:"address"`
}

func NewTransferOwnershipHandler(engine *service.Engine) *SetAddressHandler {
	return &SetAddressHandler{engine: engine, apply: engine.TransferOwnership}
}

func NewSetSettlerHandler(engine *service.Engine) *SetAddressHandler {
	return &SetAddressHandler{engine: engine, apply: engine.SetSettler}
}

func NewSetPauserHandler(engine *service.Engine) *SetAddressHandler {
	return &SetAddressHandler{engine: engine, apply: engine.SetPauser}
}

func NewSetApprovalKeyHandler(engine *service.Engine) *SetAddressHandler {
	return &SetAddressHandler{engine: engine, apply: engine.SetApprovalKey}
}

func (h *SetAddressHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req setAddressRequest
	if !handler.DecodeJSON(w, r, &req) {
		return
	}

	if err := h.apply(r.Context(), middleware.GetCaller(r.Context()), req.Address); err != nil {
		service.RespondError(w, err)
		return
	}
	respondSystem(w, r, h.engine)
}

// --- Withdrawal Wait Time ---

type SetWithdrawalWaitTimeHandler struct {
	engine *service.Engine
}

func NewSetWithdrawalWaitTimeHandler(engine *service.Engine) *SetWithdrawalWaitTimeHandler {
	return &SetWithdrawalWaitTimeHandler{engine: engine}
}

type setWithdrawalWaitTimeRequest struct {
	// WaitTime is a Go duration string such as "72h".
	WaitTime string `json:"wait_time"`
}

func (h *SetWithdrawalWaitTimeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req setWithdrawalWaitTimeRequest
	if !handler.DecodeJSON(w, r, &req) {
		return
	}
	wait, err := time.ParseDuration(req.WaitTime)
	if err != nil {
		handler.RespondError(w, http.StatusBadRequest, "invalid_request", "wait_time must be a duration such as 72h")
		return
	}

	if err := h.engine.SetWithdrawalWaitTime(r.Context(), middleware.GetCaller(r.Context()), wait); err != nil {
		service.RespondError(w, err)
		return
	}
	respondSystem(w, r, h.engine)
}

// --- Pause / Unpause ---

type PauseHandler struct {
	engine *service.Engine
	pause  bool
}

func NewPauseHandler(engine *service.Engine) *PauseHandler {
	return &PauseHandler{engine: engine, pause: true}
}

func NewUnpauseHandler(engine *service.Engine) *PauseHandler {
	return &PauseHandler{engine: engine}
}

func (h *PauseHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetCaller(r.Context())
	toggle := h.engine.Unpause
	if h.pause {
		toggle = h.engine.Pause
	}
	if err := toggle(r.Context(), caller); err != nil {
		service.RespondError(w, err)
		return
	}
	respondSystem(w, r, h.engine)
}

// --- Upgrade ---

type UpgradeHandler struct {
	engine *service.Engine
}

func NewUpgradeHandler(engine *service.Engine) *UpgradeHandler {
	return &UpgradeHandler{engine: engine}
}

func (h *UpgradeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sys, err := h.engine.Upgrade(r.Context(), middleware.GetCaller(r.Context()))
	if err != nil {
		service.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, sys)
}

// --- Destroy ---

type DestroyHandler struct {
	engine *service.Engine
}

func NewDestroyHandler(engine *service.Engine) *DestroyHandler {
	return &DestroyHandler{engine: engine}
}

func (h *DestroyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Destroy(r.Context(), middleware.GetCaller(r.Context())); err != nil {
		service.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
