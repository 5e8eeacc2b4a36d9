package handler

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/card-fund-service/internal/middleware"
	"github.com/card-fund-service/internal/service"
)

// --- Request Withdrawal ---

type RequestWithdrawalHandler struct {
	engine *service.Engine
}

func NewRequestWithdrawalHandler(engine *service.Engine) *RequestWithdrawalHandler {
	return &RequestWithdrawalHandler{engine: engine}
}

type requestWithdrawalRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

func (h *RequestWithdrawalHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req requestWithdrawalRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	amt, err := ParseAmount("amount", req.Amount)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}

	ctx := r.Context()
	pending, err := h.engine.RequestWithdrawal(ctx, middleware.GetCaller(ctx), PathParam(r, "address"), req.Asset, amt)
	if err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, toPendingWithdrawalResponse(pending))
}

// --- Cancel Withdrawal ---

type CancelWithdrawalHandler struct {
	engine *service.Engine
}

func NewCancelWithdrawalHandler(engine *service.Engine) *CancelWithdrawalHandler {
	return &CancelWithdrawalHandler{engine: engine}
}

func (h *CancelWithdrawalHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.CancelWithdrawal(r.Context(), middleware.GetCaller(r.Context()), PathParam(r, "address")); err != nil {
		service.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Execute Permissionless Withdrawal ---

type ExecuteWithdrawalHandler struct {
	engine *service.Engine
}

func NewExecuteWithdrawalHandler(engine *service.Engine) *ExecuteWithdrawalHandler {
	return &ExecuteWithdrawalHandler{engine: engine}
}

type executeWithdrawalRequest struct {
	Amount string `json:"amount"`
}

func (h *ExecuteWithdrawalHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req executeWithdrawalRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	amt, err := ParseAmount("amount", req.Amount)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}

	ctx := r.Context()
	fund, err := h.engine.ExecutePermissionlessWithdrawal(ctx, middleware.GetCaller(ctx), PathParam(r, "address"), amt)
	if err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, fund)
}

// --- Execute Approved Withdrawal ---

type ApprovedWithdrawalHandler struct {
	engine *service.Engine
}

func NewApprovedWithdrawalHandler(engine *service.Engine) *ApprovedWithdrawalHandler {
	return &ApprovedWithdrawalHandler{engine: engine}
}

type approvedWithdrawalRequest struct {
	Asset     string    `json:"asset"`
	Amount    string    `json:"amount"`
	ExpiresAt time.Time `json:"expires_at"`
	Nonce     uint64    `json:"nonce"`
	Signature string    `json:"signature"`
}

func (h *ApprovedWithdrawalHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req approvedWithdrawalRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	amt, err := ParseAmount("amount", req.Amount)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}
	sig, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil || len(sig) == 0 {
		RespondError(w, http.StatusBadRequest, "invalid_request", "signature must be base64")
		return
	}

	ctx := r.Context()
	fund, err := h.engine.ExecuteApprovedWithdrawal(ctx, middleware.GetCaller(ctx), service.ApprovedWithdrawalInput{
		CardFund:  PathParam(r, "address"),
		Asset:     req.Asset,
		Amount:    amt,
		ExpiresAt: req.ExpiresAt,
		Nonce:     req.Nonce,
		Signature: sig,
	})
	if err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, fund)
}
