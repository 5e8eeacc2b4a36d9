package handler

import (
	"net/http"

	"github.com/card-fund-service/internal/middleware"
	"github.com/card-fund-service/internal/service"
)

// --- Add To Allowlist ---

type AddAllowlistHandler struct {
	engine *service.Engine
}

func NewAddAllowlistHandler(engine *service.Engine) *AddAllowlistHandler {
	return &AddAllowlistHandler{engine: engine}
}

type addAllowlistRequest struct {
	Asset             string `json:"asset"`
	SettlementAddress string `json:"settlement_address"`
	FundingReference  string `json:"funding_reference"`
}

func (h *AddAllowlistHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req addAllowlistRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	entry, err := h.engine.AddToAllowlist(ctx, middleware.GetCaller(ctx), req.Asset, req.SettlementAddress, FundingProof(req.FundingReference))
	if err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, entry)
}

// --- Remove From Allowlist ---

type RemoveAllowlistHandler struct {
	engine *service.Engine
}

func NewRemoveAllowlistHandler(engine *service.Engine) *RemoveAllowlistHandler {
	return &RemoveAllowlistHandler{engine: engine}
}

func (h *RemoveAllowlistHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RemoveFromAllowlist(r.Context(), middleware.GetCaller(r.Context()), PathParam(r, "asset")); err != nil {
		service.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Set Settlement Address ---

type SetSettlementAddressHandler struct {
	engine *service.Engine
}

func NewSetSettlementAddressHandler(engine *service.Engine) *SetSettlementAddressHandler {
	return &SetSettlementAddressHandler{engine: engine}
}

type setSettlementAddressRequest struct {
	SettlementAddress string `json:"settlement_address"`
}

func (h *SetSettlementAddressHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req setSettlementAddressRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	asset := PathParam(r, "asset")
	if err := h.engine.SetSettlementAddress(ctx, middleware.GetCaller(ctx), asset, req.SettlementAddress); err != nil {
		service.RespondError(w, err)
		return
	}
	entry, err := h.engine.AllowlistEntry(ctx, asset)
	if err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, entry)
}

// --- Settle ---

type SettleHandler struct {
	engine *service.Engine
}

func NewSettleHandler(engine *service.Engine) *SettleHandler {
	return &SettleHandler{engine: engine}
}

type settleRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
	Nonce  uint64 `json:"nonce"`
}

type settleResponse struct {
	Asset           string `json:"asset"`
	Amount          string `json:"amount"`
	SettlementNonce uint64 `json:"settlement_nonce"`
}

func (h *SettleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	amt, err := ParseAmount("amount", req.Amount)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}

	ctx := r.Context()
	next, err := h.engine.Settle(ctx, middleware.GetCaller(ctx), req.Asset, amt, req.Nonce)
	if err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, settleResponse{Asset: req.Asset, Amount: FormatAmount(amt), SettlementNonce: next})
}
