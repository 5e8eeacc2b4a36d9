package handler

import (
	"net/http"

	"github.com/card-fund-service/internal/middleware"
	"github.com/card-fund-service/internal/service"
)

// --- Create Card Fund ---

type CreateCardFundHandler struct {
	engine *service.Engine
}

func NewCreateCardFundHandler(engine *service.Engine) *CreateCardFundHandler {
	return &CreateCardFundHandler{engine: engine}
}

type createCardFundRequest struct {
	Channel          string `json:"channel"`
	Cardholder       string `json:"cardholder,omitempty"`
	Asset            string `json:"asset,omitempty"`
	FundingReference string `json:"funding_reference"`
}

func (h *CreateCardFundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req createCardFundRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	fund, err := h.engine.CreateCardFund(r.Context(), middleware.GetCaller(r.Context()), service.CreateCardFundInput{
		Channel:    req.Channel,
		Cardholder: req.Cardholder,
		Asset:      req.Asset,
		Funding:    FundingProof(req.FundingReference),
	})
	if err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, fund)
}

// --- Close Card Fund ---

type CloseCardFundHandler struct {
	engine *service.Engine
}

func NewCloseCardFundHandler(engine *service.Engine) *CloseCardFundHandler {
	return &CloseCardFundHandler{engine: engine}
}

func (h *CloseCardFundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.CloseCardFund(r.Context(), middleware.GetCaller(r.Context()), PathParam(r, "address")); err != nil {
		service.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Recover Card Fund ---

type RecoverCardFundHandler struct {
	engine *service.Engine
}

func NewRecoverCardFundHandler(engine *service.Engine) *RecoverCardFundHandler {
	return &RecoverCardFundHandler{engine: engine}
}

type recoverCardFundRequest struct {
	NewOwner string `json:"new_owner"`
}

func (h *RecoverCardFundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req recoverCardFundRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	address := PathParam(r, "address")
	if err := h.engine.RecoverCardFund(ctx, middleware.GetCaller(ctx), address, req.NewOwner); err != nil {
		service.RespondError(w, err)
		return
	}
	fund, err := h.engine.CardFund(ctx, address)
	if err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, fund)
}

// --- Enable Card Fund Asset ---

type EnableCardFundAssetHandler struct {
	engine *service.Engine
}

func NewEnableCardFundAssetHandler(engine *service.Engine) *EnableCardFundAssetHandler {
	return &EnableCardFundAssetHandler{engine: engine}
}

func (h *EnableCardFundAssetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req assetRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	address := PathParam(r, "address")
	if err := h.engine.EnableAsset(ctx, middleware.GetCaller(ctx), address, req.Asset, FundingProof(req.FundingReference)); err != nil {
		service.RespondError(w, err)
		return
	}
	fund, err := h.engine.CardFund(ctx, address)
	if err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, fund)
}

// --- Disable Card Fund Asset ---

type DisableCardFundAssetHandler struct {
	engine *service.Engine
}

func NewDisableCardFundAssetHandler(engine *service.Engine) *DisableCardFundAssetHandler {
	return &DisableCardFundAssetHandler{engine: engine}
}

func (h *DisableCardFundAssetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.engine.DisableAsset(ctx, middleware.GetCaller(ctx), PathParam(r, "address"), PathParam(r, "asset")); err != nil {
		service.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Debit / Refund ---

// DebitHandler serves both debits and refunds, which share one nonce sequence.
type DebitHandler struct {
	engine *service.Engine
	refund bool
}

func NewDebitHandler(engine *service.Engine) *DebitHandler {
	return &DebitHandler{engine: engine}
}

func NewRefundHandler(engine *service.Engine) *DebitHandler {
	return &DebitHandler{engine: engine, refund: true}
}

type debitRequest struct {
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	Nonce     uint64 `json:"nonce"`
	Reference string `json:"reference,omitempty"`
}

func (h *DebitHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req debitRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	amt, err := ParseAmount("amount", req.Amount)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}

	input := service.DebitInput{
		CardFund:  PathParam(r, "address"),
		Asset:     req.Asset,
		Amount:    amt,
		Nonce:     req.Nonce,
		Reference: req.Reference,
	}
	caller := middleware.GetCaller(r.Context())
	move := h.engine.Debit
	if h.refund {
		move = h.engine.Refund
	}

	fund, err := move(r.Context(), caller, input)
	if err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, fund)
}
