package handler

import (
	"errors"
	"net/http"

	"github.com/card-fund-service/internal/ledger"
	"github.com/card-fund-service/internal/middleware"
	"github.com/card-fund-service/internal/model"
)

// Local-ledger endpoints. They stand in for payments made outside the service and are only
// mounted when the in-process ledger backs the engine.

// --- Dev Payment ---

type DevPaymentHandler struct {
	ledger *ledger.Memory
}

func NewDevPaymentHandler(l *ledger.Memory) *DevPaymentHandler {
	return &DevPaymentHandler{ledger: l}
}

type devPaymentRequest struct {
	Amount string `json:"amount"`
}

type devPaymentResponse struct {
	Reference string `json:"reference"`
	Payer     string `json:"payer"`
	Amount    string `json:"amount"`
}

// ServeHTTP records a native payment from the caller to the holding account and returns the
// reference to use as a funding proof.
func (h *DevPaymentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req devPaymentRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	amt, err := ParseAmount("amount", req.Amount)
	if err != nil || amt <= 0 {
		RespondError(w, http.StatusBadRequest, "invalid_amount", "amount must be a positive decimal amount")
		return
	}

	payer := middleware.GetCaller(r.Context())
	ref := h.ledger.Pay(payer, amt)
	RespondJSON(w, http.StatusCreated, devPaymentResponse{Reference: ref, Payer: payer, Amount: FormatAmount(amt)})
}

// --- Dev Deposit ---

type DevDepositHandler struct {
	ledger *ledger.Memory
}

func NewDevDepositHandler(l *ledger.Memory) *DevDepositHandler {
	return &DevDepositHandler{ledger: l}
}

type devDepositRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

// ServeHTTP credits an opted-in account. Unknown accounts are created as external wallets.
func (h *DevDepositHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req devDepositRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	amt, err := ParseAmount("amount", req.Amount)
	if err != nil || amt <= 0 {
		RespondError(w, http.StatusBadRequest, "invalid_amount", "amount must be a positive decimal amount")
		return
	}
	if req.Account == "" || req.Asset == "" {
		RespondError(w, http.StatusBadRequest, "invalid_request", "account and asset are required")
		return
	}

	err = h.ledger.Deposit(req.Account, req.Asset, amt)
	if errors.Is(err, model.ErrAccountNotFound) {
		if err = h.ledger.OptIn(r.Context(), req.Account, req.Asset); err == nil {
			err = h.ledger.Deposit(req.Account, req.Asset, amt)
		}
	}
	if err != nil {
		RespondError(w, http.StatusConflict, "deposit_failed", err.Error())
		return
	}

	bal, _ := h.ledger.BalanceOf(r.Context(), req.Account, req.Asset)
	RespondJSON(w, http.StatusOK, balanceItem{Asset: req.Asset, Balance: FormatAmount(bal)})
}
