package handler

import (
	"net/http"

	"github.com/card-fund-service/internal/httputil"
	"github.com/card-fund-service/internal/model"
	"github.com/card-fund-service/internal/service"
	"github.com/card-fund-service/internal/store"
)

// --- System ---

type SystemHandler struct {
	engine *service.Engine
}

func NewSystemHandler(engine *service.Engine) *SystemHandler {
	return &SystemHandler{engine: engine}
}

type systemResponse struct {
	*model.System
	WithdrawalWaitTime string `json:"withdrawal_wait_time"`
}

func (h *SystemHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sys, err := h.engine.System(r.Context())
	if err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, systemResponse{System: sys, WithdrawalWaitTime: sys.WithdrawalWaitTime.String()})
}

// --- Get Channel ---

type GetChannelHandler struct {
	engine *service.Engine
}

func NewGetChannelHandler(engine *service.Engine) *GetChannelHandler {
	return &GetChannelHandler{engine: engine}
}

func (h *GetChannelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ch, err := h.engine.Channel(r.Context(), PathParam(r, "address"))
	if err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, ch)
}

// --- Get Card Fund ---

type GetCardFundHandler struct {
	engine *service.Engine
}

func NewGetCardFundHandler(engine *service.Engine) *GetCardFundHandler {
	return &GetCardFundHandler{engine: engine}
}

func (h *GetCardFundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fund, err := h.engine.CardFund(r.Context(), PathParam(r, "address"))
	if err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, fund)
}

// --- Find Card Fund ---

// FindCardFundHandler resolves a fund by (channel, owner).
type FindCardFundHandler struct {
	engine *service.Engine
}

func NewFindCardFundHandler(engine *service.Engine) *FindCardFundHandler {
	return &FindCardFundHandler{engine: engine}
}

func (h *FindCardFundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	owner := r.URL.Query().Get("owner")
	if channel == "" || owner == "" {
		RespondError(w, http.StatusBadRequest, "invalid_request", "channel and owner query parameters are required")
		return
	}
	fund, err := h.engine.CardFundFor(r.Context(), channel, owner)
	if err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, fund)
}

// --- Card Fund Balances ---

type CardFundBalancesHandler struct {
	engine *service.Engine
}

func NewCardFundBalancesHandler(engine *service.Engine) *CardFundBalancesHandler {
	return &CardFundBalancesHandler{engine: engine}
}

type balanceItem struct {
	Asset   string `json:"asset"`
	Balance string `json:"balance"`
}

type balancesResponse struct {
	CardFund string        `json:"card_fund"`
	Balances []balanceItem `json:"balances"`
}

func (h *CardFundBalancesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fund, err := h.engine.CardFund(r.Context(), PathParam(r, "address"))
	if err != nil {
		service.RespondError(w, err)
		return
	}

	items := make([]balanceItem, 0, len(fund.Assets))
	for _, asset := range fund.Assets {
		bal, err := h.engine.Balance(r.Context(), fund.Address, asset)
		if err != nil {
			service.RespondError(w, err)
			return
		}
		items = append(items, balanceItem{Asset: asset, Balance: FormatAmount(bal)})
	}
	RespondJSON(w, http.StatusOK, balancesResponse{CardFund: fund.Address, Balances: items})
}

// --- Pending Withdrawal ---

type PendingWithdrawalHandler struct {
	engine *service.Engine
}

func NewPendingWithdrawalHandler(engine *service.Engine) *PendingWithdrawalHandler {
	return &PendingWithdrawalHandler{engine: engine}
}

type pendingWithdrawalResponse struct {
	Principal    string `json:"principal"`
	CardFund     string `json:"card_fund"`
	Recipient    string `json:"recipient"`
	Asset        string `json:"asset"`
	Amount       string `json:"amount"`
	Nonce        uint64 `json:"nonce"`
	CreatedAt    string `json:"created_at"`
	ReleasableAt string `json:"releasable_at"`
}

func toPendingWithdrawalResponse(p *model.PendingWithdrawal) pendingWithdrawalResponse {
	return pendingWithdrawalResponse{
		Principal:    p.Principal,
		CardFund:     p.CardFund,
		Recipient:    p.Recipient,
		Asset:        p.Asset,
		Amount:       FormatAmount(p.Amount),
		Nonce:        p.Nonce,
		CreatedAt:    p.CreatedAt.UTC().Format(timeFormat),
		ReleasableAt: p.ReleasableAt.UTC().Format(timeFormat),
	}
}

func (h *PendingWithdrawalHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pending, err := h.engine.PendingWithdrawal(r.Context(), PathParam(r, "principal"))
	if err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, toPendingWithdrawalResponse(pending))
}

// --- Allowlist Entry ---

type AllowlistEntryHandler struct {
	engine *service.Engine
}

func NewAllowlistEntryHandler(engine *service.Engine) *AllowlistEntryHandler {
	return &AllowlistEntryHandler{engine: engine}
}

func (h *AllowlistEntryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	entry, err := h.engine.AllowlistEntry(r.Context(), PathParam(r, "asset"))
	if err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, entry)
}

// --- Quotes ---

// QuoteHandler prices the funding proof a provisioning operation requires.
type QuoteHandler struct {
	engine *service.Engine
	kind   string
}

const (
	QuoteCardFund  = "card-fund"
	QuoteChannel   = "channel"
	QuoteAllowlist = "allowlist"
)

func NewQuoteHandler(engine *service.Engine, kind string) *QuoteHandler {
	return &QuoteHandler{engine: engine, kind: kind}
}

func (h *QuoteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var q model.Quote
	switch h.kind {
	case QuoteCardFund:
		q = h.engine.QuoteCardFund(r.URL.Query().Get("asset"))
	case QuoteChannel:
		q = h.engine.QuoteChannel()
	default:
		q = h.engine.QuoteAllowlist()
	}
	RespondJSON(w, http.StatusOK, NewQuoteResponse(q, h.engine.HoldingAddress()))
}

// --- Events ---

type ListEventsHandler struct {
	engine *service.Engine
}

func NewListEventsHandler(engine *service.Engine) *ListEventsHandler {
	return &ListEventsHandler{engine: engine}
}

type listEventsResponse struct {
	Events []*model.Event `json:"events"`
	httputil.Page
}

func (h *ListEventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage, err := httputil.ParsePagination(q.Get("page"), q.Get("per_page"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	filter := store.EventFilter{Page: page, PerPage: perPage}
	if v := q.Get("card_fund"); v != "" {
		filter.CardFund = &v
	}
	if v := q.Get("kind"); v != "" {
		kind := model.EventKind(v)
		filter.Kind = &kind
	}

	events, total, err := h.engine.Events(r.Context(), filter)
	if err != nil {
		service.RespondError(w, err)
		return
	}
	if events == nil {
		events = []*model.Event{}
	}
	RespondJSON(w, http.StatusOK, listEventsResponse{
		Events: events,
		Page:   httputil.Page{Total: total, Page: page, PerPage: perPage},
	})
}
