package handler

import (
	"encoding/hex"
	"net/http"

	"github.com/card-fund-service/internal/service"
)

type InfoHandler struct {
	engine            *service.Engine
	networkPassphrase string
}

func NewInfoHandler(engine *service.Engine, networkPassphrase string) *InfoHandler {
	return &InfoHandler{engine: engine, networkPassphrase: networkPassphrase}
}

type InfoResponse struct {
	NetworkPassphrase string `json:"network_passphrase"`
	HoldingAccount    string `json:"holding_account"`
	DomainSeparator   string `json:"domain_separator"`
	AccountReserve    string `json:"account_reserve"`
	OptInReserve      string `json:"opt_in_reserve"`
	OperationFee      string `json:"operation_fee"`
}

func (h *InfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	costs := h.engine.Costs()
	domain := h.engine.DomainSeparator()
	RespondJSON(w, http.StatusOK, InfoResponse{
		NetworkPassphrase: h.networkPassphrase,
		HoldingAccount:    h.engine.HoldingAddress(),
		DomainSeparator:   hex.EncodeToString(domain[:]),
		AccountReserve:    FormatAmount(costs.AccountReserve),
		OptInReserve:      FormatAmount(costs.OptInReserve),
		OperationFee:      FormatAmount(costs.OperationFee),
	})
}
