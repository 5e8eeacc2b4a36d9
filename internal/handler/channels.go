package handler

import (
	"net/http"

	"github.com/card-fund-service/internal/middleware"
	"github.com/card-fund-service/internal/service"
)

type assetRequest struct {
	Asset            string `json:"asset"`
	FundingReference string `json:"funding_reference,omitempty"`
}

// --- Create Channel ---

type CreateChannelHandler struct {
	engine *service.Engine
}

func NewCreateChannelHandler(engine *service.Engine) *CreateChannelHandler {
	return &CreateChannelHandler{engine: engine}
}

type createChannelRequest struct {
	Name             string `json:"name"`
	FundingReference string `json:"funding_reference"`
}

func (h *CreateChannelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req createChannelRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	ch, err := h.engine.CreateChannel(r.Context(), middleware.GetCaller(r.Context()), req.Name, FundingProof(req.FundingReference))
	if err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, ch)
}

// --- Close Channel ---

type CloseChannelHandler struct {
	engine *service.Engine
}

func NewCloseChannelHandler(engine *service.Engine) *CloseChannelHandler {
	return &CloseChannelHandler{engine: engine}
}

func (h *CloseChannelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.CloseChannel(r.Context(), middleware.GetCaller(r.Context()), PathParam(r, "address")); err != nil {
		service.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Enable Channel Asset ---

type EnableChannelAssetHandler struct {
	engine *service.Engine
}

func NewEnableChannelAssetHandler(engine *service.Engine) *EnableChannelAssetHandler {
	return &EnableChannelAssetHandler{engine: engine}
}

func (h *EnableChannelAssetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req assetRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	address := PathParam(r, "address")
	if err := h.engine.EnableChannelAsset(ctx, middleware.GetCaller(ctx), address, req.Asset, FundingProof(req.FundingReference)); err != nil {
		service.RespondError(w, err)
		return
	}
	ch, err := h.engine.Channel(ctx, address)
	if err != nil {
		service.RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, ch)
}

// --- Disable Channel Asset ---

type DisableChannelAssetHandler struct {
	engine *service.Engine
}

func NewDisableChannelAssetHandler(engine *service.Engine) *DisableChannelAssetHandler {
	return &DisableChannelAssetHandler{engine: engine}
}

func (h *DisableChannelAssetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.engine.DisableChannelAsset(ctx, middleware.GetCaller(ctx), PathParam(r, "address"), PathParam(r, "asset")); err != nil {
		service.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
