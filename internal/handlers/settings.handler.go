package handlers

import (
	"context"
	"time"

	"github.com/fasthttp/router"
	"github.com/nimasrn/report-dispatcher/internal/model"
	xhttp "github.com/nimasrn/report-dispatcher/pkg/http"
	"github.com/nimasrn/report-dispatcher/pkg/logger"
)

type SettingsService interface {
	AutomaticDeliveryEnabled(ctx context.Context) bool
	SetAutomaticDeliveryEnabled(ctx context.Context, enabled bool) (*model.Setting, error)
}

type SettingsHandler struct {
	svc SettingsService
}

func RegisterSettingsRoutes(e *router.Group, h *SettingsHandler) {
	e.GET("/settings/automatic-delivery", h.GetAutomaticDelivery)
	e.PUT("/settings/automatic-delivery", h.SetAutomaticDelivery)
}

func NewSettingsHandler(svc SettingsService) *SettingsHandler {
	return &SettingsHandler{svc: svc}
}

type automaticDeliveryBody struct {
	// a pointer so a missing field is rejected instead of read as false
	Enabled *bool `json:"enabled"`
}

type automaticDeliveryResponse struct {
	Enabled     bool   `json:"enabled"`
	LastUpdated string `json:"last_updated,omitempty"`
}

func (h *SettingsHandler) GetAutomaticDelivery(ctx *xhttp.RequestCtx) {
	writeJSON(ctx, xhttp.StatusOK, automaticDeliveryResponse{Enabled: h.svc.AutomaticDeliveryEnabled(ctx)})
}

func (h *SettingsHandler) SetAutomaticDelivery(ctx *xhttp.RequestCtx) {
	var body automaticDeliveryBody
	if err := readJSON(ctx, &body); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if body.Enabled == nil {
		writeError(ctx, xhttp.StatusBadRequest, "enabled is required")
		return
	}

	setting, err := h.svc.SetAutomaticDeliveryEnabled(ctx, *body.Enabled)
	if err != nil {
		logger.Error("failed to toggle automatic delivery", "error", err)
		writeError(ctx, xhttp.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(ctx, xhttp.StatusOK, automaticDeliveryResponse{
		Enabled:     *body.Enabled,
		LastUpdated: setting.UpdatedAt.Format(time.RFC3339),
	})
}
