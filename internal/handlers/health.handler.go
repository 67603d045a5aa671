package handlers

import (
	"context"
	"time"

	"github.com/fasthttp/router"
	xhttp "github.com/nimasrn/report-dispatcher/pkg/http"
)

type HealthService interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	deps map[string]HealthService
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

// NewHealthHandler takes the dependencies to check by name. Nil entries are skipped.
func NewHealthHandler(deps map[string]HealthService) *HealthHandler {
	clean := make(map[string]HealthService, len(deps))
	for name, d := range deps {
		if d != nil {
			clean[name] = d
		}
	}
	return &HealthHandler{deps: clean}
}

type healthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Dependencies: make(map[string]string, len(h.deps))}
	code := xhttp.StatusOK
	for name, d := range h.deps {
		if err := d.Ping(pingCtx); err != nil {
			resp.Dependencies[name] = err.Error()
			resp.Status = "degraded"
			code = xhttp.StatusServiceUnavailable
			continue
		}
		resp.Dependencies[name] = "ok"
	}
	writeJSON(ctx, code, resp)
}
