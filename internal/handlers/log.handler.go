package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/nimasrn/report-dispatcher/internal/services"
	xhttp "github.com/nimasrn/report-dispatcher/pkg/http"
	"github.com/nimasrn/report-dispatcher/pkg/logger"
)

type LogService interface {
	GetLogsForDate(ctx context.Context, date string) ([]*model.DeliveryLogEntry, error)
	GetRecentLogs(ctx context.Context, days int) (model.DeliveryLogBuckets, error)
}

type LogHandler struct {
	svc   LogService
	today func() string
}

func RegisterLogRoutes(e *router.Group, h *LogHandler) {
	e.GET("/logs", h.LogsForDate)
	e.GET("/logs/recent", h.RecentLogs)
}

// NewLogHandler uses today to fill a missing date parameter.
func NewLogHandler(svc LogService, today func() string) *LogHandler {
	return &LogHandler{svc: svc, today: today}
}

func (h *LogHandler) LogsForDate(ctx *xhttp.RequestCtx) {
	date := query(ctx, "date")
	if date == "" {
		date = h.today()
	}
	date, err := parseDate(date)
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	logs, err := h.svc.GetLogsForDate(ctx, date)
	if err != nil {
		logger.Error("failed to read delivery logs", "date", date, "error", err)
		writeError(ctx, xhttp.StatusInternalServerError, "internal error")
		return
	}
	if logs == nil {
		logs = []*model.DeliveryLogEntry{}
	}
	writeJSON(ctx, xhttp.StatusOK, logs)
}

func (h *LogHandler) RecentLogs(ctx *xhttp.RequestCtx) {
	days, err := queryInt(ctx, "days", services.DefaultRecentLogDays)
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	buckets, err := h.svc.GetRecentLogs(ctx, days)
	if err != nil {
		logger.Error("failed to read recent delivery logs", "days", days, "error", err)
		writeError(ctx, xhttp.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(ctx, xhttp.StatusOK, buckets)
}
