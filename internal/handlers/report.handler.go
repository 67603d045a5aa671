package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/fasthttp/router"
	"github.com/go-playground/validator/v10"
	"github.com/nimasrn/report-dispatcher/internal/delivery"
	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/nimasrn/report-dispatcher/internal/services"
	xhttp "github.com/nimasrn/report-dispatcher/pkg/http"
	"github.com/nimasrn/report-dispatcher/pkg/logger"
)

type ReportService interface {
	List(ctx context.Context, f model.ReportFilter) ([]*model.Report, error)
	Get(ctx context.Context, id string) (*model.Report, error)
	Add(ctx context.Context, rep *model.Report) (*model.Report, error)
	Update(ctx context.Context, rep *model.Report) (*model.Report, error)
	Delete(ctx context.Context, id string) error
	IncrementDeliveryCount(ctx context.Context, id string) error
}

type Deliverer interface {
	Deliver(ctx context.Context, req *model.DeliveryRequest) (*model.DeliveryResult, error)
}

type ReportLogService interface {
	AddLogEntry(ctx context.Context, entry *model.DeliveryLogEntry) error
	GetLogsForReport(ctx context.Context, reportID string, days int) ([]*model.DeliveryLogEntry, error)
}

type ReportHandler struct {
	svc       ReportService
	deliverer Deliverer
	logs      ReportLogService
	validator *validator.Validate
}

func RegisterReportRoutes(e *router.Group, h *ReportHandler) {
	e.GET("/reports", h.ListReports)
	e.POST("/reports", h.CreateReport)
	e.GET("/reports/{id}", h.GetReport)
	e.PUT("/reports/{id}", h.UpdateReport)
	e.DELETE("/reports/{id}", h.DeleteReport)
	e.POST("/reports/{id}/deliver", h.DeliverReport)
	e.GET("/reports/{id}/logs", h.ReportLogs)
}

func NewReportHandler(svc ReportService, deliverer Deliverer, logs ReportLogService) *ReportHandler {
	return &ReportHandler{
		svc:       svc,
		deliverer: deliverer,
		logs:      logs,
		validator: NewValidator(),
	}
}

type reportRequest struct {
	Name            string `json:"name" validate:"required,max=200"`
	Author          string `json:"author" validate:"max=200"`
	Receiver        string `json:"receiver" validate:"max=200"`
	Link            string `json:"link" validate:"omitempty,url"`
	RawDataLink     string `json:"raw_data_link" validate:"omitempty,url"`
	Channel         string `json:"channel"`
	ThreadContent   string `json:"thread_content"`
	ThreadTS        string `json:"thread_ts"`
	DeliveryMode    string `json:"delivery_mode" validate:"omitempty,oneof=manual scheduled automatic"`
	ScheduleTime    string `json:"schedule_time" validate:"required_if=DeliveryMode scheduled,hhmm"`
	AutomaticTaskID string `json:"automatic_task_id" validate:"required_if=DeliveryMode automatic"`
	Status          string `json:"status" validate:"omitempty,oneof=active inactive archived"`
	ScheduleEnabled bool   `json:"schedule_enabled"`
}

func (r *reportRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.DeliveryMode = strings.ToLower(strings.TrimSpace(r.DeliveryMode))
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
	r.ScheduleTime = strings.TrimSpace(r.ScheduleTime)
	r.AutomaticTaskID = strings.TrimSpace(r.AutomaticTaskID)
	r.Link = strings.TrimSpace(r.Link)
	r.RawDataLink = strings.TrimSpace(r.RawDataLink)
}

// apply copies the editable fields onto rep. Delivery bookkeeping is left
// alone, and an empty status keeps the current one.
func (r *reportRequest) apply(rep *model.Report) {
	rep.Name = r.Name
	rep.Author = r.Author
	rep.Receiver = r.Receiver
	rep.Link = r.Link
	rep.RawDataLink = r.RawDataLink
	rep.Channel = r.Channel
	rep.ThreadContent = r.ThreadContent
	rep.ThreadTS = r.ThreadTS
	rep.DeliveryMode = model.DeliveryMode(r.DeliveryMode)
	rep.ScheduleTime = r.ScheduleTime
	rep.AutomaticTaskID = r.AutomaticTaskID
	if r.Status != "" {
		rep.Status = model.ReportStatus(r.Status)
	}
	rep.ScheduleEnabled = r.ScheduleEnabled
}

type listReportsResponse struct {
	Items []*model.Report `json:"items"`
	Total int             `json:"total"`
}

func (h *ReportHandler) readReport(ctx *xhttp.RequestCtx) (*reportRequest, bool) {
	var req reportRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return nil, false
	}
	req.normalize()
	if err := h.validator.Struct(&req); err != nil {
		writeJSON(ctx, xhttp.StatusBadRequest, errorResponse{Error: "validation failed", Details: validationDetails(err)})
		return nil, false
	}
	return &req, true
}

func (h *ReportHandler) writeServiceError(ctx *xhttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, services.ErrReportNotFound):
		writeError(ctx, xhttp.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrInvalidReport):
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
	default:
		logger.Error("report request failed", "path", string(ctx.Path()), "error", err)
		writeError(ctx, xhttp.StatusInternalServerError, "internal error")
	}
}

func (h *ReportHandler) ListReports(ctx *xhttp.RequestCtx) {
	var f model.ReportFilter
	if v := query(ctx, "mode"); v != "" {
		mode := model.DeliveryMode(strings.ToLower(v))
		f.Mode = &mode
	}
	if v := query(ctx, "status"); v != "" {
		status := model.ReportStatus(strings.ToLower(v))
		f.Status = &status
	}

	items, err := h.svc.List(ctx, f)
	if err != nil {
		h.writeServiceError(ctx, err)
		return
	}
	if items == nil {
		items = []*model.Report{}
	}
	writeJSON(ctx, xhttp.StatusOK, listReportsResponse{Items: items, Total: len(items)})
}

func (h *ReportHandler) CreateReport(ctx *xhttp.RequestCtx) {
	req, ok := h.readReport(ctx)
	if !ok {
		return
	}
	rep := &model.Report{}
	req.apply(rep)

	created, err := h.svc.Add(ctx, rep)
	if err != nil {
		h.writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, created)
}

func (h *ReportHandler) GetReport(ctx *xhttp.RequestCtx) {
	rep, err := h.svc.Get(ctx, pathParam(ctx, "id"))
	if err != nil {
		h.writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, rep)
}

func (h *ReportHandler) UpdateReport(ctx *xhttp.RequestCtx) {
	existing, err := h.svc.Get(ctx, pathParam(ctx, "id"))
	if err != nil {
		h.writeServiceError(ctx, err)
		return
	}
	req, ok := h.readReport(ctx)
	if !ok {
		return
	}
	req.apply(existing)

	updated, err := h.svc.Update(ctx, existing)
	if err != nil {
		h.writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, updated)
}

func (h *ReportHandler) DeleteReport(ctx *xhttp.RequestCtx) {
	if err := h.svc.Delete(ctx, pathParam(ctx, "id")); err != nil {
		h.writeServiceError(ctx, err)
		return
	}
	ctx.SetStatusCode(xhttp.StatusNoContent)
}

// File attachments are left to cmd/deliver, which reads from the operator's
// own disk; the API never takes a server-side path.
type deliverRequest struct {
	Date string `json:"date"`
}

// DeliverReport sends the report now, whatever its mode. It does not touch
// LastSentDate, so a scheduled report still fires in its own window.
func (h *ReportHandler) DeliverReport(ctx *xhttp.RequestCtx) {
	rep, err := h.svc.Get(ctx, pathParam(ctx, "id"))
	if err != nil {
		h.writeServiceError(ctx, err)
		return
	}

	var body deliverRequest
	if len(ctx.PostBody()) > 0 {
		if err := readStrictJSON(ctx, &body); err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}

	req := &model.DeliveryRequest{
		Link:          rep.Link,
		RawDataLink:   rep.RawDataLink,
		Channel:       rep.Channel,
		ThreadContent: rep.ThreadContent,
		ThreadTS:      rep.ThreadTS,
		Date:          body.Date,
	}
	if rep.Author != "" {
		req.Authors = []string{rep.Author}
	}
	if rep.Receiver != "" {
		req.Receivers = []string{rep.Receiver}
	}

	res, err := h.deliverer.Deliver(ctx, req)
	if err != nil {
		h.appendLog(ctx, rep, model.DeliveryLogFailed, "", err.Error())
		switch {
		case errors.Is(err, delivery.ErrThreadNotFound):
			writeJSON(ctx, xhttp.StatusUnprocessable, errorResponse{Error: err.Error(), Suggestion: delivery.ThreadSuggestion})
		case errors.Is(err, delivery.ErrNoChannel):
			writeError(ctx, xhttp.StatusUnprocessable, err.Error())
		default:
			writeError(ctx, xhttp.StatusBadGateway, err.Error())
		}
		return
	}

	if err := h.svc.IncrementDeliveryCount(ctx, rep.ID); err != nil {
		logger.Error("failed to bump delivery count", "report_id", rep.ID, "error", err)
	}
	h.appendLog(ctx, rep, model.DeliveryLogSuccess, "Successfully sent to @"+rep.Receiver, "")
	writeJSON(ctx, xhttp.StatusOK, res)
}

func (h *ReportHandler) appendLog(ctx context.Context, rep *model.Report, status model.DeliveryLogStatus, message, errText string) {
	err := h.logs.AddLogEntry(ctx, &model.DeliveryLogEntry{
		ReportID:      rep.ID,
		ReportName:    rep.Name,
		Status:        status,
		ScheduledTime: rep.ScheduleTime,
		Message:       message,
		Error:         errText,
	})
	if err != nil {
		logger.Error("failed to append delivery log", "report_id", rep.ID, "error", err)
	}
}

func (h *ReportHandler) ReportLogs(ctx *xhttp.RequestCtx) {
	days, err := queryInt(ctx, "days", services.DefaultReportLogDays)
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	id := pathParam(ctx, "id")
	if _, err := h.svc.Get(ctx, id); err != nil {
		h.writeServiceError(ctx, err)
		return
	}
	logs, err := h.logs.GetLogsForReport(ctx, id, days)
	if err != nil {
		h.writeServiceError(ctx, err)
		return
	}
	if logs == nil {
		logs = []*model.DeliveryLogEntry{}
	}
	writeJSON(ctx, xhttp.StatusOK, logs)
}
