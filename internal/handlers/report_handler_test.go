package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nimasrn/report-dispatcher/internal/delivery"
	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/nimasrn/report-dispatcher/internal/services"
	xhttp "github.com/nimasrn/report-dispatcher/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type MockReportService struct {
	mock.Mock
}

func (m *MockReportService) List(ctx context.Context, f model.ReportFilter) ([]*model.Report, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Report), args.Error(1)
}

func (m *MockReportService) Get(ctx context.Context, id string) (*model.Report, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Report), args.Error(1)
}

func (m *MockReportService) Add(ctx context.Context, rep *model.Report) (*model.Report, error) {
	args := m.Called(ctx, rep)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Report), args.Error(1)
}

func (m *MockReportService) Update(ctx context.Context, rep *model.Report) (*model.Report, error) {
	args := m.Called(ctx, rep)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Report), args.Error(1)
}

func (m *MockReportService) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockReportService) IncrementDeliveryCount(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type MockDeliverer struct {
	mock.Mock
}

func (m *MockDeliverer) Deliver(ctx context.Context, req *model.DeliveryRequest) (*model.DeliveryResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DeliveryResult), args.Error(1)
}

type MockLogService struct {
	mock.Mock
}

func (m *MockLogService) AddLogEntry(ctx context.Context, entry *model.DeliveryLogEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *MockLogService) GetLogsForReport(ctx context.Context, reportID string, days int) ([]*model.DeliveryLogEntry, error) {
	args := m.Called(ctx, reportID, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.DeliveryLogEntry), args.Error(1)
}

func (m *MockLogService) GetLogsForDate(ctx context.Context, date string) ([]*model.DeliveryLogEntry, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.DeliveryLogEntry), args.Error(1)
}

func (m *MockLogService) GetRecentLogs(ctx context.Context, days int) (model.DeliveryLogBuckets, error) {
	args := m.Called(ctx, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(model.DeliveryLogBuckets), args.Error(1)
}

func setupTestContext(method, path string, body []byte) *xhttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != nil {
		ctx.Request.SetBody(body)
	}
	return ctx
}

func withID(ctx *xhttp.RequestCtx, id string) *xhttp.RequestCtx {
	ctx.SetUserValue("id", id)
	return ctx
}

func decodeError(t *testing.T, ctx *xhttp.RequestCtx) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	return resp
}

func newReportHandler() (*ReportHandler, *MockReportService, *MockDeliverer, *MockLogService) {
	svc := new(MockReportService)
	del := new(MockDeliverer)
	logs := new(MockLogService)
	return NewReportHandler(svc, del, logs), svc, del, logs
}

func TestReportHandler_CreateReport(t *testing.T) {
	t.Run("creates a scheduled report", func(t *testing.T) {
		h, svc, _, _ := newReportHandler()
		body, _ := json.Marshal(map[string]any{
			"name":          "Morning",
			"receiver":      "Boss",
			"link":          "https://example.com/r",
			"delivery_mode": "Scheduled",
			"schedule_time": "09:00",
		})
		svc.On("Add", mock.Anything, mock.MatchedBy(func(r *model.Report) bool {
			return r.Name == "Morning" && r.DeliveryMode == model.DeliveryModeScheduled && r.ScheduleTime == "09:00"
		})).Return(&model.Report{ID: "Report-1", Name: "Morning"}, nil)

		ctx := setupTestContext("POST", "/api/v1/reports", body)
		h.CreateReport(ctx)

		assert.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode())
		var got model.Report
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &got))
		assert.Equal(t, "Report-1", got.ID)
		svc.AssertExpectations(t)
	})

	t.Run("scheduled mode needs a valid time", func(t *testing.T) {
		h, svc, _, _ := newReportHandler()
		body, _ := json.Marshal(map[string]any{"name": "x", "delivery_mode": "scheduled", "schedule_time": "9am"})

		ctx := setupTestContext("POST", "/api/v1/reports", body)
		h.CreateReport(ctx)

		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
		resp := decodeError(t, ctx)
		assert.Equal(t, "validation failed", resp.Error)
		assert.Contains(t, resp.Details, "ScheduleTime must be HH:MM")
		svc.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
	})

	t.Run("automatic mode needs a task id", func(t *testing.T) {
		h, _, _, _ := newReportHandler()
		body, _ := json.Marshal(map[string]any{"name": "x", "delivery_mode": "automatic"})

		ctx := setupTestContext("POST", "/api/v1/reports", body)
		h.CreateReport(ctx)

		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
		assert.Contains(t, decodeError(t, ctx).Details, "AutomaticTaskID is required")
	})

	t.Run("unknown mode", func(t *testing.T) {
		h, _, _, _ := newReportHandler()
		body, _ := json.Marshal(map[string]any{"name": "x", "delivery_mode": "hourly"})

		ctx := setupTestContext("POST", "/api/v1/reports", body)
		h.CreateReport(ctx)
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	})

	t.Run("invalid JSON", func(t *testing.T) {
		h, _, _, _ := newReportHandler()
		ctx := setupTestContext("POST", "/api/v1/reports", []byte("{"))
		h.CreateReport(ctx)
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	})

	t.Run("service rejects legacy flag without time", func(t *testing.T) {
		h, svc, _, _ := newReportHandler()
		body, _ := json.Marshal(map[string]any{"name": "x", "schedule_enabled": true})
		svc.On("Add", mock.Anything, mock.Anything).Return(nil, services.ErrInvalidReport)

		ctx := setupTestContext("POST", "/api/v1/reports", body)
		h.CreateReport(ctx)
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	})
}

func TestReportHandler_GetAndDelete(t *testing.T) {
	h, svc, _, _ := newReportHandler()
	svc.On("Get", mock.Anything, "Report-1").Return(&model.Report{ID: "Report-1"}, nil)
	svc.On("Get", mock.Anything, "Report-9").Return(nil, services.ErrReportNotFound)
	svc.On("Delete", mock.Anything, "Report-1").Return(nil)
	svc.On("Delete", mock.Anything, "Report-9").Return(services.ErrReportNotFound)

	ctx := withID(setupTestContext("GET", "/api/v1/reports/Report-1", nil), "Report-1")
	h.GetReport(ctx)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	ctx = withID(setupTestContext("GET", "/api/v1/reports/Report-9", nil), "Report-9")
	h.GetReport(ctx)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())

	ctx = withID(setupTestContext("DELETE", "/api/v1/reports/Report-1", nil), "Report-1")
	h.DeleteReport(ctx)
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())

	ctx = withID(setupTestContext("DELETE", "/api/v1/reports/Report-9", nil), "Report-9")
	h.DeleteReport(ctx)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

func TestReportHandler_UpdateKeepsBookkeeping(t *testing.T) {
	h, svc, _, _ := newReportHandler()
	svc.On("Get", mock.Anything, "Report-1").Return(&model.Report{
		ID:            "Report-1",
		Name:          "Old",
		DeliveryCount: 4,
		LastSentDate:  "2024-05-01",
		Status:        model.ReportStatusInactive,
	}, nil)
	svc.On("Update", mock.Anything, mock.MatchedBy(func(r *model.Report) bool {
		return r.Name == "New" && r.DeliveryCount == 4 && r.LastSentDate == "2024-05-01" && r.Status == model.ReportStatusInactive
	})).Return(&model.Report{ID: "Report-1", Name: "New"}, nil)

	body, _ := json.Marshal(map[string]any{"name": "New", "delivery_mode": "manual"})
	ctx := withID(setupTestContext("PUT", "/api/v1/reports/Report-1", body), "Report-1")
	h.UpdateReport(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	svc.AssertExpectations(t)
}

func TestReportHandler_ListReports(t *testing.T) {
	h, svc, _, _ := newReportHandler()
	svc.On("List", mock.Anything, mock.MatchedBy(func(f model.ReportFilter) bool {
		return f.Mode != nil && *f.Mode == model.DeliveryModeAutomatic && f.Status == nil
	})).Return(nil, nil)

	ctx := setupTestContext("GET", "/api/v1/reports?mode=automatic", nil)
	h.ListReports(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"items":[],"total":0}`, string(ctx.Response.Body()))
}

func TestReportHandler_DeliverReport(t *testing.T) {
	rep := &model.Report{ID: "Report-2", Name: "Weekly", Author: "Taro", Receiver: "Boss", Link: "https://example.com", ThreadContent: "weekly thread"}

	t.Run("success logs and counts", func(t *testing.T) {
		h, svc, del, logs := newReportHandler()
		svc.On("Get", mock.Anything, "Report-2").Return(rep, nil)
		svc.On("IncrementDeliveryCount", mock.Anything, "Report-2").Return(nil)
		del.On("Deliver", mock.Anything, mock.MatchedBy(func(r *model.DeliveryRequest) bool {
			return r.ThreadContent == "weekly thread" && r.Date == "2024/05/01" && len(r.Authors) == 1 && r.Receivers[0] == "Boss"
		})).Return(&model.DeliveryResult{Channel: "C1", MessageTS: "1.1"}, nil)
		logs.On("AddLogEntry", mock.Anything, mock.MatchedBy(func(e *model.DeliveryLogEntry) bool {
			return e.Status == model.DeliveryLogSuccess && e.Message == "Successfully sent to @Boss"
		})).Return(nil)

		body, _ := json.Marshal(map[string]any{"date": "2024/05/01"})
		ctx := withID(setupTestContext("POST", "/api/v1/reports/Report-2/deliver", body), "Report-2")
		h.DeliverReport(ctx)

		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
		logs.AssertExpectations(t)
	})

	t.Run("thread miss carries a suggestion", func(t *testing.T) {
		h, svc, del, logs := newReportHandler()
		svc.On("Get", mock.Anything, "Report-2").Return(rep, nil)
		del.On("Deliver", mock.Anything, mock.Anything).Return(nil, delivery.ErrThreadNotFound)
		logs.On("AddLogEntry", mock.Anything, mock.MatchedBy(func(e *model.DeliveryLogEntry) bool {
			return e.Status == model.DeliveryLogFailed
		})).Return(nil)

		ctx := withID(setupTestContext("POST", "/api/v1/reports/Report-2/deliver", nil), "Report-2")
		h.DeliverReport(ctx)

		assert.Equal(t, fasthttp.StatusUnprocessableEntity, ctx.Response.StatusCode())
		assert.Equal(t, delivery.ThreadSuggestion, decodeError(t, ctx).Suggestion)
		svc.AssertNotCalled(t, "IncrementDeliveryCount", mock.Anything, mock.Anything)
	})

	t.Run("server paths are not accepted", func(t *testing.T) {
		h, svc, del, logs := newReportHandler()
		svc.On("Get", mock.Anything, "Report-2").Return(rep, nil)

		body, _ := json.Marshal(map[string]any{"file_path": "/root/.env"})
		ctx := withID(setupTestContext("POST", "/api/v1/reports/Report-2/deliver", body), "Report-2")
		h.DeliverReport(ctx)

		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
		assert.Contains(t, decodeError(t, ctx).Error, "file_path")
		del.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
		logs.AssertNotCalled(t, "AddLogEntry", mock.Anything, mock.Anything)
	})

	t.Run("transport error", func(t *testing.T) {
		h, svc, del, logs := newReportHandler()
		svc.On("Get", mock.Anything, "Report-2").Return(rep, nil)
		del.On("Deliver", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))
		logs.On("AddLogEntry", mock.Anything, mock.Anything).Return(nil)

		ctx := withID(setupTestContext("POST", "/api/v1/reports/Report-2/deliver", nil), "Report-2")
		h.DeliverReport(ctx)
		assert.Equal(t, fasthttp.StatusBadGateway, ctx.Response.StatusCode())
	})
}

func TestReportHandler_ReportLogs(t *testing.T) {
	h, svc, _, logs := newReportHandler()
	svc.On("Get", mock.Anything, "Report-1").Return(&model.Report{ID: "Report-1"}, nil)
	logs.On("GetLogsForReport", mock.Anything, "Report-1", 30).Return([]*model.DeliveryLogEntry{{ReportID: "Report-1", Status: model.DeliveryLogSuccess}}, nil)
	logs.On("GetLogsForReport", mock.Anything, "Report-1", 3).Return(nil, nil)

	ctx := withID(setupTestContext("GET", "/api/v1/reports/Report-1/logs", nil), "Report-1")
	h.ReportLogs(ctx)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var got []model.DeliveryLogEntry
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &got))
	assert.Len(t, got, 1)

	ctx = withID(setupTestContext("GET", "/api/v1/reports/Report-1/logs?days=3", nil), "Report-1")
	h.ReportLogs(ctx)
	assert.Equal(t, "[]", string(ctx.Response.Body()))

	ctx = withID(setupTestContext("GET", "/api/v1/reports/Report-1/logs?days=-1", nil), "Report-1")
	h.ReportLogs(ctx)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}
