package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/nimasrn/report-dispatcher/internal/repository"
	"github.com/nimasrn/report-dispatcher/test/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockReportRepository struct {
	mock.Mock
}

func (m *MockReportRepository) Load(ctx context.Context) (map[string]*model.Report, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*model.Report), args.Error(1)
}

func (m *MockReportRepository) Save(ctx context.Context, reports map[string]*model.Report) error {
	return m.Called(ctx, reports).Error(0)
}

func (m *MockReportRepository) List(ctx context.Context, f model.ReportFilter) ([]*model.Report, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Report), args.Error(1)
}

func (m *MockReportRepository) GetByID(ctx context.Context, id string) (*model.Report, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Report), args.Error(1)
}

func (m *MockReportRepository) Create(ctx context.Context, rep *model.Report, now time.Time) (*model.Report, error) {
	args := m.Called(ctx, rep, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Report), args.Error(1)
}

func (m *MockReportRepository) Update(ctx context.Context, rep *model.Report, now time.Time) (*model.Report, error) {
	args := m.Called(ctx, rep, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Report), args.Error(1)
}

func (m *MockReportRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockReportRepository) IncrementDeliveryCount(ctx context.Context, id string, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockReportRepository) MarkSent(ctx context.Context, id string, at time.Time, date string) error {
	return m.Called(ctx, id, at, date).Error(0)
}

func TestValidateReport(t *testing.T) {
	tests := []struct {
		name    string
		report  model.Report
		wantErr bool
	}{
		{"manual only needs a name", model.Report{Name: "r", DeliveryMode: model.DeliveryModeManual}, false},
		{"missing name", model.Report{DeliveryMode: model.DeliveryModeManual}, true},
		{"scheduled with valid time", model.Report{Name: "r", DeliveryMode: model.DeliveryModeScheduled, ScheduleTime: "09:00"}, false},
		{"scheduled with bad time", model.Report{Name: "r", DeliveryMode: model.DeliveryModeScheduled, ScheduleTime: "25:00"}, true},
		{"scheduled without time", model.Report{Name: "r", DeliveryMode: model.DeliveryModeScheduled}, true},
		{"automatic with task id", model.Report{Name: "r", DeliveryMode: model.DeliveryModeAutomatic, AutomaticTaskID: "T-100"}, false},
		{"automatic without task id", model.Report{Name: "r", DeliveryMode: model.DeliveryModeAutomatic}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateReport(&tt.report)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidReport)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReportService_Add_ResetsBookkeeping(t *testing.T) {
	repo := new(MockReportRepository)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := NewReportService(repo, FixedClock(now, time.UTC))

	delivered := now.Add(-time.Hour)
	in := &model.Report{
		Name:            "  Daily  ",
		DeliveryMode:    "Scheduled",
		ScheduleTime:    "09:00",
		DeliveryCount:   7,
		LastDelivered:   &delivered,
		LastSentDate:    "2024-04-30",
		AutomaticTaskID: "",
	}
	repo.On("Create", mock.Anything, mock.MatchedBy(func(r *model.Report) bool {
		return r.Name == "Daily" && r.DeliveryCount == 0 && r.LastDelivered == nil &&
			r.LastSentDate == "" && r.DeliveryMode == model.DeliveryModeScheduled && r.Status == model.ReportStatusActive
	}), mock.Anything).Return(&model.Report{ID: "Report-1", Name: "Daily"}, nil)

	got, err := svc.Add(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Report-1", got.ID)
	repo.AssertExpectations(t)
}

func TestReportService_Add_Invalid(t *testing.T) {
	repo := new(MockReportRepository)
	svc := NewReportService(repo, NewClock(time.UTC))

	_, err := svc.Add(context.Background(), &model.Report{Name: "x", DeliveryMode: model.DeliveryModeAutomatic})
	assert.ErrorIs(t, err, ErrInvalidReport)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestReportService_NotFoundMapping(t *testing.T) {
	repo := new(MockReportRepository)
	svc := NewReportService(repo, NewClock(time.UTC))
	ctx := context.Background()

	repo.On("GetByID", mock.Anything, "Report-9").Return(nil, repository.ErrNotFound)
	repo.On("Delete", mock.Anything, "Report-9").Return(repository.ErrNotFound)
	repo.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil, repository.ErrNotFound)

	_, err := svc.Get(ctx, " Report-9 ")
	assert.ErrorIs(t, err, ErrReportNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "Report-9"), ErrReportNotFound)
	_, err = svc.Update(ctx, &model.Report{ID: "Report-9", Name: "x"})
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestReportService_Get_PassesThroughOtherErrors(t *testing.T) {
	repo := new(MockReportRepository)
	svc := NewReportService(repo, NewClock(time.UTC))

	repo.On("GetByID", mock.Anything, "Report-1").Return(nil, errors.New("db down"))
	_, err := svc.Get(context.Background(), "Report-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrReportNotFound)
}

func TestReportService_MarkSentUsesTodayInZone(t *testing.T) {
	repo := new(MockReportRepository)
	tokyo, _ := time.LoadLocation("Asia/Tokyo")
	now := time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC)
	svc := NewReportService(repo, FixedClock(now, tokyo))

	repo.On("MarkSent", mock.Anything, "Report-1", mock.Anything, "2024-05-02").Return(nil)
	require.NoError(t, svc.MarkSent(context.Background(), "Report-1"))
	repo.AssertExpectations(t)
}

func TestReportService_WithDatabase(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := NewReportService(repository.NewReportRepository(helpers.SetupTestDB(t)), FixedClock(now, time.UTC))
	ctx := context.Background()

	sched, err := svc.Add(ctx, &model.Report{Name: "Morning", DeliveryMode: model.DeliveryModeScheduled, ScheduleTime: "09:00"})
	require.NoError(t, err)
	_, err = svc.Add(ctx, &model.Report{Name: "Paused", DeliveryMode: model.DeliveryModeScheduled, ScheduleTime: "10:00", Status: model.ReportStatusInactive})
	require.NoError(t, err)
	_, err = svc.Add(ctx, &model.Report{Name: "Auto", DeliveryMode: model.DeliveryModeAutomatic, AutomaticTaskID: "DDAMOP_1"})
	require.NoError(t, err)

	active, err := svc.ListActiveByMode(ctx, model.DeliveryModeScheduled)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, sched.ID, active[0].ID)

	require.NoError(t, svc.MarkSent(ctx, sched.ID))
	got, err := svc.Get(ctx, sched.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", got.LastSentDate)
	assert.Equal(t, 1, got.DeliveryCount)

	require.NoError(t, svc.IncrementDeliveryCount(ctx, sched.ID))
	got, err = svc.Get(ctx, sched.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.DeliveryCount)

	all, err := svc.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
