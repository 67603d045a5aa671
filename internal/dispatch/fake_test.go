package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/nimasrn/report-dispatcher/internal/repository"
	"github.com/nimasrn/report-dispatcher/internal/services"
	"github.com/nimasrn/report-dispatcher/test/helpers"
	"github.com/stretchr/testify/mock"
)

type fakeSender struct {
	mu       sync.Mutex
	requests []*model.DeliveryRequest
	err      error
}

func (f *fakeSender) Deliver(ctx context.Context, req *model.DeliveryRequest) (*model.DeliveryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &model.DeliveryResult{Channel: "C0REPORTS", MessageTS: "1714550400.000100"}, nil
}

func (f *fakeSender) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type MockStatusSource struct {
	mock.Mock
}

func (m *MockStatusSource) Rows(ctx context.Context) ([]model.StatusRow, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.StatusRow), args.Error(1)
}

// testClock is a settable wall clock shared by the services under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) get() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type env struct {
	clock    *testClock
	svcClock services.Clock
	reports  *services.ReportService
	logs     *services.DeliveryLogService
	ledger   *services.AutomaticDeliveryService
	settings *services.SettingsService
	claims   *Claimer
	sender   *fakeSender
}

func newEnv(t *testing.T, start time.Time) *env {
	t.Helper()
	db := helpers.SetupTestDB(t)
	_, adapter := helpers.SetupTestRedis(t)

	tc := &testClock{now: start}
	clock := services.Clock{Location: start.Location(), NowFunc: tc.get}

	return &env{
		clock:    tc,
		svcClock: clock,
		reports:  services.NewReportService(repository.NewReportRepository(db), clock),
		logs:     services.NewDeliveryLogService(repository.NewDeliveryLogRepository(db), clock),
		ledger:   services.NewAutomaticDeliveryService(repository.NewAutomaticDeliveryRepository(db), clock),
		settings: services.NewSettingsService(repository.NewSettingRepository(db), clock),
		claims:   NewClaimer(adapter, DefaultClaimConfig()),
		sender:   &fakeSender{},
	}
}

func (e *env) scheduled() *ScheduledDispatcher {
	return NewScheduledDispatcher(e.reports, e.logs, e.sender, e.claims, e.svcClock, ScheduledConfig{})
}

func (e *env) automatic(status StatusSource) *AutomaticDispatcher {
	return NewAutomaticDispatcher(e.reports, e.logs, e.sender, status, e.ledger, e.settings, e.claims, e.svcClock, AutomaticConfig{})
}
