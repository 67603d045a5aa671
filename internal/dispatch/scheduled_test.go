package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, min int) time.Time {
	return time.Date(2024, 5, 1, hour, min, 0, 0, time.UTC)
}

func addScheduled(t *testing.T, e *env, name, clock string) *model.Report {
	t.Helper()
	rep, err := e.reports.Add(context.Background(), &model.Report{
		Name:         name,
		Author:       "Taro",
		Receiver:     "Boss",
		Link:         "https://example.com/" + name,
		DeliveryMode: model.DeliveryModeScheduled,
		ScheduleTime: clock,
	})
	require.NoError(t, err)
	return rep
}

func TestClockDistance(t *testing.T) {
	tests := []struct {
		a, b, want int
	}{
		{540, 540, 0},
		{530, 540, 10},
		{550, 540, 10},
		{5, 1435, 10},
		{1435, 5, 10},
		{0, 720, 720},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clockDistance(tt.a, tt.b), "distance(%d, %d)", tt.a, tt.b)
	}
}

func TestScheduledDispatcher_OneSendPerDay(t *testing.T) {
	e := newEnv(t, at(8, 50))
	ctx := context.Background()
	rep := addScheduled(t, e, "Morning", "09:00")
	d := e.scheduled()

	first := d.Run(ctx, "cycle-1")
	assert.Equal(t, 1, first.Sent)

	got, err := e.reports.Get(ctx, rep.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", got.LastSentDate)
	assert.Equal(t, 1, got.DeliveryCount)
	require.NotNil(t, got.LastDelivered)

	e.clock.set(at(9, 0))
	second := d.Run(ctx, "cycle-2")
	assert.Equal(t, 0, second.Sent)
	assert.Equal(t, 1, second.Skipped)

	e.clock.set(at(9, 10))
	third := d.Run(ctx, "cycle-3")
	assert.Equal(t, 0, third.Sent)
	assert.Equal(t, 1, third.Skipped)

	assert.Equal(t, 1, e.sender.calls())
	got, err = e.reports.Get(ctx, rep.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.DeliveryCount)

	logs, err := e.logs.GetLogsForDate(ctx, "2024-05-01")
	require.NoError(t, err)
	// the skip is logged once per day, not once per cycle
	require.Len(t, logs, 2)
	var success int
	for _, l := range logs {
		if l.Status == model.DeliveryLogSuccess {
			success++
			assert.Equal(t, "Successfully sent to @Boss", l.Message)
			assert.Equal(t, "cycle-1", l.CycleID)
		} else {
			assert.Equal(t, model.DeliveryLogSkipped, l.Status)
			assert.Equal(t, "Already sent today", l.Message)
		}
	}
	assert.Equal(t, 1, success)
}

func TestScheduledDispatcher_RequestFields(t *testing.T) {
	e := newEnv(t, at(9, 0))
	ctx := context.Background()
	_, err := e.reports.Add(ctx, &model.Report{
		Name:          "Threaded",
		Author:        "Taro",
		Receiver:      "Boss",
		Link:          "https://example.com/x",
		RawDataLink:   "https://example.com/raw",
		Channel:       "#reports",
		ThreadContent: "daily thread",
		DeliveryMode:  model.DeliveryModeScheduled,
		ScheduleTime:  "09:05",
	})
	require.NoError(t, err)

	e.scheduled().Run(ctx, "c")

	require.Equal(t, 1, e.sender.calls())
	req := e.sender.requests[0]
	assert.Equal(t, []string{"Taro"}, req.Authors)
	assert.Equal(t, []string{"Boss"}, req.Receivers)
	assert.Equal(t, "#reports", req.Channel)
	assert.Equal(t, "daily thread", req.ThreadContent)
	assert.Equal(t, "https://example.com/raw", req.RawDataLink)
}

func TestScheduledDispatcher_OutsideTolerance(t *testing.T) {
	e := newEnv(t, at(8, 44))
	addScheduled(t, e, "Morning", "09:00")

	s := e.scheduled().Run(context.Background(), "c")
	assert.Equal(t, 1, s.Evaluated)
	assert.Equal(t, 0, s.Sent)
	assert.Equal(t, 0, e.sender.calls())

	logs, err := e.logs.GetLogsForDate(context.Background(), "2024-05-01")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestScheduledDispatcher_MidnightRollover(t *testing.T) {
	e := newEnv(t, time.Date(2024, 5, 2, 0, 5, 0, 0, time.UTC))
	rep := addScheduled(t, e, "Late", "23:55")

	s := e.scheduled().Run(context.Background(), "c")
	assert.Equal(t, 1, s.Sent)

	got, err := e.reports.Get(context.Background(), rep.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-02", got.LastSentDate)
}

func TestScheduledDispatcher_FailureRetriesNextCycle(t *testing.T) {
	e := newEnv(t, at(9, 0))
	ctx := context.Background()
	rep := addScheduled(t, e, "Morning", "09:00")
	d := e.scheduled()

	e.sender.err = errors.New("connection reset")
	s := d.Run(ctx, "c1")
	assert.Equal(t, 1, s.Failed)

	got, err := e.reports.Get(ctx, rep.ID)
	require.NoError(t, err)
	assert.Empty(t, got.LastSentDate)
	assert.Equal(t, 0, got.DeliveryCount)

	e.sender.err = nil
	e.clock.set(at(9, 1))
	s = d.Run(ctx, "c2")
	assert.Equal(t, 1, s.Sent)

	logs, err := e.logs.GetLogsForReport(ctx, rep.ID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, model.DeliveryLogSuccess, logs[0].Status)
	assert.Equal(t, model.DeliveryLogFailed, logs[1].Status)
	assert.Equal(t, "connection reset", logs[1].Error)
}

type failingMarkStore struct {
	ReportStore
	markErr error
}

func (f *failingMarkStore) MarkSent(ctx context.Context, id string) error {
	return f.markErr
}

func TestScheduledDispatcher_MarkSentFailureDoesNotResend(t *testing.T) {
	e := newEnv(t, at(9, 0))
	ctx := context.Background()
	rep := addScheduled(t, e, "Morning", "09:00")

	store := &failingMarkStore{ReportStore: e.reports, markErr: errors.New("database is locked")}
	// no redis: the store is the only cross-cycle guard
	d := NewScheduledDispatcher(store, e.logs, e.sender, NewClaimer(nil, DefaultClaimConfig()), e.svcClock, ScheduledConfig{})

	first := d.Run(ctx, "c1")
	assert.Equal(t, 1, first.Sent)

	got, err := e.reports.Get(ctx, rep.ID)
	require.NoError(t, err)
	assert.Empty(t, got.LastSentDate)

	for i := 1; i <= 3; i++ {
		e.clock.set(at(9, i))
		s := d.Run(ctx, "retry")
		assert.Equal(t, 0, s.Sent)
		assert.Equal(t, 1, s.Skipped)
	}
	assert.Equal(t, 1, e.sender.calls())

	// a new day is a new slot
	e.clock.set(time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, 1, d.Run(ctx, "next-day").Sent)
	assert.Equal(t, 2, e.sender.calls())
}

func TestDayMemo(t *testing.T) {
	m := newDayMemo()
	assert.False(t, m.seen("Report-1", "2024-05-01"))
	assert.True(t, m.mark("Report-1", "2024-05-01"))
	assert.False(t, m.mark("Report-1", "2024-05-01"))
	assert.True(t, m.seen("Report-1", "2024-05-01"))
	assert.False(t, m.seen("Report-1", "2024-05-02"))
	assert.True(t, m.mark("Report-1", "2024-05-02"))
}

func TestScheduledDispatcher_ClaimHeldElsewhere(t *testing.T) {
	e := newEnv(t, at(9, 0))
	ctx := context.Background()
	rep := addScheduled(t, e, "Morning", "09:00")

	_, err := e.claims.Acquire(ctx, scheduledClaimKey(rep.ID, "2024-05-01"))
	require.NoError(t, err)

	s := e.scheduled().Run(ctx, "c")
	assert.Equal(t, 0, s.Sent)
	assert.Equal(t, 0, e.sender.calls())
}

func TestScheduledDispatcher_IgnoresBadTimeAndInactive(t *testing.T) {
	e := newEnv(t, at(9, 0))
	ctx := context.Background()

	err := e.reports.Save(ctx, map[string]*model.Report{
		"Report-1": {Name: "Broken", DeliveryMode: model.DeliveryModeScheduled, ScheduleTime: "nine"},
		"Report-2": {Name: "Paused", DeliveryMode: model.DeliveryModeScheduled, ScheduleTime: "09:00", Status: model.ReportStatusInactive},
		"Report-3": {Name: "Manual", DeliveryMode: model.DeliveryModeManual, ScheduleTime: "09:00"},
	})
	require.NoError(t, err)

	s := e.scheduled().Run(ctx, "c")
	assert.Equal(t, 1, s.Evaluated)
	assert.Equal(t, 0, s.Sent)
	assert.Equal(t, 0, e.sender.calls())

	logs, err := e.logs.GetLogsForDate(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.Empty(t, logs)
}
