package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nimasrn/report-dispatcher/internal/model"
)

const (
	DefaultRecentLogDays = 7
	DefaultReportLogDays = 30
)

var ErrInvalidLogEntry = errors.New("invalid delivery log entry")

type DeliveryLogRepository interface {
	Create(ctx context.Context, entry *model.DeliveryLogEntry) (*model.DeliveryLogEntry, error)
	List(ctx context.Context, f model.DeliveryLogFilter) ([]*model.DeliveryLogEntry, error)
}

// DeliveryLogService appends outcome records and serves the day-bucketed
// views over them. Each AddLogEntry is a single insert.
type DeliveryLogService struct {
	repo  DeliveryLogRepository
	clock Clock
}

func NewDeliveryLogService(repo DeliveryLogRepository, clock Clock) *DeliveryLogService {
	return &DeliveryLogService{repo: repo, clock: clock}
}

func (s *DeliveryLogService) AddLogEntry(ctx context.Context, entry *model.DeliveryLogEntry) error {
	if strings.TrimSpace(entry.ReportID) == "" || entry.Status == "" {
		return ErrInvalidLogEntry
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.clock.Now()
	}
	entry.Date = entry.Timestamp.In(s.clock.Now().Location()).Format(model.DateLayout)

	if _, err := s.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to append delivery log: %w", err)
	}
	return nil
}

func (s *DeliveryLogService) GetLogsForDate(ctx context.Context, date string) ([]*model.DeliveryLogEntry, error) {
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}
	entries, err := s.repo.List(ctx, model.DeliveryLogFilter{From: date, To: date})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(entries)
	return entries, nil
}

// GetRecentLogs buckets the last days (today included) by date. Days without
// entries are absent from the result.
func (s *DeliveryLogService) GetRecentLogs(ctx context.Context, days int) (model.DeliveryLogBuckets, error) {
	if days <= 0 {
		days = DefaultRecentLogDays
	}
	dates := s.clock.DaysBack(days)
	entries, err := s.repo.List(ctx, model.DeliveryLogFilter{From: dates[len(dates)-1], To: dates[0]})
	if err != nil {
		return nil, err
	}

	buckets := make(model.DeliveryLogBuckets)
	for _, e := range entries {
		buckets[e.Date] = append(buckets[e.Date], e)
	}
	return buckets, nil
}

func (s *DeliveryLogService) GetLogsForReport(ctx context.Context, reportID string, days int) ([]*model.DeliveryLogEntry, error) {
	if days <= 0 {
		days = DefaultReportLogDays
	}
	dates := s.clock.DaysBack(days)
	entries, err := s.repo.List(ctx, model.DeliveryLogFilter{
		ReportID: &reportID,
		From:     dates[len(dates)-1],
		To:       dates[0],
	})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(entries)
	return entries, nil
}

// ExportBuckets is GetRecentLogs in append order, the shape of the
// delivery_logs.json export.
func (s *DeliveryLogService) ExportBuckets(ctx context.Context, days int) (model.DeliveryLogBuckets, error) {
	return s.GetRecentLogs(ctx, days)
}

func sortNewestFirst(entries []*model.DeliveryLogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
}
