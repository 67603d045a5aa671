package services

import (
	"context"

	"github.com/nimasrn/report-dispatcher/internal/model"
)

type AutomaticDeliveryRepository interface {
	Exists(ctx context.Context, date, dedupKey string) (bool, error)
	Record(ctx context.Context, rec *model.AutomaticDelivery) (bool, error)
	List(ctx context.Context, from, to string) ([]*model.AutomaticDelivery, error)
}

// AutomaticDeliveryService owns the per-day automatic dedup records.
type AutomaticDeliveryService struct {
	repo  AutomaticDeliveryRepository
	clock Clock
}

func NewAutomaticDeliveryService(repo AutomaticDeliveryRepository, clock Clock) *AutomaticDeliveryService {
	return &AutomaticDeliveryService{repo: repo, clock: clock}
}

func (s *AutomaticDeliveryService) Delivered(ctx context.Context, date, dedupKey string) (bool, error) {
	return s.repo.Exists(ctx, date, dedupKey)
}

// Record claims the slot. It returns false when the slot was already taken.
func (s *AutomaticDeliveryService) Record(ctx context.Context, rec *model.AutomaticDelivery) (bool, error) {
	if rec.DeliveredAt.IsZero() {
		rec.DeliveredAt = s.clock.Now()
	}
	return s.repo.Record(ctx, rec)
}

// ExportBuckets builds the automatic_delivery_log.json shape for the last days.
func (s *AutomaticDeliveryService) ExportBuckets(ctx context.Context, days int) (model.AutomaticDeliveryBuckets, error) {
	if days <= 0 {
		days = DefaultReportLogDays
	}
	dates := s.clock.DaysBack(days)
	recs, err := s.repo.List(ctx, dates[len(dates)-1], dates[0])
	if err != nil {
		return nil, err
	}

	out := make(model.AutomaticDeliveryBuckets)
	for _, rec := range recs {
		day, ok := out[rec.Date]
		if !ok {
			day = make(map[string]*model.AutomaticDelivery)
			out[rec.Date] = day
		}
		day[rec.DedupKey] = rec
	}
	return out, nil
}
