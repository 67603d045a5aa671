package repository

import (
	"context"

	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/nimasrn/report-dispatcher/pkg/pg"
)

// DeliveryLogRepository is append-only: there is no update or delete.
type DeliveryLogRepository struct {
	*pg.DB
}

func NewDeliveryLogRepository(db *pg.DB) *DeliveryLogRepository {
	return &DeliveryLogRepository{
		db,
	}
}

func (r *DeliveryLogRepository) Create(ctx context.Context, entry *model.DeliveryLogEntry) (*model.DeliveryLogEntry, error) {
	entity := toDeliveryLogEntity(entry)

	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toDeliveryLogModel(entity), nil
}

// List returns entries in append order. From and To are inclusive YYYY-MM-DD bounds.
func (r *DeliveryLogRepository) List(ctx context.Context, f model.DeliveryLogFilter) ([]*model.DeliveryLogEntry, error) {
	q := r.Read(ctx).Model(&DeliveryLogEntity{})
	if f.ReportID != nil {
		q = q.Where("report_id = ?", *f.ReportID)
	}
	if f.From != "" {
		q = q.Where("log_date >= ?", f.From)
	}
	if f.To != "" {
		q = q.Where("log_date <= ?", f.To)
	}

	var entities []*DeliveryLogEntity
	if err := q.Order("log_date ASC").Order("id ASC").Find(&entities).Error; err != nil {
		return nil, err
	}
	return toDeliveryLogModels(entities), nil
}
