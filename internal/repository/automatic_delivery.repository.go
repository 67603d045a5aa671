package repository

import (
	"context"
	"errors"

	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/nimasrn/report-dispatcher/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AutomaticDeliveryRepository struct {
	*pg.DB
}

func NewAutomaticDeliveryRepository(db *pg.DB) *AutomaticDeliveryRepository {
	return &AutomaticDeliveryRepository{
		db,
	}
}

// Exists reports whether the slot already has a delivered record.
func (r *AutomaticDeliveryRepository) Exists(ctx context.Context, date, dedupKey string) (bool, error) {
	var entity AutomaticDeliveryEntity
	err := r.Read(ctx).
		Where("delivery_date = ? AND dedup_key = ?", date, dedupKey).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Record inserts the slot unless it is already taken. The unique index on
// (delivery_date, dedup_key) makes this a compare-and-swap: false means another
// writer got there first.
func (r *AutomaticDeliveryRepository) Record(ctx context.Context, rec *model.AutomaticDelivery) (bool, error) {
	entity, err := toAutomaticDeliveryEntity(rec)
	if err != nil {
		return false, err
	}
	res := r.Write(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(entity)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	rec.ID = entity.ID
	return true, nil
}

// List returns records with delivery_date inside [from, to], both inclusive.
func (r *AutomaticDeliveryRepository) List(ctx context.Context, from, to string) ([]*model.AutomaticDelivery, error) {
	q := r.Read(ctx).Model(&AutomaticDeliveryEntity{})
	if from != "" {
		q = q.Where("delivery_date >= ?", from)
	}
	if to != "" {
		q = q.Where("delivery_date <= ?", to)
	}
	var entities []*AutomaticDeliveryEntity
	if err := q.Order("delivery_date ASC").Order("id ASC").Find(&entities).Error; err != nil {
		return nil, err
	}
	out := make([]*model.AutomaticDelivery, len(entities))
	for i, e := range entities {
		out[i] = toAutomaticDeliveryModel(e)
	}
	return out, nil
}
