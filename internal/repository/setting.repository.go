package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/nimasrn/report-dispatcher/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingRepository struct {
	*pg.DB
}

func NewSettingRepository(db *pg.DB) *SettingRepository {
	return &SettingRepository{
		db,
	}
}

func (r *SettingRepository) Get(ctx context.Context, key string) (*model.Setting, error) {
	var entity SettingEntity
	err := r.Read(ctx).Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toSettingModel(&entity), nil
}

func (r *SettingRepository) Set(ctx context.Context, key, value string, now time.Time) (*model.Setting, error) {
	entity := &SettingEntity{Key: key, Value: value, UpdatedAt: now}
	err := r.Write(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(entity).Error
	if err != nil {
		return nil, err
	}
	return toSettingModel(entity), nil
}
