package repository

import (
	"time"

	"github.com/nimasrn/report-dispatcher/internal/model"
)

type SettingEntity struct {
	Key       string    `db:"key"        gorm:"primaryKey;column:key;size:128"`
	Value     string    `db:"value"      gorm:"column:value;not null;default:''"`
	UpdatedAt time.Time `db:"updated_at" gorm:"column:updated_at;autoUpdateTime:false"`
}

func (SettingEntity) TableName() string {
	return "settings"
}

func toSettingModel(e *SettingEntity) *model.Setting {
	if e == nil {
		return nil
	}
	return &model.Setting{
		Key:       e.Key,
		Value:     e.Value,
		UpdatedAt: e.UpdatedAt,
	}
}
