package repository

import (
	"encoding/json"
	"time"

	"github.com/nimasrn/report-dispatcher/internal/model"
)

type AutomaticDeliveryEntity struct {
	ID            int64     `db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	Date          string    `db:"delivery_date"  gorm:"column:delivery_date;not null;size:10;uniqueIndex:uq_automatic_delivery_slot"`
	DedupKey      string    `db:"dedup_key"      gorm:"column:dedup_key;not null;uniqueIndex:uq_automatic_delivery_slot"`
	ReportID      string    `db:"report_id"      gorm:"column:report_id;not null;index"`
	DeliveredAt   time.Time `db:"delivered_at"   gorm:"column:delivered_at;not null"`
	ScheduledTime string    `db:"scheduled_time" gorm:"column:scheduled_time;not null;default:''"`
	DeliveryInfo  string    `db:"delivery_info"  gorm:"column:delivery_info;not null;default:'{}'"`
}

func (AutomaticDeliveryEntity) TableName() string {
	return "automatic_deliveries"
}

func toAutomaticDeliveryEntity(m *model.AutomaticDelivery) (*AutomaticDeliveryEntity, error) {
	if m == nil {
		return nil, nil
	}
	info := "{}"
	if m.DeliveryInfo != nil {
		b, err := json.Marshal(m.DeliveryInfo)
		if err != nil {
			return nil, err
		}
		info = string(b)
	}
	return &AutomaticDeliveryEntity{
		ID:            m.ID,
		Date:          m.Date,
		DedupKey:      m.DedupKey,
		ReportID:      m.ReportID,
		DeliveredAt:   m.DeliveredAt,
		ScheduledTime: m.ScheduledTime,
		DeliveryInfo:  info,
	}, nil
}

func toAutomaticDeliveryModel(e *AutomaticDeliveryEntity) *model.AutomaticDelivery {
	if e == nil {
		return nil
	}
	m := &model.AutomaticDelivery{
		ID:            e.ID,
		Date:          e.Date,
		DedupKey:      e.DedupKey,
		ReportID:      e.ReportID,
		DeliveredAt:   e.DeliveredAt,
		ScheduledTime: e.ScheduledTime,
	}
	if e.DeliveryInfo != "" {
		var info model.DeliveryInfo
		if err := json.Unmarshal([]byte(e.DeliveryInfo), &info); err == nil {
			m.DeliveryInfo = &info
		}
	}
	return m
}
