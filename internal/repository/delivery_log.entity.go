package repository

import (
	"time"

	"github.com/nimasrn/report-dispatcher/internal/model"
)

type DeliveryLogEntity struct {
	ID            int64     `db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	Date          string    `db:"log_date"       gorm:"column:log_date;not null;size:10;index:idx_delivery_logs_date_report"`
	Timestamp     time.Time `db:"timestamp"      gorm:"column:timestamp;not null;index"`
	ReportID      string    `db:"report_id"      gorm:"column:report_id;not null;index:idx_delivery_logs_date_report"`
	ReportName    string    `db:"report_name"    gorm:"column:report_name;not null;default:''"`
	Status        string    `db:"status"         gorm:"column:status;not null"`
	ScheduledTime string    `db:"scheduled_time" gorm:"column:scheduled_time;not null;default:''"`
	Message       string    `db:"message"        gorm:"column:message;not null;default:''"`
	Error         string    `db:"error"          gorm:"column:error;not null;default:''"`
	CycleID       string    `db:"cycle_id"       gorm:"column:cycle_id;not null;default:''"`
}

func (DeliveryLogEntity) TableName() string {
	return "delivery_logs"
}

func toDeliveryLogEntity(m *model.DeliveryLogEntry) *DeliveryLogEntity {
	if m == nil {
		return nil
	}
	return &DeliveryLogEntity{
		ID:            m.ID,
		Date:          m.Date,
		Timestamp:     m.Timestamp,
		ReportID:      m.ReportID,
		ReportName:    m.ReportName,
		Status:        string(m.Status),
		ScheduledTime: m.ScheduledTime,
		Message:       m.Message,
		Error:         m.Error,
		CycleID:       m.CycleID,
	}
}

func toDeliveryLogModel(e *DeliveryLogEntity) *model.DeliveryLogEntry {
	if e == nil {
		return nil
	}
	return &model.DeliveryLogEntry{
		ID:            e.ID,
		Date:          e.Date,
		Timestamp:     e.Timestamp,
		ReportID:      e.ReportID,
		ReportName:    e.ReportName,
		Status:        model.DeliveryLogStatus(e.Status),
		ScheduledTime: e.ScheduledTime,
		Message:       e.Message,
		Error:         e.Error,
		CycleID:       e.CycleID,
	}
}

func toDeliveryLogModels(entities []*DeliveryLogEntity) []*model.DeliveryLogEntry {
	if entities == nil {
		return nil
	}
	models := make([]*model.DeliveryLogEntry, len(entities))
	for i, e := range entities {
		models[i] = toDeliveryLogModel(e)
	}
	return models
}
