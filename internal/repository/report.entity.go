package repository

import (
	"time"

	"github.com/nimasrn/report-dispatcher/internal/model"
)

type ReportEntity struct {
	ID              string     `db:"id"                gorm:"primaryKey;column:id;size:32"`
	Seq             int        `db:"seq"               gorm:"column:seq;not null;uniqueIndex"`
	Name            string     `db:"name"              gorm:"column:name;not null"`
	Author          string     `db:"author"            gorm:"column:author;not null;default:''"`
	Receiver        string     `db:"receiver"          gorm:"column:receiver;not null;default:''"`
	Link            string     `db:"link"              gorm:"column:link;not null;default:''"`
	RawDataLink     string     `db:"raw_data_link"     gorm:"column:raw_data_link;not null;default:''"`
	Channel         string     `db:"channel"           gorm:"column:channel;not null;default:''"`
	ThreadContent   string     `db:"thread_content"    gorm:"column:thread_content;not null;default:''"`
	ThreadTS        string     `db:"thread_ts"         gorm:"column:thread_ts;not null;default:''"`
	DeliveryMode    string     `db:"delivery_mode"     gorm:"column:delivery_mode;not null;index"`
	ScheduleTime    string     `db:"schedule_time"     gorm:"column:schedule_time;not null;default:''"`
	AutomaticTaskID string     `db:"automatic_task_id" gorm:"column:automatic_task_id;not null;default:'';index"`
	LastSentDate    string     `db:"last_sent_date"    gorm:"column:last_sent_date;not null;default:''"`
	DeliveryCount   int        `db:"delivery_count"    gorm:"column:delivery_count;not null;default:0"`
	LastDelivered   *time.Time `db:"last_delivered"    gorm:"column:last_delivered"`
	Status          string     `db:"status"            gorm:"column:status;not null;index"`
	CreatedAt       time.Time  `db:"created_at"        gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt       time.Time  `db:"updated_at"        gorm:"column:updated_at;autoUpdateTime:false"`
}

func (ReportEntity) TableName() string {
	return "reports"
}

// toReportEntity writes the canonical mode and status.
func toReportEntity(in *model.Report) *ReportEntity {
	if in == nil {
		return nil
	}
	c := *in
	m := &c
	model.NormalizeReport(m)
	seq, _ := model.ParseReportID(m.ID)
	return &ReportEntity{
		ID:              m.ID,
		Seq:             seq,
		Name:            m.Name,
		Author:          m.Author,
		Receiver:        m.Receiver,
		Link:            m.Link,
		RawDataLink:     m.RawDataLink,
		Channel:         m.Channel,
		ThreadContent:   m.ThreadContent,
		ThreadTS:        m.ThreadTS,
		DeliveryMode:    string(m.DeliveryMode),
		ScheduleTime:    m.ScheduleTime,
		AutomaticTaskID: m.AutomaticTaskID,
		LastSentDate:    m.LastSentDate,
		DeliveryCount:   m.DeliveryCount,
		LastDelivered:   m.LastDelivered,
		Status:          string(m.Status),
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func toReportModel(e *ReportEntity) *model.Report {
	if e == nil {
		return nil
	}
	r := &model.Report{
		ID:              e.ID,
		Name:            e.Name,
		Author:          e.Author,
		Receiver:        e.Receiver,
		Link:            e.Link,
		RawDataLink:     e.RawDataLink,
		Channel:         e.Channel,
		ThreadContent:   e.ThreadContent,
		ThreadTS:        e.ThreadTS,
		DeliveryMode:    model.DeliveryMode(e.DeliveryMode),
		ScheduleTime:    e.ScheduleTime,
		AutomaticTaskID: e.AutomaticTaskID,
		LastSentDate:    e.LastSentDate,
		DeliveryCount:   e.DeliveryCount,
		LastDelivered:   e.LastDelivered,
		Status:          model.ReportStatus(e.Status),
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
	model.NormalizeReport(r)
	return r
}

func toReportModels(entities []*ReportEntity) []*model.Report {
	if entities == nil {
		return nil
	}
	models := make([]*model.Report, len(entities))
	for i, e := range entities {
		models[i] = toReportModel(e)
	}
	return models
}
