package model

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DeliveryMode decides which dispatcher owns a report.
type DeliveryMode string

const (
	DeliveryModeManual    DeliveryMode = "manual"
	DeliveryModeScheduled DeliveryMode = "scheduled"
	DeliveryModeAutomatic DeliveryMode = "automatic"
)

type ReportStatus string

const (
	ReportStatusActive   ReportStatus = "active"
	ReportStatusInactive ReportStatus = "inactive"
	ReportStatusArchived ReportStatus = "archived"
)

const ReportIDPrefix = "Report-"

// DateLayout is the bucket key used by every per-day record.
const DateLayout = "2006-01-02"

var (
	ErrInvalidReportID     = errors.New("invalid report id")
	ErrInvalidScheduleTime = errors.New("invalid schedule time")

	TaskIDPattern = regexp.MustCompile(`DDAMOP_\d+`)
)

type Report struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Author          string       `json:"author"`
	Receiver        string       `json:"receiver"`
	Link            string       `json:"link"`
	RawDataLink     string       `json:"raw_data_link,omitempty"`
	Channel         string       `json:"channel,omitempty"`
	ThreadContent   string       `json:"thread_content,omitempty"`
	ThreadTS        string       `json:"thread_ts,omitempty"`
	DeliveryMode    DeliveryMode `json:"delivery_mode"`
	ScheduleTime    string       `json:"schedule_time,omitempty"`
	AutomaticTaskID string       `json:"automatic_task_id,omitempty"`
	LastSentDate    string       `json:"last_sent_date,omitempty"`
	DeliveryCount   int          `json:"delivery_count"`
	LastDelivered   *time.Time   `json:"last_delivered,omitempty"`
	Status          ReportStatus `json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`

	// ScheduleEnabled is the legacy flag that predates DeliveryMode. It is only
	// read by NormalizeReport.
	ScheduleEnabled bool `json:"schedule_enabled,omitempty"`
}

func (r *Report) IsActive() bool {
	return r.Status == ReportStatusActive
}

// NormalizeReport folds legacy and loosely typed values into the current shape.
// It runs once when a record is loaded or accepted from a client.
func NormalizeReport(r *Report) {
	r.Name = strings.TrimSpace(r.Name)
	r.Author = strings.TrimSpace(r.Author)
	r.Receiver = strings.TrimSpace(r.Receiver)
	r.Link = strings.TrimSpace(r.Link)
	r.RawDataLink = strings.TrimSpace(r.RawDataLink)
	r.Channel = strings.TrimSpace(r.Channel)
	r.ThreadContent = strings.TrimSpace(r.ThreadContent)
	r.ThreadTS = strings.TrimSpace(r.ThreadTS)
	r.ScheduleTime = strings.TrimSpace(r.ScheduleTime)
	r.AutomaticTaskID = strings.TrimSpace(r.AutomaticTaskID)

	mode := DeliveryMode(strings.ToLower(strings.TrimSpace(string(r.DeliveryMode))))
	switch mode {
	case DeliveryModeManual, DeliveryModeScheduled, DeliveryModeAutomatic:
	default:
		mode = ""
	}
	if mode == "" || (mode == DeliveryModeManual && r.ScheduleEnabled) {
		if r.ScheduleEnabled {
			mode = DeliveryModeScheduled
		} else {
			mode = DeliveryModeManual
		}
	}
	r.DeliveryMode = mode
	r.ScheduleEnabled = false

	status := ReportStatus(strings.ToLower(strings.TrimSpace(string(r.Status))))
	switch status {
	case ReportStatusActive, ReportStatusInactive, ReportStatusArchived:
	default:
		status = ReportStatusActive
	}
	r.Status = status
}

// ParseReportID returns N from "Report-N".
func ParseReportID(id string) (int, error) {
	if !strings.HasPrefix(id, ReportIDPrefix) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidReportID, id)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, ReportIDPrefix))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidReportID, id)
	}
	return n, nil
}

func FormatReportID(n int) string {
	return ReportIDPrefix + strconv.Itoa(n)
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidScheduleTime, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ReportFilter narrows List queries.
type ReportFilter struct {
	Mode   *DeliveryMode
	Status *ReportStatus
}
