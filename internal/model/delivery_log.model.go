package model

import "time"

type DeliveryLogStatus string

const (
	DeliveryLogSuccess   DeliveryLogStatus = "success"
	DeliveryLogFailed    DeliveryLogStatus = "failed"
	DeliveryLogSkipped   DeliveryLogStatus = "skipped"
	DeliveryLogDelivered DeliveryLogStatus = "delivered"
	DeliveryLogNotReady  DeliveryLogStatus = "not_ready"
	DeliveryLogError     DeliveryLogStatus = "error"
)

// DeliveryLogEntry is one outcome record. Entries are never modified once written.
type DeliveryLogEntry struct {
	ID            int64             `json:"-"`
	Date          string            `json:"-"`
	Timestamp     time.Time         `json:"timestamp"`
	ReportID      string            `json:"report_id"`
	ReportName    string            `json:"report_name"`
	Status        DeliveryLogStatus `json:"status"`
	ScheduledTime string            `json:"scheduled_time"`
	Message       string            `json:"message,omitempty"`
	Error         string            `json:"error,omitempty"`
	CycleID       string            `json:"cycle_id,omitempty"`
}

// DeliveryLogBuckets is the exported day-bucketed shape, keyed by YYYY-MM-DD.
type DeliveryLogBuckets map[string][]*DeliveryLogEntry

type DeliveryLogFilter struct {
	ReportID *string
	From     string
	To       string
}
