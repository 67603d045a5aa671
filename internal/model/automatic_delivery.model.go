package model

import (
	"fmt"
	"time"
)

// AutomaticDelivery marks one (report, deadline) slot as delivered for a day.
// It is the authoritative at-most-once guard for automatic mode.
type AutomaticDelivery struct {
	ID            int64         `json:"-"`
	Date          string        `json:"-"`
	DedupKey      string        `json:"-"`
	ReportID      string        `json:"report_id"`
	DeliveredAt   time.Time     `json:"delivered_at"`
	ScheduledTime string        `json:"scheduled_time"`
	DeliveryInfo  *DeliveryInfo `json:"delivery_info"`
}

type DeliveryInfo struct {
	Channel   string   `json:"channel"`
	MessageTS string   `json:"ts,omitempty"`
	ThreadTS  string   `json:"thread_ts,omitempty"`
	Authors   []string `json:"authors,omitempty"`
	Receiver  string   `json:"receiver,omitempty"`
	TaskID    string   `json:"task_id,omitempty"`
}

// AutomaticDeliveryBuckets is the exported shape: day, then dedup key.
type AutomaticDeliveryBuckets map[string]map[string]*AutomaticDelivery

// DedupKey identifies one automatic delivery slot within a day.
func DedupKey(reportName string, deadline time.Time) string {
	return fmt.Sprintf("%s_%s", reportName, deadline.Format("15:04"))
}
