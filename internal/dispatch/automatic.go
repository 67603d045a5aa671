package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/nimasrn/report-dispatcher/internal/services"
	"github.com/nimasrn/report-dispatcher/pkg/logger"
	"github.com/nimasrn/report-dispatcher/pkg/prom"
)

const (
	// CompleteStatus is the default status sheet value that releases a delivery.
	CompleteStatus = "完了"

	DefaultLeadTime = 5 * time.Minute

	// StatusSourceReportID tags log entries that belong to the cycle, not a report.
	StatusSourceReportID = "automatic"

	modeAutomatic = "automatic"
)

var deliveryTimeLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04 PM",
	"03:04 PM",
	"3:04:05 PM",
	"03:04:05 PM",
}

type AutomaticConfig struct {
	// LeadTime opens the window before the deadline.
	LeadTime time.Duration

	CompleteStatus string
}

type AutomaticDispatcher struct {
	reports  ReportStore
	logs     LogWriter
	sender   Sender
	status   StatusSource
	ledger   AutomaticLedger
	settings SettingsReader
	claims   *Claimer
	clock    services.Clock
	config   AutomaticConfig
}

func NewAutomaticDispatcher(
	reports ReportStore,
	logs LogWriter,
	sender Sender,
	status StatusSource,
	ledger AutomaticLedger,
	settings SettingsReader,
	claims *Claimer,
	clock services.Clock,
	config AutomaticConfig,
) *AutomaticDispatcher {
	if config.LeadTime <= 0 {
		config.LeadTime = DefaultLeadTime
	}
	if config.CompleteStatus == "" {
		config.CompleteStatus = CompleteStatus
	}
	return &AutomaticDispatcher{
		reports:  reports,
		logs:     logs,
		sender:   sender,
		status:   status,
		ledger:   ledger,
		settings: settings,
		claims:   claims,
		clock:    clock,
		config:   config,
	}
}

// ParseDeliveryTime reads a sheet deadline as today's instant in the zone of now.
func ParseDeliveryTime(value string, now time.Time) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range deliveryTimeLayouts {
		t, err := time.Parse(layout, strings.ToUpper(value))
		if err != nil {
			continue
		}
		return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), 0, now.Location()), true
	}
	return time.Time{}, false
}

func (a *AutomaticDispatcher) inWindow(now, deadline time.Time) bool {
	return !now.Before(deadline.Add(-a.config.LeadTime)) && !now.After(deadline)
}

func (a *AutomaticDispatcher) Run(ctx context.Context, cycleID string) PassSummary {
	var summary PassSummary

	if !a.settings.AutomaticDeliveryEnabled(ctx) {
		logger.Debug("automatic delivery disabled", "cycle_id", cycleID)
		return summary
	}

	reports, err := a.reports.ListActiveByMode(ctx, model.DeliveryModeAutomatic)
	if err != nil {
		logger.Error("failed to load automatic reports", "cycle_id", cycleID, "error", err)
		return summary
	}
	if len(reports) == 0 {
		return summary
	}

	rows, err := a.status.Rows(ctx)
	if err != nil {
		summary.Failed++
		prom.IncDelivery(modeAutomatic, string(model.DeliveryLogError))
		logger.Error("failed to read status source", "cycle_id", cycleID, "error", err)
		a.appendLog(ctx, &model.DeliveryLogEntry{
			ReportID:   StatusSourceReportID,
			ReportName: "Automatic delivery",
			Status:     model.DeliveryLogError,
			Error:      err.Error(),
			CycleID:    cycleID,
		})
		return summary
	}

	byTask := make(map[string][]*model.Report, len(reports))
	for _, rep := range reports {
		if rep.AutomaticTaskID != "" {
			byTask[rep.AutomaticTaskID] = append(byTask[rep.AutomaticTaskID], rep)
		}
	}

	now := a.clock.Now()
	today := now.Format(model.DateLayout)

	for _, row := range rows {
		for _, rep := range byTask[row.TaskID] {
			summary.Evaluated++
			a.evaluate(ctx, rep, row, now, today, cycleID, &summary)
		}
	}

	return summary
}

func (a *AutomaticDispatcher) evaluate(ctx context.Context, rep *model.Report, row model.StatusRow, now time.Time, today, cycleID string, summary *PassSummary) {
	deadline, ok := ParseDeliveryTime(row.DeliveryTime, now)
	if !ok {
		logger.Debug("unparseable delivery time", "report_id", rep.ID, "delivery_time", row.DeliveryTime)
		return
	}
	if !a.inWindow(now, deadline) {
		return
	}

	scheduledTime := deadline.Format("15:04")
	dedupKey := model.DedupKey(rep.Name, deadline)

	delivered, err := a.ledger.Delivered(ctx, today, dedupKey)
	if err != nil {
		logger.Error("failed to read automatic ledger", "report_id", rep.ID, "dedup_key", dedupKey, "error", err)
		return
	}
	if delivered {
		summary.Skipped++
		return
	}

	if strings.TrimSpace(row.Status) != a.config.CompleteStatus {
		summary.NotReady++
		prom.IncDelivery(modeAutomatic, string(model.DeliveryLogNotReady))
		a.appendLog(ctx, &model.DeliveryLogEntry{
			ReportID:      rep.ID,
			ReportName:    rep.Name,
			Status:        model.DeliveryLogNotReady,
			ScheduledTime: scheduledTime,
			Message:       "Status is " + row.Status,
			CycleID:       cycleID,
		})
		return
	}

	claim, err := a.claims.Acquire(ctx, automaticClaimKey(today, dedupKey))
	if err != nil {
		logger.Info("automatic slot not claimed", "report_id", rep.ID, "dedup_key", dedupKey, "reason", err)
		return
	}

	// sheet authors first, then the configured author; duplicates are folded
	// after resolution
	authors := append(row.Authors(), nonEmpty(rep.Author)...)
	req := requestFor(rep)
	req.Authors = authors
	req.Receivers = nonEmpty(rep.Receiver)

	res, err := a.sender.Deliver(ctx, req)
	if err != nil {
		summary.Failed++
		prom.IncDelivery(modeAutomatic, string(model.DeliveryLogFailed))
		logger.Error("automatic delivery failed", "report_id", rep.ID, "dedup_key", dedupKey, "error", err)
		a.appendLog(ctx, &model.DeliveryLogEntry{
			ReportID:      rep.ID,
			ReportName:    rep.Name,
			Status:        model.DeliveryLogFailed,
			ScheduledTime: scheduledTime,
			Error:         err.Error(),
			CycleID:       cycleID,
		})
		_ = a.claims.Release(ctx, claim)
		return
	}

	recorded, err := a.ledger.Record(ctx, &model.AutomaticDelivery{
		Date:          today,
		DedupKey:      dedupKey,
		ReportID:      rep.ID,
		ScheduledTime: scheduledTime,
		DeliveryInfo: &model.DeliveryInfo{
			Channel:   res.Channel,
			MessageTS: res.MessageTS,
			ThreadTS:  res.ThreadTS,
			Authors:   authors,
			Receiver:  rep.Receiver,
			TaskID:    row.TaskID,
		},
	})
	if err != nil {
		logger.Error("failed to record automatic delivery", "report_id", rep.ID, "dedup_key", dedupKey, "error", err)
	} else if !recorded {
		logger.Warn("automatic slot was recorded concurrently", "report_id", rep.ID, "dedup_key", dedupKey)
	}
	if err := a.reports.IncrementDeliveryCount(ctx, rep.ID); err != nil {
		logger.Error("failed to bump delivery count", "report_id", rep.ID, "error", err)
	}

	summary.Sent++
	prom.IncDelivery(modeAutomatic, string(model.DeliveryLogDelivered))
	logger.Info("automatic delivery sent", "report_id", rep.ID, "dedup_key", dedupKey, "channel", res.Channel, "cycle_id", cycleID)
	a.appendLog(ctx, &model.DeliveryLogEntry{
		ReportID:      rep.ID,
		ReportName:    rep.Name,
		Status:        model.DeliveryLogDelivered,
		ScheduledTime: scheduledTime,
		Message:       "Automatic delivery completed",
		CycleID:       cycleID,
	})
	_ = a.claims.MarkDelivered(ctx, claim)
}

func (a *AutomaticDispatcher) appendLog(ctx context.Context, entry *model.DeliveryLogEntry) {
	if err := a.logs.AddLogEntry(ctx, entry); err != nil {
		logger.Error("failed to append delivery log", "report_id", entry.ReportID, "status", entry.Status, "error", err)
	}
}
