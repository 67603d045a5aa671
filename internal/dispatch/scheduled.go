package dispatch

import (
	"context"
	"sync"

	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/nimasrn/report-dispatcher/internal/services"
	"github.com/nimasrn/report-dispatcher/pkg/logger"
	"github.com/nimasrn/report-dispatcher/pkg/prom"
)

const (
	DefaultTolerance = 15
	minutesPerDay    = 24 * 60

	modeScheduled = "scheduled"
)

type ScheduledConfig struct {
	// ToleranceMinutes is the half-width of the firing window around schedule_time.
	ToleranceMinutes int
}

type ScheduledDispatcher struct {
	reports ReportStore
	logs    LogWriter
	sender  Sender
	claims  *Claimer
	clock   services.Clock
	config  ScheduledConfig

	// sent covers a send whose MarkSent failed; skipLogged keeps the
	// "Already sent today" entry to one per report per day.
	sent       *dayMemo
	skipLogged *dayMemo
}

// dayMemo remembers, per report id, the last date something happened.
type dayMemo struct {
	mu   sync.Mutex
	days map[string]string
}

func newDayMemo() *dayMemo {
	return &dayMemo{days: make(map[string]string)}
}

func (m *dayMemo) seen(id, date string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.days[id] == date
}

// mark records date for id and reports whether it was new.
func (m *dayMemo) mark(id, date string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.days[id] == date {
		return false
	}
	m.days[id] = date
	return true
}

func NewScheduledDispatcher(reports ReportStore, logs LogWriter, sender Sender, claims *Claimer, clock services.Clock, config ScheduledConfig) *ScheduledDispatcher {
	if config.ToleranceMinutes <= 0 {
		config.ToleranceMinutes = DefaultTolerance
	}
	return &ScheduledDispatcher{
		reports: reports,
		logs:    logs,
		sender:  sender,
		claims:  claims,
		clock:   clock,
		config:  config,

		sent:       newDayMemo(),
		skipLogged: newDayMemo(),
	}
}

// clockDistance is the shortest distance between two minutes-of-day, so
// 23:55 and 00:05 are ten minutes apart.
func clockDistance(a, b int) int {
	d := (a - b) % minutesPerDay
	if d < 0 {
		d = -d
	}
	if d > minutesPerDay-d {
		d = minutesPerDay - d
	}
	return d
}

func (s *ScheduledDispatcher) Run(ctx context.Context, cycleID string) PassSummary {
	var summary PassSummary

	reports, err := s.reports.ListActiveByMode(ctx, model.DeliveryModeScheduled)
	if err != nil {
		logger.Error("failed to load scheduled reports", "cycle_id", cycleID, "error", err)
		return summary
	}

	now := s.clock.Now()
	today := now.Format(model.DateLayout)
	nowMinutes := now.Hour()*60 + now.Minute()

	for _, rep := range reports {
		summary.Evaluated++

		scheduled, err := model.ParseClock(rep.ScheduleTime)
		if err != nil {
			logger.Debug("unparseable schedule time", "report_id", rep.ID, "schedule_time", rep.ScheduleTime)
			continue
		}
		if clockDistance(nowMinutes, scheduled) > s.config.ToleranceMinutes {
			continue
		}

		if rep.LastSentDate == today || s.sent.seen(rep.ID, today) {
			summary.Skipped++
			if s.skipLogged.mark(rep.ID, today) {
				s.appendLog(ctx, rep, cycleID, model.DeliveryLogSkipped, "Already sent today", "")
			} else {
				logger.Debug("scheduled report already sent today", "report_id", rep.ID, "cycle_id", cycleID)
			}
			continue
		}

		claim, err := s.claims.Acquire(ctx, scheduledClaimKey(rep.ID, today))
		if err != nil {
			logger.Info("scheduled slot not claimed", "report_id", rep.ID, "reason", err)
			continue
		}

		s.fire(ctx, rep, today, cycleID, claim, &summary)
	}

	return summary
}

func (s *ScheduledDispatcher) fire(ctx context.Context, rep *model.Report, today, cycleID string, claim *Claim, summary *PassSummary) {
	req := requestFor(rep)
	req.Authors = nonEmpty(rep.Author)
	req.Receivers = nonEmpty(rep.Receiver)

	res, err := s.sender.Deliver(ctx, req)
	if err != nil {
		summary.Failed++
		prom.IncDelivery(modeScheduled, string(model.DeliveryLogFailed))
		logger.Error("scheduled delivery failed", "report_id", rep.ID, "cycle_id", cycleID, "error", err)
		s.appendLog(ctx, rep, cycleID, model.DeliveryLogFailed, "", err.Error())
		_ = s.claims.Release(ctx, claim)
		return
	}

	s.sent.mark(rep.ID, today)
	if err := s.reports.MarkSent(ctx, rep.ID); err != nil {
		// the message is out. This process will not resend; without a held
		// claim another process, or this one after a restart, may.
		logger.Error("failed to mark report sent",
			"report_id", rep.ID,
			"report_name", rep.Name,
			"date", today,
			"cycle_id", cycleID,
			"claim_held", claim.held,
			"resend_risk", !claim.held,
			"error", err,
		)
	}
	summary.Sent++
	prom.IncDelivery(modeScheduled, string(model.DeliveryLogSuccess))
	logger.Info("scheduled delivery sent", "report_id", rep.ID, "channel", res.Channel, "ts", res.MessageTS, "cycle_id", cycleID)
	s.appendLog(ctx, rep, cycleID, model.DeliveryLogSuccess, "Successfully sent to @"+rep.Receiver, "")
	_ = s.claims.MarkDelivered(ctx, claim)
}

func (s *ScheduledDispatcher) appendLog(ctx context.Context, rep *model.Report, cycleID string, status model.DeliveryLogStatus, message, errText string) {
	err := s.logs.AddLogEntry(ctx, &model.DeliveryLogEntry{
		ReportID:      rep.ID,
		ReportName:    rep.Name,
		Status:        status,
		ScheduledTime: rep.ScheduleTime,
		Message:       message,
		Error:         errText,
		CycleID:       cycleID,
	})
	if err != nil {
		logger.Error("failed to append delivery log", "report_id", rep.ID, "status", status, "error", err)
	}
}
