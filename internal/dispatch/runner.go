package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/report-dispatcher/pkg/logger"
	"github.com/nimasrn/report-dispatcher/pkg/prom"
	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule = "* * * * *"
	HealthInterval  = 30 * time.Second
	MetricsInterval = 5 * time.Minute
)

// Pinger is anything the health loop can ping, such as the database or redis.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RunnerConfig struct {
	Schedule       string
	Location       *time.Location
	HealthInterval time.Duration
}

type CycleSummary struct {
	CycleID   string        `json:"cycle_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Scheduled PassSummary   `json:"scheduled"`
	Automatic PassSummary   `json:"automatic"`
}

func (s CycleSummary) Total() PassSummary {
	var total PassSummary
	total.add(s.Scheduled)
	total.add(s.Automatic)
	return total
}

// Runner drives both dispatchers on a cron schedule. Cycles never overlap
// within one process.
type Runner struct {
	scheduled *ScheduledDispatcher
	automatic *AutomaticDispatcher
	pingers   map[string]Pinger
	config    RunnerConfig
	metrics   *CycleMetrics
	cron      *cron.Cron
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewRunner(scheduled *ScheduledDispatcher, automatic *AutomaticDispatcher, config RunnerConfig) *Runner {
	if config.Schedule == "" {
		config.Schedule = DefaultSchedule
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.HealthInterval <= 0 {
		config.HealthInterval = HealthInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		scheduled: scheduled,
		automatic: automatic,
		pingers:   make(map[string]Pinger),
		config:    config,
		metrics:   NewCycleMetrics(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// AddHealthCheck registers a dependency pinged by the health loop.
func (r *Runner) AddHealthCheck(name string, p Pinger) {
	if p != nil {
		r.pingers[name] = p
	}
}

func (r *Runner) Metrics() *CycleMetrics {
	return r.metrics
}

// RunCycle runs the scheduled pass and then the automatic pass.
func (r *Runner) RunCycle(ctx context.Context) CycleSummary {
	summary := CycleSummary{
		CycleID:   uuid.NewString(),
		StartedAt: time.Now(),
	}
	log := logger.With("cycle_id", summary.CycleID)
	log.Debug("dispatch cycle started")

	if r.scheduled != nil {
		summary.Scheduled = r.scheduled.Run(ctx, summary.CycleID)
	}
	if r.automatic != nil {
		summary.Automatic = r.automatic.Run(ctx, summary.CycleID)
	}

	summary.Duration = time.Since(summary.StartedAt)
	r.metrics.RecordCycle(summary)
	prom.ObserveCycle(summary.Duration)

	total := summary.Total()
	log.Info("dispatch cycle finished",
		"evaluated", total.Evaluated,
		"sent", total.Sent,
		"skipped", total.Skipped,
		"not_ready", total.NotReady,
		"failed", total.Failed,
		"duration_ms", summary.Duration.Milliseconds())
	return summary
}

func (r *Runner) Start() error {
	logger.Info("Starting dispatch runner...", "schedule", r.config.Schedule, "location", r.config.Location.String())

	r.cron = cron.New(
		cron.WithLocation(r.config.Location),
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
	)
	if _, err := r.cron.AddFunc(r.config.Schedule, func() { r.RunCycle(r.ctx) }); err != nil {
		return fmt.Errorf("invalid dispatch schedule %q: %w", r.config.Schedule, err)
	}
	r.cron.Start()

	r.wg.Add(2)
	go r.healthChecker()
	go r.metricsReporter()

	logger.Info("Dispatch runner started")
	return nil
}

func (r *Runner) healthChecker() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.performHealthCheck()
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Runner) performHealthCheck() bool {
	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()

	healthy := true
	for name, p := range r.pingers {
		if err := p.Ping(ctx); err != nil {
			logger.Error("HEALTH CHECK FAILED", "dependency", name, "error", err)
			healthy = false
		}
	}
	if healthy {
		logger.Debug("HEALTH CHECK: OK")
	}
	return healthy
}

func (r *Runner) metricsReporter() {
	defer r.wg.Done()

	ticker := time.NewTicker(MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.reportMetrics()
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Runner) reportMetrics() {
	stats := r.metrics.GetStats()
	logger.Info("Dispatch metrics",
		"total_cycles", stats["total_cycles"],
		"total_sent", stats["total_sent"],
		"total_failed", stats["total_failed"],
		"avg_duration_ms", stats["avg_duration_ms"],
		"uptime_seconds", stats["uptime_seconds"])
}

// Stop waits for the in-flight cycle and the background loops.
func (r *Runner) Stop() {
	logger.Info("Shutting down dispatch runner...")

	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
	r.cancel()
	r.wg.Wait()

	r.reportMetrics()
	logger.Info("Dispatch runner stopped")
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("[cron] "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("[cron] "+msg, append(keysAndValues, "error", err)...)
}
