package dispatch

import (
	"sync/atomic"
	"time"
)

// CycleMetrics keeps process-lifetime counters for the periodic report line.
type CycleMetrics struct {
	totalCycles     int64
	totalSent       int64
	totalFailed     int64
	totalDurationNs int64
	startedNs       int64
}

func NewCycleMetrics() *CycleMetrics {
	return &CycleMetrics{
		startedNs: time.Now().UnixNano(),
	}
}

func (m *CycleMetrics) RecordCycle(s CycleSummary) {
	atomic.AddInt64(&m.totalCycles, 1)
	atomic.AddInt64(&m.totalSent, int64(s.Scheduled.Sent+s.Automatic.Sent))
	atomic.AddInt64(&m.totalFailed, int64(s.Scheduled.Failed+s.Automatic.Failed))
	atomic.AddInt64(&m.totalDurationNs, int64(s.Duration))
}

func (m *CycleMetrics) GetStats() map[string]interface{} {
	cycles := atomic.LoadInt64(&m.totalCycles)
	durationNs := atomic.LoadInt64(&m.totalDurationNs)

	avg := time.Duration(0)
	if cycles > 0 {
		avg = time.Duration(durationNs / cycles)
	}

	return map[string]interface{}{
		"total_cycles":    cycles,
		"total_sent":      atomic.LoadInt64(&m.totalSent),
		"total_failed":    atomic.LoadInt64(&m.totalFailed),
		"avg_duration_ms": avg.Milliseconds(),
		"uptime_seconds":  time.Since(time.Unix(0, atomic.LoadInt64(&m.startedNs))).Seconds(),
	}
}
