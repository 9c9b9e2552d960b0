package monitoring

import (
	"os"
	"sync"
	"time"

	"github.com/core-tools/macos-observer/pkg/events"
	"github.com/core-tools/macos-observer/pkg/logging"

	"github.com/shirou/gopsutil/v3/process"
)

const (
	maxLatencySamples      = 100
	maxNotificationSamples = 1000

	// countWindowAge bounds how long event count buckets are retained;
	// rateWindow is the lookback used when reporting per-minute rates
	countWindowAge = 5 * time.Minute
	rateWindow     = time.Minute

	highMemoryBytes = 500 * 1024 * 1024
	highLatency     = 30 * time.Second
	lowSuccessRate  = 90.0
)

// Metrics is a point-in-time report of the observer's own health
type Metrics struct {
	MemoryUsageBytes                 uint64
	LogEventsPerMinute               uint64
	MetricsEventsPerMinute           uint64
	DiskEventsPerMinute              uint64
	AvgAnalysisLatency               time.Duration
	SuccessfulNotificationsPerMinute uint64
	FailedNotificationsPerMinute     uint64
	NotificationSuccessRate          float64
	Timestamp                        time.Time
}

type latencySample struct {
	duration  time.Duration
	timestamp time.Time
}

type notificationSample struct {
	success   bool
	timestamp time.Time
}

type countSample struct {
	count     uint64
	timestamp time.Time
}

// SelfMonitor tracks the observer's own resource usage, event throughput,
// analysis latency and notification delivery rates. Safe for concurrent use.
type SelfMonitor struct {
	logger logging.Logger

	mu                  sync.Mutex
	analysisLatencies   []latencySample
	notificationResults []notificationSample
	eventCounts         map[events.Kind][]countSample
}

func NewSelfMonitor(logger logging.Logger) *SelfMonitor {
	return &SelfMonitor{
		logger:      logger,
		eventCounts: make(map[events.Kind][]countSample),
	}
}

// RecordAnalysisLatency records how long one analysis round trip took
func (m *SelfMonitor) RecordAnalysisLatency(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.analysisLatencies = append(m.analysisLatencies, latencySample{
		duration:  duration,
		timestamp: time.Now(),
	})
	if len(m.analysisLatencies) > maxLatencySamples {
		m.analysisLatencies = m.analysisLatencies[len(m.analysisLatencies)-maxLatencySamples:]
	}
}

// TimeAnalysis starts a latency measurement; the returned func records it
func (m *SelfMonitor) TimeAnalysis() func() {
	started := time.Now()
	return func() {
		m.RecordAnalysisLatency(time.Since(started))
	}
}

// RecordNotificationResult records one notification delivery outcome
func (m *SelfMonitor) RecordNotificationResult(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.notificationResults = append(m.notificationResults, notificationSample{
		success:   success,
		timestamp: time.Now(),
	})
	if len(m.notificationResults) > maxNotificationSamples {
		m.notificationResults = m.notificationResults[len(m.notificationResults)-maxNotificationSamples:]
	}
}

// RecordEventsProcessed records that count events of one kind moved through
// the pipeline
func (m *SelfMonitor) RecordEventsProcessed(kind events.Kind, count uint64) {
	if count == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	counts := append(m.eventCounts[kind], countSample{count: count, timestamp: time.Now()})

	cutoff := time.Now().Add(-countWindowAge)
	pruned := 0
	for pruned < len(counts) && counts[pruned].timestamp.Before(cutoff) {
		pruned++
	}
	m.eventCounts[kind] = counts[pruned:]
}

// Collect builds a health report and logs warnings for high memory usage,
// slow analysis and failing notifications
func (m *SelfMonitor) Collect() Metrics {
	metrics := Metrics{
		MemoryUsageBytes:   currentRSS(),
		AvgAnalysisLatency: m.avgAnalysisLatency(),
		Timestamp:          time.Now().UTC(),
	}
	metrics.LogEventsPerMinute = m.eventRate(events.KindLog)
	metrics.MetricsEventsPerMinute = m.eventRate(events.KindMetrics)
	metrics.DiskEventsPerMinute = m.eventRate(events.KindDisk)
	metrics.SuccessfulNotificationsPerMinute, metrics.FailedNotificationsPerMinute, metrics.NotificationSuccessRate = m.notificationRates()

	m.logger.Infof("Self-monitoring: memory=%dMB, log_events/min=%d, metrics_events/min=%d, disk_events/min=%d, analysis_latency=%v, notification_success=%.1f%%",
		metrics.MemoryUsageBytes/1024/1024,
		metrics.LogEventsPerMinute,
		metrics.MetricsEventsPerMinute,
		metrics.DiskEventsPerMinute,
		metrics.AvgAnalysisLatency,
		metrics.NotificationSuccessRate)

	if metrics.MemoryUsageBytes > highMemoryBytes {
		m.logger.Warnf("High memory usage detected: %dMB", metrics.MemoryUsageBytes/1024/1024)
	}
	if metrics.AvgAnalysisLatency > highLatency {
		m.logger.Warnf("High analysis latency detected: %v", metrics.AvgAnalysisLatency)
	}
	if metrics.NotificationSuccessRate < lowSuccessRate &&
		metrics.SuccessfulNotificationsPerMinute+metrics.FailedNotificationsPerMinute > 0 {
		m.logger.Warnf("Low notification success rate: %.1f%%", metrics.NotificationSuccessRate)
	}

	return metrics
}

func (m *SelfMonitor) avgAnalysisLatency() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.analysisLatencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, sample := range m.analysisLatencies {
		total += sample.duration
	}
	return total / time.Duration(len(m.analysisLatencies))
}

func (m *SelfMonitor) eventRate(kind events.Kind) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-rateWindow)
	var total uint64
	for _, sample := range m.eventCounts[kind] {
		if !sample.timestamp.Before(cutoff) {
			total += sample.count
		}
	}
	return total
}

func (m *SelfMonitor) notificationRates() (successful uint64, failed uint64, rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-rateWindow)
	for _, sample := range m.notificationResults {
		if sample.timestamp.Before(cutoff) {
			continue
		}
		if sample.success {
			successful++
		} else {
			failed++
		}
	}

	total := successful + failed
	if total == 0 {
		// no recent notifications, assume full delivery
		return 0, 0, 100.0
	}
	return successful, failed, float64(successful) / float64(total) * 100.0
}

// currentRSS reports the observer's own resident set size, zero when it
// cannot be determined
func currentRSS() uint64 {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := proc.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}
