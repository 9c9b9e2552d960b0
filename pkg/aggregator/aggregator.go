package aggregator

import (
	"sync"
	"time"

	"github.com/core-tools/macos-observer/pkg/events"
)

const (
	// DefaultMaxAge bounds how long events stay available for analysis
	DefaultMaxAge = 5 * time.Minute

	// DefaultMaxSize bounds each buffer independently; a chatty log stream
	// must not be able to evict metrics samples
	DefaultMaxSize = 1000
)

// Aggregator keeps rolling windows of recent events, one buffer per event
// kind. Writers append, capacity enforcement drops the oldest entries, and
// age pruning walks entries out from the front as they expire. Events
// arrive in receive order, so each buffer stays sorted by insertion.
//
// Safe for concurrent use; the analysis loop reads while collectors write.
type Aggregator struct {
	mu      sync.Mutex
	maxAge  time.Duration
	maxSize int
	logs    []*events.LogEvent
	metrics []*events.MetricsEvent
	disks   []*events.DiskEvent
}

// New creates an aggregator with the given retention bounds. Non-positive
// values fall back to the defaults.
func New(maxAge time.Duration, maxSize int) *Aggregator {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Aggregator{
		maxAge:  maxAge,
		maxSize: maxSize,
	}
}

// Add routes an event to the buffer for its kind. Unknown event types are
// dropped; the aggregator only retains what analysis knows how to consume.
func (a *Aggregator) Add(event events.Event) {
	switch e := event.(type) {
	case *events.LogEvent:
		a.AddLog(e)
	case *events.MetricsEvent:
		a.AddMetric(e)
	case *events.DiskEvent:
		a.AddDisk(e)
	}
}

// AddLog appends a log event, then enforces capacity and age bounds.
func (a *Aggregator) AddLog(event *events.LogEvent) {
	if event == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.logs = append(a.logs, event)
	if len(a.logs) > a.maxSize {
		a.logs = copyLogs(a.logs[len(a.logs)-a.maxSize:])
	}
	cutoff := a.cutoff()
	expired := 0
	for expired < len(a.logs) && a.logs[expired].Timestamp.Before(cutoff) {
		expired++
	}
	if expired > 0 {
		a.logs = copyLogs(a.logs[expired:])
	}
}

// AddMetric appends a metrics event, then enforces capacity and age bounds.
func (a *Aggregator) AddMetric(event *events.MetricsEvent) {
	if event == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.metrics = append(a.metrics, event)
	if len(a.metrics) > a.maxSize {
		a.metrics = copyMetrics(a.metrics[len(a.metrics)-a.maxSize:])
	}
	cutoff := a.cutoff()
	expired := 0
	for expired < len(a.metrics) && a.metrics[expired].Timestamp.Before(cutoff) {
		expired++
	}
	if expired > 0 {
		a.metrics = copyMetrics(a.metrics[expired:])
	}
}

// AddDisk appends a disk event, then enforces capacity and age bounds.
func (a *Aggregator) AddDisk(event *events.DiskEvent) {
	if event == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.disks = append(a.disks, event)
	if len(a.disks) > a.maxSize {
		a.disks = copyDisks(a.disks[len(a.disks)-a.maxSize:])
	}
	cutoff := a.cutoff()
	expired := 0
	for expired < len(a.disks) && a.disks[expired].Timestamp.Before(cutoff) {
		expired++
	}
	if expired > 0 {
		a.disks = copyDisks(a.disks[expired:])
	}
}

// RecentLogs returns log events newer than now minus the window, oldest
// first. The returned slice is a copy; callers may hold it across lock
// boundaries.
func (a *Aggregator) RecentLogs(window time.Duration) []*events.LogEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := time.Now().Add(-window)
	out := make([]*events.LogEvent, 0, len(a.logs))
	for _, event := range a.logs {
		if !event.Timestamp.Before(cutoff) {
			out = append(out, event)
		}
	}
	return out
}

// RecentMetrics returns metrics events newer than now minus the window,
// oldest first.
func (a *Aggregator) RecentMetrics(window time.Duration) []*events.MetricsEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := time.Now().Add(-window)
	out := make([]*events.MetricsEvent, 0, len(a.metrics))
	for _, event := range a.metrics {
		if !event.Timestamp.Before(cutoff) {
			out = append(out, event)
		}
	}
	return out
}

// RecentDisks returns disk events newer than now minus the window, oldest
// first.
func (a *Aggregator) RecentDisks(window time.Duration) []*events.DiskEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := time.Now().Add(-window)
	out := make([]*events.DiskEvent, 0, len(a.disks))
	for _, event := range a.disks {
		if !event.Timestamp.Before(cutoff) {
			out = append(out, event)
		}
	}
	return out
}

// Prune drops expired entries from every buffer. Adds prune as a side
// effect already; this exists for housekeeping during quiet periods when
// no events arrive to trigger it.
func (a *Aggregator) Prune() {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.cutoff()

	expired := 0
	for expired < len(a.logs) && a.logs[expired].Timestamp.Before(cutoff) {
		expired++
	}
	if expired > 0 {
		a.logs = copyLogs(a.logs[expired:])
	}

	expired = 0
	for expired < len(a.metrics) && a.metrics[expired].Timestamp.Before(cutoff) {
		expired++
	}
	if expired > 0 {
		a.metrics = copyMetrics(a.metrics[expired:])
	}

	expired = 0
	for expired < len(a.disks) && a.disks[expired].Timestamp.Before(cutoff) {
		expired++
	}
	if expired > 0 {
		a.disks = copyDisks(a.disks[expired:])
	}
}

// Len reports the current buffer sizes, mostly for status reporting.
func (a *Aggregator) Len() (logs, metrics, disks int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.logs), len(a.metrics), len(a.disks)
}

func (a *Aggregator) cutoff() time.Time {
	return time.Now().Add(-a.maxAge)
}

// The copy helpers reallocate so dropped prefixes become collectable
// instead of pinning the backing array.

func copyLogs(buf []*events.LogEvent) []*events.LogEvent {
	out := make([]*events.LogEvent, len(buf))
	copy(out, buf)
	return out
}

func copyMetrics(buf []*events.MetricsEvent) []*events.MetricsEvent {
	out := make([]*events.MetricsEvent, len(buf))
	copy(out, buf)
	return out
}

func copyDisks(buf []*events.DiskEvent) []*events.DiskEvent {
	out := make([]*events.DiskEvent, len(buf))
	copy(out, buf)
	return out
}
