package alerts

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/core-tools/macos-observer/pkg/analysis"
	"github.com/core-tools/macos-observer/pkg/errors"
	"github.com/core-tools/macos-observer/pkg/events"
	"github.com/core-tools/macos-observer/pkg/logging"
)

const (
	// DefaultRateLimitPerMinute caps notification frequency
	DefaultRateLimitPerMinute = 3

	// DefaultQueueSize bounds how many rate-limited alerts wait for
	// delivery before the oldest are dropped
	DefaultQueueSize = 100

	// macOS notification center truncates beyond these anyway; cutting
	// ourselves keeps the ellipsis under our control
	maxTitleLength = 256
	maxBodyLength  = 1024

	// bodyRecommendationLimit keeps notification bodies scannable
	bodyRecommendationLimit = 3
)

// Manager turns insights into user-facing notifications. Only critical
// insights notify; everything else is logged and skipped. Alerts that
// arrive faster than the rate limit queue up and drain on later sends or
// on Tick.
//
// Safe for concurrent use; the analysis loop sends while the notification
// goroutine ticks.
type Manager struct {
	mu       sync.Mutex
	limiter  *RateLimiter
	queue    []*analysis.Insight
	maxQueue int
	notifier Notifier
	logger   logging.Logger
}

// NewManager creates an alert manager. Non-positive limits fall back to
// the defaults.
func NewManager(ratePerMinute, queueSize int, notifier Notifier, logger logging.Logger) (*Manager, error) {
	if notifier == nil {
		return nil, errors.NewValidationError("notifier cannot be nil", nil)
	}
	if logger == nil {
		return nil, errors.NewValidationError("logger cannot be nil", nil)
	}
	if ratePerMinute <= 0 {
		ratePerMinute = DefaultRateLimitPerMinute
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Manager{
		limiter:  NewRateLimiter(ratePerMinute),
		maxQueue: queueSize,
		notifier: notifier,
		logger:   logger,
	}, nil
}

// SendAlert delivers or queues a notification for an insight. Queued
// alerts drain first so delivery stays ordered. Non-critical insights
// never notify.
func (m *Manager) SendAlert(insight *analysis.Insight) error {
	if insight == nil {
		return errors.NewValidationError("insight cannot be nil", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.drainQueue(); err != nil {
		return err
	}

	if insight.Severity != events.SeverityCritical {
		m.logger.Infof("Skipping non-critical notification (%s): %s", insight.Severity, insight.Summary)
		return nil
	}

	if m.limiter.CanSend() {
		return m.deliver(insight)
	}

	m.enqueue(insight)
	m.logger.Infof("Queued notification due to rate limit: %s", insight.Summary)
	return nil
}

// Tick drains queued alerts if the rate limit allows. The observer calls
// it periodically so queued alerts go out even when no new insights
// arrive. Returns how many alerts were delivered.
func (m *Manager) Tick() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := len(m.queue)
	if err := m.drainQueue(); err != nil {
		return before - len(m.queue), err
	}

	delivered := before - len(m.queue)
	if delivered > 0 {
		m.logger.Infof("Processed %d queued alerts", delivered)
	}
	return delivered, nil
}

// QueuedAlerts reports how many alerts wait for rate-limit capacity.
func (m *Manager) QueuedAlerts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// CanSendNotification reports whether the rate limit has capacity.
func (m *Manager) CanSendNotification() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limiter.CanSend()
}

// CurrentNotificationCount reports notifications inside the rate window.
func (m *Manager) CurrentNotificationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limiter.CurrentCount()
}

// drainQueue delivers queued alerts while capacity lasts. Callers hold
// the mutex.
func (m *Manager) drainQueue() error {
	for len(m.queue) > 0 && m.limiter.CanSend() {
		next := m.queue[0]
		m.queue = m.queue[1:]
		if err := m.deliver(next); err != nil {
			return err
		}
	}
	return nil
}

// enqueue holds an alert for later delivery, dropping the oldest when
// full. Callers hold the mutex.
func (m *Manager) enqueue(insight *analysis.Insight) {
	if len(m.queue) >= m.maxQueue {
		dropped := m.queue[0]
		m.queue = m.queue[1:]
		m.logger.Warnf("Alert queue full, dropping oldest alert: %s", dropped.Summary)
	}
	m.queue = append(m.queue, insight)
}

// deliver formats and sends one notification, recording it against the
// rate limit on success. Callers hold the mutex.
func (m *Manager) deliver(insight *analysis.Insight) error {
	title := truncateText("System Alert: "+insight.Summary, maxTitleLength)
	body := truncateText(formatBody(insight), maxBodyLength)

	if err := m.notifier.Notify(title, body); err != nil {
		m.logger.Errorf("Failed to send notification: %v", err)
		return err
	}

	m.limiter.RecordNotification()
	m.logger.Infof("Sent notification: %s", insight.Summary)
	return nil
}

// formatBody renders the notification body: the root cause if the model
// named one, then up to bodyRecommendationLimit recommendations.
func formatBody(insight *analysis.Insight) string {
	var b strings.Builder

	if insight.RootCause != nil && *insight.RootCause != "" {
		fmt.Fprintf(&b, "Cause: %s\n\n", *insight.RootCause)
	}

	if len(insight.Recommendations) > 0 {
		b.WriteString("Recommendations:\n")
		shown := insight.Recommendations
		if len(shown) > bodyRecommendationLimit {
			shown = shown[:bodyRecommendationLimit]
		}
		for i, recommendation := range shown {
			fmt.Fprintf(&b, "%d. %s\n", i+1, recommendation)
		}
		if extra := len(insight.Recommendations) - bodyRecommendationLimit; extra > 0 {
			fmt.Fprintf(&b, "... and %d more recommendations", extra)
		}
	}

	return strings.TrimSpace(b.String())
}

// truncateText cuts text to max bytes, backing up to a rune boundary and
// appending an ellipsis.
func truncateText(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max - 3
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
