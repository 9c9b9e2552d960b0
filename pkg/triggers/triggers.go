package triggers

import (
	"fmt"
	"time"

	"github.com/core-tools/macos-observer/pkg/events"
)

// Rule decides whether a window of recent events warrants AI analysis.
// Evaluate sees the full analysis window for every kind; rules ignore the
// kinds they do not care about.
type Rule interface {
	Evaluate(logs []*events.LogEvent, metrics []*events.MetricsEvent, disks []*events.DiskEvent) bool
	Name() string
	Severity() events.Severity
}

// Context is the evidence bundle handed to the analyzer when a rule fires:
// which rule, how severe the rule considers the situation, and the event
// window that made it fire.
type Context struct {
	Timestamp   time.Time
	TriggeredBy string
	Severity    events.Severity
	Reason      string
	Logs        []*events.LogEvent
	Metrics     []*events.MetricsEvent
	Disks       []*events.DiskEvent
}

// Engine runs a fixed set of rules over each analysis window.
type Engine struct {
	rules []Rule
}

// NewEngine creates an engine with no rules; use AddRule to register them.
func NewEngine() *Engine {
	return &Engine{}
}

// AddRule registers a rule. Rules are evaluated in registration order.
func (e *Engine) AddRule(rule Rule) {
	if rule == nil {
		return
	}
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rule count, for status reporting.
func (e *Engine) Rules() int {
	return len(e.rules)
}

// Evaluate runs every rule against the window and returns one context per
// rule that fired. A window can fire several rules at once; each produces
// its own analysis.
func (e *Engine) Evaluate(logs []*events.LogEvent, metrics []*events.MetricsEvent, disks []*events.DiskEvent) []*Context {
	var contexts []*Context
	for _, rule := range e.rules {
		if !rule.Evaluate(logs, metrics, disks) {
			continue
		}
		contexts = append(contexts, &Context{
			Timestamp:   time.Now().UTC(),
			TriggeredBy: rule.Name(),
			Severity:    rule.Severity(),
			Reason: fmt.Sprintf("%s matched a window of %d log, %d metrics and %d disk events",
				rule.Name(), len(logs), len(metrics), len(disks)),
			Logs:    logs,
			Metrics: metrics,
			Disks:   disks,
		})
	}
	return contexts
}
