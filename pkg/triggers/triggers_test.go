package triggers

import (
	"testing"
	"time"

	"github.com/core-tools/macos-observer/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRule struct {
	name     string
	severity events.Severity
	fires    bool
	calls    int
}

func (r *stubRule) Evaluate(_ []*events.LogEvent, _ []*events.MetricsEvent, _ []*events.DiskEvent) bool {
	r.calls++
	return r.fires
}

func (r *stubRule) Name() string              { return r.name }
func (r *stubRule) Severity() events.Severity { return r.severity }

func TestEngineWithoutRules(t *testing.T) {
	engine := NewEngine()
	assert.Equal(t, 0, engine.Rules())
	assert.Empty(t, engine.Evaluate(nil, nil, nil))
}

func TestEngineIgnoresNilRule(t *testing.T) {
	engine := NewEngine()
	engine.AddRule(nil)
	assert.Equal(t, 0, engine.Rules())
}

func TestEngineOneContextPerFiringRule(t *testing.T) {
	quiet := &stubRule{name: "QuietRule", severity: events.SeverityInfo, fires: false}
	warning := &stubRule{name: "WarningRule", severity: events.SeverityWarning, fires: true}
	critical := &stubRule{name: "CriticalRule", severity: events.SeverityCritical, fires: true}

	engine := NewEngine()
	engine.AddRule(quiet)
	engine.AddRule(warning)
	engine.AddRule(critical)

	logs := []*events.LogEvent{testLog(events.MessageTypeError, "boom", time.Second)}
	metrics := []*events.MetricsEvent{testMetric(1000.0, nil, events.MemoryPressureNormal, time.Second)}

	contexts := engine.Evaluate(logs, metrics, nil)
	require.Len(t, contexts, 2)

	assert.Equal(t, "WarningRule", contexts[0].TriggeredBy)
	assert.Equal(t, events.SeverityWarning, contexts[0].Severity)
	assert.Equal(t, "CriticalRule", contexts[1].TriggeredBy)
	assert.Equal(t, events.SeverityCritical, contexts[1].Severity)

	// Every rule is consulted exactly once per window.
	assert.Equal(t, 1, quiet.calls)
	assert.Equal(t, 1, warning.calls)
	assert.Equal(t, 1, critical.calls)
}

func TestEngineContextCarriesEvidence(t *testing.T) {
	rule := &stubRule{name: "AlwaysRule", severity: events.SeverityWarning, fires: true}
	engine := NewEngine()
	engine.AddRule(rule)

	logs := []*events.LogEvent{testLog(events.MessageTypeError, "boom", time.Second)}
	metrics := []*events.MetricsEvent{testMetric(1500.0, gpu(700.0), events.MemoryPressureWarning, time.Second)}
	disks := []*events.DiskEvent{{Timestamp: time.Now(), DiskName: "disk0", ReadKBPerSec: 42.0}}

	contexts := engine.Evaluate(logs, metrics, disks)
	require.Len(t, contexts, 1)

	context := contexts[0]
	assert.Equal(t, logs, context.Logs)
	assert.Equal(t, metrics, context.Metrics)
	assert.Equal(t, disks, context.Disks)
	assert.Contains(t, context.Reason, "AlwaysRule")
	assert.WithinDuration(t, time.Now(), context.Timestamp, 5*time.Second)
}
