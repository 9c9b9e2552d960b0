package analysis

import (
	"fmt"
	"testing"
	"time"

	"github.com/core-tools/macos-observer/pkg/events"
	"github.com/core-tools/macos-observer/pkg/triggers"

	"github.com/stretchr/testify/assert"
)

func testTrigger() *triggers.Context {
	gpuPower := 800.0
	return &triggers.Context{
		Timestamp:   time.Now().UTC(),
		TriggeredBy: "CrashDetectionRule",
		Severity:    events.SeverityCritical,
		Reason:      "CrashDetectionRule matched a window of 3 log, 2 metrics and 1 disk events",
		Logs: []*events.LogEvent{
			{Timestamp: time.Now(), MessageType: events.MessageTypeInfo, Process: "launchd", Subsystem: "com.apple.launchd", Category: "general", Message: "service started"},
			{Timestamp: time.Now(), MessageType: events.MessageTypeError, Process: "WindowServer", Subsystem: "com.apple.windowserver", Category: "display", Message: "surface allocation crashed"},
			{Timestamp: time.Now(), MessageType: events.MessageTypeFault, Process: "kernel", Subsystem: "com.apple.kernel", Category: "memory", Message: "page fault storm"},
		},
		Metrics: []*events.MetricsEvent{
			{Timestamp: time.Now(), CPUPowerMW: 1500.0, GPUPowerMW: &gpuPower, MemoryUsedMB: 6144.0, MemoryPressure: events.MemoryPressureWarning},
			{Timestamp: time.Now(), CPUPowerMW: 2200.0, GPUPowerMW: nil, MemoryUsedMB: 7000.0, MemoryPressure: events.MemoryPressureWarning},
		},
		Disks: []*events.DiskEvent{
			{Timestamp: time.Now(), DiskName: "disk0", ReadKBPerSec: 1024.0, WriteKBPerSec: 512.0, ReadOpsPerSec: 80.0, WriteOpsPerSec: 40.0},
		},
	}
}

func TestFormatPromptIncludesEvidence(t *testing.T) {
	prompt := formatPrompt(testTrigger())

	assert.Contains(t, prompt, "Rule: CrashDetectionRule")
	assert.Contains(t, prompt, "Rule severity: critical")
	assert.Contains(t, prompt, "Log window: 3 entries, 2 errors or faults.")
	assert.Contains(t, prompt, "surface allocation crashed")
	assert.Contains(t, prompt, "page fault storm")
	assert.NotContains(t, prompt, "service started", "info entries stay out of the prompt")
	assert.Contains(t, prompt, "cpu 1500.0mW")
	assert.Contains(t, prompt, "gpu 800.0mW")
	assert.Contains(t, prompt, "gpu n/a")
	assert.Contains(t, prompt, "disk0 read 1024.0KB/s")
	assert.Contains(t, prompt, "single JSON object")
}

func TestFormatPromptCapsAtMostRecentEntries(t *testing.T) {
	trigger := testTrigger()
	trigger.Logs = nil
	for i := 0; i < 30; i++ {
		trigger.Logs = append(trigger.Logs, &events.LogEvent{
			Timestamp:   time.Now().Add(time.Duration(i) * time.Second),
			MessageType: events.MessageTypeError,
			Process:     "testd",
			Subsystem:   "com.apple.test",
			Category:    "test",
			Message:     fmt.Sprintf("failure %02d", i),
		})
	}

	prompt := formatPrompt(trigger)

	assert.Contains(t, prompt, "Log window: 30 entries, 30 errors or faults.")
	assert.NotContains(t, prompt, "failure 09", "older entries beyond the cap are dropped")
	assert.Contains(t, prompt, "failure 10")
	assert.Contains(t, prompt, "failure 29")
}

func TestFormatPromptOmitsEmptySections(t *testing.T) {
	trigger := testTrigger()
	trigger.Metrics = nil
	trigger.Disks = nil

	prompt := formatPrompt(trigger)

	assert.NotContains(t, prompt, "resource samples")
	assert.NotContains(t, prompt, "disk samples")
}
