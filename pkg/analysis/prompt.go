package analysis

import (
	"fmt"
	"strings"

	"github.com/core-tools/macos-observer/pkg/events"
	"github.com/core-tools/macos-observer/pkg/triggers"
)

// systemPrompt pins the response contract; parseInsight depends on the
// field names promised here.
const systemPrompt = "You are a macOS system diagnostics expert. Analyze system data and provide " +
	"insights in JSON format with fields: summary (string), root_cause (string or null), " +
	"recommendations (array of strings), severity (\"info\", \"warning\", or \"critical\")."

// Caps on how much of the trigger window goes into the prompt. The window
// can hold a thousand events per kind; the model only needs the tail.
const (
	maxPromptLogs    = 20
	maxPromptMetrics = 10
	maxPromptDisks   = 5
)

// formatPrompt renders a trigger context as the user prompt: which rule
// fired and the most recent evidence, oldest first within each section.
func formatPrompt(trigger *triggers.Context) string {
	var b strings.Builder

	b.WriteString("A monitoring rule fired on this macOS system.\n")
	fmt.Fprintf(&b, "Rule: %s\n", trigger.TriggeredBy)
	fmt.Fprintf(&b, "Rule severity: %s\n", trigger.Severity)
	fmt.Fprintf(&b, "Reason: %s\n", trigger.Reason)

	var errorLogs []*events.LogEvent
	for _, event := range trigger.Logs {
		if event.MessageType == events.MessageTypeError || event.MessageType == events.MessageTypeFault {
			errorLogs = append(errorLogs, event)
		}
	}

	fmt.Fprintf(&b, "\nLog window: %d entries, %d errors or faults.\n", len(trigger.Logs), len(errorLogs))
	if len(errorLogs) > 0 {
		b.WriteString("Most recent errors and faults:\n")
		start := len(errorLogs) - maxPromptLogs
		if start < 0 {
			start = 0
		}
		for _, event := range errorLogs[start:] {
			fmt.Fprintf(&b, "- [%s] %s %s (%s/%s): %s\n",
				event.Timestamp.Format("15:04:05"), event.MessageType,
				event.Process, event.Subsystem, event.Category, event.Message)
		}
	}

	if len(trigger.Metrics) > 0 {
		b.WriteString("\nMost recent resource samples:\n")
		start := len(trigger.Metrics) - maxPromptMetrics
		if start < 0 {
			start = 0
		}
		for _, event := range trigger.Metrics[start:] {
			gpuPower := "n/a"
			if event.GPUPowerMW != nil {
				gpuPower = fmt.Sprintf("%.1fmW", *event.GPUPowerMW)
			}
			fmt.Fprintf(&b, "- [%s] cpu %.1fmW, gpu %s, memory %.0fMB, pressure %s\n",
				event.Timestamp.Format("15:04:05"), event.CPUPowerMW,
				gpuPower, event.MemoryUsedMB, event.MemoryPressure)
		}
	}

	if len(trigger.Disks) > 0 {
		b.WriteString("\nMost recent disk samples:\n")
		start := len(trigger.Disks) - maxPromptDisks
		if start < 0 {
			start = 0
		}
		for _, event := range trigger.Disks[start:] {
			fmt.Fprintf(&b, "- [%s] %s read %.1fKB/s (%.1f ops/s), write %.1fKB/s (%.1f ops/s)\n",
				event.Timestamp.Format("15:04:05"), event.DiskName,
				event.ReadKBPerSec, event.ReadOpsPerSec,
				event.WriteKBPerSec, event.WriteOpsPerSec)
		}
	}

	b.WriteString("\nRespond with a single JSON object with fields summary, root_cause, recommendations and severity.")
	return b.String()
}
