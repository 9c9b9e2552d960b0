package triggers

import (
	"sort"
	"strings"
	"time"

	"github.com/core-tools/macos-observer/pkg/events"
)

// ErrorFrequencyRule fires when strictly more than Threshold error or fault
// log entries were seen within the window.
type ErrorFrequencyRule struct {
	threshold int
	window    time.Duration
	severity  events.Severity
}

func NewErrorFrequencyRule(threshold int, window time.Duration, severity events.Severity) *ErrorFrequencyRule {
	return &ErrorFrequencyRule{
		threshold: threshold,
		window:    window,
		severity:  severity,
	}
}

func (r *ErrorFrequencyRule) Evaluate(logs []*events.LogEvent, _ []*events.MetricsEvent, _ []*events.DiskEvent) bool {
	cutoff := time.Now().Add(-r.window)

	count := 0
	for _, event := range logs {
		if event.Timestamp.Before(cutoff) {
			continue
		}
		if event.MessageType == events.MessageTypeError || event.MessageType == events.MessageTypeFault {
			count++
		}
	}
	return count > r.threshold
}

func (r *ErrorFrequencyRule) Name() string              { return "ErrorFrequencyRule" }
func (r *ErrorFrequencyRule) Severity() events.Severity { return r.severity }

// MemoryPressureRule fires when any metrics sample in the window reports
// memory pressure at or above the threshold level.
type MemoryPressureRule struct {
	threshold events.MemoryPressure
	severity  events.Severity
}

func NewMemoryPressureRule(threshold events.MemoryPressure, severity events.Severity) *MemoryPressureRule {
	return &MemoryPressureRule{
		threshold: threshold,
		severity:  severity,
	}
}

func (r *MemoryPressureRule) Evaluate(_ []*events.LogEvent, metrics []*events.MetricsEvent, _ []*events.DiskEvent) bool {
	for _, event := range metrics {
		if event.MemoryPressure.AtLeast(r.threshold) {
			return true
		}
	}
	return false
}

func (r *MemoryPressureRule) Name() string              { return "MemoryPressureRule" }
func (r *MemoryPressureRule) Severity() events.Severity { return r.severity }

// CrashDetectionRule fires when an error or fault log message contains one
// of the configured keywords, case-insensitive.
type CrashDetectionRule struct {
	keywords []string
	severity events.Severity
}

func NewCrashDetectionRule(keywords []string, severity events.Severity) *CrashDetectionRule {
	lowered := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" {
			lowered = append(lowered, keyword)
		}
	}
	return &CrashDetectionRule{
		keywords: lowered,
		severity: severity,
	}
}

func (r *CrashDetectionRule) Evaluate(logs []*events.LogEvent, _ []*events.MetricsEvent, _ []*events.DiskEvent) bool {
	for _, event := range logs {
		if event.MessageType != events.MessageTypeError && event.MessageType != events.MessageTypeFault {
			continue
		}
		message := strings.ToLower(event.Message)
		for _, keyword := range r.keywords {
			if strings.Contains(message, keyword) {
				return true
			}
		}
	}
	return false
}

func (r *CrashDetectionRule) Name() string              { return "CrashDetectionRule" }
func (r *CrashDetectionRule) Severity() events.Severity { return r.severity }

// ResourceSpikeRule fires when power draw jumps sharply within the
// comparison window. A spike is measured against the running minimum seen
// so far in chronological order, so only increases count; a drop followed
// by a return to the previous level still reads as a spike from the low
// point.
type ResourceSpikeRule struct {
	cpuThresholdMW float64
	gpuThresholdMW float64
	window         time.Duration
	severity       events.Severity
}

func NewResourceSpikeRule(cpuThresholdMW, gpuThresholdMW float64, window time.Duration, severity events.Severity) *ResourceSpikeRule {
	return &ResourceSpikeRule{
		cpuThresholdMW: cpuThresholdMW,
		gpuThresholdMW: gpuThresholdMW,
		window:         window,
		severity:       severity,
	}
}

func (r *ResourceSpikeRule) Evaluate(_ []*events.LogEvent, metrics []*events.MetricsEvent, _ []*events.DiskEvent) bool {
	if len(metrics) < 2 {
		return false
	}

	cutoff := time.Now().Add(-r.window)
	recent := make([]*events.MetricsEvent, 0, len(metrics))
	for _, event := range metrics {
		if !event.Timestamp.Before(cutoff) {
			recent = append(recent, event)
		}
	}
	if len(recent) < 2 {
		return false
	}

	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Timestamp.Before(recent[j].Timestamp)
	})

	var maxCPUSpike, maxGPUSpike float64

	cpuMin := recent[0].CPUPowerMW
	gpuMin := 0.0
	gpuMinKnown := false
	if recent[0].GPUPowerMW != nil {
		gpuMin = *recent[0].GPUPowerMW
		gpuMinKnown = true
	}

	for _, event := range recent[1:] {
		if spike := event.CPUPowerMW - cpuMin; spike > maxCPUSpike {
			maxCPUSpike = spike
		}
		if event.CPUPowerMW < cpuMin {
			cpuMin = event.CPUPowerMW
		}

		if event.GPUPowerMW == nil {
			continue
		}
		gpu := *event.GPUPowerMW
		if gpuMinKnown {
			if spike := gpu - gpuMin; spike > maxGPUSpike {
				maxGPUSpike = spike
			}
			if gpu < gpuMin {
				gpuMin = gpu
			}
		} else {
			// First reading after a gap of missing GPU data.
			gpuMin = gpu
			gpuMinKnown = true
		}
	}

	return maxCPUSpike >= r.cpuThresholdMW || maxGPUSpike >= r.gpuThresholdMW
}

func (r *ResourceSpikeRule) Name() string              { return "ResourceSpikeRule" }
func (r *ResourceSpikeRule) Severity() events.Severity { return r.severity }
