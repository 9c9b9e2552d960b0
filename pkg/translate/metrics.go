package translate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/core-tools/macos-observer/pkg/errors"
	"github.com/core-tools/macos-observer/pkg/events"

	"howett.net/plist"
)

type metricsTranslator struct{}

// NewMetricsTranslator creates the translator for resource metric records.
// powermetrics emits XML property lists; the vm_stat fallback script emits
// single-line JSON objects. Both arrive on the same stream, so the record
// shape picks the decoder.
func NewMetricsTranslator() Translator {
	return &metricsTranslator{}
}

func (t *metricsTranslator) Translate(record []byte) (events.Event, error) {
	trimmed := bytes.TrimSpace(record)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '<' {
		return translateMetricsPlist(trimmed)
	}
	return translateMetricsJSON(trimmed)
}

func translateMetricsPlist(doc []byte) (events.Event, error) {
	var root map[string]interface{}
	if _, err := plist.Unmarshal(doc, &root); err != nil {
		return nil, errors.NewParseError("malformed powermetrics plist", err)
	}

	processor, ok := root["processor"].(map[string]interface{})
	if !ok {
		return nil, errors.NewParseError("plist missing processor section", nil)
	}

	cpuPowerMW, ok := plistFloat(processor["cpu_power"])
	if !ok {
		return nil, errors.NewParseError("plist missing processor.cpu_power", nil)
	}

	cpuUsage, ok := plistFloat(processor["cpu_usage"])
	if !ok {
		// rough estimate from power draw: 1000-5000mW spans a typical
		// laptop's 0-100% range
		cpuUsage = clamp(cpuPowerMW/50.0, 0.0, 100.0)
	}

	var gpuPowerMW, gpuUsage *float64
	if gpu, ok := root["gpu"].(map[string]interface{}); ok {
		if power, ok := plistFloat(gpu["gpu_power"]); ok {
			gpuPowerMW = &power
		}
		if usage, ok := plistFloat(gpu["gpu_usage"]); ok {
			gpuUsage = &usage
		} else if gpuPowerMW != nil {
			estimated := clamp(*gpuPowerMW/100.0, 0.0, 100.0)
			gpuUsage = &estimated
		}
	}

	pressure := events.MemoryPressureNormal
	memoryUsedMB := 0.0
	if memory, ok := root["memory"].(map[string]interface{}); ok {
		if s, ok := memory["memory_pressure"].(string); ok {
			pressure = events.ParseMemoryPressure(s)
		} else if freeMB, ok := plistFloat(memory["free_memory_mb"]); ok {
			pressure = events.PressureFromFreeMB(freeMB)
		}

		if used, ok := plistFloat(memory["used_memory_mb"]); ok {
			memoryUsedMB = used
		} else {
			total, okTotal := plistFloat(memory["total_memory_mb"])
			free, okFree := plistFloat(memory["free_memory_mb"])
			if okTotal && okFree {
				memoryUsedMB = total - free
			}
		}
	}

	energy := cpuPowerMW
	if gpuPowerMW != nil {
		energy += *gpuPowerMW
	}

	return &events.MetricsEvent{
		Timestamp:       time.Now().UTC(),
		CPUPowerMW:      cpuPowerMW,
		CPUUsagePercent: cpuUsage,
		GPUPowerMW:      gpuPowerMW,
		GPUUsagePercent: gpuUsage,
		MemoryPressure:  pressure,
		MemoryUsedMB:    memoryUsedMB,
		EnergyImpact:    energy,
	}, nil
}

// rawMetricsEntry mirrors the JSON lines of the vm_stat fallback script
type rawMetricsEntry struct {
	Timestamp       string   `json:"timestamp"`
	CPUPowerMW      *float64 `json:"cpu_power_mw"`
	CPUUsagePercent float64  `json:"cpu_usage_percent"`
	GPUPowerMW      *float64 `json:"gpu_power_mw"`
	GPUUsagePercent *float64 `json:"gpu_usage_percent"`
	MemoryPressure  string   `json:"memory_pressure"`
	MemoryUsedMB    float64  `json:"memory_used_mb"`
	EnergyImpact    float64  `json:"energy_impact"`
}

func translateMetricsJSON(line []byte) (events.Event, error) {
	var raw rawMetricsEntry
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, errors.NewParseError("malformed metrics record", err)
	}
	if raw.CPUPowerMW == nil {
		return nil, errors.NewParseError("metrics record missing cpu_power_mw", nil)
	}

	pressure := events.MemoryPressureNormal
	if raw.MemoryPressure != "" {
		switch strings.ToLower(raw.MemoryPressure) {
		case "normal":
			pressure = events.MemoryPressureNormal
		case "warning":
			pressure = events.MemoryPressureWarning
		case "critical":
			pressure = events.MemoryPressureCritical
		default:
			return nil, errors.NewParseError(fmt.Sprintf("unknown memory pressure '%s'", raw.MemoryPressure), nil)
		}
	}

	// the fallback script's timestamp is best-effort; an unparseable or
	// missing one degrades to the receive time rather than dropping the
	// sample
	timestamp := time.Now().UTC()
	if raw.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, raw.Timestamp); err == nil {
			timestamp = parsed.UTC()
		}
	}

	energy := raw.EnergyImpact
	if energy <= 0 {
		energy = *raw.CPUPowerMW
		if raw.GPUPowerMW != nil {
			energy += *raw.GPUPowerMW
		}
	}

	return &events.MetricsEvent{
		Timestamp:       timestamp,
		CPUPowerMW:      *raw.CPUPowerMW,
		CPUUsagePercent: raw.CPUUsagePercent,
		GPUPowerMW:      raw.GPUPowerMW,
		GPUUsagePercent: raw.GPUUsagePercent,
		MemoryPressure:  pressure,
		MemoryUsedMB:    raw.MemoryUsedMB,
		EnergyImpact:    energy,
	}, nil
}

func plistFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
