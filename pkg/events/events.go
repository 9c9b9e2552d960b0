package events

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies the source family of a system event
type Kind string

const (
	KindLog     Kind = "log"
	KindMetrics Kind = "metrics"
	KindDisk    Kind = "disk"
)

// Event is the union of everything the collectors emit.
// Consumers switch on Kind() or type-assert to the concrete event.
type Event interface {
	Kind() Kind
	Time() time.Time
}

// MessageType is the severity class of a unified log entry
type MessageType string

const (
	MessageTypeError MessageType = "error"
	MessageTypeFault MessageType = "fault"
	MessageTypeInfo  MessageType = "info"
	MessageTypeDebug MessageType = "debug"
)

// ParseMessageType maps the messageType field of `log stream --style json`
// output onto a MessageType. Unknown values are an error, not a default.
func ParseMessageType(s string) (MessageType, error) {
	switch strings.ToLower(s) {
	case "error":
		return MessageTypeError, nil
	case "fault":
		return MessageTypeFault, nil
	case "info":
		return MessageTypeInfo, nil
	case "debug":
		return MessageTypeDebug, nil
	default:
		return "", fmt.Errorf("unknown message type: %s", s)
	}
}

// LogEvent is a single entry from the macOS Unified Log System
type LogEvent struct {
	Timestamp   time.Time   `json:"timestamp"`
	MessageType MessageType `json:"message_type"`
	Subsystem   string      `json:"subsystem"`
	Category    string      `json:"category"`
	Process     string      `json:"process"`
	ProcessID   uint32      `json:"process_id"`
	Message     string      `json:"message"`
}

func (e *LogEvent) Kind() Kind      { return KindLog }
func (e *LogEvent) Time() time.Time { return e.Timestamp }

// MemoryPressure is the macOS memory pressure level
type MemoryPressure string

const (
	MemoryPressureNormal   MemoryPressure = "Normal"
	MemoryPressureWarning  MemoryPressure = "Warning"
	MemoryPressureCritical MemoryPressure = "Critical"
)

// ParseMemoryPressure maps a pressure string (any casing) onto a level.
// Unknown values fall back to Normal; sources that report pressure at all
// report one of the three levels.
func ParseMemoryPressure(s string) MemoryPressure {
	switch strings.ToLower(s) {
	case "critical":
		return MemoryPressureCritical
	case "warning":
		return MemoryPressureWarning
	default:
		return MemoryPressureNormal
	}
}

// PressureFromFreeMB derives a pressure level from free memory when the
// source does not report one directly.
func PressureFromFreeMB(freeMB float64) MemoryPressure {
	switch {
	case freeMB < 500.0:
		return MemoryPressureCritical
	case freeMB < 2000.0:
		return MemoryPressureWarning
	default:
		return MemoryPressureNormal
	}
}

func (p MemoryPressure) rank() int {
	switch p {
	case MemoryPressureCritical:
		return 2
	case MemoryPressureWarning:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether p is at or above the given pressure level
func (p MemoryPressure) AtLeast(other MemoryPressure) bool {
	return p.rank() >= other.rank()
}

// MetricsEvent is a point-in-time resource snapshot, typically parsed from
// powermetrics plist output
type MetricsEvent struct {
	Timestamp       time.Time      `json:"timestamp"`
	CPUPowerMW      float64        `json:"cpu_power_mw"`
	CPUUsagePercent float64        `json:"cpu_usage_percent"`
	GPUPowerMW      *float64       `json:"gpu_power_mw"`
	GPUUsagePercent *float64       `json:"gpu_usage_percent"`
	MemoryPressure  MemoryPressure `json:"memory_pressure"`
	MemoryUsedMB    float64        `json:"memory_used_mb"`
	EnergyImpact    float64        `json:"energy_impact"`
}

func (e *MetricsEvent) Kind() Kind      { return KindMetrics }
func (e *MetricsEvent) Time() time.Time { return e.Timestamp }

// DiskEvent is a disk I/O activity sample parsed from iostat output
type DiskEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	ReadKBPerSec   float64   `json:"read_kb_per_sec"`
	WriteKBPerSec  float64   `json:"write_kb_per_sec"`
	ReadOpsPerSec  float64   `json:"read_ops_per_sec"`
	WriteOpsPerSec float64   `json:"write_ops_per_sec"`
	DiskName       string    `json:"disk_name"`
	FilesystemPath *string   `json:"filesystem_path"`
}

func (e *DiskEvent) Kind() Kind      { return KindDisk }
func (e *DiskEvent) Time() time.Time { return e.Timestamp }

// Severity classifies insights and alerts
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ParseSeverity maps a severity string onto a level; unknown values are info
func ParseSeverity(s string) Severity {
	switch strings.ToLower(s) {
	case "critical":
		return SeverityCritical
	case "warning":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is at or above the given severity
func (s Severity) AtLeast(other Severity) bool {
	return s.rank() >= other.rank()
}
