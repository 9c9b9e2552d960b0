package translate

import (
	"testing"
	"time"

	"github.com/core-tools/macos-observer/pkg/errors"
	"github.com/core-tools/macos-observer/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePowermetricsPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>processor</key>
	<dict>
		<key>cpu_power</key>
		<real>1500.0</real>
	</dict>
	<key>gpu</key>
	<dict>
		<key>gpu_power</key>
		<real>450.0</real>
	</dict>
	<key>memory</key>
	<dict>
		<key>memory_pressure</key>
		<string>Warning</string>
		<key>used_memory_mb</key>
		<real>8192.0</real>
	</dict>
</dict>
</plist>`

func TestMetricsTranslatorPlist(t *testing.T) {
	event, err := NewMetricsTranslator().Translate([]byte(samplePowermetricsPlist))
	require.NoError(t, err)

	metrics, ok := event.(*events.MetricsEvent)
	require.True(t, ok)
	assert.Equal(t, 1500.0, metrics.CPUPowerMW)
	assert.Equal(t, 30.0, metrics.CPUUsagePercent, "usage estimated from power when absent")
	require.NotNil(t, metrics.GPUPowerMW)
	assert.Equal(t, 450.0, *metrics.GPUPowerMW)
	require.NotNil(t, metrics.GPUUsagePercent)
	assert.Equal(t, 4.5, *metrics.GPUUsagePercent, "gpu usage estimated from power when absent")
	assert.Equal(t, events.MemoryPressureWarning, metrics.MemoryPressure)
	assert.Equal(t, 8192.0, metrics.MemoryUsedMB)
	assert.Equal(t, 1950.0, metrics.EnergyImpact, "energy impact is cpu plus gpu power")
}

func TestMetricsTranslatorPlistMinimal(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
	<key>processor</key>
	<dict>
		<key>cpu_power</key>
		<real>800.0</real>
	</dict>
</dict>
</plist>`

	event, err := NewMetricsTranslator().Translate([]byte(doc))
	require.NoError(t, err)

	metrics := event.(*events.MetricsEvent)
	assert.Equal(t, 800.0, metrics.CPUPowerMW)
	assert.Nil(t, metrics.GPUPowerMW)
	assert.Nil(t, metrics.GPUUsagePercent)
	assert.Equal(t, events.MemoryPressureNormal, metrics.MemoryPressure, "no memory section defaults to normal")
	assert.Equal(t, 0.0, metrics.MemoryUsedMB)
	assert.Equal(t, 800.0, metrics.EnergyImpact)
}

func TestMetricsTranslatorPlistDerivedMemory(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
	<key>processor</key>
	<dict>
		<key>cpu_power</key>
		<real>100.0</real>
	</dict>
	<key>memory</key>
	<dict>
		<key>free_memory_mb</key>
		<real>400.0</real>
		<key>total_memory_mb</key>
		<real>16384.0</real>
	</dict>
</dict>
</plist>`

	event, err := NewMetricsTranslator().Translate([]byte(doc))
	require.NoError(t, err)

	metrics := event.(*events.MetricsEvent)
	assert.Equal(t, events.MemoryPressureCritical, metrics.MemoryPressure, "pressure derived from free memory")
	assert.Equal(t, 15984.0, metrics.MemoryUsedMB, "used derived from total minus free")
}

func TestMetricsTranslatorPlistErrors(t *testing.T) {
	tests := []struct {
		name   string
		record string
	}{
		{
			name:   "missing processor section",
			record: `<?xml version="1.0" encoding="UTF-8"?><plist version="1.0"><dict><key>gpu</key><dict/></dict></plist>`,
		},
		{
			name:   "missing cpu_power",
			record: `<?xml version="1.0" encoding="UTF-8"?><plist version="1.0"><dict><key>processor</key><dict><key>other</key><real>1.0</real></dict></dict></plist>`,
		},
		{
			name:   "truncated document",
			record: `<?xml version="1.0" encoding="UTF-8"?><plist version="1.0"><dict>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := NewMetricsTranslator().Translate([]byte(tt.record))
			assert.Nil(t, event)
			require.Error(t, err)
			assert.True(t, errors.IsParseError(err))
		})
	}
}

func TestMetricsTranslatorFallbackJSON(t *testing.T) {
	// shape emitted by the vm_stat fallback script
	record := `{"timestamp": "2024-12-09T18:30:45.123456Z", "cpu_power_mw": 0.0, "gpu_power_mw": null, "memory_pressure": "Warning"}`

	event, err := NewMetricsTranslator().Translate([]byte(record))
	require.NoError(t, err)

	metrics := event.(*events.MetricsEvent)
	assert.Equal(t, 0.0, metrics.CPUPowerMW)
	assert.Nil(t, metrics.GPUPowerMW)
	assert.Equal(t, events.MemoryPressureWarning, metrics.MemoryPressure)
	assert.Equal(t, 0.0, metrics.EnergyImpact)

	expected := time.Date(2024, 12, 9, 18, 30, 45, 123456000, time.UTC)
	assert.True(t, metrics.Timestamp.Equal(expected))
}

func TestMetricsTranslatorFallbackJSONErrors(t *testing.T) {
	tests := []struct {
		name   string
		record string
	}{
		{
			name:   "missing cpu_power_mw",
			record: `{"timestamp": "2024-12-09T18:30:45.123456Z"}`,
		},
		{
			name:   "cpu_power_mw wrong type",
			record: `{"cpu_power_mw": "not_a_number", "gpu_power_mw": null, "memory_pressure": "Normal"}`,
		},
		{
			name:   "unknown memory pressure",
			record: `{"cpu_power_mw": 1234.5, "gpu_power_mw": null, "memory_pressure": "InvalidPressure"}`,
		},
		{
			name:   "numeric timestamp",
			record: `{"timestamp": 12345, "cpu_power_mw": 1234.5, "gpu_power_mw": null, "memory_pressure": "Normal"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := NewMetricsTranslator().Translate([]byte(tt.record))
			assert.Nil(t, event)
			require.Error(t, err)
			assert.True(t, errors.IsParseError(err))
		})
	}
}

func TestMetricsTranslatorUnparseableTimestampDegrades(t *testing.T) {
	// a date(1) without sub-second support emits the format verbatim; the
	// sample must survive with the receive time instead
	record := `{"timestamp": "2024-12-09T18:30:45.%6NZ", "cpu_power_mw": 0.0, "gpu_power_mw": null, "memory_pressure": "Normal"}`

	before := time.Now().UTC()
	event, err := NewMetricsTranslator().Translate([]byte(record))
	require.NoError(t, err)
	after := time.Now().UTC()

	metrics := event.(*events.MetricsEvent)
	assert.False(t, metrics.Timestamp.Before(before))
	assert.False(t, metrics.Timestamp.After(after))
}

func TestMetricsTranslatorEnergyFromParts(t *testing.T) {
	record := `{"cpu_power_mw": 1234.5, "gpu_power_mw": 567.8, "memory_pressure": "Normal"}`

	event, err := NewMetricsTranslator().Translate([]byte(record))
	require.NoError(t, err)

	metrics := event.(*events.MetricsEvent)
	assert.InDelta(t, 1802.3, metrics.EnergyImpact, 0.0001)
}
