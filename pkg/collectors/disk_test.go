package collectors

import (
	"testing"
	"time"

	"github.com/core-tools/macos-observer/pkg/errors"
	"github.com/core-tools/macos-observer/pkg/events"
	"github.com/core-tools/macos-observer/pkg/supervisor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIostatCommand(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		expected []string
	}{
		{"five_seconds", 5 * time.Second, []string{"-d", "-c", "5", "5"}},
		{"sub_second_rounds_up", 500 * time.Millisecond, []string{"-d", "-c", "1", "1"}},
		{"truncates_to_seconds", 2500 * time.Millisecond, []string{"-d", "-c", "2", "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			command := iostatCommand(tt.interval)
			assert.Equal(t, "iostat", command.Path)
			assert.Equal(t, tt.expected, command.Args)
		})
	}
}

func TestFSUsageCommand(t *testing.T) {
	command := fsUsageCommand(5 * time.Second)

	assert.Equal(t, "sudo", command.Path)
	assert.Equal(t, []string{"-n", "fs_usage", "-w", "-f", "filesystem", "5"}, command.Args)
}

func TestDiskProbeCommands(t *testing.T) {
	probe := iostatProbeCommand()
	assert.Equal(t, "iostat", probe.Path)
	assert.Equal(t, []string{"-d", "-c", "1"}, probe.Args)

	fsProbe := fsUsageProbeCommand()
	assert.Equal(t, "sudo", fsProbe.Path)
	assert.Equal(t, []string{"-n", "fs_usage", "-h"}, fsProbe.Args)
}

func TestNewDiskCollectorValidation(t *testing.T) {
	eventCh := make(chan events.Event, 1)

	_, err := NewDiskCollector(DiskConfig{Interval: 0}, eventCh, nil, nil, collectorTestLogger())
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestNewDiskCollector(t *testing.T) {
	eventCh := make(chan events.Event, 1)

	collector, err := NewDiskCollector(DiskConfig{Interval: 5 * time.Second}, eventCh, nil, nil, collectorTestLogger())
	require.NoError(t, err)

	assert.Equal(t, "disk", collector.Name())
	assert.False(t, collector.IsRunning())
	assert.Equal(t, supervisor.StateStopped, collector.Status().State)
	assert.Equal(t, supervisor.StateStopped, collector.SecondaryStatus().State)

	// stop before start is a no-op for both supervisors
	assert.NoError(t, collector.Stop())
}

func TestNewDiskCollectorWithoutFSUsage(t *testing.T) {
	eventCh := make(chan events.Event, 1)
	disabled := false

	collector, err := NewDiskCollector(DiskConfig{
		Interval:       5 * time.Second,
		FSUsageEnabled: &disabled,
	}, eventCh, nil, nil, collectorTestLogger())
	require.NoError(t, err)

	assert.Nil(t, collector.secondary)
	assert.Equal(t, supervisor.StateStopped, collector.SecondaryStatus().State)
	assert.NoError(t, collector.Stop())
}
