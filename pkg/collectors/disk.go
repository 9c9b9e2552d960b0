package collectors

import (
	"context"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/core-tools/macos-observer/pkg/errors"
	"github.com/core-tools/macos-observer/pkg/events"
	"github.com/core-tools/macos-observer/pkg/framing"
	"github.com/core-tools/macos-observer/pkg/logging"
	"github.com/core-tools/macos-observer/pkg/process"
	"github.com/core-tools/macos-observer/pkg/sampling"
	"github.com/core-tools/macos-observer/pkg/supervisor"
	"github.com/core-tools/macos-observer/pkg/translate"
)

const diskPollInterval = 50 * time.Millisecond

// DiskConfig configures the disk I/O collector
type DiskConfig struct {
	Interval time.Duration `yaml:"interval"`
	// FSUsageEnabled toggles the best-effort fs_usage watcher.
	// Pointer to distinguish unset (enabled) from false.
	FSUsageEnabled *bool `yaml:"fs_usage_enabled,omitempty"`
}

// DiskCollector samples per-device I/O rates via iostat. A secondary
// best-effort fs_usage watcher surfaces filesystem-level activity when
// passwordless sudo permits it; its absence never affects the primary
// supervisor.
type DiskCollector struct {
	primary   *supervisor.Supervisor
	secondary *supervisor.Supervisor
	logger    logging.Logger
}

func NewDiskCollector(config DiskConfig, eventCh chan<- events.Event, consumerDone <-chan struct{}, pressure supervisor.PressureOracle, logger logging.Logger) (*DiskCollector, error) {
	if config.Interval <= 0 {
		return nil, errors.NewValidationError("disk interval must be positive", nil)
	}

	primary, err := supervisor.New(supervisor.Options{
		Name: "disk",
		Spawn: func(ctx context.Context, interval time.Duration) (*os.Process, io.ReadCloser, error) {
			return process.Execute(ctx, iostatCommand(interval), logger)
		},
		Probe: func(ctx context.Context) error {
			return process.RunCheck(ctx, iostatProbeCommand())
		},
		Framer:       framing.NewLineFramer(),
		Translator:   translate.NewDiskTranslator(),
		Events:       eventCh,
		ConsumerDone: consumerDone,
		Sampler:      sampling.NewController(config.Interval),
		Pressure:     pressure,
		PollInterval: diskPollInterval,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	// The secondary watcher keeps its own sampler and skips pressure
	// adaptation so the two supervisors never fight over one interval.
	var secondary *supervisor.Supervisor
	if config.FSUsageEnabled == nil || *config.FSUsageEnabled {
		secondary, err = supervisor.New(supervisor.Options{
			Name: "fs_usage",
			Spawn: func(ctx context.Context, interval time.Duration) (*os.Process, io.ReadCloser, error) {
				return process.Execute(ctx, fsUsageCommand(interval), logger)
			},
			Probe: func(ctx context.Context) error {
				return process.RunCheck(ctx, fsUsageProbeCommand())
			},
			Framer:       framing.NewLineFramer(),
			Translator:   translate.NewFSUsageTranslator(),
			Events:       eventCh,
			ConsumerDone: consumerDone,
			Sampler:      sampling.NewController(config.Interval),
			PollInterval: diskPollInterval,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
	}

	return &DiskCollector{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}, nil
}

func (c *DiskCollector) Name() string {
	return c.primary.Name()
}

// Start launches the iostat supervisor and then, best-effort, the fs_usage
// watcher. A failed fs_usage probe only logs a warning.
func (c *DiskCollector) Start() error {
	if err := c.primary.Start(); err != nil {
		return err
	}

	if c.secondary != nil {
		if err := c.secondary.Start(); err != nil {
			c.logger.Warnf("fs_usage requires password or is not available, will use iostat only: %v", err)
		}
	}

	return nil
}

func (c *DiskCollector) Stop() error {
	collection := errors.NewErrorCollection()
	if c.secondary != nil {
		collection.Add(c.secondary.Stop())
	}
	collection.Add(c.primary.Stop())
	return collection.ToError()
}

func (c *DiskCollector) IsRunning() bool {
	return c.primary.IsRunning()
}

// Status reports the primary iostat supervisor
func (c *DiskCollector) Status() supervisor.Status {
	return c.primary.Status()
}

// SecondaryStatus reports the best-effort fs_usage supervisor, or a stopped
// status when the watcher is disabled
func (c *DiskCollector) SecondaryStatus() supervisor.Status {
	if c.secondary == nil {
		return supervisor.Status{State: supervisor.StateStopped}
	}
	return c.secondary.Status()
}

func iostatCommand(interval time.Duration) process.Command {
	secs := strconv.Itoa(intervalSeconds(interval))
	return process.Command{
		Path: "iostat",
		Args: []string{"-d", "-c", secs, secs},
	}
}

func iostatProbeCommand() process.Command {
	return process.Command{
		Path: "iostat",
		Args: []string{"-d", "-c", "1"},
	}
}

func fsUsageCommand(interval time.Duration) process.Command {
	return process.Command{
		Path: "sudo",
		Args: []string{
			"-n",
			"fs_usage",
			"-w",
			"-f", "filesystem",
			strconv.Itoa(intervalSeconds(interval)),
		},
	}
}

func fsUsageProbeCommand() process.Command {
	return process.Command{
		Path: "sudo",
		Args: []string{"-n", "fs_usage", "-h"},
	}
}
