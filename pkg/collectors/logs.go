package collectors

import (
	"context"
	"io"
	"os"
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

// logPollInterval is deliberately tight: the system log stream is the
// highest-volume source
const logPollInterval = 10 * time.Millisecond

// LogConfig configures the system log collector
type LogConfig struct {
	// Predicate filters the log stream, e.g. `eventType == logEvent`
	Predicate string        `yaml:"predicate"`
	Interval  time.Duration `yaml:"interval"`
}

// LogCollector streams the unified system log as structured JSON via the
// `log stream` tool
type LogCollector struct {
	*supervisor.Supervisor
}

func NewLogCollector(config LogConfig, eventCh chan<- events.Event, consumerDone <-chan struct{}, pressure supervisor.PressureOracle, logger logging.Logger) (*LogCollector, error) {
	if config.Predicate == "" {
		return nil, errors.NewValidationError("log predicate is required", nil)
	}
	if config.Interval <= 0 {
		return nil, errors.NewValidationError("log interval must be positive", nil)
	}

	command := logStreamCommand(config.Predicate)

	spawn := func(ctx context.Context, interval time.Duration) (*os.Process, io.ReadCloser, error) {
		// the log stream tool runs continuously and takes no rate argument;
		// the interval only drives pressure adaptation bookkeeping
		return process.Execute(ctx, command, logger)
	}

	sup, err := supervisor.New(supervisor.Options{
		Name:         "log",
		Spawn:        spawn,
		Probe:        spawnAndKillProbe(command, logger),
		Framer:       framing.NewLineFramer(),
		Translator:   translate.NewLogTranslator(),
		Events:       eventCh,
		ConsumerDone: consumerDone,
		Sampler:      sampling.NewController(config.Interval),
		Pressure:     pressure,
		PollInterval: logPollInterval,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	return &LogCollector{Supervisor: sup}, nil
}

func logStreamCommand(predicate string) process.Command {
	return process.Command{
		Path: "log",
		Args: []string{"stream", "--predicate", predicate, "--style", "json"},
	}
}
