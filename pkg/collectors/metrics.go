package collectors

import (
	"context"
	"io"
	"os"
	"strconv"
	"sync"
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

const metricsPollInterval = 100 * time.Millisecond

// MetricsConfig configures the power and memory metrics collector
type MetricsConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// MetricsCollector samples CPU/GPU power and memory pressure. It prefers
// powermetrics (plist output, needs passwordless sudo) and degrades to a
// vm_stat shell loop (JSON lines, memory data only) when that is not
// available. The mode is decided by the availability probe on each Start.
type MetricsCollector struct {
	*supervisor.Supervisor

	logger logging.Logger

	mu       sync.Mutex
	fallback bool
}

func NewMetricsCollector(config MetricsConfig, eventCh chan<- events.Event, consumerDone <-chan struct{}, pressure supervisor.PressureOracle, logger logging.Logger) (*MetricsCollector, error) {
	if config.Interval <= 0 {
		return nil, errors.NewValidationError("metrics interval must be positive", nil)
	}

	c := &MetricsCollector{logger: logger}

	sup, err := supervisor.New(supervisor.Options{
		Name:  "metrics",
		Spawn: c.spawn,
		Probe: c.probe,
		Framer: &metricsFramer{
			collector: c,
			plist:     framing.NewPlistFramer(),
			line:      framing.NewLineFramer(),
		},
		Translator:   translate.NewMetricsTranslator(),
		Events:       eventCh,
		ConsumerDone: consumerDone,
		Sampler:      sampling.NewController(config.Interval),
		Pressure:     pressure,
		PollInterval: metricsPollInterval,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	c.Supervisor = sup
	return c, nil
}

// UsingFallback reports whether the collector is sampling via the vm_stat
// fallback instead of powermetrics
func (c *MetricsCollector) UsingFallback() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fallback
}

func (c *MetricsCollector) setFallback(fallback bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallback = fallback
}

// probe decides the sampling mode. powermetrics must run under
// non-interactive sudo; failing that, vm_stat or top must be present for
// the degraded mode.
func (c *MetricsCollector) probe(ctx context.Context) error {
	powerErr := process.RunCheck(ctx, powermetricsProbeCommand())
	if powerErr == nil {
		c.setFallback(false)
		return nil
	}
	c.logger.Warnf("powermetrics requires password or is not available, using vm_stat fallback: %v", powerErr)

	if err := process.RunCheck(ctx, process.Command{Path: "vm_stat"}); err == nil {
		c.setFallback(true)
		return nil
	}
	if err := process.RunCheck(ctx, process.Command{Path: "top", Args: []string{"-l", "1", "-n", "0"}}); err == nil {
		c.setFallback(true)
		return nil
	}

	return errors.NewSpawnError("no metrics source available", powerErr)
}

func (c *MetricsCollector) spawn(ctx context.Context, interval time.Duration) (*os.Process, io.ReadCloser, error) {
	if c.UsingFallback() {
		return process.Execute(ctx, fallbackCommand(interval), c.logger)
	}
	return process.Execute(ctx, powermetricsCommand(interval), c.logger)
}

// metricsFramer delegates to plist or line framing depending on the
// sampling mode. The mode is fixed before the worker spawns, so a stream
// is always framed consistently end to end.
type metricsFramer struct {
	collector *MetricsCollector
	plist     framing.Framer
	line      framing.Framer
}

func (f *metricsFramer) Feed(buffer *framing.Buffer, chunk []byte) [][]byte {
	if f.collector.UsingFallback() {
		return f.line.Feed(buffer, chunk)
	}
	return f.plist.Feed(buffer, chunk)
}

func powermetricsCommand(interval time.Duration) process.Command {
	return process.Command{
		Path: "sudo",
		Args: []string{
			"-n",
			"powermetrics",
			"--samplers", "cpu_power,gpu_power,tasks",
			"--format", "plist",
			"--sample-rate", strconv.FormatInt(interval.Milliseconds(), 10),
		},
	}
}

func powermetricsProbeCommand() process.Command {
	return process.Command{
		Path: "sudo",
		Args: []string{"-n", "powermetrics", "--help"},
	}
}

// fallbackScript loops vm_stat, classifies memory pressure from free pages
// (4KB each: <100000 critical, <500000 warning) and prints one JSON sample
// per interval. Power figures are zero; vm_stat cannot measure them.
const fallbackScript = `
while true; do
    FREE_PAGES=$(vm_stat | grep 'Pages free:' | awk '{print $3}' | tr -d '.')
    if [ "$FREE_PAGES" -lt 100000 ]; then
        PRESSURE="Critical"
    elif [ "$FREE_PAGES" -lt 500000 ]; then
        PRESSURE="Warning"
    else
        PRESSURE="Normal"
    fi

    printf '{"timestamp": "%s", "cpu_power_mw": 0.0, "gpu_power_mw": null, "memory_pressure": "%s"}\n' "$(date -u +%Y-%m-%dT%H:%M:%SZ)" "$PRESSURE"
    sleep "$1"
done
`

func fallbackCommand(interval time.Duration) process.Command {
	return process.Command{
		Path: "sh",
		Args: []string{"-c", fallbackScript, "metrics-fallback", strconv.Itoa(intervalSeconds(interval))},
	}
}
