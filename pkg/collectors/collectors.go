package collectors

import (
	"context"
	"time"

	"github.com/core-tools/macos-observer/pkg/logging"
	"github.com/core-tools/macos-observer/pkg/process"
	"github.com/core-tools/macos-observer/pkg/supervisor"
)

// Collector is the lifecycle surface shared by the log, metrics and disk
// collectors
type Collector interface {
	Name() string
	Start() error
	Stop() error
	IsRunning() bool
	Status() supervisor.Status
}

// spawnAndKillProbe builds an availability probe for tools that stream
// forever: spawn the real command, then immediately kill and reap it. A
// tool that cannot even be spawned fails the probe.
func spawnAndKillProbe(command process.Command, logger logging.Logger) supervisor.ProbeFunc {
	return func(ctx context.Context) error {
		proc, stdout, err := process.Execute(ctx, command, logger)
		if err != nil {
			return err
		}
		stdout.Close()
		if proc != nil {
			process.Kill(proc)
			proc.Wait()
		}
		return nil
	}
}

// intervalSeconds converts a sampling interval to the whole-second argument
// the disk tools expect, never below one second
func intervalSeconds(interval time.Duration) int {
	secs := int(interval.Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}
