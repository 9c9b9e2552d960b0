package monitoring

import (
	"os"

	"github.com/core-tools/macos-observer/pkg/logging"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	// hostMemoryPressurePercent is the host-wide used-memory share above
	// which collectors should back off
	hostMemoryPressurePercent = 90.0

	// selfRSSPressureBytes is the observer's own footprint above which it
	// should stop making things worse
	selfRSSPressureBytes = 500 * 1024 * 1024
)

// PressureMonitor answers whether the host (or the observer itself) is
// under memory pressure. Collectors poll it once per supervision iteration
// to throttle their sampling intervals.
type PressureMonitor struct {
	logger logging.Logger
	proc   *process.Process
}

func NewPressureMonitor(logger logging.Logger) *PressureMonitor {
	// a process handle for our own PID cannot fail in practice; a nil
	// handle just disables the self-RSS check
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warnf("Cannot inspect own process, self memory checks disabled: %v", err)
		proc = nil
	}
	return &PressureMonitor{
		logger: logger,
		proc:   proc,
	}
}

// UnderResourcePressure reports whether sampling should be throttled.
// Errors from the stats layer are treated as "no pressure" so a broken
// oracle can never starve collection.
func (p *PressureMonitor) UnderResourcePressure() bool {
	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		if vm.UsedPercent > hostMemoryPressurePercent {
			p.logger.Debugf("Host memory pressure: %.1f%% used", vm.UsedPercent)
			return true
		}
	}

	if p.proc != nil {
		if info, err := p.proc.MemoryInfo(); err == nil && info != nil {
			if info.RSS > selfRSSPressureBytes {
				p.logger.Debugf("Observer memory pressure: RSS %dMB", info.RSS/1024/1024)
				return true
			}
		}
	}

	return false
}
