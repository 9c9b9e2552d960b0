//go:build !windows

package process

import (
	"os"
	"syscall"
)

// Kill forcibly terminates the process group on Unix systems. Signalling the
// group (negative PID) takes down the entire tree, including tools that sudo
// spawned on our behalf. Falls back to killing the single process if the
// group signal fails.
func Kill(proc *os.Process) error {
	if err := syscall.Kill(-proc.Pid, syscall.SIGKILL); err != nil {
		return proc.Kill()
	}
	return nil
}
