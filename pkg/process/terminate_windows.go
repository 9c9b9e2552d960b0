//go:build windows

package process

import (
	"os"
)

// Kill forcibly terminates the process on Windows. Children created with
// CREATE_NEW_PROCESS_GROUP are not signalled as a tree here; the observed
// collector tools do not fork on Windows, so killing the direct child is
// sufficient.
func Kill(proc *os.Process) error {
	return proc.Kill()
}
