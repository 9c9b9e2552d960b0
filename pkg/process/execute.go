package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/core-tools/macos-observer/pkg/errors"
	"github.com/core-tools/macos-observer/pkg/logging"
)

// Command describes one external tool invocation. Path may be a bare name
// resolved through PATH or an absolute path.
type Command struct {
	Path string   `yaml:"path"`
	Args []string `yaml:"args,omitempty"`
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Path
	}
	return c.Path + " " + strings.Join(c.Args, " ")
}

// Execute spawns the command in its own process group and returns the
// process together with its combined stdout+stderr stream. The caller owns
// the process: it must kill and reap it, and close the stream.
func Execute(ctx context.Context, command Command, logger logging.Logger) (*os.Process, io.ReadCloser, error) {
	if ctx == nil {
		return nil, nil, errors.NewValidationError("context cannot be nil", nil)
	}
	if err := ValidateCommand(command); err != nil {
		return nil, nil, err
	}

	path, err := exec.LookPath(command.Path)
	if err != nil {
		return nil, nil, errors.NewSpawnError(fmt.Sprintf("executable '%s' not found", command.Path), err)
	}

	cmd := exec.CommandContext(ctx, path, command.Args...)

	// Platform-specific setup is handled in execute_unix.go or execute_windows.go
	setupProcessAttributes(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, errors.NewSpawnError("failed to create stdout pipe", err).WithContext("command", command.String())
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return nil, nil, errors.NewSpawnError("failed to start process", err).WithContext("command", command.String())
	}

	logger.Debugf("Spawned process, command: '%s', PID: %d", command.String(), cmd.Process.Pid)

	return cmd.Process, stdout, nil
}

// RunCheck runs the command to completion, the way availability probes test
// a tool before committing to it. A start failure or a non-zero exit is a
// spawn error carrying a sample of the tool's output.
func RunCheck(ctx context.Context, command Command) error {
	if ctx == nil {
		return errors.NewValidationError("context cannot be nil", nil)
	}
	if err := ValidateCommand(command); err != nil {
		return err
	}

	path, err := exec.LookPath(command.Path)
	if err != nil {
		return errors.NewSpawnError(fmt.Sprintf("executable '%s' not found", command.Path), err)
	}

	cmd := exec.CommandContext(ctx, path, command.Args...)
	setupProcessAttributes(cmd)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.NewSpawnError(fmt.Sprintf("'%s' is not usable", command.String()), err).
			WithContext("output", firstOutputLine(output))
	}
	return nil
}

func firstOutputLine(output []byte) string {
	s := strings.TrimSpace(string(output))
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
