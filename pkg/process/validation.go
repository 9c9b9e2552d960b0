package process

import (
	"strings"

	"github.com/core-tools/macos-observer/pkg/errors"
)

// ValidateCommand validates a tool invocation before it is passed to the OS
func ValidateCommand(command Command) error {
	if command.Path == "" {
		return errors.NewValidationError("command path is required", nil)
	}

	if strings.TrimSpace(command.Path) != command.Path {
		return errors.NewValidationError("command path has leading or trailing whitespace: '"+command.Path+"'", nil)
	}

	for i, arg := range command.Args {
		if strings.ContainsRune(arg, '\x00') {
			return errors.NewValidationError("command argument contains NUL byte", nil).
				WithContext("command", command.Path).
				WithContext("arg_index", i)
		}
	}

	return nil
}
