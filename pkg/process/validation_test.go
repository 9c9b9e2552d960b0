package process

import (
	"testing"

	"github.com/core-tools/macos-observer/pkg/errors"

	"github.com/stretchr/testify/assert"
)

func TestValidateCommand(t *testing.T) {
	tests := []struct {
		name      string
		command   Command
		shouldErr bool
	}{
		{
			name: "valid_bare_name",
			command: Command{
				Path: "iostat",
				Args: []string{"-d", "-c", "5", "5"},
			},
			shouldErr: false,
		},
		{
			name: "valid_absolute_path",
			command: Command{
				Path: "/usr/bin/log",
				Args: []string{"stream", "--style", "json"},
			},
			shouldErr: false,
		},
		{
			name: "valid_no_args",
			command: Command{
				Path: "vm_stat",
			},
			shouldErr: false,
		},
		{
			name:      "empty_path",
			command:   Command{Path: ""},
			shouldErr: true,
		},
		{
			name:      "whitespace_padded_path",
			command:   Command{Path: " iostat"},
			shouldErr: true,
		},
		{
			name: "nul_byte_in_arg",
			command: Command{
				Path: "log",
				Args: []string{"stream", "--predicate", "x\x00y"},
			},
			shouldErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCommand(tt.command)

			if tt.shouldErr {
				assert.Error(t, err)
				assert.True(t, errors.IsValidationError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCommandString(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected string
	}{
		{
			name:     "path_only",
			command:  Command{Path: "vm_stat"},
			expected: "vm_stat",
		},
		{
			name: "path_with_args",
			command: Command{
				Path: "iostat",
				Args: []string{"-d", "-c", "5", "5"},
			},
			expected: "iostat -d -c 5 5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.command.String())
		})
	}
}
