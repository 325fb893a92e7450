package cli

import "fmt"

// ConfigError reports an invalid or missing configuration value. Field is
// the dotted config path (for example "server.listen_address") or the flag
// name that carried the bad value.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

// NewConfigError creates a ConfigError for the given field.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// CommandError wraps a failure from one of the ganymede subcommands so the
// top-level error output names the command that failed.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError wraps err as a CommandError for the named command.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}
