package cli

import (
	"errors"
	"testing"
)

func TestConfigError(t *testing.T) {
	err := NewConfigError("server.listen_address", "missing required field")

	want := "config server.listen_address: missing required field"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestCommandErrorUnwrap(t *testing.T) {
	cause := errors.New("credential file not found")
	err := NewCommandError("validate", cause)

	want := "validate: credential file not found"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is() does not reach the wrapped cause")
	}
}
