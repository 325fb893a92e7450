// Package logging configures the process-wide structured logger.
//
// The bridge handles live session credentials and client API keys, so every
// log line passes through a redactor before it is written: bearer tokens,
// API keys, and password-like fields are masked by pattern, and values under
// sensitive keys (token, secret, session_id, ...) are masked by key name.
//
// Setup installs the configured logger as slog's default so every component
// that logs through slog.Default() inherits level, format, and redaction:
//
//	logger, err := logging.Setup(logging.Config{
//		Level:  "info",
//		Format: "json",
//		Output: "stdout",
//	})
//	if err != nil {
//		return err
//	}
//	defer logger.Shutdown()
package logging
