package config

import (
	"fmt"
	"strings"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateBroker(&cfg.Broker)...)
	errs = append(errs, validateExecutors(&cfg.Executors)...)
	errs = append(errs, validateModels(&cfg.Models)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateUsage(&cfg.Usage)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateSecurity(&cfg.Security)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates HTTP server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.idle_timeout",
			Message: "idle timeout must be positive",
		})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}

	if cfg.CORS.Enabled {
		if len(cfg.CORS.AllowedOrigins) == 0 {
			errs = append(errs, FieldError{
				Field:   "server.cors.allowed_origins",
				Message: "at least one allowed origin is required when CORS is enabled",
			})
		}
		if cfg.CORS.MaxAge < 0 {
			errs = append(errs, FieldError{
				Field:   "server.cors.max_age",
				Message: "max age must be non-negative",
			})
		}
	}

	return errs
}

// validateBroker validates queueing and dispatch configuration.
func validateBroker(cfg *BrokerConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxQueueWait <= 0 {
		errs = append(errs, FieldError{
			Field:   "broker.max_queue_wait",
			Message: "max queue wait must be positive",
		})
	}
	if cfg.StreamInactivity <= 0 {
		errs = append(errs, FieldError{
			Field:   "broker.stream_inactivity",
			Message: "stream inactivity timeout must be positive",
		})
	}
	if cfg.StreamDuration <= 0 {
		errs = append(errs, FieldError{
			Field:   "broker.stream_duration",
			Message: "stream duration timeout must be positive",
		})
	}
	if cfg.StreamDuration > 0 && cfg.StreamInactivity > cfg.StreamDuration {
		errs = append(errs, FieldError{
			Field:   "broker.stream_inactivity",
			Message: "stream inactivity timeout must not exceed stream duration",
		})
	}

	return errs
}

// validateExecutors validates executor channel configuration.
func validateExecutors(cfg *ExecutorsConfig) []FieldError {
	var errs []FieldError

	if cfg.RequireAuth && len(cfg.Tokens) == 0 {
		errs = append(errs, FieldError{
			Field:   "executors.tokens",
			Message: "at least one token is required when require_auth is enabled",
		})
	}
	for token, principal := range cfg.Tokens {
		if token == "" {
			errs = append(errs, FieldError{
				Field:   "executors.tokens",
				Message: "empty token is not allowed",
			})
		}
		if principal == "" {
			errs = append(errs, FieldError{
				Field:   "executors.tokens",
				Message: fmt.Sprintf("token %q has no principal name", truncateToken(token)),
			})
		}
	}
	if cfg.MaxExecutors < 0 {
		errs = append(errs, FieldError{
			Field:   "executors.max_executors",
			Message: "max executors must be non-negative",
		})
	}
	if cfg.HeartbeatTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "executors.heartbeat_timeout",
			Message: "heartbeat timeout must be positive",
		})
	}
	if cfg.HandshakeTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "executors.handshake_timeout",
			Message: "handshake timeout must be positive",
		})
	}
	if cfg.PingInterval <= 0 {
		errs = append(errs, FieldError{
			Field:   "executors.ping_interval",
			Message: "ping interval must be positive",
		})
	}
	if cfg.PongWait <= cfg.PingInterval {
		errs = append(errs, FieldError{
			Field:   "executors.pong_wait",
			Message: "pong wait must exceed ping interval",
		})
	}

	return errs
}

// validateModels validates the model credential mapping configuration.
func validateModels(cfg *ModelsConfig) []FieldError {
	var errs []FieldError

	if cfg.Watch && cfg.CredentialFile == "" {
		errs = append(errs, FieldError{
			Field:   "models.credential_file",
			Message: "credential file path is required when watch is enabled",
		})
	}

	return errs
}

// validateAuth validates client authentication configuration.
func validateAuth(cfg *AuthConfig) []FieldError {
	var errs []FieldError

	if cfg.Enabled && len(cfg.APIKeys) == 0 {
		errs = append(errs, FieldError{
			Field:   "auth.api_keys",
			Message: "at least one API key is required when auth is enabled",
		})
	}
	for key, principal := range cfg.APIKeys {
		if key == "" {
			errs = append(errs, FieldError{
				Field:   "auth.api_keys",
				Message: "empty API key is not allowed",
			})
		}
		if principal == "" {
			errs = append(errs, FieldError{
				Field:   "auth.api_keys",
				Message: fmt.Sprintf("API key %q has no principal name", truncateToken(key)),
			})
		}
	}

	return errs
}

// validateUsage validates usage accounting configuration.
func validateUsage(cfg *UsageConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}

	switch cfg.Backend {
	case "sqlite", "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "usage.backend",
			Message: fmt.Sprintf("unknown backend %q (valid: sqlite, memory)", cfg.Backend),
		})
	}

	if cfg.Backend == "sqlite" {
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "usage.sqlite.path",
				Message: "sqlite path is required for the sqlite backend",
			})
		}
		switch strings.ToUpper(cfg.SQLite.JournalMode) {
		case "WAL", "DELETE", "TRUNCATE", "MEMORY", "":
		default:
			errs = append(errs, FieldError{
				Field:   "usage.sqlite.journal_mode",
				Message: fmt.Sprintf("unknown journal mode %q", cfg.SQLite.JournalMode),
			})
		}
	}

	if cfg.BufferSize <= 0 {
		errs = append(errs, FieldError{
			Field:   "usage.buffer_size",
			Message: "buffer size must be positive",
		})
	}

	if cfg.Retention.Enabled {
		if cfg.Retention.Days <= 0 {
			errs = append(errs, FieldError{
				Field:   "usage.retention.days",
				Message: "retention days must be positive",
			})
		}
		if cfg.Retention.Schedule == "" {
			errs = append(errs, FieldError{
				Field:   "usage.retention.schedule",
				Message: "retention schedule is required when retention is enabled",
			})
		}
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("unknown log level %q (valid: debug, info, warn, error)", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("unknown log format %q (valid: json, text)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "endpoint is required when tracing is enabled",
			})
		}
		switch cfg.Tracing.Sampler {
		case "always", "never", "ratio":
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("unknown sampler %q (valid: always, never, ratio)", cfg.Tracing.Sampler),
			})
		}
		if cfg.Tracing.Sampler == "ratio" && (cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1) {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sample_ratio",
				Message: fmt.Sprintf("sample ratio must be between 0.0 and 1.0, got %v", cfg.Tracing.SampleRatio),
			})
		}
	}

	return errs
}

// validateSecurity validates security configuration.
func validateSecurity(cfg *SecurityConfig) []FieldError {
	var errs []FieldError

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.cert_file",
				Message: "cert file is required when TLS is enabled",
			})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.key_file",
				Message: "key file is required when TLS is enabled",
			})
		}
	}

	return errs
}

// truncateToken shortens secrets for inclusion in error messages.
func truncateToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}
