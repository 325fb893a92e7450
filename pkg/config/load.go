package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"mercator-hq/ganymede/pkg/security/secrets"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// The document is unmarshalled over DefaultConfig, so omitted fields keep
// their defaults, and the result is validated before being returned.
// The configuration is not modified by environment variables; use
// LoadConfigWithEnvOverrides for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	if secrets.HasReferences(string(data)) {
		manager, err := secrets.NewDefaultManager(secrets.SecretsDirFromEnv())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize secret providers: %w", err)
		}
		resolved, err := manager.Resolve(context.Background(), string(data))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve secrets in %q: %w", path, err)
		}
		data = []byte(resolved)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	// Fill any fields the document explicitly zeroed out.
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention GANYMEDE_SECTION_FIELD (e.g., GANYMEDE_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file over the defaults
// 2. Apply environment variable overrides
// 3. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables use the format GANYMEDE_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("GANYMEDE_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("GANYMEDE_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("GANYMEDE_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("GANYMEDE_SERVER_IDLE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.IdleTimeout = d
		}
	}
	if val := os.Getenv("GANYMEDE_SERVER_MAX_HEADER_BYTES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Server.MaxHeaderBytes = i
		}
	}

	// Broker overrides
	if val := os.Getenv("GANYMEDE_BROKER_MAX_QUEUE_WAIT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Broker.MaxQueueWait = d
		}
	}
	if val := os.Getenv("GANYMEDE_BROKER_REJECT_WHEN_NO_WORKERS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Broker.RejectWhenNoWorkers = b
		}
	}
	if val := os.Getenv("GANYMEDE_BROKER_STREAM_INACTIVITY"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Broker.StreamInactivity = d
		}
	}
	if val := os.Getenv("GANYMEDE_BROKER_STREAM_DURATION"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Broker.StreamDuration = d
		}
	}

	// Executor overrides
	if val := os.Getenv("GANYMEDE_EXECUTORS_REQUIRE_AUTH"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Executors.RequireAuth = b
		}
	}
	if val := os.Getenv("GANYMEDE_EXECUTORS_MAX_EXECUTORS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Executors.MaxExecutors = i
		}
	}
	if val := os.Getenv("GANYMEDE_EXECUTORS_HEARTBEAT_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Executors.HeartbeatTimeout = d
		}
	}

	// Model overrides
	if val := os.Getenv("GANYMEDE_MODELS_CREDENTIAL_FILE"); val != "" {
		cfg.Models.CredentialFile = val
	}
	if val := os.Getenv("GANYMEDE_MODELS_WATCH"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Models.Watch = b
		}
	}
	if val := os.Getenv("GANYMEDE_MODELS_FALLBACK_MODEL"); val != "" {
		cfg.Models.FallbackModel = val
	}

	// Auth overrides
	if val := os.Getenv("GANYMEDE_AUTH_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Auth.Enabled = b
		}
	}

	// Usage overrides
	if val := os.Getenv("GANYMEDE_USAGE_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Usage.Enabled = b
		}
	}
	if val := os.Getenv("GANYMEDE_USAGE_BACKEND"); val != "" {
		cfg.Usage.Backend = val
	}
	if val := os.Getenv("GANYMEDE_USAGE_SQLITE_PATH"); val != "" {
		cfg.Usage.SQLite.Path = val
	}
	if val := os.Getenv("GANYMEDE_USAGE_RETENTION_DAYS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Usage.Retention.Days = i
		}
	}

	// Telemetry overrides
	if val := os.Getenv("GANYMEDE_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("GANYMEDE_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("GANYMEDE_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("GANYMEDE_TELEMETRY_METRICS_PATH"); val != "" {
		cfg.Telemetry.Metrics.Path = val
	}
	if val := os.Getenv("GANYMEDE_TELEMETRY_TRACING_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Tracing.Enabled = b
		}
	}
	if val := os.Getenv("GANYMEDE_TELEMETRY_TRACING_ENDPOINT"); val != "" {
		cfg.Telemetry.Tracing.Endpoint = val
	}

	// Security overrides
	if val := os.Getenv("GANYMEDE_SECURITY_TLS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Security.TLS.Enabled = b
		}
	}
	if val := os.Getenv("GANYMEDE_SECURITY_TLS_CERT_FILE"); val != "" {
		cfg.Security.TLS.CertFile = val
	}
	if val := os.Getenv("GANYMEDE_SECURITY_TLS_KEY_FILE"); val != "" {
		cfg.Security.TLS.KeyFile = val
	}
}
