// Package config provides configuration management for Mercator Ganymede.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides. It provides a type-safe
// configuration system with comprehensive validation and sensible defaults.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention GANYMEDE_SECTION_FIELD.
// For example:
//
//   - GANYMEDE_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - GANYMEDE_BROKER_MAX_QUEUE_WAIT overrides broker.max_queue_wait
//   - GANYMEDE_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Environment variables always take precedence over file-based configuration.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Singleton Pattern
//
// For application-wide configuration access, use the singleton pattern:
//
//	// At application startup
//	if err := config.Initialize("config.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Anywhere in the application
//	cfg := config.GetConfig()
//	fmt.Println(cfg.Server.ListenAddress)
//
// For testing, prefer dependency injection with explicit Config instances
// rather than the global singleton.
//
// # Validation
//
// All configuration is validated automatically during loading. Validation includes:
//
//   - Required field checks (e.g., executor tokens when auth is required)
//   - Range validation (e.g., timeouts must be positive)
//   - Logical validation (e.g., pong wait must exceed ping interval)
//
// Validation errors include field paths and helpful messages:
//
//	configuration validation failed with 2 errors:
//	  - executors.tokens: at least one token is required when require_auth is enabled
//	  - broker.max_queue_wait: max queue wait must be positive
//
// # Example Configuration
//
// Here is a minimal configuration file:
//
//	server:
//	  listen_address: "127.0.0.1:8080"
//
//	executors:
//	  tokens:
//	    "wk-7f2a": "executor-lab-1"
//
//	models:
//	  credential_file: "./credentials.yaml"
//	  fallback_model: "default"
//
//	usage:
//	  backend: "sqlite"
//	  sqlite:
//	    path: "./ganymede-usage.db"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
//
// # Thread Safety
//
// All configuration access is thread-safe. The singleton pattern uses read-write
// locks to allow concurrent reads while protecting against concurrent writes during
// reload operations.
package config
