package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 10 * time.Minute
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// CORS defaults
	DefaultCORSEnabled          = true
	DefaultCORSMaxAge           = 3600 // 1 hour
	DefaultCORSAllowCredentials = false

	// Broker defaults
	DefaultMaxQueueWait        = 90 * time.Second
	DefaultRejectWhenNoWorkers = false
	DefaultStreamInactivity    = 120 * time.Second
	DefaultStreamDuration      = 10 * time.Minute

	// Executor defaults
	DefaultRequireAuth      = true
	DefaultMaxExecutors     = 0 // unlimited
	DefaultHeartbeatTimeout = 120 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPingInterval     = 20 * time.Second
	DefaultPongWait         = 60 * time.Second

	// Model defaults
	DefaultCredentialWatch = true

	// Usage defaults
	DefaultUsageEnabled      = true
	DefaultUsageBackend      = "sqlite"
	DefaultSQLitePath        = "./ganymede-usage.db"
	DefaultSQLiteBusyTimeout = 5 * time.Second
	DefaultSQLiteJournalMode = "WAL"
	DefaultUsageBufferSize   = 1000
	DefaultRetentionEnabled  = true
	DefaultRetentionDays     = 30
	DefaultRetentionSchedule = "0 3 * * *"

	// Telemetry defaults
	DefaultLoggingLevel   = "info"
	DefaultLoggingFormat  = "json"
	DefaultLoggingOutput  = "stdout"
	DefaultMetricsEnabled = true
	DefaultMetricsPath    = "/metrics"

	DefaultTracingEnabled     = false
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingInsecure    = true
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 0.1

	// Security defaults
	DefaultTLSEnabled = false
)

// DefaultConfig returns a Config populated with every default value.
// LoadConfig unmarshals the YAML document into a copy of this, so fields
// absent from the file keep their defaults, including booleans that
// default to true.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress:   DefaultListenAddress,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			IdleTimeout:     DefaultIdleTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			MaxHeaderBytes:  DefaultMaxHeaderBytes,
			CORS: CORSConfig{
				Enabled:          DefaultCORSEnabled,
				AllowedOrigins:   []string{"*"},
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
				ExposedHeaders:   []string{"X-Request-ID"},
				MaxAge:           DefaultCORSMaxAge,
				AllowCredentials: DefaultCORSAllowCredentials,
			},
		},
		Broker: BrokerConfig{
			MaxQueueWait:        DefaultMaxQueueWait,
			RejectWhenNoWorkers: DefaultRejectWhenNoWorkers,
			StreamInactivity:    DefaultStreamInactivity,
			StreamDuration:      DefaultStreamDuration,
		},
		Executors: ExecutorsConfig{
			RequireAuth:      DefaultRequireAuth,
			MaxExecutors:     DefaultMaxExecutors,
			HeartbeatTimeout: DefaultHeartbeatTimeout,
			HandshakeTimeout: DefaultHandshakeTimeout,
			PingInterval:     DefaultPingInterval,
			PongWait:         DefaultPongWait,
		},
		Models: ModelsConfig{
			Watch: DefaultCredentialWatch,
		},
		Usage: UsageConfig{
			Enabled: DefaultUsageEnabled,
			Backend: DefaultUsageBackend,
			SQLite: SQLiteConfig{
				Path:        DefaultSQLitePath,
				BusyTimeout: DefaultSQLiteBusyTimeout,
				JournalMode: DefaultSQLiteJournalMode,
			},
			BufferSize: DefaultUsageBufferSize,
			Retention: RetentionConfig{
				Enabled:  DefaultRetentionEnabled,
				Days:     DefaultRetentionDays,
				Schedule: DefaultRetentionSchedule,
			},
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{
				Level:  DefaultLoggingLevel,
				Format: DefaultLoggingFormat,
				Output: DefaultLoggingOutput,
			},
			Metrics: MetricsConfig{
				Enabled: DefaultMetricsEnabled,
				Path:    DefaultMetricsPath,
			},
			Tracing: TracingConfig{
				Enabled:     DefaultTracingEnabled,
				Endpoint:    DefaultTracingEndpoint,
				Insecure:    DefaultTracingInsecure,
				Sampler:     DefaultTracingSampler,
				SampleRatio: DefaultTracingSampleRatio,
			},
		},
		Security: SecurityConfig{
			TLS: TLSConfig{
				Enabled: DefaultTLSEnabled,
			},
		},
	}
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
//
// Booleans that default to true (CORS, usage, retention, metrics,
// executor auth) cannot be distinguished from an explicit false here;
// build on DefaultConfig when those matter.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	// CORS defaults
	if cfg.Server.CORS.AllowedOrigins == nil {
		cfg.Server.CORS.AllowedOrigins = []string{"*"}
	}
	if cfg.Server.CORS.AllowedMethods == nil {
		cfg.Server.CORS.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if cfg.Server.CORS.AllowedHeaders == nil {
		cfg.Server.CORS.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
	}
	if cfg.Server.CORS.ExposedHeaders == nil {
		cfg.Server.CORS.ExposedHeaders = []string{"X-Request-ID"}
	}
	if cfg.Server.CORS.MaxAge == 0 {
		cfg.Server.CORS.MaxAge = DefaultCORSMaxAge
	}

	// Broker defaults
	if cfg.Broker.MaxQueueWait == 0 {
		cfg.Broker.MaxQueueWait = DefaultMaxQueueWait
	}
	if cfg.Broker.StreamInactivity == 0 {
		cfg.Broker.StreamInactivity = DefaultStreamInactivity
	}
	if cfg.Broker.StreamDuration == 0 {
		cfg.Broker.StreamDuration = DefaultStreamDuration
	}

	// Executor defaults
	if cfg.Executors.HeartbeatTimeout == 0 {
		cfg.Executors.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if cfg.Executors.HandshakeTimeout == 0 {
		cfg.Executors.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.Executors.PingInterval == 0 {
		cfg.Executors.PingInterval = DefaultPingInterval
	}
	if cfg.Executors.PongWait == 0 {
		cfg.Executors.PongWait = DefaultPongWait
	}

	// Usage defaults
	if cfg.Usage.Backend == "" {
		cfg.Usage.Backend = DefaultUsageBackend
	}
	if cfg.Usage.SQLite.Path == "" {
		cfg.Usage.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Usage.SQLite.BusyTimeout == 0 {
		cfg.Usage.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Usage.SQLite.JournalMode == "" {
		cfg.Usage.SQLite.JournalMode = DefaultSQLiteJournalMode
	}
	if cfg.Usage.BufferSize == 0 {
		cfg.Usage.BufferSize = DefaultUsageBufferSize
	}
	if cfg.Usage.Retention.Days == 0 {
		cfg.Usage.Retention.Days = DefaultRetentionDays
	}
	if cfg.Usage.Retention.Schedule == "" {
		cfg.Usage.Retention.Schedule = DefaultRetentionSchedule
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Logging.Output == "" {
		cfg.Telemetry.Logging.Output = DefaultLoggingOutput
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
}
