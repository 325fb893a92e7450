package config

import "time"

// Config is the root configuration structure for Mercator Ganymede.
// It contains all configuration sections for the HTTP server, the broker,
// executor connections, model credential pools, usage accounting, telemetry,
// and security settings.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts, and connection limits.
	Server ServerConfig `yaml:"server"`

	// Broker contains queueing and dispatch configuration: how long requests
	// may wait for an executor, and how long streams may run.
	Broker BrokerConfig `yaml:"broker"`

	// Executors contains configuration for the executor channel: auth
	// tokens, connection limits, and liveness timing.
	Executors ExecutorsConfig `yaml:"executors"`

	// Models contains the model-to-credential mapping configuration,
	// including the credential file location and hot reload settings.
	Models ModelsConfig `yaml:"models"`

	// Auth contains client-facing API key authentication settings.
	Auth AuthConfig `yaml:"auth"`

	// Usage contains configuration for usage accounting and storage
	// including backend selection and retention settings.
	Usage UsageConfig `yaml:"usage"`

	// Telemetry contains configuration for observability including logging
	// and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Security contains security-related configuration including TLS
	// settings for the listener.
	Security SecurityConfig `yaml:"security"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port for the server to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. A zero or negative value means no timeout.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Streaming responses need a generous value here since a
	// completion stream can run for minutes.
	// Default: 10m
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled. If IdleTimeout is zero, ReadTimeout is used.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// If requests are still in-flight after this timeout, the server will
	// force shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header's keys and values, including the
	// request line. It does not limit the size of the request body.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS (Cross-Origin Resource Sharing) configuration.
type CORSConfig struct {
	// Enabled controls whether CORS is enabled.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins for CORS requests.
	// Use ["*"] to allow all origins (not recommended for production).
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods for CORS requests.
	// Default: ["GET", "POST", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed HTTP headers for CORS requests.
	// Default: ["Authorization", "Content-Type", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// ExposedHeaders is a list of headers that are exposed to the client.
	// Default: ["X-Request-ID"]
	ExposedHeaders []string `yaml:"exposed_headers"`

	// MaxAge is the maximum age (in seconds) for preflight request cache.
	// Default: 3600 (1 hour)
	MaxAge int `yaml:"max_age"`

	// AllowCredentials controls whether credentials (cookies, auth headers)
	// are allowed in CORS requests.
	// Default: false
	AllowCredentials bool `yaml:"allow_credentials"`
}

// BrokerConfig contains queueing and dispatch configuration.
type BrokerConfig struct {
	// MaxQueueWait is the longest a request may wait in the queue for an
	// executor to become ready before it fails with a timeout.
	// Default: 90s
	MaxQueueWait time.Duration `yaml:"max_queue_wait"`

	// RejectWhenNoWorkers controls what happens when a request arrives and
	// no executor is connected at all. When true the request is rejected
	// immediately; when false it queues and waits up to MaxQueueWait.
	// Default: false
	RejectWhenNoWorkers bool `yaml:"reject_when_no_workers"`

	// StreamInactivity is the longest a stream may go without receiving a
	// frame from its executor before it fails with a timeout. The timer
	// resets on every frame.
	// Default: 120s
	StreamInactivity time.Duration `yaml:"stream_inactivity"`

	// StreamDuration is the absolute ceiling on a single stream's lifetime,
	// regardless of activity.
	// Default: 10m
	StreamDuration time.Duration `yaml:"stream_duration"`
}

// ExecutorsConfig contains configuration for the executor channel.
type ExecutorsConfig struct {
	// RequireAuth controls whether connecting executors must present a
	// recognized token. When false any hello frame is accepted, which is
	// only suitable for local development.
	// Default: true
	RequireAuth bool `yaml:"require_auth"`

	// Tokens maps executor auth tokens to principal names. The principal
	// is attached to the executor for logging and operator visibility.
	Tokens map[string]string `yaml:"tokens"`

	// MaxExecutors caps the number of simultaneously connected executors.
	// Zero means unlimited.
	// Default: 0
	MaxExecutors int `yaml:"max_executors"`

	// HeartbeatTimeout is how long an executor may go silent before the
	// registry reaps it and fails whatever it was working on.
	// Default: 120s
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`

	// HandshakeTimeout bounds how long a fresh connection may take to send
	// its hello frame before the socket is closed.
	// Default: 10s
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// PingInterval is how often the server pings each executor socket.
	// Default: 20s
	PingInterval time.Duration `yaml:"ping_interval"`

	// PongWait is how long an executor socket may go without any inbound
	// traffic before the read loop gives up. Must exceed PingInterval.
	// Default: 60s
	PongWait time.Duration `yaml:"pong_wait"`
}

// ModelsConfig contains the model-to-credential mapping configuration.
type ModelsConfig struct {
	// CredentialFile is the path to the YAML file holding per-model session
	// credential pools. See CredentialFile in the credentials package for
	// the file format.
	CredentialFile string `yaml:"credential_file"`

	// Watch controls whether the credential file is watched for changes
	// and hot-reloaded.
	// Default: true
	Watch bool `yaml:"watch"`

	// FallbackModel is the pool consulted when a requested model has no
	// entry of its own. Empty disables the fallback, so unmapped models
	// are rejected.
	FallbackModel string `yaml:"fallback_model"`
}

// AuthConfig contains client-facing authentication settings.
type AuthConfig struct {
	// Enabled controls whether clients must present an API key on
	// completion requests.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// APIKeys maps accepted client API keys to principal names used for
	// usage attribution.
	APIKeys map[string]string `yaml:"api_keys"`
}

// UsageConfig contains configuration for usage accounting and storage.
type UsageConfig struct {
	// Enabled controls whether usage records are written at all.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects the storage backend. Valid values: "sqlite", "memory".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// BufferSize is the capacity of the asynchronous write buffer. Records
	// are dropped (with a counter) when the buffer is full rather than
	// blocking the request path.
	// Default: 1000
	BufferSize int `yaml:"buffer_size"`

	// Retention contains the pruning policy for stored usage records.
	Retention RetentionConfig `yaml:"retention"`
}

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the filesystem path to the SQLite database file.
	// Default: "./ganymede-usage.db"
	Path string `yaml:"path"`

	// BusyTimeout is the SQLite busy timeout.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// JournalMode is the SQLite journal mode. WAL is strongly recommended
	// for concurrent readers.
	// Default: "WAL"
	JournalMode string `yaml:"journal_mode"`
}

// RetentionConfig contains the pruning policy for stored usage records.
type RetentionConfig struct {
	// Enabled controls whether old records are pruned automatically.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Days is how many days of usage records to keep.
	// Default: 30
	Days int `yaml:"days"`

	// Schedule is the cron expression for the pruning job.
	// Default: "0 3 * * *" (daily at 03:00)
	Schedule string `yaml:"schedule"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level. Valid values: "debug", "info",
	// "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the log output format. Valid values: "json", "text".
	// Default: "json"
	Format string `yaml:"format"`

	// Output is where logs are written. Valid values: "stdout", "stderr",
	// or a file path.
	// Default: "stdout"
	Output string `yaml:"output"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether Prometheus metrics are collected and served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path where metrics are exposed.
	// Default: "/metrics"
	Path string `yaml:"path"`
}

// TracingConfig contains OpenTelemetry trace export configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported. When false all tracing
	// calls are no-ops.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint (host:port).
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS on the collector connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Sampler selects the sampling strategy. Valid values: "always",
	// "never", "ratio".
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces sampled when Sampler is
	// "ratio". Must be between 0.0 and 1.0.
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`
}

// SecurityConfig contains security-related configuration.
type SecurityConfig struct {
	// TLS contains TLS configuration for the listener.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig contains TLS listener configuration.
type TLSConfig struct {
	// Enabled controls whether the server terminates TLS itself.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile is the path to the PEM certificate file.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM private key file.
	KeyFile string `yaml:"key_file"`
}
