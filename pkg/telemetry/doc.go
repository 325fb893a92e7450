// Package telemetry groups the bridge's observability concerns.
//
// Subpackages:
//
//   - logging: structured slog setup with secret redaction
//   - metrics: Prometheus collector for broker, queue and executor metrics
//   - tracing: OpenTelemetry tracer initialization and HTTP span middleware
package telemetry
