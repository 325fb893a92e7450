// Package handlers implements the bridge's HTTP endpoints.
//
// Client-facing endpoints:
//
//   - POST /v1/chat/completions: OpenAI-compatible chat completions,
//     streaming (SSE) and non-streaming
//   - GET /v1/models: the models that currently have session mappings
//   - GET /health: liveness probe
//   - GET /ready: readiness probe (at least one executor connected)
//
// Operator endpoints, intended for the local operator rather than API
// clients:
//
//   - GET /internal/executors: connected executor inventory
//   - POST /internal/executors/{id}/refresh: ask one executor to refresh
//     its page
//   - POST /internal/executors/{id}/reconnect: ask one executor to
//     re-establish its upstream session
//   - GET /internal/queue: queue depth and counters
//   - POST /internal/credentials/arm: arm the next credential capture
//   - POST /internal/credentials/capture: complete an armed capture
//   - POST /internal/credentials/reload: re-read the credential file
//   - GET /internal/usage: usage accounting summary
package handlers
