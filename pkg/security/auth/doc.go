// Package auth authenticates client requests with static API keys.
//
// Keys are configured as a map from key to principal name. The principal
// is attached to the request context and flows through dispatch into
// usage accounting, so per-caller consumption can be attributed without
// any further lookup.
//
// Executor connections authenticate separately, during the WebSocket
// handshake; this package only covers the client-facing HTTP surface.
package auth
