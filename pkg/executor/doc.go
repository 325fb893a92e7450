// Package executor hosts the broker side of the executor channel: the
// WebSocket endpoint executors connect to, the registration handshake, and
// the per-connection read/write pumps.
//
// The package implements bridge.TaskSender over gorilla/websocket; the
// broker itself never sees the transport. stdlib has no WebSocket server
// support and x/net/websocket is effectively frozen, so gorilla is used
// here the same way the rest of our tooling does.
package executor
