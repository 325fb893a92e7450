package handlers

import (
	"context"
	"encoding/json"

	"mercator-hq/ganymede/pkg/bridge"
)

// Broker is the dispatch surface the handlers drive. *bridge.Broker
// implements it; tests substitute fakes.
type Broker interface {
	Dispatch(ctx context.Context, req bridge.Request) (*bridge.Stream, error)
	Cancel(requestID string)
	Models() []string
	Executors() []bridge.ExecutorInfo
	QueueStats() bridge.QueueStats
	ReadyExecutors() int
	InFlight() int
	SendRefresh(executorID string) error
	SendReconnect(executorID string) error
	SendCapability(executorID, name string, payload json.RawMessage) error
}
