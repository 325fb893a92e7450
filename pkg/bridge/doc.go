// Package bridge implements the request broker at the core of Ganymede.
//
// The broker accepts chat completion requests from the ingress layer and
// binds each one to exactly one live executor connection. It is composed of
// five owned structures, each guarded by its own mutex:
//
//   - CredentialPool: per-model session credentials, one chosen per dispatch
//   - Registry: executor connections, their auth principals and health
//   - CorrelationTable: in-flight request IDs mapped to client-facing sinks
//   - queue: FIFO of requests waiting for a free executor
//   - Broker: the composition root tying the above together
//
// When more than one of these must be locked for a single operation, the
// Broker acquires them in the fixed order pool, registry, correlation table,
// queue. Every request ends with exactly one terminal event (done or error);
// the stream sink enforces that invariant regardless of how many components
// race to finish the request.
//
// The mechanism an executor uses to reach the remote service is opaque to
// this package: anything implementing TaskSender can serve tasks.
package bridge
