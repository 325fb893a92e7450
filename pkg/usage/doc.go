// Package usage records per-request usage accounting.
//
// Every finished completion request produces one usage record: who asked,
// which model, how long the stream ran, and how it ended. Records are
// written asynchronously so the request path never blocks on storage; when
// the write buffer is full, records are dropped and counted rather than
// applying backpressure to clients.
//
// Two storage backends are provided: SQLite for durable accounting and an
// in-memory store for tests and ephemeral deployments. A cron-scheduled
// pruner enforces the retention policy on the durable backend.
package usage
