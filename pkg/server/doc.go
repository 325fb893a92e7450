// Package server assembles the HTTP surface of the broker.
//
// It owns the listener, the route table, and the middleware chain, and
// ties the client-facing API, the executor WebSocket channel, and the
// operator endpoints to one address:
//
//	/v1/chat/completions   chat completions (auth when enabled)
//	/v1/models             model listing (auth when enabled)
//	/ws/executor           executor channel (token auth in the handshake)
//	/internal/...          operator endpoints
//	/health, /ready        probes
//	/metrics               Prometheus exposition (when enabled)
//
// The middleware chain, outermost first, is recovery, logging, request
// ID, trace propagation, CORS. There is deliberately no blanket timeout
// middleware: the broker enforces its own queue-wait, inactivity, and
// total-duration limits, and the listener's WriteTimeout is sized to
// outlast the longest allowed stream.
//
// Start blocks until the context is cancelled, then drains connections
// within the configured shutdown timeout:
//
//	srv := server.New(cfg, server.Deps{
//		Broker:      broker,
//		Credentials: creds,
//		Usage:       store,
//		Metrics:     collector,
//	})
//	if err := srv.Start(ctx); err != nil {
//		return err
//	}
package server
