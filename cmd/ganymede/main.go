// Ganymede is a request broker that fronts a pool of live browser
// executor connections with an OpenAI-compatible chat completions API.
//
// Clients speak the OpenAI protocol; executors hold authenticated browser
// sessions against the upstream arena and connect back over WebSocket.
// The broker correlates requests to executors, translates the executors'
// frame stream into SSE or a single JSON body, and accounts for usage.
//
// Usage:
//
//	# Start the broker with default configuration
//	ganymede run
//
//	# Start with a custom configuration file
//	ganymede run --config /path/to/config.yaml
//
//	# Show version information
//	ganymede version
//
//	# Validate configuration and credential files without starting
//	ganymede validate
//
//	# Summarize recorded usage
//	ganymede usage --since 24h
//
// For complete documentation, see: https://github.com/mercator-hq/ganymede
package main

func main() {
	Execute()
}
