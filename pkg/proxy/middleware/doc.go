// Package middleware provides HTTP middleware for cross-cutting concerns.
//
// This package implements middleware functions that handle common functionality
// across all HTTP requests including request ID generation, logging, CORS, and
// panic recovery. Per-request timeouts are deliberately not enforced here: the
// broker owns its own queue-wait, inactivity, and total-duration timeouts, and
// a blanket HTTP timeout would cut off long-lived SSE streams.
//
// # Middleware Chain
//
// Middleware functions are chained in a specific order:
//
//	handler = Recovery(RequestID(Logging(CORS(handler))))
//
// Order (innermost to outermost):
//  1. CORS: Add Cross-Origin Resource Sharing headers
//  2. Logging: Log request/response details
//  3. RequestID: Generate and propagate request ID (outside Logging so the
//     access log carries the correlation ID)
//  4. Recovery: Recover from panics
//
// # Request ID
//
// RequestIDMiddleware generates a unique ID for each request, honoring a
// client-supplied X-Request-ID when present:
//
//	X-Request-ID: 550e8400e29b41d4a716446655440000
//
// The request ID is:
//   - Added to context for handler access
//   - Included in response headers
//   - Logged with all request/response logs
//
// # Logging
//
// LoggingMiddleware uses structured logging (log/slog) to record request details:
//
//	{
//	  "time": "2026-08-29T10:30:00Z",
//	  "level": "INFO",
//	  "msg": "request completed",
//	  "method": "POST",
//	  "path": "/v1/chat/completions",
//	  "status": 200,
//	  "latency_ms": 1250,
//	  "request_id": "550e8400e29b41d4a716446655440000",
//	  "user_agent": "openai-python/1.0.0"
//	}
//
// # CORS
//
// CORSMiddleware adds Cross-Origin Resource Sharing headers for web clients:
//
//	Access-Control-Allow-Origin: https://example.com
//	Access-Control-Allow-Methods: GET, POST, OPTIONS
//	Access-Control-Allow-Headers: Authorization, Content-Type
//	Access-Control-Max-Age: 3600
//
// CORS configuration is loaded from the server section of the configuration:
//
//	server:
//	  cors:
//	    enabled: true
//	    allowed_origins: ["https://example.com"]
//	    allowed_methods: ["GET", "POST", "OPTIONS"]
//	    allowed_headers: ["Authorization", "Content-Type"]
//	    max_age: 3600
//
// # Recovery
//
// RecoveryMiddleware catches panics in handlers and converts them to HTTP 500
// errors in the OpenAI error format. The panic stack trace is logged but not
// exposed to clients.
package middleware
