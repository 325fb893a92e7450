// Package proxy provides the OpenAI-compatible HTTP surface of the bridge.
//
// The proxy accepts standard Chat Completions requests, validates and
// normalizes them, hands them to the broker for dispatch over a live
// executor connection, and translates the resulting event stream back into
// the response shape the client asked for: Server-Sent Events when
// stream=true, a single aggregated JSON body otherwise.
//
// # Architecture
//
//   - Handlers: request processing (chat completions, model listing, health,
//     internal operations endpoints)
//   - Middleware: cross-cutting concerns (request ID, logging, CORS,
//     panic recovery, client authentication)
//   - Types: OpenAI-compatible request/response data structures
//
// # Request Flow
//
//  1. Client sends an OpenAI-compatible request to /v1/chat/completions
//  2. Middleware chain processes the request (requestID -> logging -> auth)
//  3. Handler parses and validates the request body
//  4. Message content is normalized (multimodal parts flatten to text plus
//     image attachments) and the request is dispatched through the broker
//  5. The broker's event stream is translated into SSE chunks or aggregated
//     into a complete response
//
// # Streaming
//
// With stream=true the client receives SSE chunks:
//
//	data: {"id":"chatcmpl-...","choices":[{"delta":{"content":"Hello"}}]}
//	data: {"id":"chatcmpl-...","choices":[{"delta":{"content":" there"}}]}
//	data: {"id":"chatcmpl-...","choices":[{"delta":{},"finish_reason":"stop"}]}
//	data: [DONE]
//
// Errors that occur before the first chunk surface as plain JSON error
// bodies with a meaningful status code; errors after streaming has begun
// are reported as an in-band SSE error event followed by [DONE].
//
// # Error Handling
//
// All errors follow the OpenAI error response format:
//
//	{
//	  "error": {
//	    "message": "no executors available to serve model \"gpt-4\"",
//	    "type": "service_unavailable",
//	    "code": "no_executors_available"
//	  }
//	}
package proxy
