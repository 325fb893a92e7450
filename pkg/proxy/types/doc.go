// Package types defines the OpenAI-compatible wire types for the ingress.
//
// The shapes follow the OpenAI Chat Completions API closely enough that
// stock OpenAI SDKs work against the bridge unchanged:
//
//	from openai import OpenAI
//	client = OpenAI(base_url="http://localhost:8080/v1", api_key="...")
//	client.chat.completions.create(model="gpt-4", messages=[...])
//
// Request side: ChatCompletionRequest with its Message list, where Content
// accepts both the plain-string form and the multimodal content-part array.
// Sampling knobs (temperature, top_p and friends) are accepted and
// validated for range but not interpreted here: generation happens in the
// remote service the executors front, which applies its own settings.
// Function calling is not part of this surface.
//
// Response side: ChatCompletionResponse for aggregated bodies and
// ChatCompletionStreamChunk for SSE, plus ModelList/ModelInfo for
// GET /v1/models. Usage is always zeroed: the bridge relays text and has no
// token accounting from the remote service.
//
// Errors use the OpenAI envelope (ErrorResponse wrapping ErrorDetail);
// ErrorDetail.HTTPStatusCode maps the error type to the status the broker
// outcome calls for (400, 401, 502, 503, 504). Validation failures are
// reported as ValidationError values and rendered in the same envelope.
package types
