package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"mercator-hq/ganymede/pkg/proxy/types"
)

// NewResponseID generates a response identifier in OpenAI's conventional
// "chatcmpl-<id>" format.
func NewResponseID() string {
	return fmt.Sprintf("chatcmpl-%s", uuid.New().String())
}

// FormatChatCompletionResponse builds a complete OpenAI chat completion
// response from the aggregated text of a finished stream.
//
// Token counts are not available from the upstream service, so Usage is
// reported as zeros; OpenAI SDKs tolerate this.
func FormatChatCompletionResponse(responseID, requestedModel, content, finishReason string) *types.ChatCompletionResponse {
	if finishReason == "" {
		finishReason = "stop"
	}

	return &types.ChatCompletionResponse{
		ID:      responseID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   requestedModel,
		Choices: []types.Choice{
			{
				Index: 0,
				Message: types.Message{
					Role:    "assistant",
					Content: content,
				},
				FinishReason: finishReason,
			},
		},
		Usage: types.Usage{},
	}
}

// FormatStreamChunk builds an OpenAI chat completion chunk carrying one text
// delta. The first chunk of a stream should set role so SDKs initialize the
// assistant message.
func FormatStreamChunk(responseID, requestedModel, delta string, first bool) *types.ChatCompletionStreamChunk {
	d := types.Delta{Content: delta}
	if first {
		d.Role = "assistant"
	}

	return &types.ChatCompletionStreamChunk{
		ID:      responseID,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   requestedModel,
		Choices: []types.StreamChoice{
			{
				Index: 0,
				Delta: d,
			},
		},
	}
}

// FormatFinalChunk builds the terminal chunk of a stream: an empty delta with
// finish_reason set.
func FormatFinalChunk(responseID, requestedModel, finishReason string) *types.ChatCompletionStreamChunk {
	if finishReason == "" {
		finishReason = "stop"
	}

	chunk := &types.ChatCompletionStreamChunk{
		ID:      responseID,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   requestedModel,
		Choices: []types.StreamChoice{
			{
				Index: 0,
				Delta: types.Delta{},
			},
		},
	}
	chunk.Choices[0].FinishReason = &finishReason
	return chunk
}

// WriteJSONResponse writes a JSON response to the HTTP response writer.
// It sets the appropriate content-type header and handles marshaling errors.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}

	return nil
}

// WriteErrorResponse writes an OpenAI-compatible error response.
// It extracts the appropriate HTTP status code from the error type.
func WriteErrorResponse(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	statusCode := errResp.Error.HTTPStatusCode()
	return WriteJSONResponse(w, statusCode, errResp)
}

// WriteSSEChunk writes a single chunk in Server-Sent Events format.
// Each chunk is formatted as:
//
//	data: {"id":"chatcmpl-123","object":"chat.completion.chunk",...}
//
// Followed by two newlines (\n\n).
func WriteSSEChunk(w http.ResponseWriter, chunk *types.ChatCompletionStreamChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE chunk: %w", err)
	}

	// Write SSE formatted chunk: "data: <json>\n\n"
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write SSE chunk: %w", err)
	}

	// Flush immediately for real-time streaming
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	return nil
}

// WriteSSEDone writes the final "[DONE]" marker for SSE streams.
// This signals to the client that the stream has completed.
func WriteSSEDone(w http.ResponseWriter) error {
	if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("failed to write SSE done marker: %w", err)
	}

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	return nil
}

// WriteSSEError writes an error in SSE format.
// This allows errors to be sent mid-stream if something goes wrong.
func WriteSSEError(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	errorData := map[string]interface{}{
		"error": errResp.Error,
	}

	data, err := json.Marshal(errorData)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE error: %w", err)
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write SSE error: %w", err)
	}

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	return nil
}

// SetSSEHeaders sets the appropriate headers for Server-Sent Events streaming.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
