package proxy

import (
	"net/http"
	"time"

	"mercator-hq/ganymede/pkg/proxy/types"
)

// RequestMetadata contains extracted metadata from an HTTP request.
// This is used for logging and usage accounting.
type RequestMetadata struct {
	// RequestID is a unique identifier for the request.
	RequestID string

	// Model is the requested model name.
	Model string

	// MessageCount is the number of messages in the conversation.
	MessageCount int

	// Stream indicates whether streaming is requested.
	Stream bool

	// UserID is the identifier for the end-user making the request.
	UserID string

	// APIKey is the authentication key, redacted for logging.
	APIKey string

	// Method is the HTTP method (GET, POST, etc.).
	Method string

	// Path is the HTTP request path.
	Path string

	// UserAgent is the client's user agent string.
	UserAgent string

	// RemoteAddr is the client's IP address.
	RemoteAddr string

	// Timestamp is when the request was received.
	Timestamp time.Time
}

// ResponseMetadata contains the outcome of a completed request.
// This is used for logging and usage accounting.
type ResponseMetadata struct {
	// RequestID is the unique identifier for the request.
	RequestID string

	// StatusCode is the HTTP response status code.
	StatusCode int

	// Latency is the total request processing time.
	Latency time.Duration

	// ExecutorID is the executor connection that served the request, if any.
	ExecutorID string

	// Chunks is the number of text increments streamed to the client.
	Chunks int

	// Error contains any error that occurred.
	Error error

	// Timestamp is when the response was completed.
	Timestamp time.Time
}

// ExtractRequestMetadata extracts metadata from an HTTP request and chat completion request.
// This provides a unified view of request information for logging.
func ExtractRequestMetadata(r *http.Request, req *types.ChatCompletionRequest) *RequestMetadata {
	return &RequestMetadata{
		RequestID:    ExtractRequestID(r),
		Model:        req.Model,
		MessageCount: len(req.Messages),
		Stream:       req.Stream,
		UserID:       ExtractUserID(r),
		APIKey:       RedactAPIKey(ExtractAPIKey(r)),
		Method:       r.Method,
		Path:         r.URL.Path,
		UserAgent:    r.UserAgent(),
		RemoteAddr:   r.RemoteAddr,
		Timestamp:    time.Now(),
	}
}

// ExtractErrorMetadata creates response metadata for an error response.
func ExtractErrorMetadata(requestID string, statusCode int, err error, latency time.Duration) *ResponseMetadata {
	return &ResponseMetadata{
		RequestID:  requestID,
		StatusCode: statusCode,
		Latency:    latency,
		Error:      err,
		Timestamp:  time.Now(),
	}
}

// RedactAPIKey redacts an API key for safe logging.
// It shows only the first 7 and last 4 characters.
//
// Example:
//
//	sk-1234567890abcdef -> sk-1234...cdef
func RedactAPIKey(apiKey string) string {
	if apiKey == "" {
		return ""
	}

	if len(apiKey) < 12 {
		return "***"
	}

	return apiKey[:7] + "..." + apiKey[len(apiKey)-4:]
}

// IsSuccess returns true if the response was successful (2xx status code).
func (m *ResponseMetadata) IsSuccess() bool {
	return m.StatusCode >= 200 && m.StatusCode < 300
}

// IsError returns true if an error occurred.
func (m *ResponseMetadata) IsError() bool {
	return m.Error != nil || m.StatusCode >= 400
}
