package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request correlation ID in both directions:
// clients may supply their own, and the response always echoes the one the
// request was processed under.
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware assigns every request a correlation ID. A
// client-provided X-Request-ID is honored so callers can correlate their own
// logs; otherwise a fresh UUID is generated. The ID rides the request
// context and the response header, and every handler log line carries it.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID extracts the request ID from the context, or "" when the
// middleware did not run.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
