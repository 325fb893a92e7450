package auth

import (
	"log/slog"
	"net/http"

	"mercator-hq/ganymede/pkg/proxy"
	"mercator-hq/ganymede/pkg/proxy/middleware"
	"mercator-hq/ganymede/pkg/proxy/types"
)

// Middleware authenticates requests with a Bearer API key and attaches
// the resolved principal to the request context.
type Middleware struct {
	validator *APIKeyValidator
	logger    *slog.Logger
}

// NewMiddleware creates authentication middleware backed by validator.
func NewMiddleware(validator *APIKeyValidator) *Middleware {
	return &Middleware{
		validator: validator,
		logger:    slog.Default().With("component", "auth"),
	}
}

// Handle wraps next with API key authentication. Failures are written in
// the same error envelope the rest of the API uses, with status 401.
func (m *Middleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := proxy.ExtractAPIKey(r)
		if key == "" {
			m.logger.Warn("missing API key",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			proxy.WriteErrorResponse(w,
				types.NewAuthenticationError("missing API key: pass it as 'Authorization: Bearer <key>'"))
			return
		}

		principal, err := m.validator.Validate(key)
		if err != nil {
			m.logger.Warn("rejected API key",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			proxy.WriteErrorResponse(w, types.NewAuthenticationError("invalid API key"))
			return
		}

		ctx := middleware.WithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
