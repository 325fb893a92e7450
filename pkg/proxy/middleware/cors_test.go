package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func doCORS(cfg *CORSConfig, method, origin string) *httptest.ResponseRecorder {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r := httptest.NewRequest(method, "/v1/chat/completions", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	CORSMiddleware(cfg)(next).ServeHTTP(w, r)
	return w
}

func TestCORSMiddlewareOrigins(t *testing.T) {
	tests := []struct {
		name        string
		cfg         CORSConfig
		origin      string
		wantAllowed string
	}{
		{
			name:        "listed origin echoed",
			cfg:         CORSConfig{Enabled: true, AllowedOrigins: []string{"https://arena.example"}},
			origin:      "https://arena.example",
			wantAllowed: "https://arena.example",
		},
		{
			name:        "wildcard allows any origin",
			cfg:         CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}},
			origin:      "https://anywhere.example",
			wantAllowed: "https://anywhere.example",
		},
		{
			name:        "unlisted origin gets nothing",
			cfg:         CORSConfig{Enabled: true, AllowedOrigins: []string{"https://arena.example"}},
			origin:      "https://evil.example",
			wantAllowed: "",
		},
		{
			name:        "disabled is a pass-through",
			cfg:         CORSConfig{Enabled: false, AllowedOrigins: []string{"*"}},
			origin:      "https://arena.example",
			wantAllowed: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doCORS(&tt.cfg, http.MethodGet, tt.origin)
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllowed {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantAllowed)
			}
		})
	}
}

func TestCORSMiddlewarePreflight(t *testing.T) {
	cfg := &CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         3600,
	}

	w := doCORS(cfg, http.MethodOptions, "https://arena.example")

	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Errorf("Allow-Methods = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); got != "Authorization, Content-Type, X-Request-ID" {
		t.Errorf("Allow-Headers = %q", got)
	}
	if got := w.Header().Get("Access-Control-Max-Age"); got != "3600" {
		t.Errorf("Max-Age = %q, want 3600", got)
	}
}

func TestCORSMiddlewareCredentialsAndExposedHeaders(t *testing.T) {
	cfg := &CORSConfig{
		Enabled:          true,
		AllowedOrigins:   []string{"https://arena.example"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	}

	w := doCORS(cfg, http.MethodGet, "https://arena.example")

	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q, want true", got)
	}
	if got := w.Header().Get("Access-Control-Expose-Headers"); got != "X-Request-ID" {
		t.Errorf("Expose-Headers = %q, want X-Request-ID", got)
	}
}
