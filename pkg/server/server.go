package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"mercator-hq/ganymede/pkg/bridge"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/credentials"
	"mercator-hq/ganymede/pkg/executor"
	"mercator-hq/ganymede/pkg/proxy/handlers"
	"mercator-hq/ganymede/pkg/proxy/middleware"
	"mercator-hq/ganymede/pkg/security/auth"
	securitytls "mercator-hq/ganymede/pkg/security/tls"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
	"mercator-hq/ganymede/pkg/telemetry/tracing"
	"mercator-hq/ganymede/pkg/usage"
)

// Deps holds the assembled components the server routes to. Usage and
// Metrics may be nil when the corresponding features are disabled.
type Deps struct {
	Broker      *bridge.Broker
	Credentials *credentials.Manager
	Usage       usage.Store
	Metrics     *metrics.Collector
}

// Server owns the HTTP listener and route table.
type Server struct {
	cfg    *config.Config
	deps   Deps
	logger *slog.Logger

	httpServer *http.Server
	reloader   *securitytls.Reloader

	mu      sync.Mutex
	running bool
}

// New creates the server. Call Start to begin serving.
func New(cfg *config.Config, deps Deps) *Server {
	return &Server{
		cfg:    cfg,
		deps:   deps,
		logger: slog.Default().With("component", "server"),
	}
}

// Start begins serving and blocks until ctx is cancelled or the listener
// fails. Shutdown is graceful within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	tlsConfig, reloader, err := securitytls.Build(s.cfg.Security.TLS)
	if err != nil {
		return fmt.Errorf("configure TLS: %w", err)
	}
	s.reloader = reloader
	if reloader != nil {
		go reloader.Watch(ctx)
	}

	s.httpServer = &http.Server{
		Addr:           s.cfg.Server.ListenAddress,
		Handler:        s.Handler(),
		ReadTimeout:    s.cfg.Server.ReadTimeout,
		WriteTimeout:   s.cfg.Server.WriteTimeout,
		IdleTimeout:    s.cfg.Server.IdleTimeout,
		MaxHeaderBytes: s.cfg.Server.MaxHeaderBytes,
		TLSConfig:      tlsConfig,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("listening",
			"address", s.cfg.Server.ListenAddress,
			"tls", tlsConfig != nil,
		)

		var err error
		if tlsConfig != nil {
			// Certificates come from the reloader via GetCertificate.
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errChan:
		return fmt.Errorf("listener failed: %w", err)
	}
}

func (s *Server) shutdown() error {
	s.logger.Info("shutting down", "timeout", s.cfg.Server.ShutdownTimeout.String())

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("stopped")
	return nil
}

// Handler assembles the route table and middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Client-facing API, behind key auth when enabled.
	api := http.NewServeMux()
	api.Handle("/v1/chat/completions", handlers.NewChatHandler(s.deps.Broker))
	api.Handle("/v1/models", handlers.NewModelsHandler(s.deps.Broker))

	var apiHandler http.Handler = api
	if s.cfg.Auth.Enabled {
		validator := auth.NewAPIKeyValidator(s.cfg.Auth.APIKeys)
		apiHandler = auth.NewMiddleware(validator).Handle(api)
	}
	mux.Handle("/v1/", apiHandler)

	// Executor channel. Executors authenticate inside the handshake, not
	// with client API keys.
	mux.Handle("/ws/executor", executor.NewHandler(s.deps.Broker, executor.HandlerConfig{
		HandshakeTimeout: s.cfg.Executors.HandshakeTimeout,
		WriteTimeout:     executor.DefaultHandlerConfig().WriteTimeout,
		PingInterval:     s.cfg.Executors.PingInterval,
		PongWait:         s.cfg.Executors.PongWait,
	}))

	// Operator surface. Expected to be reachable only from the operator
	// network; bind accordingly.
	mux.Handle("/internal/", handlers.NewOpsHandler(s.deps.Broker, s.deps.Credentials, s.deps.Usage))

	mux.Handle("/health", handlers.NewHealthHandler())
	mux.Handle("/ready", handlers.NewReadyHandler(s.deps.Broker))

	if s.cfg.Telemetry.Metrics.Enabled && s.deps.Metrics != nil {
		mux.Handle(s.cfg.Telemetry.Metrics.Path, s.deps.Metrics.Handler())
	}

	// Outermost first: recovery, then request ID so the access log and
	// every handler share the correlation ID, then the access log itself.
	var handler http.Handler = mux
	handler = middleware.CORSMiddleware(s.corsConfig())(handler)
	handler = tracing.HTTPMiddleware(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.RecoveryMiddleware(handler)
	return handler
}

func (s *Server) corsConfig() *middleware.CORSConfig {
	return &middleware.CORSConfig{
		Enabled:          s.cfg.Server.CORS.Enabled,
		AllowedOrigins:   s.cfg.Server.CORS.AllowedOrigins,
		AllowedMethods:   s.cfg.Server.CORS.AllowedMethods,
		AllowedHeaders:   s.cfg.Server.CORS.AllowedHeaders,
		ExposedHeaders:   s.cfg.Server.CORS.ExposedHeaders,
		MaxAge:           s.cfg.Server.CORS.MaxAge,
		AllowCredentials: s.cfg.Server.CORS.AllowCredentials,
	}
}
