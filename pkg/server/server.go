// Package server exposes the DSM bridge over HTTP for web applications
// that sit behind the appliance's web server.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dsbridge/dsbridge/pkg/auth"
	"github.com/dsbridge/dsbridge/pkg/synology"
)

// Config configures the HTTP server.
type Config struct {
	Address           string
	ReadHeaderTimeout time.Duration
	// RelayHeaders copies DSM login/logout response headers to clients.
	RelayHeaders bool
	// RequireAdmin restricts user lookups to DSM administrators.
	RequireAdmin bool
}

// Server serves the bridge endpoints.
type Server struct {
	cfg      Config
	bridge   *synology.Bridge
	logger   *slog.Logger
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	mux      *http.ServeMux
	handler  http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegistry sets the registry served on /metrics. The server registers
// its own request counter there.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// New creates a Server around bridge.
func New(cfg Config, bridge *synology.Bridge, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		bridge: bridge,
		logger: slog.Default(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dsbridge_http_requests_total",
				Help: "Total number of HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.registry.MustRegister(s.requests)

	s.mux = http.NewServeMux()
	s.registerRoutes(s.mux)

	middleware := auth.NewMiddleware(auth.NewDSMAuthenticator(bridge),
		auth.WithExcludedPaths("/healthz", "/metrics", "/login", "/logout"),
		auth.WithRequireAuth(true),
		auth.WithMiddlewareLogger(s.logger),
	)
	s.handler = s.logRequests(middleware.Wrap(s.mux))
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.Info("dsbridge listening", slog.String("addr", s.cfg.Address))

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("dsbridge stopped")
	return nil
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /whoami", s.handleWhoami)
	mux.HandleFunc("GET /users/{name}", s.handleUser)
	mux.HandleFunc("GET /healthz", healthzHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
