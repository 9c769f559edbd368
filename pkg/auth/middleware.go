package auth

import (
	"errors"
	"log/slog"
	"net/http"
)

// UnauthorizedHandler writes the response for a request that failed
// authentication. err is nil when no session was present.
type UnauthorizedHandler func(w http.ResponseWriter, r *http.Request, err error)

// Middleware attaches the identity of each request to its context.
type Middleware struct {
	authenticator Authenticator
	requireAuth   bool
	excluded      map[string]bool
	unauthorized  UnauthorizedHandler
	logger        *slog.Logger
}

// MiddlewareOption configures a Middleware.
type MiddlewareOption func(*Middleware)

// WithRequireAuth rejects requests without an identity when set.
func WithRequireAuth(require bool) MiddlewareOption {
	return func(m *Middleware) {
		m.requireAuth = require
	}
}

// WithExcludedPaths lists paths that bypass authentication entirely.
func WithExcludedPaths(paths ...string) MiddlewareOption {
	return func(m *Middleware) {
		for _, p := range paths {
			m.excluded[p] = true
		}
	}
}

// WithUnauthorizedHandler replaces the default rejection response.
func WithUnauthorizedHandler(h UnauthorizedHandler) MiddlewareOption {
	return func(m *Middleware) {
		if h != nil {
			m.unauthorized = h
		}
	}
}

// WithMiddlewareLogger sets the logger.
func WithMiddlewareLogger(logger *slog.Logger) MiddlewareOption {
	return func(m *Middleware) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMiddleware creates a middleware around authenticator. By default an
// identity is required.
func NewMiddleware(authenticator Authenticator, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		authenticator: authenticator,
		requireAuth:   true,
		excluded:      make(map[string]bool),
		unauthorized:  defaultUnauthorized,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wrap wraps an http.Handler with authentication.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.excluded[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		id, ok, err := m.authenticator.AuthenticateRequest(r)
		if err != nil {
			m.logger.Warn("authentication failed",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			m.unauthorized(w, r, err)
			return
		}
		if !ok {
			if m.requireAuth {
				m.unauthorized(w, r, nil)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
	})
}

func defaultUnauthorized(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrAuthBackend) {
		http.Error(w, "authentication backend unavailable", http.StatusBadGateway)
		return
	}
	w.Header().Set("WWW-Authenticate", `Cookie realm="dsm"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
