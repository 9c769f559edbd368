package auth

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// cookieAuthenticator accepts requests carrying the cookie "id=good",
// treats any other id as broken and "id=down" as an unreachable backend.
func cookieAuthenticator() Authenticator {
	return AuthenticatorFunc(func(r *http.Request) (*Identity, bool, error) {
		c, err := r.Cookie("id")
		if err != nil {
			return nil, false, nil
		}
		switch c.Value {
		case "good":
			return &Identity{Subject: "alice", Groups: []string{"users"}}, true, nil
		case "down":
			return nil, false, fmt.Errorf("%w: login.cgi timed out", ErrAuthBackend)
		}
		return nil, false, errors.New("invalid session")
	})
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		opts        []MiddlewareOption
		path        string
		cookie      string
		wantCode    int
		wantSubject string
		wantCalled  bool
	}{
		{
			name:        "valid session",
			path:        "/whoami",
			cookie:      "good",
			wantCode:    http.StatusOK,
			wantSubject: "alice",
			wantCalled:  true,
		},
		{
			name:     "no session when required",
			opts:     []MiddlewareOption{WithRequireAuth(true)},
			path:     "/whoami",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:       "no session when optional",
			opts:       []MiddlewareOption{WithRequireAuth(false)},
			path:       "/whoami",
			wantCode:   http.StatusOK,
			wantCalled: true,
		},
		{
			name:     "invalid session even when optional",
			opts:     []MiddlewareOption{WithRequireAuth(false)},
			path:     "/whoami",
			cookie:   "bad",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "backend unavailable",
			path:     "/whoami",
			cookie:   "down",
			wantCode: http.StatusBadGateway,
		},
		{
			name:       "excluded path skips authentication",
			opts:       []MiddlewareOption{WithExcludedPaths("/healthz", "/metrics")},
			path:       "/metrics",
			cookie:     "bad",
			wantCode:   http.StatusOK,
			wantCalled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			var subject string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				if id := IdentityFromContext(r.Context()); id != nil {
					subject = id.Subject
				}
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "id", Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			NewMiddleware(cookieAuthenticator(), tt.opts...).Wrap(handler).ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, rec.Code)
			}
			if called != tt.wantCalled {
				t.Errorf("Expected handler called = %v, got %v", tt.wantCalled, called)
			}
			if subject != tt.wantSubject {
				t.Errorf("Expected subject %q, got %q", tt.wantSubject, subject)
			}
			if rec.Code == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("Expected WWW-Authenticate header on 401")
			}
		})
	}
}

func TestMiddleware_CustomUnauthorizedHandler(t *testing.T) {
	var receivedErr error
	middleware := NewMiddleware(cookieAuthenticator(),
		WithUnauthorizedHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			receivedErr = err
			http.Redirect(w, r, "/webman/index.cgi", http.StatusFound)
		}),
	)

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: "id", Value: "bad"})
	rec := httptest.NewRecorder()
	middleware.Wrap(http.NotFoundHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Errorf("Expected status 302, got %d", rec.Code)
	}
	if receivedErr == nil {
		t.Error("Expected error to be passed to custom handler")
	}
}
