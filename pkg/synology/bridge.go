// Package synology bridges a web application to the login subsystem of a
// Synology DiskStation.
//
// The bridge never validates credentials itself. It runs the DSM web
// management CGI scripts with the current browser request passed through
// the environment and interprets what they print, and it resolves users
// and groups with id(1).
package synology

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/dsbridge/dsbridge/pkg/cgiresp"
	"github.com/dsbridge/dsbridge/pkg/invoke"
	"github.com/dsbridge/dsbridge/pkg/retry"
)

// Default locations of the DSM programs.
const (
	DefaultLoginCGI        = "/usr/syno/synoman/webman/login.cgi"
	DefaultLogoutCGI       = "/usr/syno/synoman/webman/logout.cgi"
	DefaultAuthenticateCGI = "/usr/syno/synoman/webman/modules/authenticate.cgi"
	DefaultIDCommand       = "id"
)

// Config holds the commands run by the bridge.
type Config struct {
	LoginCGI        string
	LogoutCGI       string
	AuthenticateCGI string
	IDCommand       string
}

// DefaultConfig returns the stock DSM command locations.
func DefaultConfig() Config {
	return Config{
		LoginCGI:        DefaultLoginCGI,
		LogoutCGI:       DefaultLogoutCGI,
		AuthenticateCGI: DefaultAuthenticateCGI,
		IDCommand:       DefaultIDCommand,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LoginCGI == "" {
		c.LoginCGI = d.LoginCGI
	}
	if c.LogoutCGI == "" {
		c.LogoutCGI = d.LogoutCGI
	}
	if c.AuthenticateCGI == "" {
		c.AuthenticateCGI = d.AuthenticateCGI
	}
	if c.IDCommand == "" {
		c.IDCommand = d.IDCommand
	}
	return c
}

// Bridge runs DSM login operations and user lookups.
// It is safe for concurrent use; invocations that touch the process
// environment are serialized by the invoker.
type Bridge struct {
	cfg     Config
	invoker invoke.Invoker
	logger  *slog.Logger
	metrics *Metrics
	retry   retry.Policy
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// WithLookupRetry retries the read-only invocations (SynoToken,
// authenticate.cgi and id) under p. Login and logout are never retried.
// When p has no Retryable func only invoke.ErrTimeout is retried.
func WithLookupRetry(p retry.Policy) Option {
	return func(b *Bridge) {
		if p.Retryable == nil {
			p.Retryable = retry.On(invoke.ErrTimeout)
		}
		b.retry = p
	}
}

// New creates a Bridge that runs commands through invoker.
func New(cfg Config, invoker invoke.Invoker, opts ...Option) *Bridge {
	b := &Bridge{
		cfg:     cfg.withDefaults(),
		invoker: invoker,
		logger:  slog.Default(),
		retry:   retry.None(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Config returns the effective configuration.
func (b *Bridge) Config() Config {
	return b.cfg
}

// lookup runs a command without side effects under the retry policy.
func (b *Bridge) lookup(ctx context.Context, cmd invoke.Command) (string, error) {
	return retry.DoValue(ctx, b.retry, func(ctx context.Context) (string, error) {
		return b.invoker.Run(ctx, cmd)
	})
}

// Login submits credentials to login.cgi. It reports false when DSM
// rejects them. On success the response headers are relayed when relay is
// set, and the issued session id is stitched into the session's cookie.
func (b *Bridge) Login(ctx context.Context, sess *Session, username, password string, relay bool) (bool, error) {
	out, err := b.invoker.Run(ctx, invoke.Command{
		Line:    b.cfg.LoginCGI,
		Query:   url.Values{"username": {username}, "passwd": {password}},
		Request: sess.Request(),
	})
	if err != nil {
		return false, fmt.Errorf("login: %w", err)
	}
	resp, err := cgiresp.Parse(out, cgiresp.Options{AllowEmptyBody: true})
	if err != nil {
		return false, fmt.Errorf("login: %w", err)
	}

	// DSM signals rejected credentials through "result", not "success".
	if resp.Result() == "error" {
		b.metrics.recordLogin(loginRejected)
		b.logger.Info("login rejected", slog.String("username", username))
		return false, nil
	}

	if relay {
		sess.relay(resp)
	}
	if sess.stitchCookie(resp) {
		b.logger.Debug("session cookie stitched", slog.String("username", username))
	}
	b.metrics.recordLogin(loginAccepted)
	b.logger.Info("login accepted", slog.String("username", username))
	return true, nil
}

// Logout runs logout.cgi for the session and relays its headers when
// relay is set. The response body is not inspected.
func (b *Bridge) Logout(ctx context.Context, sess *Session, relay bool) error {
	out, err := b.invoker.Run(ctx, invoke.Command{
		Line:    b.cfg.LogoutCGI,
		Request: sess.Request(),
	})
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	resp, err := cgiresp.Parse(out, cgiresp.Options{AllowEmptyBody: true})
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if relay {
		sess.relay(resp)
	}
	return nil
}

// SynoToken fetches the anti-forgery token of the session. ok is false when
// login.cgi returns no token or a null one. An empty body is an error here.
func (b *Bridge) SynoToken(ctx context.Context, sess *Session) (token string, ok bool, err error) {
	out, err := b.lookup(ctx, invoke.Command{
		Line:    b.cfg.LoginCGI,
		Request: sess.Request(),
	})
	if err != nil {
		return "", false, fmt.Errorf("syno token: %w", err)
	}
	resp, err := cgiresp.Parse(out, cgiresp.Options{})
	if err != nil {
		return "", false, fmt.Errorf("syno token: %w", err)
	}
	field := resp.Get("SynoToken")
	if !field.Exists() || field.Type == gjson.Null {
		return "", false, nil
	}
	return field.String(), true, nil
}

// Authenticate returns the DSM user logged in on the session. ok is false
// when there is no active session.
//
// A fresh SynoToken is fetched for every call and passed in the query
// string, as some firmware versions require it. authenticate.cgi answers
// with the bare username rather than a CGI response, so its output is used
// as is.
func (b *Bridge) Authenticate(ctx context.Context, sess *Session) (username string, ok bool, err error) {
	token, hasToken, err := b.SynoToken(ctx, sess)
	if err != nil {
		return "", false, fmt.Errorf("authenticate: %w", err)
	}

	cmd := invoke.Command{
		Line:    b.cfg.AuthenticateCGI,
		Request: sess.Request(),
	}
	if hasToken {
		cmd.Query = url.Values{"SynoToken": {token}}
	}
	out, err := b.lookup(ctx, cmd)
	if err != nil {
		return "", false, fmt.Errorf("authenticate: %w", err)
	}
	if out == "" {
		b.metrics.recordAuthenticate(false)
		return "", false, nil
	}
	b.metrics.recordAuthenticate(true)
	return out, true, nil
}
