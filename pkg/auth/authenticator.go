// Package auth resolves the DSM identity behind an HTTP request.
//
// The Authenticator interface lets the HTTP front end stay independent of
// how identities are established. The DSM implementation delegates every
// decision to the appliance through a synology.Bridge.
package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
)

// ErrAuthBackend is returned when the identity could not be resolved
// because the appliance could not be queried, as opposed to the request
// carrying no valid session.
var ErrAuthBackend = errors.New("auth backend error")

// Identity is an authenticated DSM user.
type Identity struct {
	// Subject is the DSM username.
	Subject string

	// Groups contains the names of the user's groups.
	Groups []string

	// Extra carries additional attributes, such as "uid".
	Extra map[string][]string
}

// InGroup reports whether the identity belongs to the named group.
func (id *Identity) InGroup(name string) bool {
	return id != nil && slices.Contains(id.Groups, name)
}

// Authenticator resolves the session carried by a request. It reports
// false with a nil error when the request has no valid session, and an
// error when the session could not be checked at all.
type Authenticator interface {
	AuthenticateRequest(r *http.Request) (*Identity, bool, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(r *http.Request) (*Identity, bool, error)

// AuthenticateRequest implements Authenticator.
func (f AuthenticatorFunc) AuthenticateRequest(r *http.Request) (*Identity, bool, error) {
	return f(r)
}

type contextKey struct{}

var identityKey contextKey

// IdentityFromContext returns the identity attached by the middleware, or
// nil for anonymous requests.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// ContextWithIdentity attaches id to ctx.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}
