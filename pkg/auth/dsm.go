package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dsbridge/dsbridge/pkg/invoke"
	"github.com/dsbridge/dsbridge/pkg/synology"
)

// Resolver is the part of synology.Bridge used to identify a session.
type Resolver interface {
	Authenticate(ctx context.Context, sess *synology.Session) (string, bool, error)
	UserID(ctx context.Context, username string) (int, bool, error)
	UserGroupNames(ctx context.Context, username string) ([]string, error)
}

// DSMAuthenticator identifies requests by the DSM web session they carry.
type DSMAuthenticator struct {
	resolver Resolver
}

// NewDSMAuthenticator creates an authenticator backed by resolver.
func NewDSMAuthenticator(resolver Resolver) *DSMAuthenticator {
	return &DSMAuthenticator{resolver: resolver}
}

// AuthenticateRequest implements Authenticator. Requests without cookies
// are not sent to the appliance since DSM sessions are cookie based.
func (a *DSMAuthenticator) AuthenticateRequest(r *http.Request) (*Identity, bool, error) {
	if r.Header.Get("Cookie") == "" {
		return nil, false, nil
	}

	ctx := r.Context()
	// Identifying a session never relays headers to the client.
	sess := synology.NewSession(invoke.RequestFromHTTP(r), nil)
	username, ok, err := a.resolver.Authenticate(ctx, sess)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrAuthBackend, err)
	}
	if !ok {
		return nil, false, nil
	}

	groups, err := a.resolver.UserGroupNames(ctx, username)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrAuthBackend, err)
	}
	id := &Identity{Subject: username, Groups: groups}
	if uid, ok, err := a.resolver.UserID(ctx, username); err == nil && ok {
		id.Extra = map[string][]string{"uid": {strconv.Itoa(uid)}}
	}
	return id, true, nil
}
