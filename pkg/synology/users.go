package synology

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"al.essio.dev/pkg/shellescape"

	"github.com/dsbridge/dsbridge/pkg/cgiresp"
	"github.com/dsbridge/dsbridge/pkg/invoke"
)

// Well-known DSM group ids.
const (
	GroupIDUsers          = 100
	GroupIDAdministrators = 101
)

// User is a DSM account as seen by id(1).
type User struct {
	Name       string   `json:"name"`
	UID        int      `json:"uid"`
	GroupIDs   []int    `json:"gids"`
	GroupNames []string `json:"groups"`
}

// IsAdministrator reports whether the user belongs to the administrators group.
func (u *User) IsAdministrator() bool {
	return slices.Contains(u.GroupIDs, GroupIDAdministrators)
}

func (b *Bridge) id(ctx context.Context, flag, username string) (string, error) {
	line := fmt.Sprintf("%s %s %s", b.cfg.IDCommand, flag, shellescape.Quote(username))
	out, err := b.lookup(ctx, invoke.Command{Line: line})
	if err != nil {
		return "", fmt.Errorf("id %s: %w", flag, err)
	}
	return out, nil
}

// UserID returns the uid of username. ok is false for unknown users.
func (b *Bridge) UserID(ctx context.Context, username string) (uid int, ok bool, err error) {
	out, err := b.id(ctx, "-u", username)
	if err != nil {
		return 0, false, err
	}
	uid, convErr := strconv.Atoi(out)
	if convErr != nil {
		return 0, false, nil
	}
	return uid, true, nil
}

// UserGroupNames returns the names of the groups username belongs to, in
// the order id(1) prints them. Unknown users have no groups.
func (b *Bridge) UserGroupNames(ctx context.Context, username string) ([]string, error) {
	out, err := b.id(ctx, "-Gn", username)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return []string{}, nil
	}
	return strings.Split(out, " "), nil
}

// UserGroupIDs returns the ids of the groups username belongs to, in the
// order id(1) prints them. Unknown users have no groups.
func (b *Bridge) UserGroupIDs(ctx context.Context, username string) ([]int, error) {
	out, err := b.id(ctx, "-G", username)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return []int{}, nil
	}
	fields := strings.Split(out, " ")
	gids := make([]int, 0, len(fields))
	for _, f := range fields {
		gid, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("id -G: %w", &cgiresp.Error{
				Reason: fmt.Sprintf("non-numeric group id %q", f),
				Raw:    out,
			})
		}
		gids = append(gids, gid)
	}
	return gids, nil
}

// IsAdministrator reports whether username is in the administrators group.
func (b *Bridge) IsAdministrator(ctx context.Context, username string) (bool, error) {
	gids, err := b.UserGroupIDs(ctx, username)
	if err != nil {
		return false, err
	}
	return slices.Contains(gids, GroupIDAdministrators), nil
}

// Lookup resolves username to a User. It returns nil and no error when the
// user does not exist.
func (b *Bridge) Lookup(ctx context.Context, username string) (*User, error) {
	uid, ok, err := b.UserID(ctx, username)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	gids, err := b.UserGroupIDs(ctx, username)
	if err != nil {
		return nil, err
	}
	names, err := b.UserGroupNames(ctx, username)
	if err != nil {
		return nil, err
	}
	return &User{
		Name:       username,
		UID:        uid,
		GroupIDs:   gids,
		GroupNames: names,
	}, nil
}
