package synology

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dsbridge/dsbridge/pkg/cgiresp"
	"github.com/dsbridge/dsbridge/pkg/invoke"
)

func TestUserID(t *testing.T) {
	inv := newFakeInvoker()
	inv.outputs["id -u alice"] = "1026\n"
	inv.outputs["id -u ghost"] = ""
	inv.outputs["id -u weird"] = "uid: 12"
	b := newTestBridge(inv)
	ctx := context.Background()

	tests := []struct {
		username string
		wantUID  int
		wantOK   bool
	}{
		{"alice", 1026, true},
		{"ghost", 0, false},
		{"weird", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			uid, ok, err := b.UserID(ctx, tt.username)
			if err != nil {
				t.Fatalf("UserID() error = %v", err)
			}
			if uid != tt.wantUID || ok != tt.wantOK {
				t.Errorf("UserID() = %d, %v; want %d, %v", uid, ok, tt.wantUID, tt.wantOK)
			}
		})
	}
}

func TestUserID_QuotesUsername(t *testing.T) {
	inv := newFakeInvoker()
	b := newTestBridge(inv)

	if _, _, err := b.UserID(context.Background(), "x; rm -rf /"); err != nil {
		t.Fatalf("UserID() error = %v", err)
	}
	if got, want := inv.calls[0].Line, "id -u 'x; rm -rf /'"; got != want {
		t.Errorf("command line = %q, want %q", got, want)
	}
}

func TestUserGroupNames(t *testing.T) {
	inv := newFakeInvoker()
	inv.outputs["id -Gn alice"] = "users administrators http"
	b := newTestBridge(inv)
	ctx := context.Background()

	got, err := b.UserGroupNames(ctx, "alice")
	if err != nil {
		t.Fatalf("UserGroupNames() error = %v", err)
	}
	if diff := cmp.Diff([]string{"users", "administrators", "http"}, got); diff != "" {
		t.Errorf("groups mismatch (-want +got):\n%s", diff)
	}

	got, err = b.UserGroupNames(ctx, "ghost")
	if err != nil {
		t.Fatalf("UserGroupNames() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no groups for unknown user, got %q", got)
	}
}

func TestUserGroupIDs(t *testing.T) {
	inv := newFakeInvoker()
	inv.outputs["id -G alice"] = "100 101 1023"
	inv.outputs["id -G ghost"] = ""
	inv.outputs["id -G broken"] = "100 abc"
	b := newTestBridge(inv)
	ctx := context.Background()

	got, err := b.UserGroupIDs(ctx, "alice")
	if err != nil {
		t.Fatalf("UserGroupIDs() error = %v", err)
	}
	if diff := cmp.Diff([]int{100, 101, 1023}, got); diff != "" {
		t.Errorf("gids mismatch (-want +got):\n%s", diff)
	}

	got, err = b.UserGroupIDs(ctx, "ghost")
	if err != nil {
		t.Fatalf("UserGroupIDs() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected an empty slice, got %#v", got)
	}

	_, err = b.UserGroupIDs(ctx, "broken")
	if !errors.Is(err, cgiresp.ErrUnexpectedResponse) {
		t.Errorf("expected ErrUnexpectedResponse, got %v", err)
	}
}

func TestIsAdministrator(t *testing.T) {
	inv := newFakeInvoker()
	inv.outputs["id -G admin"] = "100 101"
	inv.outputs["id -G alice"] = "100"
	b := newTestBridge(inv)
	ctx := context.Background()

	if ok, err := b.IsAdministrator(ctx, "admin"); err != nil || !ok {
		t.Errorf("IsAdministrator(admin) = %v, %v; want true", ok, err)
	}
	if ok, err := b.IsAdministrator(ctx, "alice"); err != nil || ok {
		t.Errorf("IsAdministrator(alice) = %v, %v; want false", ok, err)
	}
}

func TestLookup(t *testing.T) {
	inv := newFakeInvoker()
	inv.outputs["id -u admin"] = "1024"
	inv.outputs["id -G admin"] = "100 101"
	inv.outputs["id -Gn admin"] = "users administrators"
	b := newTestBridge(inv)
	ctx := context.Background()

	u, err := b.Lookup(ctx, "admin")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	want := &User{
		Name:       "admin",
		UID:        1024,
		GroupIDs:   []int{100, 101},
		GroupNames: []string{"users", "administrators"},
	}
	if diff := cmp.Diff(want, u); diff != "" {
		t.Errorf("user mismatch (-want +got):\n%s", diff)
	}
	if !u.IsAdministrator() {
		t.Error("expected admin to be an administrator")
	}

	u, err = b.Lookup(ctx, "ghost")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if u != nil {
		t.Errorf("expected nil user, got %+v", u)
	}
}

func TestUserLookups_RealID(t *testing.T) {
	if _, err := exec.LookPath("id"); err != nil {
		t.Skip("id not available")
	}
	if _, err := exec.LookPath(invoke.DefaultShell); err != nil {
		t.Skip("shell not available")
	}

	b := New(DefaultConfig(), invoke.New(nil))
	ctx := context.Background()

	uid, ok, err := b.UserID(ctx, "root")
	if err != nil {
		t.Fatalf("UserID(root) error = %v", err)
	}
	if !ok || uid != 0 {
		t.Errorf("UserID(root) = %d, %v; want 0, true", uid, ok)
	}

	_, ok, err = b.UserID(ctx, "nonexistent-user-xyz")
	if err != nil {
		t.Fatalf("UserID() error = %v", err)
	}
	if ok {
		t.Error("expected unknown user to be absent")
	}

	gids, err := b.UserGroupIDs(ctx, "nonexistent-user-xyz")
	if err != nil {
		t.Fatalf("UserGroupIDs() error = %v", err)
	}
	if len(gids) != 0 {
		t.Errorf("expected no groups for unknown user, got %v", gids)
	}

	gids, err = b.UserGroupIDs(ctx, "root")
	if err != nil {
		t.Fatalf("UserGroupIDs(root) error = %v", err)
	}
	if len(gids) == 0 {
		t.Error("expected root to belong to at least one group")
	}
}
