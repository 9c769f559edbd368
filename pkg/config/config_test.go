package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dsbridge/dsbridge/pkg/synology"
)

func TestLoad(t *testing.T) {
	yaml := `
server:
  address: "127.0.0.1:9000"
  relay_headers: false
bridge:
  login_cgi: /opt/dsm/login.cgi
  timeout: 3s
  retry:
    attempts: 3
log:
  level: debug
  format: text
`
	path := filepath.Join(t.TempDir(), "dsbridge.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Address != "127.0.0.1:9000" {
		t.Errorf("expected address 127.0.0.1:9000, got %s", cfg.Server.Address)
	}
	if cfg.Server.Relay() {
		t.Error("expected relay_headers false")
	}
	if cfg.Bridge.LoginCGI != "/opt/dsm/login.cgi" {
		t.Errorf("expected custom login_cgi, got %s", cfg.Bridge.LoginCGI)
	}
	if cfg.Bridge.LogoutCGI != synology.DefaultLogoutCGI {
		t.Errorf("expected default logout_cgi, got %s", cfg.Bridge.LogoutCGI)
	}
	if cfg.Bridge.Timeout != 3*time.Second {
		t.Errorf("expected timeout 3s, got %s", cfg.Bridge.Timeout)
	}
	if p := cfg.Bridge.LookupRetry(); p.Attempts != 3 || p.Delay != 200*time.Millisecond {
		t.Errorf("expected 3 attempts with 200ms delay, got %d and %s", p.Attempts, p.Delay)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("unexpected log config: %+v", cfg.Log)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "reading config") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Address != ":8470" {
		t.Errorf("expected default address :8470, got %s", cfg.Server.Address)
	}
	if !cfg.Server.Relay() {
		t.Error("expected headers to be relayed by default")
	}
	if cfg.Server.ReadHeaderTimeout != 10*time.Second {
		t.Errorf("expected read header timeout 10s, got %s", cfg.Server.ReadHeaderTimeout)
	}
	if cfg.Bridge.Timeout != 10*time.Second {
		t.Errorf("expected bridge timeout 10s, got %s", cfg.Bridge.Timeout)
	}
	if cfg.Bridge.Shell != "/bin/sh" {
		t.Errorf("expected shell /bin/sh, got %s", cfg.Bridge.Shell)
	}

	if cfg.Bridge.Retry.Attempts != 1 {
		t.Errorf("expected lookups not to be retried by default, got %d attempts", cfg.Bridge.Retry.Attempts)
	}

	sc := cfg.Bridge.SynologyConfig()
	if sc != synology.DefaultConfig() {
		t.Errorf("expected stock DSM commands, got %+v", sc)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"negative timeout", "bridge:\n  timeout: -1s\n", "timeout must be >= 0"},
		{"relative cgi", "bridge:\n  login_cgi: webman/login.cgi\n", "login_cgi must be an absolute path"},
		{"negative retries", "bridge:\n  retry:\n    attempts: -2\n", "retry attempts must be >= 0"},
		{"bad level", "log:\n  level: chatty\n", "unknown level"},
		{"bad format", "log:\n  format: xml\n", "unknown format"},
		{"bad duration", "bridge:\n  timeout: soon\n", "parsing config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"info", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Errorf("ParseLevel(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
