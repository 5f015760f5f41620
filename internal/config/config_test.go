package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
port: 9090
database-path: /tmp/xlink-test.db
encryption-secret: super-secret
request-timeout-seconds: 5
admin-usernames:
  - Admin_One
  - admin_two
x:
  client-id: client-123
  client-secret: hush
  redirect-uri: https://app.example/auth/x/callback
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.EncryptionSecret != "super-secret" {
		t.Errorf("EncryptionSecret = %q", cfg.EncryptionSecret)
	}
	if cfg.RequestTimeout() != 5*time.Second {
		t.Errorf("RequestTimeout() = %v, want 5s", cfg.RequestTimeout())
	}
	if cfg.X.ClientID != "client-123" || cfg.X.ClientSecret != "hush" {
		t.Errorf("X config = %+v", cfg.X)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
x:
  client-id: client-123
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 8317 {
		t.Errorf("Port = %d, want default 8317", cfg.Port)
	}
	if cfg.DatabasePath != "xlink.db" {
		t.Errorf("DatabasePath = %q, want default", cfg.DatabasePath)
	}
	if cfg.RequestTimeout() != 10*time.Second {
		t.Errorf("RequestTimeout() = %v, want default 10s", cfg.RequestTimeout())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load() succeeded for a missing file")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("X_CLIENT_ID", "env-client")
	t.Setenv("X_TOKEN_ENCRYPTION_KEY", "env-secret")
	t.Setenv("X_ADMIN_USERNAMES", "root, Operator ,")

	path := writeConfig(t, `
encryption-secret: file-secret
x:
  client-id: file-client
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.X.ClientID != "env-client" {
		t.Errorf("ClientID = %q, want env override", cfg.X.ClientID)
	}
	if cfg.EncryptionSecret != "env-secret" {
		t.Errorf("EncryptionSecret = %q, want env override", cfg.EncryptionSecret)
	}
	if len(cfg.AdminUsernames) != 2 || cfg.AdminUsernames[0] != "root" || cfg.AdminUsernames[1] != "Operator" {
		t.Errorf("AdminUsernames = %v", cfg.AdminUsernames)
	}
}

func TestConfig_IsAdminUsername(t *testing.T) {
	cfg := &Config{AdminUsernames: []string{"Root", " operator "}}

	tests := []struct {
		name     string
		username string
		want     bool
	}{
		{name: "exact", username: "Root", want: true},
		{name: "case-insensitive", username: "root", want: true},
		{name: "trimmed entry", username: "OPERATOR", want: true},
		{name: "unknown", username: "visitor", want: false},
		{name: "empty", username: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.IsAdminUsername(tt.username); got != tt.want {
				t.Errorf("IsAdminUsername(%q) = %v, want %v", tt.username, got, tt.want)
			}
		})
	}
}
