// Package config provides configuration management for the xlink server. It
// handles loading and parsing the YAML configuration file, applies defaults
// and environment overrides, and supports watching the file for changes so
// provider credentials can be rotated without a restart.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Host is the listen address. Empty means all interfaces.
	Host string `yaml:"host"`

	// Port is the HTTP listen port.
	Port int `yaml:"port"`

	// DatabasePath is the SQLite file holding linked accounts and encrypted
	// credentials.
	DatabasePath string `yaml:"database-path"`

	// EncryptionSecret derives the key that encrypts stored tokens. Changing
	// it makes every stored credential permanently undecryptable, forcing a
	// full re-link of all accounts.
	EncryptionSecret string `yaml:"encryption-secret"`

	// RequestTimeoutSeconds bounds every outbound network call. <= 0 means
	// the 10 second default.
	RequestTimeoutSeconds int `yaml:"request-timeout-seconds"`

	// AdminUsernames lists X usernames granted admin standing at link time.
	AdminUsernames []string `yaml:"admin-usernames"`

	// LogFile, when set, sends logs to a rotated file instead of stderr.
	LogFile string `yaml:"log-file"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug"`

	// X holds the OAuth application settings for the X API.
	X XConfig `yaml:"x"`
}

// XConfig describes the registered X OAuth application.
type XConfig struct {
	// ClientID is the OAuth client identifier.
	ClientID string `yaml:"client-id"`

	// ClientSecret enables confidential-client HTTP Basic authentication at
	// the token endpoint. Empty means a public client.
	ClientSecret string `yaml:"client-secret"`

	// RedirectURI is the absolute callback URL registered with the provider.
	RedirectURI string `yaml:"redirect-uri"`

	// AuthorizeURL, TokenURL, RevokeURL, and APIBaseURL override the public
	// X endpoints, mainly for tests.
	AuthorizeURL string `yaml:"authorize-url,omitempty"`
	TokenURL     string `yaml:"token-url,omitempty"`
	RevokeURL    string `yaml:"revoke-url,omitempty"`
	APIBaseURL   string `yaml:"api-base-url,omitempty"`
}

// Load reads, parses, and normalizes the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 8317
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "xlink.db"
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 10
	}
}

// applyEnvOverrides lets the environment (usually a .env file loaded at
// startup) override secrets, matching the original deployment layout.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("X_CLIENT_ID"); v != "" {
		c.X.ClientID = v
	}
	if v := os.Getenv("X_CLIENT_SECRET"); v != "" {
		c.X.ClientSecret = v
	}
	if v := os.Getenv("X_REDIRECT_URI"); v != "" {
		c.X.RedirectURI = v
	}
	if v := os.Getenv("X_TOKEN_ENCRYPTION_KEY"); v != "" {
		c.EncryptionSecret = v
	}
	if v := os.Getenv("X_ADMIN_USERNAMES"); v != "" {
		c.AdminUsernames = splitList(v)
	}
}

// RequestTimeout returns the outbound call timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// IsAdminUsername reports whether the X username is on the admin list,
// case-insensitively.
func (c *Config) IsAdminUsername(username string) bool {
	if username == "" {
		return false
	}
	for _, admin := range c.AdminUsernames {
		if strings.EqualFold(strings.TrimSpace(admin), username) {
			return true
		}
	}
	return false
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
