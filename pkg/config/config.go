// Package config provides unified configuration for anfrage clients.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (ANFRAGE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"time"

	"github.com/anfrage-dev/anfrage/pkg/auth"
	"github.com/anfrage-dev/anfrage/pkg/provider"
	toolsmcp "github.com/anfrage-dev/anfrage/pkg/tools/mcp"
)

// Config holds all configuration for an anfrage client.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Auth     AuthConfig     `yaml:"auth"`
	Model    string         `yaml:"model"`
	Retry    RetryConfig    `yaml:"retry"`
	History  HistoryConfig  `yaml:"history"`
	MCP      MCPConfig      `yaml:"mcp"`
}

// ProviderConfig describes the Responses API endpoint to talk to.
type ProviderConfig struct {
	Name        string            `yaml:"name"`         // default: "openai"
	BaseURL     string            `yaml:"base_url"`     // required
	Wire        string            `yaml:"wire"`         // "sse" or "socket", default: "sse"
	QueryParams map[string]string `yaml:"query_params"` // e.g. Azure api-version
	Headers     map[string]string `yaml:"headers"`

	StreamIdleTimeout time.Duration `yaml:"stream_idle_timeout"` // default: 5m
}

// AuthConfig holds endpoint credentials.
type AuthConfig struct {
	APIKey     string `yaml:"api_key"`
	APIKeyFile string `yaml:"api_key_file"` // _file variant for api_key
	AccountID  string `yaml:"account_id"`   // optional ChatGPT account selector
}

// RetryConfig tunes the retry controller. Zero fields fall back to the
// built-in policy.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	MaxElapsed    time.Duration `yaml:"max_elapsed"`
}

// HistoryConfig selects the local transcript store.
type HistoryConfig struct {
	Type     string         `yaml:"type"`     // "none", "memory" or "postgres", default: "none"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 1000
	TTL      time.Duration  `yaml:"ttl"`      // for memory store, 0 disables expiry
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"` // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// MCPConfig holds MCP tool server settings.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes a single MCP server connection.
type MCPServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "sse" or "streamable-http"
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
	Auth      MCPAuthConfig     `yaml:"auth"`
}

// MCPAuthConfig holds dynamic auth settings for an MCP server.
type MCPAuthConfig struct {
	Type             string   `yaml:"type"` // "oauth_client_credentials"
	TokenURL         string   `yaml:"token_url"`
	ClientID         string   `yaml:"client_id"`
	ClientIDFile     string   `yaml:"client_id_file"`
	ClientSecret     string   `yaml:"client_secret"`
	ClientSecretFile string   `yaml:"client_secret_file"`
	Scopes           []string `yaml:"scopes"`
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Provider: ProviderConfig{
			Name:              "openai",
			Wire:              "sse",
			StreamIdleTimeout: 5 * time.Minute,
		},
		History: HistoryConfig{
			Type:    "none",
			MaxSize: 1000,
			Postgres: PostgresConfig{
				MaxConns: 10,
			},
		},
	}
}

// BuildProvider converts the provider section into a resolved profile.
func (c *Config) BuildProvider() *provider.Provider {
	p := provider.New(c.Provider.Name, c.Provider.BaseURL, provider.WireProtocol(c.Provider.Wire))
	if len(c.Provider.QueryParams) > 0 {
		p.QueryParams = c.Provider.QueryParams
	}
	if len(c.Provider.Headers) > 0 {
		p.Headers = c.Provider.Headers
	}
	if c.Provider.StreamIdleTimeout > 0 {
		p.StreamIdleTimeout = c.Provider.StreamIdleTimeout
	}
	p.Retry = provider.RetryConfig{
		MaxAttempts:   c.Retry.MaxAttempts,
		InitialDelay:  c.Retry.InitialDelay,
		BackoffFactor: c.Retry.BackoffFactor,
		MaxDelay:      c.Retry.MaxDelay,
		MaxElapsed:    c.Retry.MaxElapsed,
	}
	return p
}

// BuildCredentials converts the auth section into a credential source.
// Returns nil when no API key is configured.
func (c *Config) BuildCredentials() auth.Credentials {
	if c.Auth.APIKey == "" {
		return nil
	}
	if c.Auth.AccountID != "" {
		return auth.AccountKey{Key: c.Auth.APIKey, Account: c.Auth.AccountID}
	}
	return auth.StaticKey(c.Auth.APIKey)
}

// ToServerConfig converts an MCP server entry to the form the tools
// layer consumes.
func (s MCPServerConfig) ToServerConfig() toolsmcp.ServerConfig {
	return toolsmcp.ServerConfig{
		Name:      s.Name,
		Transport: s.Transport,
		URL:       s.URL,
		Headers:   s.Headers,
		Auth: toolsmcp.AuthConfig{
			Type:         s.Auth.Type,
			TokenURL:     s.Auth.TokenURL,
			ClientID:     s.Auth.ClientID,
			ClientSecret: s.Auth.ClientSecret,
			Scopes:       s.Auth.Scopes,
		},
	}
}
