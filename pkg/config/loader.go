package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, ANFRAGE_CONFIG env, ./anfrage.yaml, /etc/anfrage/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. ANFRAGE_CONFIG environment variable
// 3. ./anfrage.yaml in the current directory
// 4. /etc/anfrage/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("ANFRAGE_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"anfrage.yaml",
		"/etc/anfrage/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps ANFRAGE_* environment variables to config
// fields. Env vars win over file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ANFRAGE_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("ANFRAGE_PROVIDER"); v != "" {
		cfg.Provider.Name = v
	}
	if v := os.Getenv("ANFRAGE_WIRE"); v != "" {
		cfg.Provider.Wire = v
	}
	if v := os.Getenv("ANFRAGE_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("ANFRAGE_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("ANFRAGE_ACCOUNT_ID"); v != "" {
		cfg.Auth.AccountID = v
	}
	if v := os.Getenv("ANFRAGE_HISTORY"); v != "" {
		cfg.History.Type = v
	}
	if v := os.Getenv("ANFRAGE_HISTORY_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			cfg.History.MaxSize = size
		}
	}
	if v := os.Getenv("ANFRAGE_HISTORY_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			cfg.History.TTL = ttl
		}
	}
	if v := os.Getenv("ANFRAGE_POSTGRES_DSN"); v != "" {
		cfg.History.Postgres.DSN = v
	}
	if v := os.Getenv("ANFRAGE_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retry.MaxAttempts = n
		}
	}

	// ANFRAGE_MCP_SERVERS: JSON array of MCP server configs.
	if v := os.Getenv("ANFRAGE_MCP_SERVERS"); v != "" {
		servers, err := parseMCPServersJSON(v)
		if err == nil && len(servers) > 0 {
			cfg.MCP.Servers = servers
		}
	}
}

// parseMCPServersJSON parses a JSON array of MCP server configurations.
func parseMCPServersJSON(jsonStr string) ([]MCPServerConfig, error) {
	var servers []MCPServerConfig
	if err := json.Unmarshal([]byte(jsonStr), &servers); err != nil {
		return nil, fmt.Errorf("parsing MCP servers JSON: %w", err)
	}
	return servers, nil
}

// resolveFileReferences reads _file fields and populates the
// corresponding value fields. A _file reference only applies when the
// plain field is empty.
func resolveFileReferences(cfg *Config) error {
	if cfg.Auth.APIKeyFile != "" && cfg.Auth.APIKey == "" {
		val, err := readSecretFile(cfg.Auth.APIKeyFile)
		if err != nil {
			return fmt.Errorf("auth.api_key_file: %w", err)
		}
		cfg.Auth.APIKey = val
	}

	if cfg.History.Postgres.DSNFile != "" && cfg.History.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.History.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("history.postgres.dsn_file: %w", err)
		}
		cfg.History.Postgres.DSN = val
	}

	for i := range cfg.MCP.Servers {
		srvAuth := &cfg.MCP.Servers[i].Auth
		if srvAuth.ClientIDFile != "" && srvAuth.ClientID == "" {
			val, err := readSecretFile(srvAuth.ClientIDFile)
			if err != nil {
				return fmt.Errorf("mcp.servers[%d].auth.client_id_file: %w", i, err)
			}
			srvAuth.ClientID = val
		}
		if srvAuth.ClientSecretFile != "" && srvAuth.ClientSecret == "" {
			val, err := readSecretFile(srvAuth.ClientSecretFile)
			if err != nil {
				return fmt.Errorf("mcp.servers[%d].auth.client_secret_file: %w", i, err)
			}
			srvAuth.ClientSecret = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding
// whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
