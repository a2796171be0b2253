package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid
// values. Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Provider.BaseURL == "" {
		errs = append(errs, fmt.Errorf("provider.base_url is required"))
	}

	switch c.Provider.Wire {
	case "sse", "socket", "":
		// valid
	default:
		errs = append(errs, fmt.Errorf("provider.wire must be \"sse\" or \"socket\", got %q", c.Provider.Wire))
	}

	switch c.History.Type {
	case "none", "memory", "postgres", "":
		// valid
	default:
		errs = append(errs, fmt.Errorf("history.type must be \"none\", \"memory\" or \"postgres\", got %q", c.History.Type))
	}

	if c.History.Type == "postgres" {
		if c.History.Postgres.DSN == "" && c.History.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("history.postgres.dsn or history.postgres.dsn_file is required when history.type is \"postgres\""))
		}
	}

	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be >= 0, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.BackoffFactor != 0 && c.Retry.BackoffFactor < 1 {
		errs = append(errs, fmt.Errorf("retry.backoff_factor must be >= 1, got %g", c.Retry.BackoffFactor))
	}

	for i, srv := range c.MCP.Servers {
		if srv.URL == "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].url is required", i))
		}
		switch srv.Transport {
		case "sse", "streamable-http", "":
			// valid
		default:
			errs = append(errs, fmt.Errorf("mcp.servers[%d].transport must be \"sse\" or \"streamable-http\", got %q", i, srv.Transport))
		}
		switch srv.Auth.Type {
		case "", "oauth_client_credentials":
			// valid
		default:
			errs = append(errs, fmt.Errorf("mcp.servers[%d].auth.type must be \"oauth_client_credentials\" or empty, got %q", i, srv.Auth.Type))
		}
	}

	return errors.Join(errs...)
}
