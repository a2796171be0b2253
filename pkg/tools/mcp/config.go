package mcp

// Config holds the MCP server connections for a client.
type Config struct {
	Servers []ServerConfig `json:"servers" yaml:"servers"`
}

// ServerConfig describes one MCP server connection.
type ServerConfig struct {
	// Name identifies the server in logs and error messages.
	Name string `json:"name" yaml:"name"`

	// Transport selects the wire protocol: "sse" or "streamable-http".
	// Empty defaults to "streamable-http".
	Transport string `json:"transport" yaml:"transport"`

	// URL is the server endpoint.
	URL string `json:"url" yaml:"url"`

	// Headers are sent with every request, typically API keys.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Auth configures dynamic authentication. Static header auth goes
	// in Headers instead.
	Auth AuthConfig `json:"auth,omitempty" yaml:"auth,omitempty"`
}

// AuthConfig selects an authentication scheme for an MCP server.
type AuthConfig struct {
	// Type is the scheme name. Supported: "oauth_client_credentials".
	// Empty means no dynamic auth.
	Type string `json:"type" yaml:"type"`

	TokenURL     string   `json:"token_url,omitempty" yaml:"token_url,omitempty"`
	ClientID     string   `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	ClientSecret string   `json:"client_secret,omitempty" yaml:"client_secret,omitempty"`
	Scopes       []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}
