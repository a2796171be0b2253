package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anfrage-dev/anfrage/pkg/api"
	"github.com/anfrage-dev/anfrage/pkg/debug"
	"github.com/anfrage-dev/anfrage/pkg/tools"
)

// Client wraps an MCP SDK client session for a single server. It
// handles the connection handshake, tool discovery and tool calls.
type Client struct {
	cfg     ServerConfig
	client  *mcp.Client
	session *mcp.ClientSession

	mu       sync.Mutex
	defs     []api.ToolDefinition
	resolved bool
}

// NewClient creates a Client for the given server. Call Connect before
// using it.
func NewClient(cfg ServerConfig) *Client {
	return &Client{cfg: cfg}
}

// Connect performs the MCP handshake against the configured endpoint.
func (c *Client) Connect(ctx context.Context) error {
	return c.ConnectWithTransport(ctx, nil)
}

// ConnectWithTransport performs the handshake over the given transport.
// A nil transport is built from the server configuration; tests pass an
// in-memory transport instead.
func (c *Client) ConnectWithTransport(ctx context.Context, transport mcp.Transport) error {
	c.client = mcp.NewClient(
		&mcp.Implementation{
			Name:    "anfrage",
			Version: "1.0.0",
		},
		&mcp.ClientOptions{
			Capabilities: &mcp.ClientCapabilities{},
		},
	)

	if transport == nil {
		t, err := c.createTransport()
		if err != nil {
			return fmt.Errorf("creating transport for %q: %w", c.cfg.Name, err)
		}
		transport = t
	}

	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to MCP server %q: %w", c.cfg.Name, err)
	}
	c.session = session
	debug.Log("tools", "connected to MCP server", "server", c.cfg.Name)
	return nil
}

func (c *Client) createTransport() (mcp.Transport, error) {
	httpClient := c.buildHTTPClient()

	switch c.cfg.Transport {
	case "sse":
		t := &mcp.SSEClientTransport{Endpoint: c.cfg.URL}
		if httpClient != nil {
			t.HTTPClient = httpClient
		}
		return t, nil

	case "streamable-http", "":
		t := &mcp.StreamableClientTransport{Endpoint: c.cfg.URL}
		if httpClient != nil {
			t.HTTPClient = httpClient
		}
		return t, nil

	default:
		return nil, fmt.Errorf("unsupported transport type %q", c.cfg.Transport)
	}
}

// buildHTTPClient returns an HTTP client carrying the configured static
// headers and auth provider, or nil when neither is set.
func (c *Client) buildHTTPClient() *http.Client {
	var auth AuthProvider
	if c.cfg.Auth.Type == "oauth_client_credentials" {
		auth = NewClientCredentialsAuth(c.cfg.Auth)
	}

	if len(c.cfg.Headers) == 0 && auth == nil {
		return nil
	}
	return &http.Client{
		Transport: &authTransport{
			base:    http.DefaultTransport,
			headers: c.cfg.Headers,
			auth:    auth,
		},
	}
}

// authTransport attaches static headers and dynamically obtained auth
// headers to every request. Auth headers win on conflict.
type authTransport struct {
	base    http.RoundTripper
	headers map[string]string
	auth    AuthProvider
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	if t.auth != nil {
		authHeaders, err := t.auth.Headers(req.Context())
		if err != nil {
			return nil, fmt.Errorf("getting auth headers: %w", err)
		}
		for k, v := range authHeaders {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

// Definitions lists the server's tools as Responses API tool
// definitions. Results are cached after the first call.
func (c *Client) Definitions(ctx context.Context) ([]api.ToolDefinition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolved {
		return c.defs, nil
	}
	if c.session == nil {
		return nil, fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	var defs []api.ToolDefinition
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("listing tools from %q: %w", c.cfg.Name, err)
		}
		def, convErr := convertTool(tool)
		if convErr != nil {
			return nil, fmt.Errorf("converting tool %q from %q: %w", tool.Name, c.cfg.Name, convErr)
		}
		defs = append(defs, def)
	}

	c.defs = defs
	c.resolved = true
	debug.Log("tools", "discovered MCP tools", "server", c.cfg.Name, "count", len(defs))
	return defs, nil
}

// Call executes a tool on the server. Transport failures return an
// error; failures the tool itself reports come back in the output
// string prefixed with "error:" so the model can see them.
func (c *Client) Call(ctx context.Context, name, arguments string) (string, error) {
	if c.session == nil {
		return "", fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	var args map[string]any
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return fmt.Sprintf("error: invalid arguments JSON: %v", err), nil
		}
	}

	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("calling tool %q on %q: %w", name, c.cfg.Name, err)
	}

	output := textContent(result)
	if result.IsError {
		return "error: " + output, nil
	}
	return output, nil
}

// Close closes the MCP session.
func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

// Bind discovers the server's tools and registers each one in the
// registry with a handler that routes calls back to this client.
func (c *Client) Bind(ctx context.Context, reg *tools.Registry) error {
	defs, err := c.Definitions(ctx)
	if err != nil {
		return err
	}
	for _, def := range defs {
		name := def.Name
		handler := func(ctx context.Context, arguments string) (string, error) {
			return c.Call(ctx, name, arguments)
		}
		if err := reg.Register(def, handler); err != nil {
			return fmt.Errorf("binding tool %q from %q: %w", name, c.cfg.Name, err)
		}
	}
	return nil
}

func convertTool(t *mcp.Tool) (api.ToolDefinition, error) {
	var params json.RawMessage
	if t.InputSchema != nil {
		data, err := json.Marshal(t.InputSchema)
		if err != nil {
			return api.ToolDefinition{}, fmt.Errorf("marshaling input schema: %w", err)
		}
		params = data
	}

	return api.ToolDefinition{
		Type:        "function",
		Name:        t.Name,
		Description: t.Description,
		Parameters:  params,
	}, nil
}

// textContent joins the text parts of a tool result.
func textContent(result *mcp.CallToolResult) string {
	var out string
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			if out != "" {
				out += "\n"
			}
			out += tc.Text
		}
	}
	return out
}
