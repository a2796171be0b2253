package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anfrage-dev/anfrage/pkg/api"
	"github.com/anfrage-dev/anfrage/pkg/tools"
)

// connectTestServer runs an MCP server with the given tools and
// connects a Client to it over in-memory transports.
func connectTestServer(t *testing.T, serverTools map[string]mcp.ToolHandler) *Client {
	t.Helper()

	server := mcp.NewServer(
		&mcp.Implementation{Name: "test-server", Version: "1.0.0"},
		nil,
	)
	for name, handler := range serverTools {
		server.AddTool(
			&mcp.Tool{
				Name:        name,
				Description: "Test tool: " + name,
				InputSchema: map[string]any{"type": "object"},
			},
			handler,
		)
	}

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() {
		_ = server.Run(ctx, serverTransport)
	}()

	client := NewClient(ServerConfig{Name: "test-server"})
	if err := client.ConnectWithTransport(ctx, clientTransport); err != nil {
		t.Fatalf("ConnectWithTransport failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func textResult(text string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, nil
	}
}

func TestDefinitionsConvertsTools(t *testing.T) {
	client := connectTestServer(t, map[string]mcp.ToolHandler{
		"get_weather": textResult("sunny"),
		"get_time":    textResult("noon"),
	})

	defs, err := client.Definitions(context.Background())
	if err != nil {
		t.Fatalf("Definitions failed: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	for _, def := range defs {
		if def.Type != "function" {
			t.Errorf("tool %q has type %q, want function", def.Name, def.Type)
		}
		if def.Name == "" {
			t.Error("tool definition has no name")
		}
		if len(def.Parameters) == 0 {
			t.Errorf("tool %q has no parameters schema", def.Name)
		}
	}
}

func TestDefinitionsAreCached(t *testing.T) {
	client := connectTestServer(t, map[string]mcp.ToolHandler{
		"get_weather": textResult("sunny"),
	})

	first, err := client.Definitions(context.Background())
	if err != nil {
		t.Fatalf("first Definitions: %v", err)
	}
	second, err := client.Definitions(context.Background())
	if err != nil {
		t.Fatalf("second Definitions: %v", err)
	}
	if len(first) != len(second) {
		t.Errorf("cached definitions differ: %d vs %d", len(first), len(second))
	}
}

func TestCallReturnsToolOutput(t *testing.T) {
	client := connectTestServer(t, map[string]mcp.ToolHandler{
		"get_weather": textResult("sunny, 22C"),
	})

	output, err := client.Call(context.Background(), "get_weather", `{"city":"Berlin"}`)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if output != "sunny, 22C" {
		t.Errorf("output = %q, want sunny, 22C", output)
	}
}

func TestCallReportsToolErrorInOutput(t *testing.T) {
	client := connectTestServer(t, map[string]mcp.ToolHandler{
		"broken": func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: "city not found"}},
			}, nil
		},
	})

	output, err := client.Call(context.Background(), "broken", "{}")
	if err != nil {
		t.Fatalf("Call should not fail for tool-reported errors: %v", err)
	}
	if !strings.HasPrefix(output, "error:") {
		t.Errorf("output should be marked as an error, got %q", output)
	}
	if !strings.Contains(output, "city not found") {
		t.Errorf("output should carry the tool message, got %q", output)
	}
}

func TestCallRejectsInvalidArgumentsJSON(t *testing.T) {
	client := connectTestServer(t, map[string]mcp.ToolHandler{
		"get_weather": textResult("sunny"),
	})

	output, err := client.Call(context.Background(), "get_weather", "{not json")
	if err != nil {
		t.Fatalf("invalid arguments should come back as tool output: %v", err)
	}
	if !strings.HasPrefix(output, "error:") {
		t.Errorf("output = %q, want an error marker", output)
	}
}

func TestCallWithoutConnection(t *testing.T) {
	client := NewClient(ServerConfig{Name: "offline"})
	if _, err := client.Call(context.Background(), "anything", ""); err == nil {
		t.Error("expected an error when not connected")
	}
	if _, err := client.Definitions(context.Background()); err == nil {
		t.Error("expected an error when not connected")
	}
}

func TestBindRoutesRegistryCallsToServer(t *testing.T) {
	client := connectTestServer(t, map[string]mcp.ToolHandler{
		"get_weather": textResult("rainy"),
	})

	reg := tools.NewRegistry()
	if err := client.Bind(context.Background(), reg); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("registry has %d tools, want 1", reg.Len())
	}

	defs := reg.Definitions()
	if defs[0].Name != "get_weather" {
		t.Fatalf("registered tool name = %q", defs[0].Name)
	}

	call := api.Item{
		Type: api.ItemTypeFunctionCall,
		FunctionCall: &api.FunctionCallData{
			Name:      "get_weather",
			CallID:    "call-1",
			Arguments: "{}",
		},
	}
	out, err := reg.Dispatch(context.Background(), call)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if out.FunctionCallOutput.Output != "rainy" {
		t.Errorf("dispatched output = %q, want rainy", out.FunctionCallOutput.Output)
	}
	if out.FunctionCallOutput.CallID != "call-1" {
		t.Errorf("CallID = %q, want call-1", out.FunctionCallOutput.CallID)
	}
}
