// Package mcp discovers tools from MCP servers and exposes them as
// Responses API tool definitions. Discovered tools can be bound into a
// tools.Registry so that function calls from the model are executed on
// the server that provides them.
package mcp
