// Package tools turns function calls returned by a model into
// function call outputs that can be fed back on the next turn.
//
// A Registry maps tool names to handlers and produces the tool
// definitions advertised with each request. The mcp subpackage
// discovers tools from MCP servers and binds them into a Registry.
package tools
