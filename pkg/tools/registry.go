package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/anfrage-dev/anfrage/pkg/api"
	"github.com/anfrage-dev/anfrage/pkg/debug"
)

// Handler executes a single tool call. The arguments are the raw JSON
// string the model produced; the returned string becomes the output of
// the function_call_output item. A returned error means the tool could
// not run at all; errors the tool itself reports should be encoded in
// the output string so the model can react to them.
type Handler func(ctx context.Context, arguments string) (string, error)

// Registry holds the tools available to a session. It yields the
// definitions to send with each request and dispatches the function
// calls that come back.
type Registry struct {
	mu       sync.RWMutex
	defs     []api.ToolDefinition
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a tool. A definition without a name uses its type as
// the name, matching how the request builder normalizes tools on the
// wire. Registering the same name twice is an error.
func (r *Registry) Register(def api.ToolDefinition, h Handler) error {
	name := def.Name
	if name == "" {
		name = def.Type
	}
	if name == "" {
		return fmt.Errorf("tool definition has neither name nor type")
	}
	if h == nil {
		return fmt.Errorf("tool %q registered without a handler", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	def.Name = name
	r.defs = append(r.defs, def)
	r.handlers[name] = h
	return nil
}

// Definitions returns a copy of the registered tool definitions, in
// registration order.
func (r *Registry) Definitions() []api.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]api.ToolDefinition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Dispatch runs the handler for a function_call item and returns the
// matching function_call_output item. An unknown tool name or a handler
// failure produces an output item describing the problem rather than an
// error, so the model sees what went wrong; only a malformed call item
// is an error.
func (r *Registry) Dispatch(ctx context.Context, call api.Item) (api.Item, error) {
	if call.Type != api.ItemTypeFunctionCall || call.FunctionCall == nil {
		return api.Item{}, fmt.Errorf("cannot dispatch item of type %q", call.Type)
	}
	fc := call.FunctionCall
	if fc.CallID == "" {
		return api.Item{}, fmt.Errorf("function call %q has no call_id", fc.Name)
	}

	r.mu.RLock()
	h, ok := r.handlers[fc.Name]
	r.mu.RUnlock()
	if !ok {
		debug.Log("tools", "no handler for tool", "name", fc.Name, "call_id", fc.CallID)
		return api.FunctionOutput(fc.CallID, fmt.Sprintf("error: no tool named %q is available", fc.Name)), nil
	}

	output, err := h(ctx, fc.Arguments)
	if err != nil {
		debug.Log("tools", "tool handler failed", "name", fc.Name, "error", err)
		return api.FunctionOutput(fc.CallID, fmt.Sprintf("error: %v", err)), nil
	}
	return api.FunctionOutput(fc.CallID, output), nil
}

// DispatchAll runs every function_call item in the given output and
// returns the output items in call order. Non-call items are skipped.
// It stops early if the context is cancelled.
func (r *Registry) DispatchAll(ctx context.Context, output []api.Item) ([]api.Item, error) {
	var results []api.Item
	for _, item := range output {
		if item.Type != api.ItemTypeFunctionCall {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := r.Dispatch(ctx, item)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}
