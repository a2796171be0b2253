package client

import (
	"github.com/anfrage-dev/anfrage/pkg/api"
	"github.com/anfrage-dev/anfrage/pkg/debug"
	"github.com/anfrage-dev/anfrage/pkg/provider"
	"github.com/anfrage-dev/anfrage/pkg/transport"
)

// Prompt is the caller's unit of work for one turn: the full ordered
// item history of the session plus per-turn controls. A Prompt is
// treated as immutable once submitted; the builder copies what it
// keeps.
type Prompt struct {
	// Items is the session's full ordered input history. The builder
	// truncates it to unacknowledged items when the chain permits.
	Items []api.Item

	Instructions string

	Tools      []api.ToolDefinition
	ToolChoice *api.ToolChoice

	ParallelToolCalls *bool
	Reasoning         *api.ReasoningConfig

	// Stream selects streamed delivery; nil defaults to streaming.
	Stream *bool

	// Store controls server-side persistence; nil leaves it to the
	// provider default. Providers that force storage override it.
	Store *bool

	// PreviousResponseID overrides the tracked chain head, used when a
	// caller resumes a conversation recorded elsewhere.
	PreviousResponseID string

	// IdempotencyKey is forwarded unchanged on every retry so the
	// provider can deduplicate the create call. Empty means the client
	// generates one per turn.
	IdempotencyKey string

	PromptCacheKey string
	Background     bool
	Include        []string
}

// buildRequest merges a Prompt with the session's chain state into a
// wire envelope. It returns the envelope and the number of input items
// it carries, which becomes the chain's acknowledgement increment if
// the turn completes.
func buildRequest(p *provider.Provider, model string, prompt *Prompt, chain *ChainState) (*api.CreateResponseRequest, int, error) {
	items := prompt.Items
	prevID := ""

	switch {
	case prompt.PreviousResponseID != "":
		// Explicit override: the caller vouches that Items holds only
		// the new tail of the conversation.
		prevID = prompt.PreviousResponseID

	case p.Caps.Chaining:
		lastID, acknowledged := chain.Snapshot()
		if lastID != "" {
			if acknowledged > len(items) {
				return nil, 0, &transport.ValidationError{
					Message: "input shorter than acknowledged history; reset the session to resend",
				}
			}
			// Position is authoritative: items are append-only within
			// a session, so everything before the acknowledged count
			// is already on the server.
			prevID = lastID
			items = items[acknowledged:]
		}
	}

	if len(items) == 0 && prompt.Instructions == "" {
		return nil, 0, &transport.ValidationError{Message: "nothing to send: no input items and no instructions"}
	}

	req := &api.CreateResponseRequest{
		Model:              model,
		Instructions:       prompt.Instructions,
		Input:              append([]api.Item(nil), items...),
		Tools:              normalizeTools(prompt.Tools),
		ToolChoice:         prompt.ToolChoice,
		ParallelToolCalls:  prompt.ParallelToolCalls,
		Store:              prompt.Store,
		Stream:             prompt.Stream == nil || *prompt.Stream,
		Background:         prompt.Background,
		PreviousResponseID: prevID,
		PromptCacheKey:     prompt.PromptCacheKey,
		Include:            append([]string(nil), prompt.Include...),
		IdempotencyKey:     prompt.IdempotencyKey,
	}

	if p.Caps.Reasoning {
		req.Reasoning = prompt.Reasoning
	}
	if p.Caps.ForcesStore {
		stored := true
		req.Store = &stored
	}

	debug.Log("chain", "built envelope",
		"previous_response_id", prevID, "items", len(req.Input), "stream", req.Stream)

	return req, len(req.Input), nil
}

// normalizeTools returns tool definitions ready for the wire. Tools
// lacking a name get their structural type as a fallback, which is
// harmless for providers that accept nameless entries and required
// for those that reject them.
func normalizeTools(tools []api.ToolDefinition) []api.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	out := make([]api.ToolDefinition, len(tools))
	copy(out, tools)
	for i := range out {
		if out[i].Name == "" {
			out[i].Name = out[i].Type
		}
	}
	return out
}
