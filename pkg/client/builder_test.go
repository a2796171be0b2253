package client

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/anfrage-dev/anfrage/pkg/api"
	"github.com/anfrage-dev/anfrage/pkg/provider"
	"github.com/anfrage-dev/anfrage/pkg/transport"
)

func sseProfile() *provider.Provider {
	return provider.New("test", "https://api.example.com/v1", provider.WireSSE)
}

func TestBuildFirstTurnSendsFullHistory(t *testing.T) {
	var chain ChainState
	prompt := &Prompt{
		Instructions: "be helpful",
		Items: []api.Item{
			api.UserMessage("context"),
			api.UserMessage("question"),
		},
	}

	req, sent, err := buildRequest(sseProfile(), "gpt-5", prompt, &chain)
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if sent != 2 || len(req.Input) != 2 {
		t.Errorf("sent = %d, input = %d, want both 2", sent, len(req.Input))
	}
	if req.PreviousResponseID != "" {
		t.Errorf("previous_response_id = %q, want empty on first turn", req.PreviousResponseID)
	}
}

func TestBuildChainedTurnTruncatesByPosition(t *testing.T) {
	var chain ChainState
	chain.Record("resp-1", 2)

	history := []api.Item{
		api.UserMessage("context"),
		api.UserMessage("question"),
		api.FunctionOutput("call-1", "tool result"),
	}

	req, sent, err := buildRequest(sseProfile(), "gpt-5", &Prompt{Items: history}, &chain)
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if req.PreviousResponseID != "resp-1" {
		t.Errorf("previous_response_id = %q, want resp-1", req.PreviousResponseID)
	}
	if sent != 1 || len(req.Input) != 1 {
		t.Fatalf("sent = %d, input = %d, want only the unacknowledged item", sent, len(req.Input))
	}
	if req.Input[0].Type != api.ItemTypeFunctionCallOutput {
		t.Errorf("input[0] = %s, want the new tool output", req.Input[0].Type)
	}
}

func TestBuildOmitsChainFieldEntirely(t *testing.T) {
	var chain ChainState
	req, _, err := buildRequest(sseProfile(), "gpt-5", &Prompt{
		Items: []api.Item{api.UserMessage("hi")},
	}, &chain)
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}

	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// Absent, not null: some providers reject an explicit null.
	if strings.Contains(string(raw), "previous_response_id") {
		t.Errorf("payload contains previous_response_id: %s", raw)
	}
}

func TestBuildChainingDisabledSendsFullHistory(t *testing.T) {
	p := sseProfile()
	p.Caps.Chaining = false

	var chain ChainState
	chain.Record("resp-1", 1)

	history := []api.Item{
		api.UserMessage("first"),
		api.UserMessage("second"),
	}
	req, sent, err := buildRequest(p, "gpt-5", &Prompt{Items: history}, &chain)
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if req.PreviousResponseID != "" {
		t.Errorf("previous_response_id = %q, provider does not chain", req.PreviousResponseID)
	}
	if sent != 2 {
		t.Errorf("sent = %d, want full history", sent)
	}
}

func TestBuildExplicitChainOverride(t *testing.T) {
	var chain ChainState
	chain.Record("resp-tracked", 5)

	req, sent, err := buildRequest(sseProfile(), "gpt-5", &Prompt{
		Items:              []api.Item{api.UserMessage("resumed")},
		PreviousResponseID: "resp-external",
	}, &chain)
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if req.PreviousResponseID != "resp-external" {
		t.Errorf("previous_response_id = %q, want the override", req.PreviousResponseID)
	}
	if sent != 1 {
		t.Errorf("sent = %d, override items are sent as-is", sent)
	}
}

func TestBuildInputShorterThanAcknowledged(t *testing.T) {
	var chain ChainState
	chain.Record("resp-1", 3)

	_, _, err := buildRequest(sseProfile(), "gpt-5", &Prompt{
		Items: []api.Item{api.UserMessage("only one")},
	}, &chain)

	var ve *transport.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("got %v (%T), want *ValidationError", err, err)
	}
}

func TestBuildEmptyPayloadRejected(t *testing.T) {
	var chain ChainState
	_, _, err := buildRequest(sseProfile(), "gpt-5", &Prompt{}, &chain)

	var ve *transport.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("got %v (%T), want *ValidationError", err, err)
	}
}

func TestBuildInstructionsOnlyAllowed(t *testing.T) {
	var chain ChainState
	req, sent, err := buildRequest(sseProfile(), "gpt-5", &Prompt{
		Instructions: "summarize the session",
	}, &chain)
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if sent != 0 || len(req.Input) != 0 {
		t.Errorf("sent = %d, input = %d", sent, len(req.Input))
	}
}

func TestBuildToolNameFallback(t *testing.T) {
	var chain ChainState
	req, _, err := buildRequest(sseProfile(), "gpt-5", &Prompt{
		Items: []api.Item{api.UserMessage("hi")},
		Tools: []api.ToolDefinition{
			{Type: "function", Name: "read_file"},
			{Type: "web_search"},
		},
	}, &chain)
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if req.Tools[0].Name != "read_file" {
		t.Errorf("named tool renamed to %q", req.Tools[0].Name)
	}
	if req.Tools[1].Name != "web_search" {
		t.Errorf("unnamed tool name = %q, want its type", req.Tools[1].Name)
	}
}

// A hand-built profile with no capability flags still gets the
// type-as-name fallback; the padding is harmless everywhere.
func TestBuildToolNameFallbackZeroValueProfile(t *testing.T) {
	var chain ChainState
	req, _, err := buildRequest(&provider.Provider{}, "gpt-5", &Prompt{
		Items: []api.Item{api.UserMessage("hi")},
		Tools: []api.ToolDefinition{{Type: "web_search"}},
	}, &chain)
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if req.Tools[0].Name != "web_search" {
		t.Errorf("unnamed tool name = %q, want its type", req.Tools[0].Name)
	}
}

func TestBuildStreamDefaultsToTrue(t *testing.T) {
	var chain ChainState
	prompt := &Prompt{Items: []api.Item{api.UserMessage("hi")}}

	req, _, err := buildRequest(sseProfile(), "gpt-5", prompt, &chain)
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if !req.Stream {
		t.Error("stream should default to true for interactive turns")
	}

	off := false
	prompt.Stream = &off
	req, _, _ = buildRequest(sseProfile(), "gpt-5", prompt, &chain)
	if req.Stream {
		t.Error("explicit stream=false ignored")
	}
}

func TestBuildAzureForcesStore(t *testing.T) {
	p := provider.New("azure", "https://myorg.openai.azure.com/openai", provider.WireSSE)

	var chain ChainState
	off := false
	req, _, err := buildRequest(p, "gpt-5", &Prompt{
		Items: []api.Item{api.UserMessage("hi")},
		Store: &off,
	}, &chain)
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if req.Store == nil || !*req.Store {
		t.Error("Azure profile must force store=true")
	}
}

func TestBuildDropsReasoningWhenUnsupported(t *testing.T) {
	p := sseProfile()
	p.Caps.Reasoning = false

	var chain ChainState
	req, _, err := buildRequest(p, "gpt-5", &Prompt{
		Items:     []api.Item{api.UserMessage("hi")},
		Reasoning: &api.ReasoningConfig{Effort: "high"},
	}, &chain)
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if req.Reasoning != nil {
		t.Error("reasoning config sent to a provider that rejects it")
	}
}

func TestBuildDoesNotMutatePrompt(t *testing.T) {
	var chain ChainState
	tools := []api.ToolDefinition{{Type: "web_search"}}
	prompt := &Prompt{
		Items: []api.Item{api.UserMessage("hi")},
		Tools: tools,
	}

	p := sseProfile()
	if _, _, err := buildRequest(p, "gpt-5", prompt, &chain); err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if tools[0].Name != "" {
		t.Error("name fallback leaked into the caller's tool slice")
	}
}
