package api

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Content types
// ---------------------------------------------------------------------------

// ContentPart represents a part of user input content.
// The Type field indicates the kind of content: input_text or input_image.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// OutputContentPart represents a part of model output content.
// The Type field indicates the kind: output_text or refusal.
type OutputContentPart struct {
	Type        string       `json:"type"`
	Text        string       `json:"text,omitempty"`
	Refusal     string       `json:"refusal,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// Annotation represents an annotation on output text, such as a citation.
type Annotation struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	StartIndex int    `json:"start_index,omitempty"`
	EndIndex   int    `json:"end_index,omitempty"`
}

// ---------------------------------------------------------------------------
// Item type-specific data structs
// ---------------------------------------------------------------------------

// MessageRole represents the role of a message sender.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleDeveloper MessageRole = "developer"
)

// ItemType represents the type of an item in a conversation.
type ItemType string

const (
	ItemTypeMessage            ItemType = "message"
	ItemTypeFunctionCall       ItemType = "function_call"
	ItemTypeFunctionCallOutput ItemType = "function_call_output"
	ItemTypeReasoning          ItemType = "reasoning"
)

// MessageData holds the data specific to a message item.
type MessageData struct {
	Role    MessageRole         `json:"role"`
	Content []ContentPart       `json:"content,omitempty"`
	Output  []OutputContentPart `json:"output,omitempty"`
}

// FunctionCallData holds the data specific to a function call item.
type FunctionCallData struct {
	Name      string `json:"name"`
	CallID    string `json:"call_id"`
	Arguments string `json:"arguments"`
}

// FunctionCallOutputData holds the data specific to a function call output item.
type FunctionCallOutputData struct {
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

// ReasoningData holds the data specific to a reasoning item. The model
// returns encrypted content that must be echoed back verbatim when the
// item is resent as conversation history.
type ReasoningData struct {
	Summary          []ReasoningSummary `json:"summary,omitempty"`
	EncryptedContent string             `json:"encrypted_content,omitempty"`
}

// ReasoningSummary is a single summary part of a reasoning item.
type ReasoningSummary struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ---------------------------------------------------------------------------
// Item
// ---------------------------------------------------------------------------

// Item represents a single element of conversation history: a message,
// function call, function call output, or reasoning breadcrumb. The ID
// is empty for locally produced items and becomes stable once the
// server has acknowledged the item.
type Item struct {
	ID   string   `json:"id,omitempty"`
	Type ItemType `json:"type"`

	Message            *MessageData            `json:"message,omitempty"`
	FunctionCall       *FunctionCallData       `json:"function_call,omitempty"`
	FunctionCallOutput *FunctionCallOutputData `json:"function_call_output,omitempty"`
	Reasoning          *ReasoningData          `json:"reasoning,omitempty"`
}

// UserMessage builds a message item with a single input_text part.
func UserMessage(text string) Item {
	return Item{
		Type: ItemTypeMessage,
		Message: &MessageData{
			Role:    RoleUser,
			Content: []ContentPart{{Type: "input_text", Text: text}},
		},
	}
}

// FunctionOutput builds a function_call_output item for the given call.
func FunctionOutput(callID, output string) Item {
	return Item{
		Type: ItemTypeFunctionCallOutput,
		FunctionCallOutput: &FunctionCallOutputData{
			CallID: callID,
			Output: output,
		},
	}
}

// itemWireBase contains fields common to all item types. The ID is
// omitted when empty; providers that require IDs on chained input get
// them attached by the Azure serialization pass.
type itemWireBase struct {
	ID   string   `json:"id,omitempty"`
	Type ItemType `json:"type"`
}

// MarshalJSON serializes an Item to the flat wire format: type-specific
// fields at the top level, not nested in a wrapper object.
func (item Item) MarshalJSON() ([]byte, error) {
	switch item.Type {
	case ItemTypeMessage:
		return item.marshalMessage()
	case ItemTypeFunctionCall:
		return item.marshalFunctionCall()
	case ItemTypeFunctionCallOutput:
		return item.marshalFunctionCallOutput()
	case ItemTypeReasoning:
		return item.marshalReasoning()
	default:
		return nil, fmt.Errorf("cannot marshal item of unknown type %q", item.Type)
	}
}

// marshalMessage produces the flat message wire format:
// {type, id, role, content: [...]}
func (item Item) marshalMessage() ([]byte, error) {
	type wireMessage struct {
		itemWireBase
		Role    MessageRole `json:"role"`
		Content []any       `json:"content"`
	}

	w := wireMessage{
		itemWireBase: itemWireBase{ID: item.ID, Type: item.Type},
	}

	if item.Message != nil {
		w.Role = item.Message.Role

		// Assistant items carry output parts, user items carry input parts.
		if len(item.Message.Output) > 0 {
			for _, part := range item.Message.Output {
				w.Content = append(w.Content, part)
			}
		} else {
			for _, part := range item.Message.Content {
				w.Content = append(w.Content, part)
			}
		}
	}

	if w.Content == nil {
		w.Content = []any{}
	}

	return json.Marshal(w)
}

// marshalFunctionCall produces {type, id, call_id, name, arguments}.
func (item Item) marshalFunctionCall() ([]byte, error) {
	type wireFunctionCall struct {
		itemWireBase
		CallID    string `json:"call_id"`
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	}

	w := wireFunctionCall{
		itemWireBase: itemWireBase{ID: item.ID, Type: item.Type},
	}

	if item.FunctionCall != nil {
		w.CallID = item.FunctionCall.CallID
		w.Name = item.FunctionCall.Name
		w.Arguments = item.FunctionCall.Arguments
	}

	return json.Marshal(w)
}

// marshalFunctionCallOutput produces {type, id, call_id, output}.
func (item Item) marshalFunctionCallOutput() ([]byte, error) {
	type wireFunctionCallOutput struct {
		itemWireBase
		CallID string `json:"call_id"`
		Output string `json:"output"`
	}

	w := wireFunctionCallOutput{
		itemWireBase: itemWireBase{ID: item.ID, Type: item.Type},
	}

	if item.FunctionCallOutput != nil {
		w.CallID = item.FunctionCallOutput.CallID
		w.Output = item.FunctionCallOutput.Output
	}

	return json.Marshal(w)
}

// marshalReasoning produces {type, id, summary, encrypted_content}.
func (item Item) marshalReasoning() ([]byte, error) {
	type wireReasoning struct {
		itemWireBase
		Summary          []ReasoningSummary `json:"summary"`
		EncryptedContent string             `json:"encrypted_content,omitempty"`
	}

	w := wireReasoning{
		itemWireBase: itemWireBase{ID: item.ID, Type: item.Type},
	}

	if item.Reasoning != nil {
		w.Summary = item.Reasoning.Summary
		w.EncryptedContent = item.Reasoning.EncryptedContent
	}

	if w.Summary == nil {
		w.Summary = []ReasoningSummary{}
	}

	return json.Marshal(w)
}

// UnmarshalJSON deserializes an Item from the flat wire format.
func (item *Item) UnmarshalJSON(data []byte) error {
	var base struct {
		ID   string   `json:"id"`
		Type ItemType `json:"type"`

		Role      MessageRole     `json:"role"`
		Content   json.RawMessage `json:"content"`
		CallID    string          `json:"call_id"`
		Name      string          `json:"name"`
		Arguments string          `json:"arguments"`
		Output    json.RawMessage `json:"output"`

		Summary          []ReasoningSummary `json:"summary"`
		EncryptedContent string             `json:"encrypted_content"`
	}

	if err := json.Unmarshal(data, &base); err != nil {
		return err
	}

	item.ID = base.ID
	item.Type = base.Type

	switch base.Type {
	case ItemTypeMessage:
		item.Message = &MessageData{Role: base.Role}
		if len(base.Content) > 0 && string(base.Content) != "[]" && string(base.Content) != "null" {
			if base.Role == RoleAssistant {
				var parts []OutputContentPart
				if err := json.Unmarshal(base.Content, &parts); err == nil && len(parts) > 0 {
					item.Message.Output = parts
				}
			} else {
				var parts []ContentPart
				if err := json.Unmarshal(base.Content, &parts); err == nil && len(parts) > 0 {
					item.Message.Content = parts
				}
			}
		}

	case ItemTypeFunctionCall:
		item.FunctionCall = &FunctionCallData{
			Name:      base.Name,
			CallID:    base.CallID,
			Arguments: base.Arguments,
		}

	case ItemTypeFunctionCallOutput:
		outputStr := ""
		if len(base.Output) > 0 {
			// The output is usually a JSON string, but some providers
			// return a structured object; keep the raw text then.
			if err := json.Unmarshal(base.Output, &outputStr); err != nil {
				outputStr = string(base.Output)
			}
		}
		item.FunctionCallOutput = &FunctionCallOutputData{
			CallID: base.CallID,
			Output: outputStr,
		}

	case ItemTypeReasoning:
		item.Reasoning = &ReasoningData{
			Summary:          base.Summary,
			EncryptedContent: base.EncryptedContent,
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// ToolChoice union type
// ---------------------------------------------------------------------------

// ToolChoice represents a tool selection strategy. It can be a simple
// string value ("auto", "required", "none") or a structured function
// selection.
type ToolChoice struct {
	String   string              `json:"-"`
	Function *ToolChoiceFunction `json:"-"`
}

// ToolChoiceFunction specifies a particular function to call by name.
type ToolChoiceFunction struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

var (
	// ToolChoiceAuto lets the model decide whether to use a tool.
	ToolChoiceAuto = ToolChoice{String: "auto"}
	// ToolChoiceRequired forces the model to use a tool.
	ToolChoiceRequired = ToolChoice{String: "required"}
	// ToolChoiceNone prevents the model from using any tool.
	ToolChoiceNone = ToolChoice{String: "none"}
)

// NewToolChoiceFunction creates a ToolChoice that selects a specific function by name.
func NewToolChoiceFunction(name string) ToolChoice {
	return ToolChoice{
		Function: &ToolChoiceFunction{Type: "function", Name: name},
	}
}

// MarshalJSON serializes ToolChoice as either a JSON string or a JSON object.
func (tc ToolChoice) MarshalJSON() ([]byte, error) {
	if tc.String != "" {
		return json.Marshal(tc.String)
	}
	if tc.Function != nil {
		return json.Marshal(tc.Function)
	}
	return nil, fmt.Errorf("ToolChoice has neither string value nor function")
}

// UnmarshalJSON deserializes ToolChoice from either a JSON string or a JSON object.
func (tc *ToolChoice) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		tc.String = s
		tc.Function = nil
		return nil
	}

	var f ToolChoiceFunction
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("tool_choice must be a string or object: %w", err)
	}
	tc.String = ""
	tc.Function = &f
	return nil
}

// ToolDefinition describes a tool available to the model. Every tool
// entry sent on the wire carries a non-empty name; the builder fills
// in the type as a fallback name for built-in tools that lack one.
type ToolDefinition struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      bool            `json:"strict,omitempty"`
}

// ---------------------------------------------------------------------------
// Request and Response types
// ---------------------------------------------------------------------------

// ReasoningConfig holds reasoning effort and summary controls.
type ReasoningConfig struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// CreateResponseRequest is the fully built wire payload for POST
// /responses. PreviousResponseID is present only when the session has
// a completed prior turn and the provider supports chaining; omitempty
// keeps the field absent (not null) otherwise.
type CreateResponseRequest struct {
	Model              string           `json:"model"`
	Instructions       string           `json:"instructions,omitempty"`
	Input              []Item           `json:"input"`
	Tools              []ToolDefinition `json:"tools,omitempty"`
	ToolChoice         *ToolChoice      `json:"tool_choice,omitempty"`
	ParallelToolCalls  *bool            `json:"parallel_tool_calls,omitempty"`
	Reasoning          *ReasoningConfig `json:"reasoning,omitempty"`
	Store              *bool            `json:"store,omitempty"`
	Stream             bool             `json:"stream,omitempty"`
	Background         bool             `json:"background,omitempty"`
	PreviousResponseID string           `json:"previous_response_id,omitempty"`
	PromptCacheKey     string           `json:"prompt_cache_key,omitempty"`
	Include            []string         `json:"include,omitempty"`

	// IdempotencyKey travels as the Idempotency-Key header, never in
	// the body. The transport forwards it unchanged on every retry so
	// the provider can deduplicate the create call.
	IdempotencyKey string `json:"-"`
}

// ResponseStatus represents the overall status of a response.
type ResponseStatus string

const (
	ResponseStatusQueued     ResponseStatus = "queued"
	ResponseStatusInProgress ResponseStatus = "in_progress"
	ResponseStatusCompleted  ResponseStatus = "completed"
	ResponseStatusIncomplete ResponseStatus = "incomplete"
	ResponseStatusFailed     ResponseStatus = "failed"
	ResponseStatusCancelled  ResponseStatus = "cancelled"
)

// Response is the decoded server result for one turn.
type Response struct {
	ID                 string             `json:"id"`
	Object             string             `json:"object,omitempty"`
	CreatedAt          int64              `json:"created_at,omitempty"`
	Status             ResponseStatus     `json:"status"`
	Model              string             `json:"model,omitempty"`
	Output             []Item             `json:"output"`
	Usage              *Usage             `json:"usage,omitempty"`
	Error              *APIError          `json:"error,omitempty"`
	IncompleteDetails  *IncompleteDetails `json:"incomplete_details,omitempty"`
	PreviousResponseID string             `json:"previous_response_id,omitempty"`

	// Extensions carries provider-specific side-channel data, such as
	// Azure content-safety filter results, keyed by field name.
	Extensions map[string]json.RawMessage `json:"-"`
}

// responseFields names every key the Response struct decodes itself.
// Anything else on the wire ends up in Extensions.
var responseFields = map[string]bool{
	"id": true, "object": true, "created_at": true, "status": true,
	"model": true, "output": true, "usage": true, "error": true,
	"incomplete_details": true, "previous_response_id": true,
}

// UnmarshalJSON decodes the known fields and collects any remaining
// top-level keys into Extensions.
func (r *Response) UnmarshalJSON(data []byte) error {
	type plain Response
	var known plain
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	*r = Response(known)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, value := range raw {
		if responseFields[key] {
			continue
		}
		if r.Extensions == nil {
			r.Extensions = make(map[string]json.RawMessage)
		}
		r.Extensions[key] = value
	}
	return nil
}

// IncompleteDetails provides information about why a response is incomplete.
type IncompleteDetails struct {
	Reason string `json:"reason,omitempty"`
}

// Usage holds token usage information for a response. Counters are
// only meaningful on the terminal event of a stream.
type Usage struct {
	InputTokens         int                 `json:"input_tokens"`
	OutputTokens        int                 `json:"output_tokens"`
	TotalTokens         int                 `json:"total_tokens"`
	InputTokensDetails  InputTokensDetails  `json:"input_tokens_details"`
	OutputTokensDetails OutputTokensDetails `json:"output_tokens_details"`
}

// InputTokensDetails provides a breakdown of input token usage.
type InputTokensDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

// OutputTokensDetails provides a breakdown of output token usage.
type OutputTokensDetails struct {
	ReasoningTokens int `json:"reasoning_tokens"`
}

// ---------------------------------------------------------------------------
// Auxiliary endpoint types
// ---------------------------------------------------------------------------

// ResponseInputItemsList is the page returned by GET /responses/{id}/input_items.
type ResponseInputItemsList struct {
	Object  string `json:"object"`
	Data    []Item `json:"data"`
	FirstID string `json:"first_id,omitempty"`
	LastID  string `json:"last_id,omitempty"`
	HasMore bool   `json:"has_more"`
}

// DeletedResponse confirms deletion of a stored response.
type DeletedResponse struct {
	Object  string `json:"object"`
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}
