package api

// StreamEventType identifies the type of a streaming event.
type StreamEventType string

// Delta events are emitted during streaming to convey incremental content.
const (
	EventOutputItemAdded       StreamEventType = "response.output_item.added"
	EventContentPartAdded      StreamEventType = "response.content_part.added"
	EventOutputTextDelta       StreamEventType = "response.output_text.delta"
	EventOutputTextDone        StreamEventType = "response.output_text.done"
	EventFunctionCallArgsDelta StreamEventType = "response.function_call_arguments.delta"
	EventFunctionCallArgsDone  StreamEventType = "response.function_call_arguments.done"
	EventReasoningSummaryDelta StreamEventType = "response.reasoning_summary_text.delta"
	EventReasoningSummaryDone  StreamEventType = "response.reasoning_summary_text.done"
	EventContentPartDone       StreamEventType = "response.content_part.done"
	EventOutputItemDone        StreamEventType = "response.output_item.done"
)

// Lifecycle events track the state of a response. The stream always ends
// with one of the terminal events (completed, failed, incomplete) or the
// error event.
const (
	EventResponseCreated    StreamEventType = "response.created"
	EventResponseQueued     StreamEventType = "response.queued"
	EventResponseInProgress StreamEventType = "response.in_progress"
	EventResponseCompleted  StreamEventType = "response.completed"
	EventResponseFailed     StreamEventType = "response.failed"
	EventResponseIncomplete StreamEventType = "response.incomplete"
	EventError              StreamEventType = "error"
)

// StreamEvent represents a single server-sent event in a streaming response.
type StreamEvent struct {
	Type           StreamEventType `json:"type"`
	SequenceNumber int             `json:"sequence_number,omitempty"`
	Response       *Response       `json:"response,omitempty"`
	Item           *Item           `json:"item,omitempty"`
	Delta          string          `json:"delta,omitempty"`
	Text           string          `json:"text,omitempty"`
	Arguments      string          `json:"arguments,omitempty"`
	ItemID         string          `json:"item_id,omitempty"`
	CallID         string          `json:"call_id,omitempty"`
	Name           string          `json:"name,omitempty"`
	OutputIndex    int             `json:"output_index,omitempty"`
	ContentIndex   int             `json:"content_index,omitempty"`
	Error          *APIError       `json:"error,omitempty"`
}

// IsTerminal reports whether the event ends the stream.
func (t StreamEventType) IsTerminal() bool {
	switch t {
	case EventResponseCompleted, EventResponseFailed, EventResponseIncomplete:
		return true
	}
	return false
}
