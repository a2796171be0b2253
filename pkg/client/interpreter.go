package client

import (
	"fmt"
	"strings"

	"github.com/anfrage-dev/anfrage/pkg/api"
	"github.com/anfrage-dev/anfrage/pkg/debug"
	"github.com/anfrage-dev/anfrage/pkg/transport"
)

// phase is the interpreter's position in a turn's event lifecycle.
type phase int

const (
	phaseAwaitingFirst phase = iota
	phaseStreamingText
	phaseStreamingToolCall
	phaseTerminal
)

// interpreter assembles one Response from a turn's event stream while
// forwarding every event to the caller for live display. Usage
// counters are taken only from the terminal event; providers report
// delta counts inconsistently, so they are never summed.
type interpreter struct {
	phase phase

	response  *api.Response
	output    []api.Item
	text      strings.Builder
	toolArgs  map[string]*strings.Builder
	lastEvent string
}

func newInterpreter() *interpreter {
	return &interpreter{toolArgs: make(map[string]*strings.Builder)}
}

// eventStream is the slice of transport.Stream the interpreter needs.
type eventStream interface {
	Events() <-chan api.StreamEvent
	Err() error
	Close()
}

// consume drains the stream to its terminal event and returns the
// assembled response. A stream that ends without a terminal event is a
// protocol failure unless the transport already classified the cause.
func (in *interpreter) consume(stream eventStream, onEvent func(api.StreamEvent)) (*api.Response, error) {
	for ev := range stream.Events() {
		if onEvent != nil {
			onEvent(ev)
		}
		if err := in.apply(ev); err != nil {
			stream.Close()
			// Drain so the producer goroutine can exit.
			for range stream.Events() {
			}
			return nil, err
		}
		if in.phase == phaseTerminal {
			break
		}
	}

	if in.phase != phaseTerminal {
		if err := stream.Err(); err != nil {
			return nil, err
		}
		return nil, &transport.ProtocolError{
			Message:   "stream ended without terminal event",
			LastEvent: in.lastEvent,
		}
	}
	return in.response, nil
}

// apply advances the state machine by one event.
func (in *interpreter) apply(ev api.StreamEvent) error {
	defer func() { in.lastEvent = string(ev.Type) }()

	switch ev.Type {
	case api.EventResponseCreated, api.EventResponseQueued, api.EventResponseInProgress:
		if ev.Response != nil {
			in.response = ev.Response
		}
		return nil

	case api.EventOutputItemAdded, api.EventContentPartAdded,
		api.EventContentPartDone, api.EventOutputTextDone,
		api.EventReasoningSummaryDelta, api.EventReasoningSummaryDone,
		api.EventFunctionCallArgsDone:
		return in.requireStarted(ev)

	case api.EventOutputTextDelta:
		if err := in.requireStarted(ev); err != nil {
			return err
		}
		in.phase = phaseStreamingText
		in.text.WriteString(ev.Delta)
		return nil

	case api.EventFunctionCallArgsDelta:
		if err := in.requireStarted(ev); err != nil {
			return err
		}
		in.phase = phaseStreamingToolCall
		buf, ok := in.toolArgs[ev.ItemID]
		if !ok {
			buf = &strings.Builder{}
			in.toolArgs[ev.ItemID] = buf
		}
		buf.WriteString(ev.Delta)
		return nil

	case api.EventOutputItemDone:
		if err := in.requireStarted(ev); err != nil {
			return err
		}
		if ev.Item != nil {
			in.output = append(in.output, *ev.Item)
		}
		return nil

	case api.EventResponseCompleted, api.EventResponseFailed, api.EventResponseIncomplete:
		return in.finalize(ev)

	case api.EventError:
		in.phase = phaseTerminal
		debug.Log("streaming", "provider error event", "error", ev.Error)
		return transport.ClassifyAPIError(ev.Error)

	default:
		// Unknown event types are forwarded but otherwise ignored, so
		// new provider events don't break older clients.
		debug.Log("streaming", "ignoring unknown event", "type", ev.Type)
		return nil
	}
}

// requireStarted rejects content events that arrive before any
// response lifecycle event.
func (in *interpreter) requireStarted(ev api.StreamEvent) error {
	if in.phase == phaseAwaitingFirst && in.response == nil {
		return &transport.ProtocolError{
			Message:   fmt.Sprintf("%s before response lifecycle began", ev.Type),
			LastEvent: in.lastEvent,
		}
	}
	return nil
}

// finalize adopts the terminal event's response as authoritative,
// filling in accumulated output when the terminal payload omits it.
func (in *interpreter) finalize(ev api.StreamEvent) error {
	in.phase = phaseTerminal

	if ev.Response == nil {
		return &transport.ProtocolError{
			Message:   fmt.Sprintf("terminal event %s without response payload", ev.Type),
			LastEvent: in.lastEvent,
		}
	}
	in.response = ev.Response
	if len(in.response.Output) == 0 && len(in.output) > 0 {
		in.response.Output = in.output
	}

	if in.response.Status == api.ResponseStatusFailed && in.response.Error != nil {
		return transport.ClassifyAPIError(in.response.Error)
	}
	return nil
}

// outputText returns the accumulated streamed text for the turn.
func (in *interpreter) outputText() string {
	return in.text.String()
}
