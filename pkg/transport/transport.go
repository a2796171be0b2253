package transport

import (
	"context"
	"sync"

	"github.com/anfrage-dev/anfrage/pkg/api"
)

// Request is the serialized turn envelope handed to a transport. The
// payload builder owns serialization (including the Azure item-ID
// pass); transports only move bytes and decode events.
type Request struct {
	// Body is the serialized CreateResponseRequest.
	Body []byte

	// Stream selects streamed delivery. Non-streaming turns still
	// produce a Stream carrying a single synthesized terminal event.
	Stream bool

	// IdempotencyKey, when set, travels as the Idempotency-Key header
	// and is forwarded unchanged on every retry and replay.
	IdempotencyKey string

	// TurnID correlates frames on the persistent-socket protocol. The
	// HTTP transport ignores it.
	TurnID string
}

// Transport delivers one turn to the provider and returns its event
// stream. Implementations classify every failure into the package's
// error taxonomy before returning it.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Stream, error)
	Close() error
}

// Stream delivers decoded events for one turn in server-send order.
// The channel is closed when the stream ends; Err reports the failure,
// if any, after the channel closes.
type Stream struct {
	events chan api.StreamEvent
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func newStream(cancel context.CancelFunc) *Stream {
	if cancel == nil {
		cancel = func() {}
	}
	return &Stream{
		events: make(chan api.StreamEvent, 32),
		cancel: cancel,
	}
}

// Events returns the event channel. Events arrive in server-send order
// and the channel closes after the terminal event or on failure.
func (s *Stream) Events() <-chan api.StreamEvent {
	return s.events
}

// Err returns the failure that ended the stream, or nil. Valid only
// after the Events channel has closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close abandons the stream and releases the underlying connection. A
// closed stream's channel drains and closes promptly.
func (s *Stream) Close() {
	s.cancel()
}

// emit forwards one event, honoring cancellation. It reports whether
// the event was delivered.
func (s *Stream) emit(ctx context.Context, ev api.StreamEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Stream) finish() {
	close(s.events)
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
