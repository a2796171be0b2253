package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/anfrage-dev/anfrage/pkg/api"
	"github.com/anfrage-dev/anfrage/pkg/auth"
	"github.com/anfrage-dev/anfrage/pkg/debug"
	"github.com/anfrage-dev/anfrage/pkg/provider"
)

// socketFrame is the envelope exchanged over a persistent connection.
// Every frame carries the turn it belongs to so responses from earlier
// turns can be discarded after a reconnect.
type socketFrame struct {
	TurnID  string          `json:"turn_id"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	frameKindTurn  = "turn"
	frameKindEvent = "event"
	frameKindDone  = "done"
	frameKindError = "error"
)

// SocketTransport multiplexes turns over one long-lived websocket.
// Turns are serialized: a second Send blocks until the previous turn
// reaches a terminal frame. A dropped connection is redialed once and
// the in-flight envelope is replayed exactly once; if the replay also
// fails the turn errors out.
type SocketTransport struct {
	provider *provider.Provider
	creds    auth.Credentials
	dialer   *websocket.Dialer

	mu   sync.Mutex // serializes turns and guards conn
	conn *websocket.Conn
}

// NewSocket returns a transport that will dial the provider's socket
// endpoint on first use.
func NewSocket(p *provider.Provider, creds auth.Credentials) *SocketTransport {
	return &SocketTransport{
		provider: p,
		creds:    creds,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
	}
}

// socketURL rewrites the provider base URL onto the ws scheme.
func (t *SocketTransport) socketURL() string {
	u := t.provider.URLForPath("responses")
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

func (t *SocketTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	req := &http.Request{Header: header}
	azure := provider.IsAzureEndpoint(t.provider.Name, t.provider.BaseURL)
	if err := auth.Apply(t.creds, req, azure); err != nil {
		return nil, &AuthError{Message: err.Error()}
	}
	for k, v := range t.provider.Headers {
		header.Set(k, v)
	}

	conn, resp, err := t.dialer.DialContext(ctx, t.socketURL(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, Classify(resp.StatusCode, resp.Header, nil)
		}
		return nil, &NetworkError{Cause: err}
	}
	debug.Log("transport", "socket connected", "url", t.socketURL())
	return conn, nil
}

// ensureConn returns the live connection, dialing if necessary.
// Callers must hold t.mu.
func (t *SocketTransport) ensureConn(ctx context.Context) (*websocket.Conn, error) {
	if t.conn != nil {
		return t.conn, nil
	}
	conn, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}
	t.conn = conn
	return conn, nil
}

// dropConn discards the current connection after a read or write
// failure. Callers must hold t.mu.
func (t *SocketTransport) dropConn() {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
}

// Send transmits one turn envelope and returns its event stream. The
// transport lock is held for the whole turn, so concurrent callers
// queue up rather than interleave frames.
func (t *SocketTransport) Send(ctx context.Context, req *Request) (*Stream, error) {
	t.mu.Lock()

	turnID := req.TurnID
	if turnID == "" {
		turnID = uuid.NewString()
	}
	frame := socketFrame{TurnID: turnID, Kind: frameKindTurn, Payload: req.Body}

	conn, err := t.writeTurn(ctx, frame)
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream := newStream(cancel)
	go func() {
		defer t.mu.Unlock()
		t.consumeSocket(streamCtx, conn, turnID, frame, stream)
	}()
	return stream, nil
}

// writeTurn sends the turn frame, redialing once on a stale
// connection. Callers must hold t.mu.
func (t *SocketTransport) writeTurn(ctx context.Context, frame socketFrame) (*websocket.Conn, error) {
	conn, err := t.ensureConn(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(frame); err != nil {
		debug.Log("transport", "socket write failed, redialing", "turn", frame.TurnID, "error", err)
		t.dropConn()
		conn, err = t.ensureConn(ctx)
		if err != nil {
			return nil, err
		}
		if err := conn.WriteJSON(frame); err != nil {
			t.dropConn()
			return nil, &NetworkError{Cause: err}
		}
	}
	return conn, nil
}

// consumeSocket reads frames for one turn until a terminal frame
// arrives. A mid-turn disconnect triggers a single replay of the turn
// envelope on a fresh connection.
func (t *SocketTransport) consumeSocket(ctx context.Context, conn *websocket.Conn, turnID string, frame socketFrame, stream *Stream) {
	defer stream.finish()

	// ReadJSON does not observe the context, so a watcher closes the
	// active connection on cancellation to force the read to return.
	var watchMu sync.Mutex
	active := conn
	turnDone := make(chan struct{})
	defer close(turnDone)
	go func() {
		select {
		case <-ctx.Done():
			watchMu.Lock()
			active.Close()
			watchMu.Unlock()
		case <-turnDone:
		}
	}()

	replayed := false
	lastEvent := ""

	idle := t.provider.StreamIdleTimeout
	for {
		if ctx.Err() != nil {
			stream.fail(ctx.Err())
			return
		}
		if idle > 0 {
			conn.SetReadDeadline(time.Now().Add(idle))
		}

		var f socketFrame
		if err := conn.ReadJSON(&f); err != nil {
			t.dropConn()
			if ctx.Err() != nil {
				stream.fail(ctx.Err())
				return
			}
			if replayed {
				stream.fail(&NetworkError{Cause: err})
				return
			}
			replayed = true
			debug.Log("transport", "socket read failed, replaying turn", "turn", turnID, "error", err)
			next, derr := t.replay(ctx, frame)
			if derr != nil {
				stream.fail(derr)
				return
			}
			watchMu.Lock()
			active = next
			if ctx.Err() != nil {
				active.Close()
			}
			watchMu.Unlock()
			conn = next
			continue
		}

		if f.TurnID != turnID {
			// Leftover frame from an aborted turn.
			debug.Log("transport", "discarding stale frame", "want", turnID, "got", f.TurnID)
			continue
		}

		switch f.Kind {
		case frameKindEvent:
			var ev api.StreamEvent
			if err := json.Unmarshal(f.Payload, &ev); err != nil {
				stream.fail(&ProtocolError{Message: fmt.Sprintf("malformed event frame: %v", err), LastEvent: lastEvent})
				return
			}
			lastEvent = string(ev.Type)
			if !stream.emit(ctx, ev) {
				return
			}
			if ev.Type.IsTerminal() {
				return
			}
		case frameKindDone:
			return
		case frameKindError:
			apiErr := api.ParseErrorBody(f.Payload)
			stream.fail(ClassifyAPIError(apiErr))
			return
		default:
			stream.fail(&ProtocolError{Message: fmt.Sprintf("unknown frame kind %q", f.Kind), LastEvent: lastEvent})
			return
		}
	}
}

// replay redials and resends the turn envelope after a mid-turn
// disconnect. Callers must hold t.mu.
func (t *SocketTransport) replay(ctx context.Context, frame socketFrame) (*websocket.Conn, error) {
	conn, err := t.ensureConn(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(frame); err != nil {
		t.dropConn()
		return nil, &NetworkError{Cause: err}
	}
	return conn, nil
}

// Close tears down the persistent connection.
func (t *SocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.conn.Close()
	t.conn = nil
	return err
}
