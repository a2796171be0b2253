package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anfrage-dev/anfrage/pkg/api"
	"github.com/anfrage-dev/anfrage/pkg/auth"
	"github.com/anfrage-dev/anfrage/pkg/provider"
)

var testUpgrader = websocket.Upgrader{}

// socketServer runs handler for each websocket connection and returns
// a profile pointing at it.
func socketServer(t *testing.T, handler func(conn *websocket.Conn)) (*provider.Provider, func()) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	p := provider.New("test", server.URL, provider.WireSocket)
	p.StreamIdleTimeout = time.Second
	return p, server.Close
}

func mustReadTurn(t *testing.T, conn *websocket.Conn) socketFrame {
	t.Helper()
	var f socketFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Errorf("reading turn frame: %v", err)
	}
	if f.Kind != frameKindTurn {
		t.Errorf("kind = %q, want %q", f.Kind, frameKindTurn)
	}
	return f
}

func eventFrame(t *testing.T, turnID string, ev api.StreamEvent) socketFrame {
	t.Helper()
	payload, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return socketFrame{TurnID: turnID, Kind: frameKindEvent, Payload: payload}
}

func TestSocketSendHappyPath(t *testing.T) {
	profile, shutdown := socketServer(t, func(conn *websocket.Conn) {
		turn := mustReadTurn(t, conn)
		if !strings.Contains(string(turn.Payload), `"model"`) {
			t.Errorf("payload = %s", turn.Payload)
		}
		conn.WriteJSON(eventFrame(t, turn.TurnID, api.StreamEvent{Type: api.EventResponseCreated}))
		conn.WriteJSON(eventFrame(t, turn.TurnID, api.StreamEvent{Type: api.EventOutputTextDelta, Delta: "hi"}))
		conn.WriteJSON(eventFrame(t, turn.TurnID, api.StreamEvent{
			Type:     api.EventResponseCompleted,
			Response: &api.Response{ID: "resp-1", Status: api.ResponseStatusCompleted},
		}))
	})
	defer shutdown()

	tr := NewSocket(profile, auth.StaticKey("sk-test"))
	defer tr.Close()

	stream, err := tr.Send(context.Background(), &Request{Body: []byte(`{"model":"gpt-5"}`)})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	events, streamErr := collect(t, stream)
	if streamErr != nil {
		t.Fatalf("stream error: %v", streamErr)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[2].Type != api.EventResponseCompleted {
		t.Errorf("last event = %s", events[2].Type)
	}
}

func TestSocketDiscardsStaleFrames(t *testing.T) {
	profile, shutdown := socketServer(t, func(conn *websocket.Conn) {
		turn := mustReadTurn(t, conn)
		// Frame left over from an earlier aborted turn.
		conn.WriteJSON(eventFrame(t, "stale-turn", api.StreamEvent{Type: api.EventOutputTextDelta, Delta: "old"}))
		conn.WriteJSON(eventFrame(t, turn.TurnID, api.StreamEvent{
			Type:     api.EventResponseCompleted,
			Response: &api.Response{ID: "resp-1", Status: api.ResponseStatusCompleted},
		}))
	})
	defer shutdown()

	tr := NewSocket(profile, auth.StaticKey("sk-test"))
	defer tr.Close()

	stream, err := tr.Send(context.Background(), &Request{Body: []byte(`{}`)})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	events, streamErr := collect(t, stream)
	if streamErr != nil {
		t.Fatalf("stream error: %v", streamErr)
	}
	if len(events) != 1 || events[0].Type != api.EventResponseCompleted {
		t.Errorf("events = %+v, stale frame should be dropped", events)
	}
}

func TestSocketReplaysTurnAfterDisconnect(t *testing.T) {
	var connections atomic.Int32
	profile, shutdown := socketServer(t, func(conn *websocket.Conn) {
		n := connections.Add(1)
		turn := mustReadTurn(t, conn)
		if n == 1 {
			// Drop the connection mid-turn.
			return
		}
		conn.WriteJSON(eventFrame(t, turn.TurnID, api.StreamEvent{
			Type:     api.EventResponseCompleted,
			Response: &api.Response{ID: "resp-1", Status: api.ResponseStatusCompleted},
		}))
	})
	defer shutdown()

	tr := NewSocket(profile, auth.StaticKey("sk-test"))
	defer tr.Close()

	stream, err := tr.Send(context.Background(), &Request{Body: []byte(`{}`), TurnID: "turn-1"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	events, streamErr := collect(t, stream)
	if streamErr != nil {
		t.Fatalf("stream error after replay: %v", streamErr)
	}
	if len(events) != 1 || events[0].Type != api.EventResponseCompleted {
		t.Errorf("events = %+v", events)
	}
	if got := connections.Load(); got != 2 {
		t.Errorf("connections = %d, want redial exactly once", got)
	}
}

func TestSocketSecondDisconnectFails(t *testing.T) {
	profile, shutdown := socketServer(t, func(conn *websocket.Conn) {
		mustReadTurn(t, conn)
		// Every connection drops mid-turn.
	})
	defer shutdown()

	tr := NewSocket(profile, auth.StaticKey("sk-test"))
	defer tr.Close()

	stream, err := tr.Send(context.Background(), &Request{Body: []byte(`{}`)})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	_, streamErr := collect(t, stream)
	var ne *NetworkError
	if !errors.As(streamErr, &ne) {
		t.Fatalf("got %v (%T), want *NetworkError after second drop", streamErr, streamErr)
	}
}

func TestSocketErrorFrame(t *testing.T) {
	profile, shutdown := socketServer(t, func(conn *websocket.Conn) {
		turn := mustReadTurn(t, conn)
		conn.WriteJSON(socketFrame{
			TurnID:  turn.TurnID,
			Kind:    frameKindError,
			Payload: json.RawMessage(`{"error":{"type":"rate_limit_exceeded","message":"retry in 2s"}}`),
		})
	})
	defer shutdown()

	tr := NewSocket(profile, auth.StaticKey("sk-test"))
	defer tr.Close()

	stream, err := tr.Send(context.Background(), &Request{Body: []byte(`{}`)})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	_, streamErr := collect(t, stream)
	var rle *RateLimitedError
	if !errors.As(streamErr, &rle) {
		t.Fatalf("got %v (%T), want *RateLimitedError", streamErr, streamErr)
	}
	if rle.RetryAfter != 2*time.Second {
		t.Errorf("retryAfter = %v", rle.RetryAfter)
	}
}

func TestSocketSerializesTurns(t *testing.T) {
	profile, shutdown := socketServer(t, func(conn *websocket.Conn) {
		for {
			var f socketFrame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			conn.WriteJSON(eventFrame(t, f.TurnID, api.StreamEvent{
				Type:     api.EventResponseCompleted,
				Response: &api.Response{ID: "resp-" + f.TurnID, Status: api.ResponseStatusCompleted},
			}))
		}
	})
	defer shutdown()

	tr := NewSocket(profile, auth.StaticKey("sk-test"))
	defer tr.Close()

	for i := 0; i < 3; i++ {
		stream, err := tr.Send(context.Background(), &Request{Body: []byte(`{}`)})
		if err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
		events, streamErr := collect(t, stream)
		if streamErr != nil {
			t.Fatalf("turn %d: %v", i, streamErr)
		}
		if len(events) != 1 {
			t.Fatalf("turn %d: %d events", i, len(events))
		}
	}
}

func TestSocketCancelUnblocksRead(t *testing.T) {
	turnRead := make(chan struct{})
	profile, shutdown := socketServer(t, func(conn *websocket.Conn) {
		mustReadTurn(t, conn)
		close(turnRead)
		// Never answer. Returns once the client drops the connection.
		conn.ReadMessage()
	})
	defer shutdown()
	profile.StreamIdleTimeout = 0

	tr := NewSocket(profile, auth.StaticKey("sk-test"))
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := tr.Send(ctx, &Request{Body: []byte(`{"model":"gpt-5"}`)})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-turnRead
	cancel()

	done := make(chan error, 1)
	go func() {
		_, streamErr := collect(t, stream)
		done <- streamErr
	}()
	select {
	case streamErr := <-done:
		if !errors.Is(streamErr, context.Canceled) {
			t.Fatalf("stream error = %v, want context.Canceled", streamErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream still open 2s after cancellation")
	}

	closed := make(chan struct{})
	go func() {
		tr.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked after cancelled turn")
	}
}

func TestSocketURLScheme(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"https://api.example.com/v1", "wss://api.example.com/v1/responses"},
		{"http://localhost:8080", "ws://localhost:8080/responses"},
	}
	for _, tt := range tests {
		tr := NewSocket(provider.New("test", tt.base, provider.WireSocket), auth.StaticKey("k"))
		if got := tr.socketURL(); got != tt.want {
			t.Errorf("socketURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}
