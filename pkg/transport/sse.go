package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/anfrage-dev/anfrage/pkg/api"
	"github.com/anfrage-dev/anfrage/pkg/auth"
	"github.com/anfrage-dev/anfrage/pkg/debug"
	"github.com/anfrage-dev/anfrage/pkg/provider"
)

// maxEventSize bounds a single SSE frame. Large tool arguments arrive
// as many small deltas, so a frame past this size is malformed.
const maxEventSize = 1 << 20

// HTTPTransport sends each turn as one POST and consumes the response
// as an SSE stream (or a single buffered object for non-streaming
// turns). It opens a fresh connection per turn and needs no cross-turn
// locking. It also serves the unary response endpoints.
type HTTPTransport struct {
	provider *provider.Provider
	creds    auth.Credentials
	client   *http.Client
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTP creates an HTTP/SSE transport for the given provider profile.
// No overall request timeout is set on the client: streaming turns are
// bounded by the profile's stream idle timeout and by caller
// cancellation, unary calls by their context.
func NewHTTP(p *provider.Provider, creds auth.Credentials) *HTTPTransport {
	return &HTTPTransport{
		provider: p,
		creds:    creds,
		client:   &http.Client{},
	}
}

// Send posts the envelope and returns its event stream.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	httpReq, err := t.newRequest(ctx, http.MethodPost, t.provider.URLForPath("responses"), req.Body)
	if err != nil {
		cancel()
		return nil, err
	}
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	debug.Log("transport", "request", "method", "POST",
		"url", httpReq.URL.String(), "stream", req.Stream)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, &NetworkError{Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxEventSize))
		resp.Body.Close()
		cancel()
		return nil, Classify(resp.StatusCode, resp.Header, body)
	}

	stream := newStream(cancel)

	if !req.Stream {
		go t.consumeBuffered(resp.Body, stream)
		return stream, nil
	}

	go t.consumeSSE(ctx, cancel, resp.Body, stream)
	return stream, nil
}

// consumeBuffered decodes a single JSON response object and emits one
// synthesized terminal event carrying it.
func (t *HTTPTransport) consumeBuffered(body io.ReadCloser, stream *Stream) {
	defer close(stream.events)
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		stream.fail(&NetworkError{Cause: err})
		return
	}

	var response api.Response
	if err := json.Unmarshal(data, &response); err != nil {
		stream.fail(&ProtocolError{Message: fmt.Sprintf("decoding response body: %v", err)})
		return
	}

	eventType, err := terminalEventFor(response.Status)
	if err != nil {
		stream.fail(err)
		return
	}

	stream.events <- api.StreamEvent{Type: eventType, Response: &response}
}

// terminalEventFor maps a buffered response status to the synthetic
// terminal event the interpreter expects.
func terminalEventFor(status api.ResponseStatus) (api.StreamEventType, error) {
	switch status {
	case api.ResponseStatusCompleted:
		return api.EventResponseCompleted, nil
	case api.ResponseStatusIncomplete:
		return api.EventResponseIncomplete, nil
	case api.ResponseStatusFailed, api.ResponseStatusCancelled:
		return api.EventResponseFailed, nil
	default:
		if !api.KnownStatus(status) {
			return "", &ProtocolError{Message: fmt.Sprintf("unknown response status %q", status)}
		}
		// queued/in_progress on a buffered body means the turn ran in
		// background mode; surface it as-is via the completed path.
		return api.EventResponseCompleted, nil
	}
}

// consumeSSE reads SSE frames, decodes one JSON event per frame, and
// forwards each event in arrival order. The idle watchdog aborts the
// stream when the gap between frames exceeds the profile's limit.
func (t *HTTPTransport) consumeSSE(ctx context.Context, cancel context.CancelFunc, body io.ReadCloser, stream *Stream) {
	defer close(stream.events)
	defer body.Close()

	idleTimeout := t.provider.StreamIdleTimeout
	var timedOut atomic.Bool
	var watchdog *time.Timer
	if idleTimeout > 0 {
		watchdog = time.AfterFunc(idleTimeout, func() {
			timedOut.Store(true)
			cancel()
		})
		defer watchdog.Stop()
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)

	lastEvent := ""
	for scanner.Scan() {
		line := scanner.Text()

		// SSE frames: optional "event: <type>" line, then "data: <json>".
		// Blank lines delimit frames.
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return
		}

		if watchdog != nil {
			watchdog.Reset(idleTimeout)
		}

		var event api.StreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			debug.Log("streaming", "skipping undecodable frame", "error", err)
			continue
		}
		lastEvent = string(event.Type)

		select {
		case stream.events <- event:
		case <-ctx.Done():
			if timedOut.Load() {
				stream.fail(&NetworkError{Cause: fmt.Errorf("stream idle for %s", idleTimeout)})
			} else {
				stream.fail(ctx.Err())
			}
			return
		}

		if event.Type.IsTerminal() {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			if timedOut.Load() {
				stream.fail(&NetworkError{Cause: fmt.Errorf("stream idle for %s", idleTimeout)})
			} else {
				stream.fail(ctx.Err())
			}
			return
		}
		stream.fail(&NetworkError{Cause: err})
		return
	}

	// EOF without a terminal event: the server hung up mid-turn.
	if ctx.Err() == nil {
		stream.fail(&ProtocolError{Message: "stream ended without terminal event", LastEvent: lastEvent})
	}
}

// Watch opens an SSE stream on an existing resource, used to resume
// streaming a background response via GET.
func (t *HTTPTransport) Watch(ctx context.Context, path string, query url.Values) (*Stream, error) {
	u := t.provider.URLForPath(path)
	if len(query) > 0 {
		sep := "?"
		if strings.ContainsRune(u, '?') {
			sep = "&"
		}
		u += sep + query.Encode()
	}

	ctx, cancel := context.WithCancel(ctx)
	httpReq, err := t.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, &NetworkError{Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxEventSize))
		resp.Body.Close()
		cancel()
		return nil, Classify(resp.StatusCode, resp.Header, body)
	}

	stream := newStream(cancel)
	go t.consumeSSE(ctx, cancel, resp.Body, stream)
	return stream, nil
}

// Unary performs a non-streaming call against the provider: GET or
// DELETE on a response resource, or a cancel POST. The query values are
// merged into the profile's URL and the response body is returned on
// success.
func (t *HTTPTransport) Unary(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	u := t.provider.URLForPath(path)
	if len(query) > 0 {
		sep := "?"
		if strings.ContainsRune(u, '?') {
			sep = "&"
		}
		u += sep + query.Encode()
	}

	httpReq, err := t.newRequest(ctx, method, u, body)
	if err != nil {
		return nil, err
	}

	debug.Log("transport", "request", "method", method, "url", u)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxEventSize))
	if err != nil {
		return nil, &NetworkError{Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, Classify(resp.StatusCode, resp.Header, data)
	}

	return data, nil
}

// newRequest builds an HTTP request with provider headers and
// credentials attached.
func (t *HTTPTransport) newRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("building request: %v", err)}
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	for k, v := range t.provider.Headers {
		httpReq.Header.Set(k, v)
	}

	if err := auth.Apply(t.creds, httpReq, t.provider.Caps.APIKeyHeader); err != nil {
		return nil, &AuthError{Message: err.Error()}
	}

	return httpReq, nil
}

// Close releases idle connections.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
