package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anfrage-dev/anfrage/pkg/api"
	"github.com/anfrage-dev/anfrage/pkg/auth"
	"github.com/anfrage-dev/anfrage/pkg/debug"
	"github.com/anfrage-dev/anfrage/pkg/history"
	"github.com/anfrage-dev/anfrage/pkg/observability"
	"github.com/anfrage-dev/anfrage/pkg/provider"
	"github.com/anfrage-dev/anfrage/pkg/transport"
)

// Session is one logical conversation thread. At most one turn is in
// flight per session; a second Respond call blocks until the prior
// turn reaches its terminal event or is cancelled.
type Session struct {
	ID string

	mu       sync.Mutex
	chain    ChainState
	turns    int
	recorded int // prompt items already persisted to the history store
}

// NewSession creates a session with a generated identifier.
func NewSession() *Session {
	return &Session{ID: "sess-" + uuid.NewString()}
}

// NewSessionWithID creates a session with a caller-chosen identifier,
// used to resume a conversation from the history store.
func NewSessionWithID(id string) *Session {
	return &Session{ID: id}
}

// Chain exposes the session's chain state, mainly for tests and
// debugging surfaces.
func (s *Session) Chain() *ChainState {
	return &s.chain
}

// Options configures a Client.
type Options struct {
	// Provider selects the endpoint, wire protocol, and capabilities.
	Provider *provider.Provider

	// Credentials supply the bearer token or API key.
	Credentials auth.Credentials

	// Model is the model identifier sent on every turn.
	Model string

	// Retry overrides the provider's retry policy when set.
	Retry *provider.RetryConfig

	// History persists each session's sent items, enabling resume and
	// serving providers without native chaining.
	History history.Store
}

// TurnResult is the outcome of one completed turn.
type TurnResult struct {
	// Response is the assembled terminal response.
	Response *api.Response

	// OutputText is the concatenation of streamed text deltas.
	OutputText string
}

// Client drives turns against one provider. It is safe for concurrent
// use across sessions.
type Client struct {
	provider *provider.Provider
	model    string

	stream  transport.Transport
	http    *transport.HTTPTransport
	retrier *transport.Retrier
	history history.Store
}

// New builds a client for the given provider profile. The HTTP
// transport always exists for the unary response endpoints; streaming
// turns go over HTTP+SSE or the persistent socket per the profile.
func New(opts Options) (*Client, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("provider profile is required")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	retry := opts.Provider.Retry
	if opts.Retry != nil {
		retry = *opts.Retry
	}

	c := &Client{
		provider: opts.Provider,
		model:    opts.Model,
		http:     transport.NewHTTP(opts.Provider, opts.Credentials),
		retrier:  transport.NewRetrier(retry),
		history:  opts.History,
	}

	switch opts.Provider.Wire {
	case provider.WireSocket:
		c.stream = transport.NewSocket(opts.Provider, opts.Credentials)
	default:
		c.stream = c.http
	}

	return c, nil
}

// Close releases both transports and the history store.
func (c *Client) Close() error {
	err := c.stream.Close()
	if herr := c.http.Close(); err == nil {
		err = herr
	}
	if c.history != nil {
		if herr := c.history.Close(); err == nil {
			err = herr
		}
	}
	return err
}

// Respond runs one turn: build the envelope from the prompt and chain
// state, send it with retry, interpret the event stream, and record
// chain bookkeeping. onEvent, when non-nil, receives every stream
// event as it arrives for live display. Cancelling ctx aborts the turn
// without mutating the chain.
func (c *Client) Respond(ctx context.Context, sess *Session, prompt *Prompt, onEvent func(api.StreamEvent)) (*TurnResult, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	req, sent, err := buildRequest(c.provider, c.model, prompt, &sess.chain)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("serializing envelope: %w", err)
	}
	if c.provider.Caps.RequiresItemIDs {
		body, err = provider.AttachItemIDs(body, req.Input)
		if err != nil {
			return nil, fmt.Errorf("attaching item IDs: %w", err)
		}
	}

	key := req.IdempotencyKey
	if key == "" {
		key = api.NewIdempotencyKey()
	}

	start := time.Now()
	var outputText string

	// Every retry resends the same serialized envelope and the same
	// idempotency key, so the provider can deduplicate the create.
	response, err := transport.Do(ctx, c.retrier, func(ctx context.Context) (*api.Response, error) {
		stream, err := c.stream.Send(ctx, &transport.Request{
			Body:           body,
			Stream:         req.Stream,
			IdempotencyKey: key,
			TurnID:         uuid.NewString(),
		})
		if err != nil {
			c.countRetryClass(err)
			return nil, err
		}

		observability.ActiveStreams.Inc()
		defer observability.ActiveStreams.Dec()

		in := newInterpreter()
		resp, err := in.consume(stream, onEvent)
		if err != nil {
			c.countRetryClass(err)
			return nil, err
		}
		outputText = in.outputText()
		return resp, nil
	})

	observability.TurnDuration.WithLabelValues(c.provider.Name, c.model).
		Observe(time.Since(start).Seconds())

	if err != nil {
		var broken *api.ChainBroken
		if errors.As(err, &broken) {
			// The server no longer resolves our chain head; drop it so
			// the caller's next turn resends full history.
			debug.Log("chain", "chain broken, resetting", "session", sess.ID, "error", broken.Message)
			sess.chain.Reset()
		}
		observability.TurnsTotal.WithLabelValues(c.provider.Name, c.model, "error").Inc()
		return nil, err
	}

	observability.TurnsTotal.WithLabelValues(c.provider.Name, c.model, string(response.Status)).Inc()
	if response.Usage != nil {
		observability.TokensTotal.WithLabelValues(c.provider.Name, c.model, "input").
			Add(float64(response.Usage.InputTokens))
		observability.TokensTotal.WithLabelValues(c.provider.Name, c.model, "output").
			Add(float64(response.Usage.OutputTokens))
	}

	if response.Status.Chainable() {
		if c.provider.Caps.Chaining {
			if api.ValidResponseID(response.ID) {
				sess.chain.Record(response.ID, sent)
			} else {
				// A malformed head would poison every later turn's
				// previous_response_id; drop the chain so the next
				// turn resends full history instead.
				debug.Log("chain", "terminal response ID rejected, resetting chain",
					"session", sess.ID, "id", response.ID)
				sess.chain.Reset()
			}
		}
		sess.turns++
		observability.ChainLength.WithLabelValues(c.provider.Name).Observe(float64(sess.turns))
		c.persistHistory(ctx, sess, prompt)
	}

	return &TurnResult{Response: response, OutputText: outputText}, nil
}

// persistHistory appends the prompt items not yet recorded for this
// session. Output items arrive on a later turn when the caller folds
// them into the prompt history. Callers must hold sess.mu.
func (c *Client) persistHistory(ctx context.Context, sess *Session, prompt *Prompt) {
	if c.history == nil {
		return
	}
	if sess.recorded > len(prompt.Items) {
		sess.recorded = len(prompt.Items)
	}
	tail := prompt.Items[sess.recorded:]
	if len(tail) > 0 {
		if err := c.history.Append(ctx, sess.ID, tail); err != nil {
			debug.Log("chain", "history append failed", "session", sess.ID, "error", err)
		}
	}
	sess.recorded = len(prompt.Items)
}

// Resume loads a session's persisted history so a caller can rebuild
// its prompt after a process restart. The session's bookkeeping is
// aligned with the loaded items; the chain starts empty, so the first
// resumed turn resends full history.
func (c *Client) Resume(ctx context.Context, sess *Session) ([]api.Item, error) {
	if c.history == nil {
		return nil, fmt.Errorf("no history store configured")
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	items, err := c.history.Load(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	sess.recorded = len(items)
	return items, nil
}

// ResetSession forks the conversation: chain state and bookkeeping are
// cleared and any persisted history is discarded.
func (c *Client) ResetSession(ctx context.Context, sess *Session) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.chain.Reset()
	sess.turns = 0
	sess.recorded = 0

	if c.history != nil {
		return c.history.Reset(ctx, sess.ID)
	}
	return nil
}

// countRetryClass records a retry-eligible failure by class.
func (c *Client) countRetryClass(err error) {
	var class string
	var (
		rl *transport.RateLimitedError
		se *transport.ServerError
		ne *transport.NetworkError
	)
	switch {
	case errors.As(err, &rl):
		class = "rate_limited"
	case errors.As(err, &se):
		class = "server_error"
	case errors.As(err, &ne):
		class = "network_error"
	default:
		return
	}
	observability.RetriesTotal.WithLabelValues(c.provider.Name, class).Inc()
}
