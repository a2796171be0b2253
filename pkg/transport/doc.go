// Package transport moves built request envelopes to the provider and
// hands decoded stream events back, over one of two wire protocols:
//
//   - HTTPTransport posts one request per turn and consumes a
//     server-sent-event stream (or a single buffered JSON object for
//     non-streaming turns). It also serves the unary response
//     endpoints (get, delete, cancel, input items).
//   - SocketTransport reuses a persistent WebSocket connection across
//     turns, correlating each turn's frames by a per-turn identifier
//     and reconnecting transparently between turns.
//
// All failures crossing this package boundary are classified into the
// client's error taxonomy (ValidationError, AuthError, RateLimited,
// ServerError, NetworkError, ProtocolError, ClientError); callers never
// see raw HTTP or WebSocket errors. The Retrier wraps transport calls
// with exponential backoff plus jitter, honoring server-supplied
// retry-after hints.
package transport
