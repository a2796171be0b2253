// Package history defines the fallback conversation store used for
// providers without native response chaining. When a provider cannot
// resolve previous_response_id, the client keeps each session's full
// item history here and resends it on every turn. The package holds
// the interface and shared sentinel errors; adapters live in the
// memory and postgres subpackages.
package history

import (
	"context"
	"errors"

	"github.com/anfrage-dev/anfrage/pkg/api"
)

// Sentinel errors for history operations.
var (
	// ErrSessionNotFound is returned when a session has no recorded history.
	ErrSessionNotFound = errors.New("session not found")
)

// Store keeps per-session conversation history. Items are append-only
// within a session; Reset discards the session entirely, matching a
// conversation fork. Implementations must be safe for concurrent use.
type Store interface {
	// Append adds items to the end of the session's history, creating
	// the session if needed.
	Append(ctx context.Context, session string, items []api.Item) error

	// Load returns the session's full history in append order.
	// Returns ErrSessionNotFound for unknown sessions.
	Load(ctx context.Context, session string) ([]api.Item, error)

	// Reset discards the session's history. Resetting an unknown
	// session is a no-op.
	Reset(ctx context.Context, session string) error

	// Close releases underlying resources.
	Close() error
}
