package client

import "sync"

// ChainState tracks, per session, the last server-assigned response
// identifier and how many input items the server has acknowledged.
// The builder reads it before each turn; the client writes it only
// after a turn ends with a chainable status. Failed and cancelled
// turns never advance the chain.
type ChainState struct {
	mu           sync.Mutex
	lastID       string
	acknowledged int
}

// Record adopts the identifier of a completed turn and advances the
// acknowledged item count by the number of items sent in that turn.
// The count is monotonically non-decreasing within a session.
func (c *ChainState) Record(responseID string, sentThisTurn int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastID = responseID
	if sentThisTurn > 0 {
		c.acknowledged += sentThisTurn
	}
}

// Reset clears the chain, used on explicit session fork or when the
// server reports the chain broken.
func (c *ChainState) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastID = ""
	c.acknowledged = 0
}

// Snapshot returns the chain head and acknowledged count as one
// consistent pair.
func (c *ChainState) Snapshot() (lastID string, acknowledged int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastID, c.acknowledged
}
