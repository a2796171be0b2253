package api

// IsTerminal reports whether the status represents a finished turn.
func (s ResponseStatus) IsTerminal() bool {
	switch s {
	case ResponseStatusCompleted, ResponseStatusFailed, ResponseStatusCancelled, ResponseStatusIncomplete:
		return true
	}
	return false
}

// Chainable reports whether a response in this status produced an
// identifier usable for conversation chaining. Failed and cancelled
// turns never advance the chain; incomplete turns still carry a usable
// identifier.
func (s ResponseStatus) Chainable() bool {
	return s == ResponseStatusCompleted || s == ResponseStatusIncomplete
}

// KnownStatus reports whether the status value is one the client
// understands. The interpreter treats unknown statuses on a terminal
// event as a protocol error rather than guessing.
func KnownStatus(s ResponseStatus) bool {
	switch s {
	case ResponseStatusQueued, ResponseStatusInProgress, ResponseStatusCompleted,
		ResponseStatusIncomplete, ResponseStatusFailed, ResponseStatusCancelled:
		return true
	}
	return false
}
