package api

import (
	"regexp"

	"github.com/google/uuid"
)

const idempotencyKeyPrefix = "ik_"

var responseIDPattern = regexp.MustCompile(`^resp[_-][a-zA-Z0-9]+$`)

// NewIdempotencyKey generates an opaque idempotency key for a create-turn
// request. The builder forwards it unchanged across retries so the server
// can deduplicate the call.
func NewIdempotencyKey() string {
	return idempotencyKeyPrefix + uuid.NewString()
}

// ValidResponseID reports whether the given string looks like a
// server-assigned response identifier. Used as a sanity check before a
// terminal identifier is adopted for chaining.
func ValidResponseID(id string) bool {
	return responseIDPattern.MatchString(id)
}
