// Package api defines the wire types for the Responses API as consumed
// by the anfrage client: conversation items, tool definitions, the
// create-response request and response envelopes, streaming events, and
// the structured error envelope.
//
// The types follow the flat item wire format: type-specific fields sit
// at the top level of each item object, selected by the "type" tag.
// Custom MarshalJSON/UnmarshalJSON implementations keep the Go-side
// representation a tagged union while producing the exact shape the
// providers expect.
//
// Fields that some providers reject when present-but-null (notably
// previous_response_id) use omitempty so the builder can omit them
// entirely rather than sending null.
package api
