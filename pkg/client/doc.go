// Package client implements the stateful turn client: it builds wire
// payloads from prompts and per-session chain state, sends them
// through a transport with retry, interprets the resulting event
// stream, and records chain bookkeeping so the next turn can send only
// new items.
//
// One logical turn is in flight per session at a time. Concurrent
// sessions are independent and may run fully in parallel.
package client
