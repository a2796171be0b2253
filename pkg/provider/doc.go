// Package provider models the endpoint profiles the anfrage client can
// talk to: base URL, wire protocol, authentication style, static
// headers and query parameters, retry policy, and a closed set of
// capability flags resolved once at configuration time.
//
// Provider-conditional behavior (Azure-only fields, chaining support,
// forced store) is expressed through capability flags consulted by the
// payload builder, never through endpoint-name string checks scattered
// across the code.
package provider
