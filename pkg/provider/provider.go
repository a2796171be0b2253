package provider

import (
	"net/url"
	"sort"
	"strings"
	"time"
)

// WireProtocol selects how a turn travels to the provider.
type WireProtocol string

const (
	// WireSSE sends one HTTP request per turn and consumes a
	// server-sent-event stream.
	WireSSE WireProtocol = "sse"

	// WireSocket exchanges framed messages over a persistent
	// bidirectional connection reused across turns.
	WireSocket WireProtocol = "socket"
)

// Capabilities is the closed set of per-provider behavior toggles.
// All flags are resolved once when the profile is constructed; the
// payload builder and transports consult them instead of inspecting
// endpoint names.
type Capabilities struct {
	// Chaining indicates the provider supports server-side conversation
	// continuation via previous_response_id.
	Chaining bool

	// ForcesStore indicates the provider requires store=true on every
	// request (Azure Responses deployments).
	ForcesStore bool

	// RequiresToolNames indicates the provider rejects tool entries
	// without a name, including built-in tool stubs.
	RequiresToolNames bool

	// RequiresItemIDs indicates chained input items must carry their
	// server-assigned IDs (Azure).
	RequiresItemIDs bool

	// APIKeyHeader indicates credentials travel in the api-key header
	// rather than Authorization: Bearer.
	APIKeyHeader bool

	// Reasoning indicates the provider accepts reasoning effort and
	// summary controls.
	Reasoning bool
}

// RetryConfig is the per-provider retry policy. Zero values fall back
// to the process-wide defaults applied by transport.NewRetrier.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration
	MaxElapsed    time.Duration
}

// DefaultRetry is the process-wide retry policy used when a profile
// leaves fields unset.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:   4,
		InitialDelay:  200 * time.Millisecond,
		BackoffFactor: 2.0,
		MaxDelay:      30 * time.Second,
		MaxElapsed:    2 * time.Minute,
	}
}

// Provider describes one API deployment: where to send requests and
// which toggles apply. Profiles are immutable after construction and
// safe to share across sessions.
type Provider struct {
	Name    string
	BaseURL string
	Wire    WireProtocol

	// QueryParams are appended to every request URL, e.g. the Azure
	// api-version selector.
	QueryParams map[string]string

	// Headers are static provider-required headers attached to every call.
	Headers map[string]string

	Caps  Capabilities
	Retry RetryConfig

	// StreamIdleTimeout bounds the wait between stream frames.
	StreamIdleTimeout time.Duration
}

// New constructs a profile for the given endpoint, resolving
// capability flags from the provider name and base URL. Azure
// endpoints get chaining with forced store, item-ID attachment, and
// api-key header auth.
func New(name, baseURL string, wire WireProtocol) *Provider {
	p := &Provider{
		Name:              name,
		BaseURL:           baseURL,
		Wire:              wire,
		StreamIdleTimeout: 5 * time.Minute,
		Caps: Capabilities{
			Chaining:          true,
			RequiresToolNames: true,
			Reasoning:         true,
		},
	}

	if IsAzureEndpoint(name, baseURL) {
		p.Caps.ForcesStore = true
		p.Caps.RequiresItemIDs = true
		p.Caps.APIKeyHeader = true
	}

	return p
}

// URLForPath joins the base URL with the given path and appends the
// profile's query parameters, preserving any query string already
// embedded in the base URL (Azure base URLs carry api-version there).
func (p *Provider) URLForPath(path string) string {
	path = strings.TrimPrefix(path, "/")

	basePath := p.BaseURL
	existingQuery := ""
	if idx := strings.IndexByte(basePath, '?'); idx >= 0 {
		existingQuery = basePath[idx+1:]
		basePath = basePath[:idx]
	}
	basePath = strings.TrimSuffix(basePath, "/")

	full := basePath
	if path != "" {
		full += "/" + path
	}

	var params []string
	if existingQuery != "" {
		params = append(params, existingQuery)
	}
	if len(p.QueryParams) > 0 {
		keys := make([]string, 0, len(p.QueryParams))
		for k := range p.QueryParams {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, url.QueryEscape(k)+"="+url.QueryEscape(p.QueryParams[k]))
		}
		params = append(params, strings.Join(pairs, "&"))
	}

	if len(params) > 0 {
		full += "?" + strings.Join(params, "&")
	}

	return full
}

// ResponseURL builds the URL for a per-response resource, inserting the
// response ID (and optional suffix) before the query string.
func (p *Provider) ResponseURL(responseID, suffix string) string {
	path := "responses/" + responseID
	if suffix != "" {
		path += "/" + strings.TrimPrefix(suffix, "/")
	}
	return p.URLForPath(path)
}
