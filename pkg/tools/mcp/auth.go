package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// AuthProvider supplies authentication headers for MCP requests.
type AuthProvider interface {
	// Headers returns the HTTP headers to attach to a request.
	Headers(ctx context.Context) (map[string]string, error)
}

// ClientCredentialsAuth obtains bearer tokens through the OAuth 2.0
// client_credentials grant. Tokens are cached and refreshed once 80%
// of their lifetime has elapsed; when a proactive refresh fails, the
// cached token is used until it actually expires.
type ClientCredentialsAuth struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	mu         sync.Mutex
	token      string
	expiry     time.Time
	refreshAt  time.Time
	httpClient *http.Client
	nowFunc    func() time.Time
}

// NewClientCredentialsAuth creates a ClientCredentialsAuth provider
// from an AuthConfig.
func NewClientCredentialsAuth(cfg AuthConfig) *ClientCredentialsAuth {
	return &ClientCredentialsAuth{
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		nowFunc:      time.Now,
	}
}

// Headers returns an Authorization header with a cached or freshly
// acquired bearer token.
func (a *ClientCredentialsAuth) Headers(ctx context.Context) (map[string]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.nowFunc()
	if a.token != "" && now.Before(a.refreshAt) {
		return map[string]string{"Authorization": "Bearer " + a.token}, nil
	}

	token, expiresIn, err := a.fetchToken(ctx)
	if err != nil {
		// Keep serving the cached token while it remains valid.
		if a.token != "" && now.Before(a.expiry) {
			return map[string]string{"Authorization": "Bearer " + a.token}, nil
		}
		return nil, fmt.Errorf("acquiring OAuth token: %w", err)
	}

	a.token = token
	a.expiry = now.Add(time.Duration(expiresIn) * time.Second)
	a.refreshAt = now.Add(time.Duration(float64(expiresIn)*0.8) * time.Second)

	return map[string]string{"Authorization": "Bearer " + a.token}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (a *ClientCredentialsAuth) fetchToken(ctx context.Context) (string, int, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {a.ClientID},
		"client_secret": {a.ClientSecret},
	}
	if len(a.Scopes) > 0 {
		form.Set("scope", strings.Join(a.Scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, fmt.Errorf("parsing token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", 0, fmt.Errorf("token response missing access_token")
	}
	return tr.AccessToken, tr.ExpiresIn, nil
}
