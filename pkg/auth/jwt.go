package auth

import (
	"fmt"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// RefreshLeeway is how long before expiry a cached bearer token is
// considered stale and refreshed.
const RefreshLeeway = 2 * time.Minute

// JWTSource caches a bearer JWT obtained from a supplier and refreshes
// it before the exp claim lapses. The token is parsed without signature
// verification; validating it is the server's job, the client only
// needs the expiry to avoid sending a token it knows is dead.
type JWTSource struct {
	// Supply fetches a fresh token. Called under the source's lock, so
	// it must not call back into the source.
	Supply func() (string, error)

	mu      sync.Mutex
	cached  string
	expires time.Time
	nowFunc func() time.Time // for testing; defaults to time.Now
}

// NewJWTSource creates a JWTSource backed by the given supplier.
func NewJWTSource(supply func() (string, error)) *JWTSource {
	return &JWTSource{Supply: supply}
}

// Token returns the cached JWT, refreshing it if missing or within
// RefreshLeeway of expiry. Tokens without a parseable exp claim are
// cached until the supplier is asked again by an explicit Invalidate.
func (s *JWTSource) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now
	if s.nowFunc != nil {
		now = s.nowFunc
	}

	if s.cached != "" && (s.expires.IsZero() || now().Before(s.expires.Add(-RefreshLeeway))) {
		return s.cached, nil
	}

	if s.Supply == nil {
		return "", ErrNoCredentials
	}

	token, err := s.Supply()
	if err != nil {
		return "", fmt.Errorf("refreshing bearer token: %w", err)
	}
	if token == "" {
		return "", ErrNoCredentials
	}

	s.cached = token
	s.expires = tokenExpiry(token)
	return token, nil
}

// Invalidate discards the cached token so the next Token call refreshes.
// Called by the transport after the server rejects the credential.
func (s *JWTSource) Invalidate() {
	s.mu.Lock()
	s.cached = ""
	s.expires = time.Time{}
	s.mu.Unlock()
}

// tokenExpiry extracts the exp claim from a JWT without verifying the
// signature. Returns the zero time for opaque or claim-less tokens.
func tokenExpiry(token string) time.Time {
	parsed, _, err := jwtlib.NewParser().ParseUnverified(token, jwtlib.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
