package auth

import (
	"errors"
	"net/http"
)

// ErrNoCredentials is returned when a source has no token to offer.
// The transport maps it to an AuthError before any request is sent.
var ErrNoCredentials = errors.New("no credentials available")

// Credentials produces tokens for API requests. Implementations must be
// safe for concurrent use; any refresh I/O happens inside Token.
type Credentials interface {
	// Token returns the current credential value.
	Token() (string, error)
}

// AccountProvider is an optional extension carrying an account identity
// forwarded in the ChatGPT-Account-ID header.
type AccountProvider interface {
	AccountID() string
}

// Apply attaches credentials to the request. Azure endpoints receive
// the token in the api-key header; everything else uses
// Authorization: Bearer.
func Apply(creds Credentials, req *http.Request, azure bool) error {
	if creds == nil {
		return ErrNoCredentials
	}

	token, err := creds.Token()
	if err != nil {
		return err
	}
	if token == "" {
		return ErrNoCredentials
	}

	if azure {
		req.Header.Set("api-key", token)
	} else {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if ap, ok := creds.(AccountProvider); ok {
		if id := ap.AccountID(); id != "" {
			req.Header.Set("ChatGPT-Account-ID", id)
		}
	}

	return nil
}

// StaticKey is a fixed API key.
type StaticKey string

// Token returns the key.
func (k StaticKey) Token() (string, error) {
	if k == "" {
		return "", ErrNoCredentials
	}
	return string(k), nil
}

// AccountKey couples a static key with an account identifier.
type AccountKey struct {
	Key     string
	Account string
}

func (k AccountKey) Token() (string, error) {
	if k.Key == "" {
		return "", ErrNoCredentials
	}
	return k.Key, nil
}

func (k AccountKey) AccountID() string {
	return k.Account
}
