package client

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
)

// ErrEmptyToken is returned when a BearerToken with no value is asked to
// authenticate a request.
var ErrEmptyToken = errors.New("bearer token is empty")

// Authenticator attaches credentials to an outgoing request. New strategies
// are added as new implementations.
type Authenticator interface {
	AttachCredentials(req *http.Request) error
}

// Unauthenticated sends requests without credentials. Public timelines,
// public accounts and statuses, and instance metadata work without a token.
type Unauthenticated struct{}

// AttachCredentials leaves the request untouched.
func (Unauthenticated) AttachCredentials(*http.Request) error {
	return nil
}

// BearerToken authenticates with an OAuth access token.
type BearerToken string

// AttachCredentials sets the Authorization header.
func (t BearerToken) AttachCredentials(req *http.Request) error {
	if t == "" {
		return ErrEmptyToken
	}
	req.Header.Set("Authorization", "Bearer "+string(t))
	return nil
}

// AccessToken returns the raw token for the streaming access_token query
// parameter.
func (t BearerToken) AccessToken() string {
	return string(t)
}

// CacheScope returns a short digest of the token so cached responses of
// different accounts never mix.
func (t BearerToken) CacheScope() string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:6])
}

// tokenSource is implemented by authenticators that can also be sent as a
// query parameter.
type tokenSource interface {
	AccessToken() string
}

// cacheScoper is implemented by authenticators whose responses must be
// cached apart from anonymous ones.
type cacheScoper interface {
	CacheScope() string
}
