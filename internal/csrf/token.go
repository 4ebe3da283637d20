// Package csrf implements the anti-forgery token lifecycle: server-side
// issuance and validation bound to a session, and a client-side Manager that
// fetches and caches one token per session.
package csrf

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
)

const (
	// Header carries the token on mutating requests.
	Header = "X-CSRF-Token"

	// DefaultCookieName identifies the session a token is bound to.
	DefaultCookieName = "csrf_session"

	tokenBytes = 32
)

// NewToken returns a random 64-character hex token.
func NewToken() (string, error) {
	var buf [tokenBytes]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

// IsMutating reports whether method changes server state and therefore needs
// a token.
func IsMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// IsSafe reports whether method bypasses validation.
func IsSafe(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
