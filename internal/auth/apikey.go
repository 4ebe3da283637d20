package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/tjfontaine/account-gateway/internal/domain"
)

// APIKey binds a hashed API key to a user.
type APIKey struct {
	KeyHash     string
	UserID      string
	Description string
	Claims      map[string]any
	// ExpiresAt is optional; a zero value never expires.
	ExpiresAt time.Time
}

// APIKeyResolver validates hashed API keys.
type APIKeyResolver struct {
	keys map[string]APIKey // keyhash -> key
	now  func() time.Time
}

// NewAPIKeyResolver creates a resolver over keys.
func NewAPIKeyResolver(keys []APIKey) *APIKeyResolver {
	r := &APIKeyResolver{
		keys: make(map[string]APIKey, len(keys)),
		now:  time.Now,
	}
	for _, k := range keys {
		r.keys[k.KeyHash] = k
	}
	return r
}

// Resolve implements Resolver.
func (a *APIKeyResolver) Resolve(_ context.Context, r *http.Request) (Context, error) {
	apiKey, err := ExtractBearer(r)
	if err != nil {
		return Context{}, err
	}

	keyHash := HashAPIKey(apiKey)
	key, ok := a.keys[keyHash]
	if !ok || subtle.ConstantTimeCompare([]byte(keyHash), []byte(key.KeyHash)) != 1 {
		return Context{}, domain.ErrUnauthenticated("invalid API key")
	}

	if !key.ExpiresAt.IsZero() && !a.now().Before(key.ExpiresAt) {
		return Context{}, domain.ErrExpired("API key expired")
	}

	claims := copyClaims(key.Claims)
	claims["auth_method"] = "api_key"
	return NewContext(key.UserID, claims), nil
}
