// Package auth authenticates callers and produces the immutable per-request
// auth context handed to route handlers.
//
// Resolvers only establish identity. Deciding whether an identity may perform
// an operation is left to the route handler.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/tjfontaine/account-gateway/internal/domain"
)

// Context is the resolved identity of one request. The zero value is the
// unauthenticated context. Context is immutable: accessors return copies.
type Context struct {
	userID string
	claims map[string]any
}

// NewContext builds a Context, copying claims.
func NewContext(userID string, claims map[string]any) Context {
	return Context{userID: userID, claims: copyClaims(claims)}
}

// UserID returns the authenticated user id.
func (c Context) UserID() string { return c.userID }

// Claims returns a copy of the credential's claims.
func (c Context) Claims() map[string]any { return copyClaims(c.claims) }

// Claim returns a single claim.
func (c Context) Claim(key string) (any, bool) {
	v, ok := c.claims[key]
	return v, ok
}

// IsZero reports whether c carries no identity.
func (c Context) IsZero() bool { return c.userID == "" }

func copyClaims(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Resolver extracts and validates the caller identity of a request.
// Implementations must be idempotent and must not mutate shared state.
type Resolver interface {
	Resolve(ctx context.Context, r *http.Request) (Context, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, r *http.Request) (Context, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, r *http.Request) (Context, error) {
	return f(ctx, r)
}

type contextKey struct{}

// WithContext returns a copy of ctx carrying ac.
func WithContext(ctx context.Context, ac Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

// FromContext returns the auth context attached to ctx.
func FromContext(ctx context.Context) (Context, bool) {
	ac, ok := ctx.Value(contextKey{}).(Context)
	return ac, ok && !ac.IsZero()
}

// ExtractBearer extracts the bearer credential from the Authorization header.
func ExtractBearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", domain.ErrUnauthenticated("missing Authorization header")
	}

	// Support "Bearer <credential>" format
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", domain.ErrUnauthenticated("unsupported authorization scheme")
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", domain.ErrUnauthenticated("empty bearer credential")
	}
	return token, nil
}

// HashAPIKey creates a SHA-256 hash of an API key for storage
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}

// Chain dispatches to a JWT resolver for three-segment tokens and to an API
// key resolver for everything else. Either may be nil.
type Chain struct {
	JWT    Resolver
	APIKey Resolver
}

// Resolve implements Resolver.
func (c *Chain) Resolve(ctx context.Context, r *http.Request) (Context, error) {
	token, err := ExtractBearer(r)
	if err != nil {
		return Context{}, err
	}

	if strings.Count(token, ".") == 2 && c.JWT != nil {
		return c.JWT.Resolve(ctx, r)
	}
	if c.APIKey != nil {
		return c.APIKey.Resolve(ctx, r)
	}
	return Context{}, domain.ErrUnauthenticated("unsupported credential")
}
