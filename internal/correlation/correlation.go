// Package correlation generates and propagates causally-linked request
// identifiers.
//
// A root request gets a fresh id (or reuses the one supplied by the caller).
// Work spawned on behalf of that request derives dotted child ids of the form
// "parent.child", so every identifier starts with its root ancestor. Ids live
// in the request's context.Context and never in package state, so concurrent
// requests cannot observe each other's ids.
package correlation

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Header is the HTTP header carrying the correlation id in both directions.
const Header = "X-Correlation-Id"

// Separator joins a parent id and a child suffix.
const Separator = "."

type contextKey struct{}

// NewID returns a fresh, globally unique identifier.
func NewID() string {
	return uuid.NewString()
}

// Resolve picks the correlation id for an operation. A non-empty incoming id
// is reused verbatim; otherwise a non-empty parent is extended with a fresh
// suffix; otherwise a fresh root id is generated.
func Resolve(incoming, parent string) string {
	if id := strings.TrimSpace(incoming); id != "" {
		return incoming
	}
	if parent != "" {
		return Derive(parent)
	}
	return NewID()
}

// Derive returns a child id of parent.
func Derive(parent string) string {
	return parent + Separator + NewID()
}

// Root returns the root ancestor of id.
func Root(id string) string {
	if i := strings.Index(id, Separator); i >= 0 {
		return id[:i]
	}
	return id
}

// WithID returns a copy of ctx carrying id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the correlation id stored in ctx, or "" if none.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}

// Child derives a child id from the id in ctx and returns a context carrying
// it. Without an id in ctx the child becomes a fresh root.
func Child(ctx context.Context) (context.Context, string) {
	id := Resolve("", FromContext(ctx))
	return WithID(ctx, id), id
}

// Transport propagates the correlation id of each outgoing request's context
// as a derived child id header. Requests that already set the header are left
// untouched.
type Transport struct {
	// Base is the underlying RoundTripper; http.DefaultTransport if nil.
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	parent := FromContext(req.Context())
	if parent == "" || req.Header.Get(Header) != "" {
		return base.RoundTrip(req)
	}

	// RoundTrippers must not modify the caller's request.
	out := req.Clone(req.Context())
	out.Header.Set(Header, Derive(parent))
	return base.RoundTrip(out)
}
