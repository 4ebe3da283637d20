package server

import (
	"net/http"

	"github.com/tjfontaine/account-gateway/internal/auth"
	"github.com/tjfontaine/account-gateway/internal/domain"
)

// Handler is a fallible request handler. A step either writes a response and
// returns nil, delegates to the next Handler, or returns an error which
// travels back to the chain's Boundary untouched.
type Handler func(w http.ResponseWriter, r *http.Request) error

// Middleware wraps a Handler. Middlewares run in registration order on the
// way in.
type Middleware func(next Handler) Handler

// RouteFunc is the terminal handler of an authenticated chain. The auth
// context is passed explicitly and is never read from package state.
type RouteFunc func(w http.ResponseWriter, r *http.Request, ac auth.Context) error

// Boundary is the single failure boundary of a chain. It is the only way to
// turn a Handler into an http.Handler, so it always wraps every step and the
// terminal handler.
type Boundary interface {
	Wrap(next Handler) http.Handler
}

// Chain is an immutable, ordered composition of middlewares under one
// Boundary.
type Chain struct {
	boundary Boundary
	steps    []Middleware
}

// NewChain creates a chain whose outermost step is boundary. It panics when
// boundary or any step is nil, since that is a wiring error.
func NewChain(boundary Boundary, steps ...Middleware) *Chain {
	if boundary == nil {
		panic("server: chain requires an error boundary")
	}
	c := &Chain{boundary: boundary}
	return c.Use(steps...)
}

// Use returns a new chain with steps appended after the existing ones. The
// receiver is left unchanged.
func (c *Chain) Use(steps ...Middleware) *Chain {
	for _, s := range steps {
		if s == nil {
			panic("server: nil middleware")
		}
	}
	next := make([]Middleware, 0, len(c.steps)+len(steps))
	next = append(next, c.steps...)
	next = append(next, steps...)
	return &Chain{boundary: c.boundary, steps: next}
}

// Len returns the number of steps, excluding the boundary.
func (c *Chain) Len() int { return len(c.steps) }

// ThenHandler composes the chain around h.
func (c *Chain) ThenHandler(h Handler) http.Handler {
	for i := len(c.steps) - 1; i >= 0; i-- {
		h = c.steps[i](h)
	}
	return c.boundary.Wrap(h)
}

// Then composes the chain around an authenticated route. The chain must
// contain an Authenticate step.
func (c *Chain) Then(route RouteFunc) http.Handler {
	return c.ThenHandler(func(w http.ResponseWriter, r *http.Request) error {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			return domain.ErrInternal("route requires an auth context but none was attached")
		}
		return route(w, r, ac)
	})
}
