package server

import (
	"context"
	"net/http"
	"time"
)

// Timeout bounds the request context of every later step. Cancellation is
// cooperative: handlers observe it through r.Context().
func Timeout(timeout time.Duration) Middleware {
	return func(next Handler) Handler {
		if timeout <= 0 {
			return next
		}
		return func(w http.ResponseWriter, r *http.Request) error {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			return next(w, r.WithContext(ctx))
		}
	}
}
