package server

import (
	"net/http"

	"github.com/tjfontaine/account-gateway/internal/auth"
	"github.com/tjfontaine/account-gateway/internal/domain"
)

// Authenticate resolves the caller's identity and attaches it to the request
// context for later steps. Resolution failures propagate unchanged. An auth
// context is attached at most once per request; finding one already present
// is a wiring error.
func Authenticate(resolver auth.Resolver) Middleware {
	return func(next Handler) Handler {
		return func(w http.ResponseWriter, r *http.Request) error {
			ctx := r.Context()
			if _, ok := auth.FromContext(ctx); ok {
				return domain.ErrInternal("auth context already attached")
			}

			ac, err := resolver.Resolve(ctx, r)
			if err != nil {
				return err
			}
			if ac.IsZero() {
				return domain.ErrUnauthenticated("credential did not identify a user")
			}

			AddLogField(ctx, "user_id", ac.UserID())
			if m, ok := ac.Claim("auth_method"); ok {
				if s, ok := m.(string); ok {
					AddLogField(ctx, "auth_method", s)
				}
			}

			return next(w, r.WithContext(auth.WithContext(ctx, ac)))
		}
	}
}
