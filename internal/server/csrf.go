package server

import "net/http"

// RequestValidator checks a request before it reaches later steps.
// *csrf.Validator satisfies it.
type RequestValidator interface {
	Validate(r *http.Request) error
}

// CSRF rejects state-changing requests that do not echo the session's token.
// The rejection is returned as an error so the boundary formats it.
func CSRF(v RequestValidator) Middleware {
	return func(next Handler) Handler {
		return func(w http.ResponseWriter, r *http.Request) error {
			if err := v.Validate(r); err != nil {
				return err
			}
			return next(w, r)
		}
	}
}
