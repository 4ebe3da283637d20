package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/tjfontaine/account-gateway/internal/domain"
)

// maxBodyBytes caps request bodies decoded by DecodeJSON.
const maxBodyBytes = 1 << 20

// Validatable is implemented by request bodies with field constraints.
type Validatable interface {
	Validate() error
}

// DecodeJSON decodes the request body into v. Malformed or oversized bodies
// and bodies failing Validate become validation/invalid_body errors.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return domain.ErrInvalidBody("request body is required")
	}

	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return domain.ErrInvalidBody("request body too large").WithCause(err)
		case errors.Is(err, io.EOF):
			return domain.ErrInvalidBody("request body is required")
		}
		return domain.ErrInvalidBody("malformed JSON body").WithCause(err)
	}
	if dec.More() {
		return domain.ErrInvalidBody("request body must contain a single JSON value")
	}

	if val, ok := v.(Validatable); ok {
		if err := val.Validate(); err != nil {
			var de *domain.Error
			if errors.As(err, &de) {
				return err
			}
			return domain.ErrInvalidBody(err.Error()).WithCause(err)
		}
	}
	return nil
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
