// Package codec translates pipeline failures into the wire-level error
// envelope returned to clients.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/tjfontaine/account-gateway/internal/domain"
)

// fallbackMessage is used when a failure carries no usable message.
const fallbackMessage = "An unexpected error occurred"

// ErrorResponse is a translated failure ready to be written.
type ErrorResponse struct {
	StatusCode int
	Kind       domain.ErrorKind
	Message    string
	Body       []byte
}

// Envelope is the JSON shape of every error response.
type Envelope struct {
	Error EnvelopeError `json:"error"`
}

// EnvelopeError is the body of Envelope.
type EnvelopeError struct {
	Kind          string `json:"kind"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// ToCanonicalError converts any error to a *domain.Error with a recognized kind.
// Pipeline errors with a known kind pass through; unknown kinds and foreign
// errors become server/internal_error with the original message.
func ToCanonicalError(err error) *domain.Error {
	if err == nil {
		return domain.ErrInternal(fallbackMessage)
	}

	var pe *domain.Error
	if errors.As(err, &pe) && pe != nil {
		if pe.Kind.Known() {
			return &domain.Error{
				Kind:          pe.Kind,
				Message:       messageOr(pe.Message),
				StatusCode:    pe.StatusCode,
				CorrelationID: pe.CorrelationID,
				Err:           pe.Err,
			}
		}
		return domain.ErrInternal(messageOr(pe.Message)).WithCause(err)
	}

	return domain.ErrInternal(messageOr(err.Error())).WithCause(err)
}

// Translate maps err to a status code and JSON envelope. correlationID takes
// precedence over an id annotated on err. Translate never panics.
func Translate(err error, correlationID string) (resp *ErrorResponse) {
	defer func() {
		if r := recover(); r != nil {
			resp = encode(domain.ErrInternal(fmt.Sprintf("%s: %v", fallbackMessage, r)), correlationID)
		}
	}()

	if correlationID == "" {
		correlationID = domain.CorrelationIDOf(err)
	}
	return encode(ToCanonicalError(err), correlationID)
}

func encode(e *domain.Error, correlationID string) *ErrorResponse {
	if correlationID == "" {
		correlationID = e.CorrelationID
	}

	// Marshaling a struct of strings cannot fail.
	body, _ := json.Marshal(Envelope{
		Error: EnvelopeError{
			Kind:          string(e.Kind),
			Message:       e.Message,
			CorrelationID: correlationID,
		},
	})

	status := e.HTTPStatusCode()
	if status < http.StatusBadRequest || status > 599 {
		status = http.StatusInternalServerError
	}

	return &ErrorResponse{
		StatusCode: status,
		Kind:       e.Kind,
		Message:    e.Message,
		Body:       body,
	}
}

func messageOr(msg string) string {
	if msg == "" {
		return fallbackMessage
	}
	return msg
}
