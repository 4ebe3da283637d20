package server

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/account-gateway/internal/correlation"
	"github.com/tjfontaine/account-gateway/internal/domain"
)

// Correlation resolves the request's correlation id, echoes it in the
// response header before any later step runs, and stores it in the request
// context. An inbound X-Correlation-Id is reused verbatim.
//
// Errors returned by later steps are annotated with the id so the boundary
// can report it even when the header was discarded.
func Correlation() Middleware {
	return func(next Handler) Handler {
		return func(w http.ResponseWriter, r *http.Request) error {
			ctx := r.Context()
			id := correlation.Resolve(r.Header.Get(correlation.Header), correlation.FromContext(ctx))

			w.Header().Set(correlation.Header, id)
			ctx = correlation.WithID(ctx, id)
			trace.SpanFromContext(ctx).SetAttributes(attribute.String("correlation.id", id))
			AddLogField(ctx, "correlation_root", correlation.Root(id))

			if err := next(w, r.WithContext(ctx)); err != nil {
				return domain.WithCorrelationID(err, id)
			}
			return nil
		}
	}
}
