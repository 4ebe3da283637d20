package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/tjfontaine/account-gateway/internal/codec"
	"github.com/tjfontaine/account-gateway/internal/correlation"
	"github.com/tjfontaine/account-gateway/internal/domain"
)

// ErrorBoundary converts every failure raised inside a chain, including
// panics, into exactly one JSON error response.
type ErrorBoundary struct {
	logger  *slog.Logger
	metrics *Metrics
}

// BoundaryOption configures an ErrorBoundary.
type BoundaryOption func(*ErrorBoundary)

// WithMetrics counts translated failures by kind.
func WithMetrics(m *Metrics) BoundaryOption {
	return func(b *ErrorBoundary) { b.metrics = m }
}

// NewErrorBoundary creates an ErrorBoundary. A nil logger uses slog.Default.
func NewErrorBoundary(logger *slog.Logger, opts ...BoundaryOption) *ErrorBoundary {
	if logger == nil {
		logger = slog.Default()
	}
	b := &ErrorBoundary{logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Wrap implements Boundary.
func (b *ErrorBoundary) Wrap(next Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := &trackingWriter{ResponseWriter: w}
		if err := invoke(next, tw, r); err != nil {
			b.fail(tw, r, err)
		}
	})
}

// invoke runs next and turns a panic into an error. http.ErrAbortHandler is
// re-raised so net/http can abort the connection.
func invoke(next Handler, w http.ResponseWriter, r *http.Request) (err error) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if rec == http.ErrAbortHandler {
			panic(rec)
		}
		AddLogField(r.Context(), "panic_stack", string(debug.Stack()))
		if e, ok := rec.(error); ok {
			err = fmt.Errorf("panic: %w", e)
			return
		}
		err = fmt.Errorf("panic: %v", rec)
	}()
	return next(w, r)
}

func (b *ErrorBoundary) fail(w *trackingWriter, r *http.Request, err error) {
	ctx := r.Context()
	AddError(ctx, err)

	correlationID := w.Header().Get(correlation.Header)
	if correlationID == "" {
		correlationID = domain.CorrelationIDOf(err)
	}

	if ctx.Err() != nil {
		b.logger.DebugContext(ctx, "request cancelled before error response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()))
		return
	}

	resp := codec.Translate(err, correlationID)
	b.metrics.ObserveFailure(string(resp.Kind))

	level := slog.LevelWarn
	if resp.StatusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	b.logger.LogAttrs(ctx, level, "request failed",
		slog.String("correlation_id", correlationID),
		slog.String("kind", string(resp.Kind)),
		slog.Int("status", resp.StatusCode),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)

	if w.wroteHeader {
		// The handler already committed a response; the status line cannot
		// change anymore.
		return
	}

	if correlationID != "" {
		w.Header().Set(correlation.Header, correlationID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

// trackingWriter records whether a response has been started.
type trackingWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (w *trackingWriter) WriteHeader(code int) {
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *trackingWriter) Write(p []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(p)
}

func (w *trackingWriter) Flush() {
	w.wroteHeader = true
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *trackingWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
