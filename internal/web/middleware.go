package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-reply/internal/observability"
)

// CorrelationHeader carries the correlation id in requests and responses.
const CorrelationHeader = "X-Correlation-ID"

// RequestLogger attaches a request-scoped logger carrying the correlation id
// to the context and logs every completed request. A correlation id sent by
// the client is reused.
func RequestLogger(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			correlationID := r.Header.Get(CorrelationHeader)
			if correlationID == "" {
				correlationID = observability.NewCorrelationID()
			}

			logger := base.With().Str("correlation_id", correlationID).Logger()
			ctx := logger.WithContext(r.Context())

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Header().Set(CorrelationHeader, correlationID)

			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				// Hijacked or nothing written
				status = http.StatusOK
			}

			event := logger.Info()
			if status >= http.StatusInternalServerError {
				event = logger.Warn()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("Request completed")
		})
	}
}
