package telemetry

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/italolelis/fetchpilot/internal/logctx"
)

// CorrelationIDHeader carries the correlation id across service boundaries.
const CorrelationIDHeader = "X-Request-ID"

// CorrelationID middleware assigns each request the correlation id that
// follows a run through logs, session options and the run record. An
// incoming header value is reused (upstream propagation); otherwise a new
// id is generated. The id travels in the context via logctx, so the context
// handler stamps it on every log record, and is echoed back to the client.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		w.Header().Set(CorrelationIDHeader, id)

		next.ServeHTTP(w, r.WithContext(logctx.WithCorrelationID(r.Context(), id)))
	})
}
