package middlewarex

import (
	"net/http"

	"storefront/pkg/contextx"
)

// TraceID continues the caller's trace or starts a new one, and echoes it
// back so clients can quote it as a support id.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := contextx.TraceID(r.Header.Get(contextx.HeaderTraceID))

		if traceID == "" {
			traceID = contextx.NewTraceID()
		}

		ctx := contextx.WithTraceID(r.Context(), traceID)

		w.Header().Set(contextx.HeaderTraceID, traceID.String())

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
