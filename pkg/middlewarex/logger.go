package middlewarex

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"storefront/pkg/contextx"
	"storefront/pkg/logx"
)

// Logger attaches a request-scoped logger carrying the trace id, route and
// caller address. Requests that skipped TraceID still get a fresh trace.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, traceID := contextx.EnsureTraceID(r.Context())

		ctx = contextx.WithLogger(
			ctx,
			logger(ctx).With(
				logx.Stringer(logx.FieldTraceID, traceID),
				logx.Stringer(logx.FieldURL, r.URL),
				slog.String(logx.FieldHTTPMethod, r.Method),
				slog.String(logx.FieldIP, clientIP(r)),
			),
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP prefers the first hop recorded by the reverse proxy.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")

		return strings.TrimSpace(first)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}

	return r.RemoteAddr
}
