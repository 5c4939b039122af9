package middlewarex

import (
	"bytes"
	"cmp"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/zenazn/goji/web/mutil"

	"storefront/pkg/logx"
)

// AccessLog logs API requests and responses with secrets masked. Dumps
// longer than LogFieldMaxLen are cut; zero keeps them whole.
type AccessLog struct {
	Masker         logx.SensitiveDataMaskerInterface
	LogFieldMaxLen int
}

func (a AccessLog) Requests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		dumpBody := r.ContentLength != 0

		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			dumpBody = false
		}

		dump, err := httputil.DumpRequest(r, dumpBody)

		logger(ctx).Info(
			logx.FieldHTTPRequest,
			slog.String(logx.FieldRequestBody, a.format(dump)),
			logx.Error(err),
		)

		next.ServeHTTP(w, r)
	})
}

// Responses tees the response body into the log. The writer is wrapped by
// goji's mutil so optional interfaces such as http.Flusher survive:
// https://blog.merovius.de/posts/2017-07-30-the-trouble-with-optional-interfaces/
func (a AccessLog) Responses(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := time.Now()
		lw := mutil.WrapWriter(w)

		var buf bytes.Buffer

		lw.Tee(&buf)

		next.ServeHTTP(lw, r)

		headers, err := responseHeaders(w)
		if err != nil {
			logger(ctx).Error("responseHeaders", logx.Error(err))
		}

		// Handlers that only write a body never set the status explicitly.
		status := cmp.Or(lw.Status(), http.StatusOK)

		logger(ctx).Log(ctx, levelForStatus(status),
			logx.FieldHTTPResponse,
			slog.String(logx.FieldRoute, routePattern(r)),
			slog.Int(logx.FieldResponseStatus, status),
			slog.String(logx.FieldResponseHeaders, a.format(headers)),
			slog.String(logx.FieldResponseBody, a.format(buf.Bytes())),
			slog.Int64(logx.FieldDurationMs, time.Since(start).Milliseconds()),
		)
	})
}

func (a AccessLog) format(dump []byte) string {
	if a.LogFieldMaxLen > 0 && len(dump) > a.LogFieldMaxLen {
		dump = dump[:a.LogFieldMaxLen]
	}

	if a.Masker == nil {
		return string(dump)
	}

	return string(a.Masker.Mask(dump))
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// routePattern is known only after chi has routed the request.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	return r.URL.Path
}

func responseHeaders(w http.ResponseWriter) ([]byte, error) {
	var buf bytes.Buffer

	if err := w.Header().WriteSubset(&buf, nil); err != nil {
		return nil, fmt.Errorf("header.WriteSubset: %w", err)
	}

	return buf.Bytes(), nil
}
