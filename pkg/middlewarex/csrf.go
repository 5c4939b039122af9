package middlewarex

import (
	"crypto/subtle"
	"net/http"

	"storefront/pkg/errcodes"
	"storefront/pkg/httpx/reply"
)

const (
	CSRFHeaderName = "X-CSRF-Token"
	CSRFCookieName = "csrf_token"
)

// CSRF enforces the double-submit token on state-changing methods: the
// header must equal the csrf cookie.
func CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)

			return
		}

		header := r.Header.Get(CSRFHeaderName)

		cookie, err := r.Cookie(CSRFCookieName)
		if err != nil || header == "" ||
			subtle.ConstantTimeCompare([]byte(header), []byte(cookie.Value)) != 1 {
			reply.Error(r.Context(), w, middlewareError{
				code:    errcodes.CSRFTokenMismatch,
				message: "csrf token mismatch",
			})

			return
		}

		next.ServeHTTP(w, r)
	})
}
