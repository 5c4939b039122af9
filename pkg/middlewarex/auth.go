package middlewarex

import (
	"context"
	"net/http"
	"strings"

	"storefront/pkg/contextx"
	"storefront/pkg/errcodes"
	"storefront/pkg/httpx/reply"
	"storefront/pkg/logx"
)

const sessionCookieName = "session"

// Principal is the identity resolved from a bearer token or session cookie.
type Principal struct {
	UserID contextx.UserID
	Role   contextx.UserRole
}

type tokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (Principal, error)
}

// Auth resolves the caller from "Authorization: Bearer" or the session
// cookie and rejects anonymous requests.
func Auth(verifier tokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token := tokenFromRequest(r)
			if token == "" {
				reply.Error(ctx, w, authError("missing credentials", nil))

				return
			}

			principal, err := verifier.VerifyToken(ctx, token)
			if err != nil {
				reply.Error(ctx, w, authError("invalid credentials", err))

				return
			}

			ctx = contextx.WithUserID(ctx, principal.UserID)
			ctx = contextx.WithUserRole(ctx, principal.Role)
			ctx = contextx.WithLogger(ctx, logger(ctx).With(logx.Stringer(logx.FieldUserID, principal.UserID)))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}

	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}

	return ""
}

func authError(message string, cause error) middlewareError {
	return middlewareError{code: errcodes.Unauthorized, message: message, cause: cause}
}
