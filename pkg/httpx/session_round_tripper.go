package httpx

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/xid"
)

type tokenSource interface {
	Token(ctx context.Context) (string, error)
}

// SessionRoundTripper authenticates storefront API calls: it sets the bearer
// token and, for state-changing methods, a double-submit CSRF pair.
type SessionRoundTripper struct {
	next        http.RoundTripper
	tokenSource tokenSource
	csrfHeader  string
	csrfCookie  string
}

func NewSessionRoundTripper(
	next http.RoundTripper,
	tokenSource tokenSource,
	csrfHeader string,
	csrfCookie string,
) SessionRoundTripper {
	return SessionRoundTripper{
		next:        next,
		tokenSource: tokenSource,
		csrfHeader:  csrfHeader,
		csrfCookie:  csrfCookie,
	}
}

func (rt SessionRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := rt.tokenSource.Token(req.Context())
	if err != nil {
		return nil, fmt.Errorf("tokenSource.Token: %w", err)
	}

	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+token)

	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
	default:
		csrf := xid.New().String()

		req.Header.Set(rt.csrfHeader, csrf)
		req.AddCookie(&http.Cookie{Name: rt.csrfCookie, Value: csrf})
	}

	resp, err := rt.next.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("next.RoundTrip: %w", err)
	}

	return resp, nil
}

// StaticToken is a tokenSource for a token obtained at login.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoToken
	}

	return string(t), nil
}
