package middleware

import (
	"context"
	"maps"
	"net/http"
	"strings"
)

// SessionCookieName is the cookie the eero service reads the session token from.
const SessionCookieName = "s"

type tokenKey struct{}

// WithToken returns a context carrying the token that SessionCookie attaches.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the token stored by WithToken.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey{}).(string)
	return token, ok && token != ""
}

// SessionCookie returns a middleware that sends the token carried by the request
// context as the named cookie to host only. Any cookie of the same name already
// on the request is removed. Requests without a token, or addressed to another
// host (for example after a redirect), are sent without one.
//
// The token travels in the context rather than in the middleware so a single
// transport can serve requests made with different tokens (the verification
// handshake uses the login identifier, everything else the session token).
func SessionCookie(name, host string) func(http.RoundTripper) http.RoundTripper {
	return func(next http.RoundTripper) http.RoundTripper {
		return &sessionCookieTransport{next: next, name: name, host: host}
	}
}

type sessionCookieTransport struct {
	next http.RoundTripper
	name string
	host string
}

func (t *sessionCookieTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = cloneRequest(req)
	token, hasToken := TokenFromContext(req.Context())

	cookies := req.Cookies()
	req.Header.Del("Cookie")
	for _, c := range cookies {
		if c.Name != t.name {
			req.AddCookie(c)
		}
	}

	if hasToken && t.host != "" && strings.EqualFold(req.URL.Host, t.host) {
		req.AddCookie(&http.Cookie{Name: t.name, Value: token})
	}

	//nolint:wrapcheck // Middleware passes through errors from next handler in chain
	return t.next.RoundTrip(req)
}

// cloneRequest creates a shallow copy of the request with a cloned header map.
func cloneRequest(req *http.Request) *http.Request {
	r := new(http.Request)
	*r = *req
	r.Header = make(http.Header, len(req.Header))
	maps.Copy(r.Header, req.Header)
	return r
}
