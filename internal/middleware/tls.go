package middleware

import (
	"crypto/tls"
	"net/http"
)

// TLSConfig returns a middleware that replaces the TLS settings of the underlying
// transport. It is used to trust a private CA (test servers, TLS-intercepting
// proxies) or to raise the minimum TLS version.
//
// It must be the innermost middleware: it clones next when next is an
// *http.Transport, otherwise it starts from a clone of http.DefaultTransport.
func TLSConfig(config *tls.Config) func(http.RoundTripper) http.RoundTripper {
	return func(next http.RoundTripper) http.RoundTripper {
		if config == nil {
			return next
		}

		transport, ok := next.(*http.Transport)
		if !ok {
			defaultTransport, ok := http.DefaultTransport.(*http.Transport)
			if !ok {
				return next
			}
			transport = defaultTransport.Clone()
			transport.ForceAttemptHTTP2 = true
		} else {
			transport = transport.Clone()
		}

		transport.TLSClientConfig = config.Clone()

		return transport
	}
}
