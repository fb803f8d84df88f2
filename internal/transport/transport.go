// Package transport executes requests against the eero service and turns every
// outcome into either a parsed envelope or a classified error.
//
// The core attaches the session token, enforces a per-call deadline and never
// retries on its own. Optional read retries live in the middleware chain and only
// ever replay idempotent methods.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lexfrei/go-eero/apierror"
	"github.com/lexfrei/go-eero/internal/httpclient"
	"github.com/lexfrei/go-eero/internal/middleware"
	"github.com/lexfrei/go-eero/internal/ratelimit"
	"github.com/lexfrei/go-eero/internal/response"
	"github.com/lexfrei/go-eero/observability"
)

const (
	// DefaultBaseURL is the eero user API endpoint, including the API version.
	DefaultBaseURL = "https://api-user.e2ro.com/2.2"

	// DefaultTimeout bounds each call, including body transfer.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "go-eero"

	// DefaultRetryWaitTime is the initial backoff of the read-retry middleware.
	DefaultRetryWaitTime = 1 * time.Second

	maxResponseBytes = 16 << 20
)

// Authenticator supplies the session token and learns when the service rejected it.
type Authenticator interface {
	// Token returns the current session token, if any.
	Token(ctx context.Context) (string, bool)
	// Invalidate reports that token was rejected with an authentication failure.
	Invalidate(token string)
}

// Config configures a Core.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	UserAgent  string
	TLSConfig  *tls.Config

	// RateLimitPerMinute of zero or less disables client-side rate limiting.
	RateLimitPerMinute int
	// MaxReadRetries applies to GET, HEAD and OPTIONS only.
	MaxReadRetries int
	RetryWaitTime  time.Duration

	Logger  observability.Logger
	Metrics observability.MetricsRecorder
}

// Request describes one call.
type Request struct {
	Method string
	// Path is relative to the base URL ("networks/123") or an absolute path as
	// found in eero payloads ("/2.2/networks/123").
	Path  string
	Query url.Values
	// Body is JSON-encoded unless it is already a json.RawMessage or []byte.
	Body any
	// RequiresAuth makes the call fail without a session token.
	RequiresAuth bool
	// Token, when set, is sent instead of the session token.
	Token string
}

// Core executes requests.
type Core struct {
	baseURL   *url.URL
	client    *http.Client
	timeout   time.Duration
	userAgent string
	auth      Authenticator
	logger    observability.Logger
	metrics   observability.MetricsRecorder
}

// New builds a Core and its middleware chain.
//
// Chain, outermost first: Observability -> RateLimit -> Retry -> SessionCookie -> TLS.
func New(cfg Config) (*Core, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.RetryWaitTime <= 0 {
		cfg.RetryWaitTime = DefaultRetryWaitTime
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NoopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetricsRecorder()
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, apierror.Wrap(err, apierror.KindValidation, "invalid base URL")
	}
	if (base.Scheme != "https" && base.Scheme != "http") || base.Host == "" {
		return nil, apierror.Newf(apierror.KindValidation, "invalid base URL %q", cfg.BaseURL)
	}

	opts := []httpclient.Option{
		httpclient.WithHTTPClient(cfg.HTTPClient),
		httpclient.WithMiddleware(
			middleware.Observability(cfg.Logger, cfg.Metrics),
			middleware.RateLimit(middleware.RateLimitConfig{
				Limiter: ratelimit.NewRateLimiter(cfg.RateLimitPerMinute),
				Logger:  cfg.Logger,
				Metrics: cfg.Metrics,
			}),
			middleware.Retry(middleware.RetryConfig{
				MaxRetries:  cfg.MaxReadRetries,
				InitialWait: cfg.RetryWaitTime,
				Logger:      cfg.Logger,
				Metrics:     cfg.Metrics,
			}),
			middleware.SessionCookie(middleware.SessionCookieName, base.Host),
			middleware.TLSConfig(cfg.TLSConfig),
		),
	}
	if cfg.HTTPClient == nil {
		opts = append(opts, httpclient.WithTimeout(cfg.Timeout))
	}

	return &Core{
		baseURL:   base,
		client:    httpclient.New(opts...).HTTPClient(),
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}, nil
}

// SetAuthenticator installs the token source. It must be called before the first
// Execute; without one, calls that require authentication fail.
func (c *Core) SetAuthenticator(auth Authenticator) {
	c.auth = auth
}

// BaseURL returns the configured endpoint.
func (c *Core) BaseURL() string {
	return c.baseURL.String()
}

// Execute performs req and returns the parsed envelope.
//
// A call that requires authentication but has no token fails with an
// authentication error before anything is sent. An authentication failure
// reported for the session token is passed to Authenticator.Invalidate.
func (c *Core) Execute(ctx context.Context, req Request) (*response.Envelope, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	operation := req.Method + " " + req.Path
	metricOp := "http_" + strings.ToLower(req.Method)

	token := req.Token
	sessionToken := false
	if token == "" && req.RequiresAuth {
		if c.auth != nil {
			token, _ = c.auth.Token(ctx)
		}
		if token == "" {
			err := apierror.New(apierror.KindAuthentication, "not authenticated")
			c.recordError(metricOp, err)
			return nil, err
		}
		sessionToken = true
	}

	target, err := c.resolve(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if token != "" {
		ctx = middleware.WithToken(ctx, token)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, apierror.Wrap(err, apierror.KindValidation, "build request")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		err = classifyTransportError(ctx, err, operation)
		c.recordError(metricOp, err)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		err = classifyTransportError(ctx, err, operation)
		c.recordError(metricOp, err)
		return nil, err
	}

	env, err := response.Parse(resp.StatusCode, resp.Header, raw)
	if err != nil {
		if sessionToken && apierror.Is(err, apierror.KindAuthentication) {
			c.auth.Invalidate(token)
		}

		c.logger.Debug("eero request rejected",
			observability.Field{Key: "operation", Value: operation},
			observability.Field{Key: "kind", Value: apierror.KindOf(err).String()},
			observability.Field{Key: "error", Value: err.Error()},
		)
		c.recordError(metricOp, err)

		return env, errors.Wrap(err, operation)
	}

	return env, nil
}

// resolve builds the request URL. Absolute URLs are refused so the session
// token is never sent to another host.
func (c *Core) resolve(path string, query url.Values) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", apierror.Wrapf(err, apierror.KindValidation, "invalid path %q", path)
	}
	if ref.IsAbs() || ref.Host != "" {
		return "", apierror.Newf(apierror.KindValidation, "absolute URL %q not allowed", path)
	}

	target := *c.baseURL
	basePath := strings.TrimRight(c.baseURL.Path, "/")

	switch {
	case basePath != "" && (ref.Path == basePath || strings.HasPrefix(ref.Path, basePath+"/")):
		target.Path = ref.Path
	case strings.HasPrefix(ref.Path, "/") && basePath == "":
		target.Path = ref.Path
	default:
		target.Path = basePath + "/" + strings.TrimLeft(ref.Path, "/")
	}

	values := ref.Query()
	for key, vals := range query {
		for _, v := range vals {
			values.Add(key, v)
		}
	}
	target.RawQuery = values.Encode()

	return target.String(), nil
}

func encodeBody(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return http.NoBody, nil
	case json.RawMessage:
		return bytes.NewReader(b), nil
	case []byte:
		return bytes.NewReader(b), nil
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, apierror.Wrap(err, apierror.KindValidation, "encode request body")
	}

	return bytes.NewReader(encoded), nil
}

// classifyTransportError maps a failure below HTTP to TimeoutError or NetworkError.
func classifyTransportError(ctx context.Context, err error, operation string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apierror.Wrap(err, apierror.KindTimeout, operation)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apierror.Wrap(err, apierror.KindTimeout, operation)
	}

	return apierror.Wrap(err, apierror.KindNetwork, operation)
}

func (c *Core) recordError(operation string, err error) {
	c.metrics.RecordError(operation, apierror.KindOf(err).String())
}
