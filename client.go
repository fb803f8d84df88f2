package eero

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lexfrei/go-eero/apierror"
	"github.com/lexfrei/go-eero/credential"
	"github.com/lexfrei/go-eero/internal/session"
	"github.com/lexfrei/go-eero/internal/transport"
	"github.com/lexfrei/go-eero/observability"
)

const (
	// DefaultBaseURL is the eero user API endpoint.
	DefaultBaseURL = transport.DefaultBaseURL

	// DefaultTimeout bounds each request.
	DefaultTimeout = transport.DefaultTimeout

	// DefaultRateLimit is the client-side limit in requests per minute.
	DefaultRateLimit = 600

	// DefaultRetryWaitTime is the initial backoff for read retries.
	DefaultRetryWaitTime = transport.DefaultRetryWaitTime
)

// SessionState is the authentication state of a Client.
type SessionState = session.State

// Session states.
const (
	Unauthenticated     = session.Unauthenticated
	PendingVerification = session.PendingVerification
	Authenticated       = session.Authenticated
)

// SessionInfo is a snapshot of the client's session.
type SessionInfo = session.Info

// Client talks to the eero cloud service on behalf of one account.
type Client struct {
	core    *transport.Core
	session *session.Manager
	store   credential.Store
	logger  observability.Logger
}

// Compile-time check to ensure Client implements EeroAPIClient interface.
var _ EeroAPIClient = (*Client)(nil)

// StorageConfig selects where the session is persisted.
type StorageConfig struct {
	// Backend is auto (keyring with file fallback), keyring, file or memory.
	Backend credential.Backend
	// Path of the session file. Defaults to <user config dir>/eero/session.json.
	Path string
	// KeyringService and KeyringKey name the keyring entry.
	KeyringService string
	KeyringKey     string
}

// ClientConfig holds configuration for the eero client.
type ClientConfig struct {
	// BaseURL is the API endpoint including the version (defaults to https://api-user.e2ro.com/2.2)
	BaseURL string

	// Token is a pre-supplied session token. It is used as-is and never persisted.
	Token string

	// Timeout bounds each request (defaults to 30 seconds)
	Timeout time.Duration

	// HTTPClient is the HTTP client to use (optional). It is copied, not modified.
	HTTPClient *http.Client

	// TLSConfig overrides the TLS settings of the transport (optional)
	TLSConfig *tls.Config

	// UserAgent sent with each request (optional)
	UserAgent string

	// Storage selects the credential backend. Ignored when Store is set.
	Storage StorageConfig

	// Store is an explicit credential store (optional)
	Store credential.Store

	// RateLimitPerMinute sets the client-side rate limit (defaults to 600, negative disables)
	RateLimitPerMinute int

	// MaxReadRetries retries GET requests on 429, 5xx and network errors (defaults to 0).
	// Writes are never retried.
	MaxReadRetries int

	// RetryWaitTime is the initial backoff between read retries (defaults to 1 second)
	RetryWaitTime time.Duration

	// Logger for observability (optional, uses noop logger if nil)
	Logger observability.Logger

	// Metrics recorder for observability (optional, uses noop recorder if nil)
	Metrics observability.MetricsRecorder
}

// New creates a client with default settings and loads any persisted session.
//
// Example:
//
//	client, err := eero.New(ctx)
func New(ctx context.Context) (*Client, error) {
	return NewWithConfig(ctx, &ClientConfig{})
}

// NewWithConfig creates a client with custom configuration and loads any
// persisted session. The session is trusted until a request proves otherwise.
// cfg is not modified.
//
// Example:
//
//	client, err := eero.NewWithConfig(ctx, &eero.ClientConfig{
//	    Timeout: 10 * time.Second,
//	    Storage: eero.StorageConfig{Backend: credential.BackendFile},
//	    Logger:  observability.NewLogrusLogger(logrus.StandardLogger()),
//	})
func NewWithConfig(ctx context.Context, cfg *ClientConfig) (*Client, error) {
	if cfg == nil {
		return nil, apierror.New(apierror.KindValidation, "config is required")
	}

	// Defaults go into a copy; the caller's config is left as given.
	local := *cfg
	cfg = &local

	// Set defaults
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RateLimitPerMinute == 0 {
		cfg.RateLimitPerMinute = DefaultRateLimit
	}
	if cfg.RetryWaitTime <= 0 {
		cfg.RetryWaitTime = DefaultRetryWaitTime
	}
	if cfg.MaxReadRetries < 0 {
		return nil, apierror.New(apierror.KindValidation, "max read retries must not be negative")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NoopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetricsRecorder()
	}

	core, err := transport.New(transport.Config{
		BaseURL:            cfg.BaseURL,
		HTTPClient:         cfg.HTTPClient,
		Timeout:            cfg.Timeout,
		UserAgent:          cfg.UserAgent,
		TLSConfig:          cfg.TLSConfig,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		MaxReadRetries:     cfg.MaxReadRetries,
		RetryWaitTime:      cfg.RetryWaitTime,
		Logger:             cfg.Logger,
		Metrics:            cfg.Metrics,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create transport")
	}

	store := cfg.Store
	if store == nil {
		store, err = credential.Open(ctx, credential.Options{
			Backend: cfg.Storage.Backend,
			Path:    cfg.Storage.Path,
			Service: cfg.Storage.KeyringService,
			Key:     cfg.Storage.KeyringKey,
			Logger:  cfg.Logger,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to open credential store")
		}
	}

	manager := session.New(core, session.Config{
		Store:   store,
		Token:   cfg.Token,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	core.SetAuthenticator(manager)

	if err := manager.LoadPersistedSession(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to load persisted session")
	}

	return &Client{
		core:    core,
		session: manager,
		store:   store,
		logger:  cfg.Logger,
	}, nil
}

// Login asks eero to send a verification code to an email address or phone number.
func (c *Client) Login(ctx context.Context, identifier string) error {
	//nolint:wrapcheck // session errors are already classified and annotated
	return c.session.InitiateLogin(ctx, identifier)
}

// Verify completes a login with the code eero sent and persists the session.
func (c *Client) Verify(ctx context.Context, code string) error {
	//nolint:wrapcheck // session errors are already classified and annotated
	return c.session.Verify(ctx, code)
}

// ResendCode asks eero to send the verification code again.
func (c *Client) ResendCode(ctx context.Context) error {
	//nolint:wrapcheck // session errors are already classified and annotated
	return c.session.ResendCode(ctx)
}

// Logout ends the session and removes the persisted credential. It is a no-op
// without a session.
func (c *Client) Logout(ctx context.Context) error {
	//nolint:wrapcheck // session errors are already classified and annotated
	return c.session.Logout(ctx)
}

// IsAuthenticated reports whether the client holds a usable session.
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	return c.session.IsAuthenticated(ctx)
}

// Session returns a snapshot of the session state.
func (c *Client) Session() SessionInfo {
	return c.session.Info()
}

// SetPreferredNetwork sets the network used by calls that take an empty network id.
func (c *Client) SetPreferredNetwork(ctx context.Context, networkID string) error {
	//nolint:wrapcheck // session errors are already classified and annotated
	return c.session.SetPreferredNetworkID(ctx, networkID)
}

// StorageKind returns the backend the session is persisted to.
func (c *Client) StorageKind() credential.Kind {
	return c.store.Kind()
}

// StorageLocation returns where the session is persisted.
func (c *Client) StorageLocation() string {
	return c.store.Location()
}

// Do performs an authenticated request and returns the data payload exactly as received.
// path is relative to the base URL ("networks/123/devices") or an absolute eero
// resource path ("/2.2/networks/123/devices"). body is JSON-encoded when non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	env, err := c.core.Execute(ctx, transport.Request{
		Method:       method,
		Path:         path,
		Body:         body,
		RequiresAuth: true,
	})
	if err != nil {
		//nolint:wrapcheck // transport errors are already classified and annotated
		return nil, err
	}

	return env.Data, nil
}
