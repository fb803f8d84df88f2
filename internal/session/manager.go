// Package session owns the eero authentication state machine.
//
//	Unauthenticated --InitiateLogin--> PendingVerification --Verify--> Authenticated
//	PendingVerification --rejected code / Logout--> Unauthenticated
//	Authenticated --Logout / rejected token--> Unauthenticated
//
// Transitions are serialized by one mutex per Manager. Readers of the token take a
// separate read lock, so a request never sees a half-applied logout.
package session

import (
	"context"
	"encoding/json"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lexfrei/go-eero/apierror"
	"github.com/lexfrei/go-eero/credential"
	"github.com/lexfrei/go-eero/internal/response"
	"github.com/lexfrei/go-eero/internal/transport"
	"github.com/lexfrei/go-eero/observability"
)

// DefaultLifetime is how long a verified session is trusted before it is treated as expired.
const DefaultLifetime = 30 * 24 * time.Hour

const (
	loginPath  = "login"
	verifyPath = "login/verify"
	resendPath = "login/resend"
	logoutPath = "logout"
)

// Executor performs a request. *transport.Core satisfies it.
type Executor interface {
	Execute(ctx context.Context, req transport.Request) (*response.Envelope, error)
}

// Config configures a Manager.
type Config struct {
	// Store persists the session. Nil means an in-memory store.
	Store credential.Store
	// Token, when set, starts the Manager authenticated with a session that is
	// never persisted and never deleted from Store.
	Token string
	// Lifetime of a verified session. Defaults to DefaultLifetime.
	Lifetime time.Duration

	Logger  observability.Logger
	Metrics observability.MetricsRecorder

	// Now is the clock, for tests.
	Now func() time.Time
}

// Manager is the session of one client instance.
type Manager struct {
	exec     Executor
	store    credential.Store
	lifetime time.Duration
	logger   observability.Logger
	metrics  observability.MetricsRecorder
	now      func() time.Time

	// transition serializes InitiateLogin, Verify, ResendCode, Logout,
	// LoadPersistedSession, SetPreferredNetworkID and the lazy re-check.
	transition sync.Mutex

	mu        sync.RWMutex
	state     State
	token     string
	handshake string
	createdAt time.Time
	expiresAt time.Time
	accountID string
	networkID string
	injected  bool
	// suspect is set when the service rejected token; resolved on the next read.
	suspect bool
}

var _ transport.Authenticator = (*Manager)(nil)

// New returns a Manager. It does not read the store; call LoadPersistedSession.
func New(exec Executor, cfg Config) *Manager {
	if cfg.Store == nil {
		cfg.Store = credential.NewMemoryStore()
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultLifetime
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NoopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetricsRecorder()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &Manager{
		exec:     exec,
		store:    cfg.Store,
		lifetime: cfg.Lifetime,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
	}

	if token := strings.TrimSpace(cfg.Token); token != "" {
		m.state = Authenticated
		m.token = token
		m.createdAt = m.now()
		m.injected = true
	}

	return m
}

// InitiateLogin asks the service to send a verification code to identifier,
// an email address or a phone number.
//
// It fails with a validation error, before any request, for a malformed
// identifier, and with an authentication error while a session is active.
// Calling it again while a code is pending starts a new handshake.
func (m *Manager) InitiateLogin(ctx context.Context, identifier string) error {
	identifier = strings.TrimSpace(identifier)
	if err := ValidateIdentifier(identifier); err != nil {
		return err
	}

	m.transition.Lock()
	defer m.transition.Unlock()

	m.recheckLocked(ctx)

	if m.Status() == Authenticated {
		return apierror.New(apierror.KindAuthentication, "already authenticated, log out before starting a new login")
	}

	m.logger.Debug("requesting verification code",
		observability.Field{Key: "identifier", Value: observability.Mask(identifier)},
	)

	env, err := m.exec.Execute(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   loginPath,
		Body:   loginRequest{Login: identifier},
	})
	if err != nil {
		return errors.Wrap(err, "initiate login")
	}

	data, err := response.Decode[loginData](env, "read login reply")
	if err != nil {
		return errors.Wrap(err, "initiate login")
	}
	if data.UserToken == "" {
		return apierror.FromAPIError(&apierror.APIError{
			StatusCode: env.StatusCode,
			Code:       env.Meta.Code,
			Message:    "login reply carries no user token",
		}, apierror.KindAPI)
	}

	m.mu.Lock()
	from := m.state
	m.state = PendingVerification
	m.handshake = data.UserToken
	m.mu.Unlock()

	m.recordTransition(from, PendingVerification)
	m.logger.Info("verification code requested",
		observability.Field{Key: "user_token", Value: observability.Mask(data.UserToken)},
	)

	return nil
}

// Verify exchanges the pending handshake and code for a session and persists it.
//
// Outside PendingVerification it fails with a state error. A rejected code ends the
// handshake and fails with an authentication error. Timeouts and network failures
// keep the handshake so the same code can be submitted again.
func (m *Manager) Verify(ctx context.Context, code string) error {
	m.transition.Lock()
	defer m.transition.Unlock()

	m.mu.RLock()
	state, handshake := m.state, m.handshake
	m.mu.RUnlock()

	if state != PendingVerification {
		return apierror.Newf(apierror.KindState, "verify requires a pending login, session is %s", state)
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return apierror.New(apierror.KindValidation, "verification code is empty")
	}

	env, err := m.exec.Execute(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   verifyPath,
		Body:   verifyRequest{Code: code},
		Token:  handshake,
	})
	if err != nil {
		if apierror.Is(err, apierror.KindTimeout) || apierror.Is(err, apierror.KindNetwork) {
			return errors.Wrap(err, "verify")
		}

		m.mu.Lock()
		m.clearLocked()
		m.mu.Unlock()
		m.recordTransition(PendingVerification, Unauthenticated)

		m.logger.Warn("verification rejected",
			observability.Field{Key: "error", Value: err.Error()},
		)

		return apierror.Wrap(err, apierror.KindAuthentication, "verification rejected")
	}

	now := m.now()
	rec := &credential.Record{
		Token:     handshake,
		CreatedAt: now,
		ExpiresAt: now.Add(m.lifetime),
	}
	rec.AccountID, rec.PreferredNetworkID = m.parseVerifyData(env)

	if err := m.store.Put(ctx, rec); err != nil {
		return errors.Wrap(err, "persist session")
	}

	m.mu.Lock()
	m.applyLocked(rec)
	m.mu.Unlock()

	m.recordTransition(PendingVerification, Authenticated)
	m.logger.Info("session established",
		observability.Field{Key: "session", Value: observability.Mask(rec.Token)},
		observability.Field{Key: "store", Value: string(m.store.Kind())},
	)

	return nil
}

// ResendCode asks the service to send the verification code again.
func (m *Manager) ResendCode(ctx context.Context) error {
	m.transition.Lock()
	defer m.transition.Unlock()

	m.mu.RLock()
	state, handshake := m.state, m.handshake
	m.mu.RUnlock()

	if state != PendingVerification {
		return apierror.Newf(apierror.KindState, "resend requires a pending login, session is %s", state)
	}

	if _, err := m.exec.Execute(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   resendPath,
		Body:   json.RawMessage(`{}`),
		Token:  handshake,
	}); err != nil {
		return errors.Wrap(err, "resend verification code")
	}

	m.logger.Info("verification code resent")

	return nil
}

// IsAuthenticated reports whether a usable session is held. If the service
// rejected the token since the last call, the store is re-read once first.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	m.recheck(ctx)

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.usableLocked()
}

// Token returns the session token for an outgoing request.
func (m *Manager) Token(ctx context.Context) (string, bool) {
	m.recheck(ctx)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.usableLocked() {
		return "", false
	}

	return m.token, true
}

// Invalidate marks token as rejected by the service. A token that is no longer
// current is ignored.
func (m *Manager) Invalidate(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Authenticated && m.token == token {
		m.suspect = true
	}
}

// Logout ends the session. While authenticated it tells the service (a failure
// there is only logged), deletes the persisted record and clears memory. A pending
// handshake is abandoned. Without a session it does nothing.
//
// If the record cannot be deleted the session is left intact and the error returned.
func (m *Manager) Logout(ctx context.Context) error {
	m.transition.Lock()
	defer m.transition.Unlock()

	m.recheckLocked(ctx)

	m.mu.RLock()
	state, token, injected := m.state, m.token, m.injected
	m.mu.RUnlock()

	switch state {
	case Unauthenticated:
		return nil
	case PendingVerification:
		m.mu.Lock()
		m.clearLocked()
		m.mu.Unlock()
		m.recordTransition(PendingVerification, Unauthenticated)
		m.logger.Debug("pending login abandoned")

		return nil
	case Authenticated:
	}

	if _, err := m.exec.Execute(ctx, transport.Request{
		Method:       http.MethodPost,
		Path:         logoutPath,
		Body:         json.RawMessage(`{}`),
		RequiresAuth: true,
		Token:        token,
	}); err != nil {
		m.logger.Warn("remote logout failed, clearing local session anyway",
			observability.Field{Key: "error", Value: err.Error()},
		)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !injected {
		if err := m.store.Delete(ctx); err != nil {
			return errors.Wrap(err, "delete persisted session")
		}
	}

	m.clearLocked()
	m.recordTransition(Authenticated, Unauthenticated)
	m.logger.Info("logged out")

	return nil
}

// LoadPersistedSession adopts the stored record without contacting the service.
// Its validity is discovered by the first real request.
//
// It only acts while Unauthenticated. A corrupt or expired record is deleted and
// the session stays Unauthenticated.
func (m *Manager) LoadPersistedSession(ctx context.Context) error {
	m.transition.Lock()
	defer m.transition.Unlock()

	if m.Status() != Unauthenticated {
		return nil
	}

	rec, err := m.store.Get(ctx)
	if errors.Is(err, credential.ErrCorrupt) {
		m.logger.Warn("discarding corrupt persisted session",
			observability.Field{Key: "location", Value: m.store.Location()},
			observability.Field{Key: "error", Value: err.Error()},
		)
		if delErr := m.store.Delete(ctx); delErr != nil {
			m.logger.Warn("failed to delete corrupt persisted session",
				observability.Field{Key: "error", Value: delErr.Error()},
			)
		}

		return nil
	}
	if err != nil {
		return errors.Wrap(err, "load persisted session")
	}

	if !rec.Usable() {
		return nil
	}

	if rec.Expired(m.now()) {
		m.logger.Info("persisted session expired",
			observability.Field{Key: "expired_at", Value: rec.ExpiresAt},
		)

		return errors.Wrap(m.store.Delete(ctx), "delete expired session")
	}

	m.mu.Lock()
	m.applyLocked(rec)
	m.mu.Unlock()

	m.recordTransition(Unauthenticated, Authenticated)
	m.logger.Debug("loaded persisted session",
		observability.Field{Key: "session", Value: observability.Mask(rec.Token)},
		observability.Field{Key: "store", Value: string(m.store.Kind())},
	)

	return nil
}

// SetPreferredNetworkID changes the network used when a call names none.
// The choice is persisted with the session unless the session was injected.
func (m *Manager) SetPreferredNetworkID(ctx context.Context, networkID string) error {
	networkID = strings.TrimSpace(networkID)
	if networkID == "" {
		return apierror.New(apierror.KindValidation, "network id is empty")
	}

	m.transition.Lock()
	defer m.transition.Unlock()

	m.mu.RLock()
	state, injected := m.state, m.injected
	rec := m.recordLocked()
	m.mu.RUnlock()

	if state != Authenticated {
		return apierror.Newf(apierror.KindState, "preferred network requires a session, session is %s", state)
	}

	if !injected {
		rec.PreferredNetworkID = networkID
		if err := m.store.Put(ctx, rec); err != nil {
			return errors.Wrap(err, "persist preferred network")
		}
	}

	m.mu.Lock()
	m.networkID = networkID
	m.mu.Unlock()

	return nil
}

// Status returns the current state.
func (m *Manager) Status() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// AccountID returns the account of the session, if known.
func (m *Manager) AccountID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accountID
}

// PreferredNetworkID returns the default network, if known.
func (m *Manager) PreferredNetworkID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.networkID
}

// Info returns a snapshot of the session.
func (m *Manager) Info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Info{
		State:              m.state,
		AccountID:          m.accountID,
		PreferredNetworkID: m.networkID,
		CreatedAt:          m.createdAt,
		ExpiresAt:          m.expiresAt,
		Injected:           m.injected,
	}
}

// Store returns the credential store the Manager persists to.
func (m *Manager) Store() credential.Store {
	return m.store
}

// recheck resolves a pending suspicion or an elapsed expiry: if the store holds a
// newer token it is adopted, otherwise the stale record is deleted and the
// session cleared.
func (m *Manager) recheck(ctx context.Context) {
	m.mu.RLock()
	pending := m.suspect || m.expiredLocked()
	m.mu.RUnlock()

	if !pending {
		return
	}

	m.transition.Lock()
	defer m.transition.Unlock()

	m.recheckLocked(ctx)
}

// recheckLocked is recheck for callers already holding the transition lock.
func (m *Manager) recheckLocked(ctx context.Context) {
	m.mu.RLock()
	suspect, expired, token, injected := m.suspect, m.expiredLocked(), m.token, m.injected
	m.mu.RUnlock()

	if !suspect && !expired {
		return
	}

	if injected {
		m.mu.Lock()
		m.clearLocked()
		m.mu.Unlock()
		m.recordTransition(Authenticated, Unauthenticated)
		m.logger.Warn("injected session token rejected by the service")

		return
	}

	rec, err := m.store.Get(ctx)
	if err != nil {
		m.logger.Warn("re-reading persisted session failed",
			observability.Field{Key: "error", Value: err.Error()},
		)
	}

	if err == nil && rec.Usable() && rec.Token != token && !rec.Expired(m.now()) {
		m.mu.Lock()
		m.applyLocked(rec)
		m.mu.Unlock()
		m.logger.Info("adopted newer persisted session",
			observability.Field{Key: "session", Value: observability.Mask(rec.Token)},
		)

		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil && rec.Usable() && rec.Token == token {
		if delErr := m.store.Delete(ctx); delErr != nil {
			m.logger.Warn("failed to delete stale session",
				observability.Field{Key: "error", Value: delErr.Error()},
			)
		}
	}

	m.clearLocked()
	m.recordTransition(Authenticated, Unauthenticated)
	if expired {
		m.logger.Info("session expired, log in again")
	} else {
		m.logger.Warn("session token rejected by the service, log in again")
	}
}

func (m *Manager) expiredLocked() bool {
	return m.state == Authenticated && !m.expiresAt.IsZero() && !m.now().Before(m.expiresAt)
}

func (m *Manager) usableLocked() bool {
	if m.state != Authenticated || m.token == "" {
		return false
	}

	return m.expiresAt.IsZero() || m.now().Before(m.expiresAt)
}

func (m *Manager) applyLocked(rec *credential.Record) {
	m.state = Authenticated
	m.token = rec.Token
	m.handshake = ""
	m.createdAt = rec.CreatedAt
	m.expiresAt = rec.ExpiresAt
	m.accountID = rec.AccountID
	m.networkID = rec.PreferredNetworkID
	m.injected = false
	m.suspect = false
}

func (m *Manager) clearLocked() {
	m.state = Unauthenticated
	m.token = ""
	m.handshake = ""
	m.createdAt = time.Time{}
	m.expiresAt = time.Time{}
	m.accountID = ""
	m.networkID = ""
	m.injected = false
	m.suspect = false
}

func (m *Manager) recordLocked() *credential.Record {
	return &credential.Record{
		Token:              m.token,
		CreatedAt:          m.createdAt,
		ExpiresAt:          m.expiresAt,
		AccountID:          m.accountID,
		PreferredNetworkID: m.networkID,
	}
}

func (m *Manager) recordTransition(from, to State) {
	if from != to {
		m.metrics.RecordSessionTransition(from.String(), to.String())
	}
}

// parseVerifyData extracts the account and first network from a verification
// reply. Both are optional; an unexpected shape yields empty values.
func (m *Manager) parseVerifyData(env *response.Envelope) (string, string) {
	if env == nil || len(env.Data) == 0 {
		return "", ""
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(env.Data, &fields); err != nil {
		m.logger.Debug("verification reply has an unexpected shape",
			observability.Field{Key: "error", Value: err.Error()},
		)
		return "", ""
	}

	var user resourceRef
	decodeLenient(fields["user"], &user)

	var networks struct {
		Data []resourceRef `json:"data"`
	}
	decodeLenient(fields["networks"], &networks)

	list := networks.Data
	if len(list) == 0 {
		// Older replies list networks directly under data.
		decodeLenient(fields["data"], &list)
	}
	if len(list) == 0 {
		return user.ref(), ""
	}

	return user.ref(), list[0].ref()
}

// decodeLenient unmarshals raw into v, ignoring failures.
func decodeLenient(raw json.RawMessage, v any) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, v)
}

type loginRequest struct {
	Login string `json:"login"`
}

type loginData struct {
	UserToken string `json:"user_token"`
}

type verifyRequest struct {
	Code string `json:"code"`
}

// resourceRef is an eero object reference: an id (string or number) and/or a
// url such as "/2.2/networks/123".
type resourceRef struct {
	ID  flexID `json:"id"`
	URL string `json:"url"`
}

func (r resourceRef) ref() string {
	if r.ID != "" {
		return string(r.ID)
	}
	if r.URL == "" {
		return ""
	}

	tail := path.Base(strings.TrimRight(r.URL, "/"))
	if tail == "." || tail == "/" {
		return ""
	}

	return tail
}

// flexID accepts a JSON string or number.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Wrap(err, "id is neither string nor number")
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return errors.Wrap(err, "invalid numeric id")
	}
	*f = flexID(n.String())

	return nil
}
