package eero_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexfrei/go-eero"
	"github.com/lexfrei/go-eero/apierror"
	"github.com/lexfrei/go-eero/credential"
	"github.com/lexfrei/go-eero/internal/testutil"
)

const (
	testToken   = "user-token-0123456789"
	verifyReply = `{"user":{"id":31337},"networks":{"count":1,"data":[{"url":"/2.2/networks/4242"}]}}`
	accountData = `{"name":"Test","networks":{"count":1,"data":[{"url":"/2.2/networks/4242"}]}}`
)

func reply(t *testing.T, data string) http.HandlerFunc {
	t.Helper()

	return func(w http.ResponseWriter, _ *http.Request) {
		testutil.WriteJSON(t, w, http.StatusOK, testutil.Envelope(http.StatusOK, data))
	}
}

func newClient(t *testing.T, srv *testutil.Server, store credential.Store, token string) *eero.Client {
	t.Helper()

	client, err := eero.NewWithConfig(context.Background(), &eero.ClientConfig{
		BaseURL: srv.URL + "/2.2",
		Timeout: 5 * time.Second,
		Token:   token,
		Store:   store,
	})
	require.NoError(t, err)

	return client
}

func persisted(t *testing.T, store credential.Store) *credential.Record {
	t.Helper()

	rec, err := store.Get(context.Background())
	require.NoError(t, err)

	return rec
}

func TestLoginFlow(t *testing.T) {
	t.Parallel()

	srv := testutil.NewMockServerMulti(t, map[string]http.HandlerFunc{
		"POST /2.2/login":                reply(t, `{"user_token":"`+testToken+`"}`),
		"POST /2.2/login/verify":         reply(t, verifyReply),
		"GET /2.2/account":               reply(t, accountData),
		"GET /2.2/networks/4242/devices": reply(t, `[{"mac":"aa:bb:cc:dd:ee:ff"}]`),
		"POST /2.2/eeros/77/reboot":      reply(t, ""),
		"POST /2.2/logout":               reply(t, ""),
	})
	store := credential.NewMemoryStore()
	client := newClient(t, srv, store, "")
	ctx := context.Background()

	assert.False(t, client.IsAuthenticated(ctx))
	assert.Equal(t, eero.Unauthenticated, client.Session().State)

	require.NoError(t, client.Login(ctx, "user@example.com"))
	assert.Equal(t, eero.PendingVerification, client.Session().State)

	require.NoError(t, client.Verify(ctx, "123456"))
	assert.True(t, client.IsAuthenticated(ctx))

	info := client.Session()
	assert.Equal(t, "31337", info.AccountID)
	assert.Equal(t, "4242", info.PreferredNetworkID)

	rec := persisted(t, store)
	require.NotNil(t, rec)
	assert.Equal(t, testToken, rec.Token)

	networks, err := client.Networks(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":1,"data":[{"url":"/2.2/networks/4242"}]}`, string(networks))

	devices, err := client.Devices(ctx, "")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"mac":"aa:bb:cc:dd:ee:ff"}]`, string(devices))

	_, err = client.RebootEero(ctx, "77")
	require.NoError(t, err)

	require.NoError(t, client.Logout(ctx))
	assert.False(t, client.IsAuthenticated(ctx))
	assert.Nil(t, persisted(t, store))

	for _, req := range srv.Requests() {
		switch req.Path {
		case "/2.2/login":
			assert.Empty(t, req.Cookie, "login must not carry a session")
		case "/2.2/eeros/77/reboot":
			assert.Equal(t, http.MethodPost, req.Method)
			assert.JSONEq(t, `{}`, req.Body)
			assert.Equal(t, testToken, req.Cookie)
		default:
			assert.Equal(t, testToken, req.Cookie, "%s %s", req.Method, req.Path)
		}
	}
}

func TestPersistedSessionLoadedAtConstruction(t *testing.T) {
	t.Parallel()

	srv := testutil.NewMockServer(t, "/2.2/networks/99/eeros", "stored-token", testutil.Envelope(http.StatusOK, `[]`), http.StatusOK)

	store := credential.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), &credential.Record{
		Token:              "stored-token",
		CreatedAt:          time.Now(),
		PreferredNetworkID: "99",
	}))

	client := newClient(t, srv, store, "")
	ctx := context.Background()

	require.True(t, client.IsAuthenticated(ctx))
	assert.Equal(t, credential.KindMemory, client.StorageKind())
	assert.Equal(t, "memory", client.StorageLocation())

	eeros, err := client.Eeros(ctx, "")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(eeros))
	assert.Equal(t, 1, srv.Count())
}

func TestInjectedTokenIsNotPersisted(t *testing.T) {
	t.Parallel()

	srv := testutil.NewMockServer(t, "/2.2/networks/5/profiles", "injected", testutil.Envelope(http.StatusOK, `[]`), http.StatusOK)
	store := credential.NewMemoryStore()
	client := newClient(t, srv, store, "injected")
	ctx := context.Background()

	require.True(t, client.IsAuthenticated(ctx))
	assert.True(t, client.Session().Injected)

	_, err := client.Profiles(ctx, "5")
	require.NoError(t, err)
	assert.Nil(t, persisted(t, store))
}

func TestDoWithoutSession(t *testing.T) {
	t.Parallel()

	srv := testutil.NewMockServerMulti(t, map[string]http.HandlerFunc{})
	client := newClient(t, srv, credential.NewMemoryStore(), "")

	_, err := client.Do(context.Background(), http.MethodGet, "account", nil)
	testutil.RequireKind(t, err, apierror.KindAuthentication)
	assert.Zero(t, srv.Count())
}

func TestNetworkIDRequired(t *testing.T) {
	t.Parallel()

	srv := testutil.NewMockServerMulti(t, map[string]http.HandlerFunc{})
	client := newClient(t, srv, credential.NewMemoryStore(), "injected")
	ctx := context.Background()

	_, err := client.Devices(ctx, "  ")
	testutil.RequireKind(t, err, apierror.KindValidation)

	_, err = client.RebootEero(ctx, "")
	testutil.RequireKind(t, err, apierror.KindValidation)
	assert.Zero(t, srv.Count())
}

func TestNetworksMissing(t *testing.T) {
	t.Parallel()

	srv := testutil.NewMockServer(t, "/2.2/account", "injected", testutil.Envelope(http.StatusOK, `{"name":"Test"}`), http.StatusOK)
	client := newClient(t, srv, credential.NewMemoryStore(), "injected")

	_, err := client.Networks(context.Background())
	testutil.RequireKind(t, err, apierror.KindNotFound)
}

func TestRejectedSessionIsDropped(t *testing.T) {
	t.Parallel()

	srv := testutil.NewMockServer(t, "/2.2/networks/1", "stored-token",
		testutil.ErrorEnvelope(http.StatusUnauthorized, "error.session.refresh"), http.StatusUnauthorized)

	store := credential.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), &credential.Record{Token: "stored-token", CreatedAt: time.Now()}))

	client := newClient(t, srv, store, "")
	ctx := context.Background()

	_, err := client.Network(ctx, "1")
	testutil.RequireKind(t, err, apierror.KindAuthentication)

	apiErr, ok := apierror.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "error.session.refresh", apiErr.Message)

	assert.False(t, client.IsAuthenticated(ctx))
	assert.Nil(t, persisted(t, store))
}

func TestNewWithConfigValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	_, err := eero.NewWithConfig(ctx, nil)
	testutil.RequireKind(t, err, apierror.KindValidation)

	_, err = eero.NewWithConfig(ctx, &eero.ClientConfig{Store: credential.NewMemoryStore(), MaxReadRetries: -1})
	testutil.RequireKind(t, err, apierror.KindValidation)

	_, err = eero.NewWithConfig(ctx, &eero.ClientConfig{Store: credential.NewMemoryStore(), BaseURL: "ftp://example.com"})
	testutil.RequireKind(t, err, apierror.KindValidation)
}

func TestNewWithConfigFileStorage(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/session.json"
	client, err := eero.NewWithConfig(context.Background(), &eero.ClientConfig{
		Storage: eero.StorageConfig{Backend: credential.BackendFile, Path: path},
	})
	require.NoError(t, err)

	assert.Equal(t, credential.KindFile, client.StorageKind())
	assert.Equal(t, path, client.StorageLocation())
	assert.False(t, client.IsAuthenticated(context.Background()))
}

func TestNewWithConfigLeavesCallerConfigUntouched(t *testing.T) {
	t.Parallel()

	cfg := &eero.ClientConfig{Store: credential.NewMemoryStore()}

	_, err := eero.NewWithConfig(context.Background(), cfg)
	require.NoError(t, err)

	assert.Empty(t, cfg.BaseURL)
	assert.Zero(t, cfg.Timeout)
	assert.Zero(t, cfg.RateLimitPerMinute)
	assert.Nil(t, cfg.Logger)
	assert.Nil(t, cfg.Metrics)
}
