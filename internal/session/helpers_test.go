package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lexfrei/go-eero/apierror"
	"github.com/lexfrei/go-eero/credential"
	"github.com/lexfrei/go-eero/internal/response"
	"github.com/lexfrei/go-eero/internal/session"
	"github.com/lexfrei/go-eero/internal/transport"
)

const (
	testUserToken = "user-token-0123456789"
	verifyReply   = `{"user":{"id":31337},"networks":{"count":1,"data":[{"url":"/2.2/networks/4242","name":"Home"}]}}`
)

// fakeExecutor answers requests through handle and records every call.
type fakeExecutor struct {
	mu     sync.Mutex
	calls  []transport.Request
	handle func(req transport.Request) (*response.Envelope, error)
}

func (e *fakeExecutor) Execute(_ context.Context, req transport.Request) (*response.Envelope, error) {
	e.mu.Lock()
	e.calls = append(e.calls, req)
	handle := e.handle
	e.mu.Unlock()

	if handle == nil {
		return okEnvelope(`{}`), nil
	}
	return handle(req)
}

func (e *fakeExecutor) Calls() []transport.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]transport.Request(nil), e.calls...)
}

func (e *fakeExecutor) CallsTo(path string) int {
	n := 0
	for _, c := range e.Calls() {
		if c.Path == path {
			n++
		}
	}
	return n
}

// eeroExecutor answers the login flow the way the service does.
func eeroExecutor() *fakeExecutor {
	return &fakeExecutor{handle: func(req transport.Request) (*response.Envelope, error) {
		switch req.Path {
		case "login":
			return okEnvelope(`{"user_token":"` + testUserToken + `"}`), nil
		case "login/verify":
			return okEnvelope(verifyReply), nil
		default:
			return okEnvelope(`{}`), nil
		}
	}}
}

func okEnvelope(data string) *response.Envelope {
	return &response.Envelope{
		StatusCode: http.StatusOK,
		Meta:       response.Meta{Code: http.StatusOK},
		Data:       json.RawMessage(data),
	}
}

func remoteError(code int, msg string) error {
	return apierror.FromAPIError(&apierror.APIError{StatusCode: code, Code: code, Message: msg}, response.KindFor(code))
}

// countingStore wraps a MemoryStore and counts operations. Failing operations
// return the configured error without touching the wrapped store.
type countingStore struct {
	*credential.MemoryStore

	puts    atomic.Int32
	deletes atomic.Int32
	gets    atomic.Int32

	mu        sync.Mutex
	putErr    error
	deleteErr error
	getErr    error
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: credential.NewMemoryStore()}
}

func (s *countingStore) Get(ctx context.Context) (*credential.Record, error) {
	s.gets.Add(1)
	s.mu.Lock()
	err := s.getErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.MemoryStore.Get(ctx)
}

func (s *countingStore) Put(ctx context.Context, rec *credential.Record) error {
	s.puts.Add(1)
	s.mu.Lock()
	err := s.putErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryStore.Put(ctx, rec)
}

func (s *countingStore) Delete(ctx context.Context) error {
	s.deletes.Add(1)
	s.mu.Lock()
	err := s.deleteErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryStore.Delete(ctx)
}

func (s *countingStore) fail(get, put, del error) {
	s.mu.Lock()
	s.getErr, s.putErr, s.deleteErr = get, put, del
	s.mu.Unlock()
}

// overlapStore counts store operations that run while another one is in flight.
type overlapStore struct {
	*credential.MemoryStore

	active   atomic.Int32
	overlaps atomic.Int32
	ops      atomic.Int32
}

func (s *overlapStore) enter() func() {
	s.ops.Add(1)
	if s.active.Add(1) > 1 {
		s.overlaps.Add(1)
	}
	time.Sleep(2 * time.Millisecond)
	return func() { s.active.Add(-1) }
}

func (s *overlapStore) Get(ctx context.Context) (*credential.Record, error) {
	defer s.enter()()
	return s.MemoryStore.Get(ctx)
}

func (s *overlapStore) Put(ctx context.Context, rec *credential.Record) error {
	defer s.enter()()
	return s.MemoryStore.Put(ctx, rec)
}

func (s *overlapStore) Delete(ctx context.Context) error {
	defer s.enter()()
	return s.MemoryStore.Delete(ctx)
}

// fixedClock is a settable clock.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fixedClock {
	return &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// loggedIn runs the full login flow against exec and store.
func loggedIn(t *testing.T, exec session.Executor, store credential.Store, clock *fixedClock) *session.Manager {
	t.Helper()

	cfg := session.Config{Store: store}
	if clock != nil {
		cfg.Now = clock.Now
	}
	m := session.New(exec, cfg)

	ctx := context.Background()
	if err := m.InitiateLogin(ctx, "user@example.com"); err != nil {
		t.Fatalf("InitiateLogin() error = %v", err)
	}
	if err := m.Verify(ctx, "123456"); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	return m
}

var errBackend = errors.New("backend unavailable")
