package credential

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/zalando/go-keyring"

	"github.com/lexfrei/go-eero/apierror"
)

// KeyringStore keeps the record in the operating system's secret service.
//
// Failures of the secret service itself (locked collection, daemon gone) are
// reported as apierror.KindNetwork. Only a missing entry counts as absence.
type KeyringStore struct {
	service string
	key     string
	secrets secretService
}

// secretService is the subset of the go-keyring API the store uses.
type secretService interface {
	Get(service, user string) (string, error)
	Set(service, user, password string) error
	Delete(service, user string) error
}

type systemKeyring struct{}

func (systemKeyring) Get(service, user string) (string, error) {
	//nolint:wrapcheck // classified by the caller
	return keyring.Get(service, user)
}

func (systemKeyring) Set(service, user, password string) error {
	//nolint:wrapcheck // classified by the caller
	return keyring.Set(service, user, password)
}

func (systemKeyring) Delete(service, user string) error {
	//nolint:wrapcheck // classified by the caller
	return keyring.Delete(service, user)
}

// Compile-time check to ensure KeyringStore implements Store.
var _ Store = (*KeyringStore)(nil)

// NewKeyringStore returns a keyring-backed store. Empty arguments select
// DefaultService and DefaultKey.
func NewKeyringStore(service, key string) *KeyringStore {
	if service == "" {
		service = DefaultService
	}
	if key == "" {
		key = DefaultKey
	}

	return &KeyringStore{service: service, key: key, secrets: systemKeyring{}}
}

// Kind implements Store.
func (s *KeyringStore) Kind() Kind { return KindKeyring }

// Location implements Store.
func (s *KeyringStore) Location() string { return s.service + "/" + s.key }

// Probe checks that the secret service answers. A missing entry counts as available.
func (s *KeyringStore) Probe(ctx context.Context) error {
	_, err := await(ctx, func() (string, error) {
		return s.secrets.Get(s.service, s.key)
	})
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return nil
	}

	return apierror.Wrap(err, apierror.KindNetwork, "keyring unavailable")
}

// Get implements Store.
func (s *KeyringStore) Get(ctx context.Context) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "credential read canceled")
	}

	secret, err := await(ctx, func() (string, error) {
		return s.secrets.Get(s.service, s.key)
	})
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apierror.Wrap(err, apierror.KindNetwork, "failed to read credential from keyring")
	}

	var rec Record
	if err := json.Unmarshal([]byte(secret), &rec); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to decode keyring credential"), ErrCorrupt)
	}

	if !rec.Usable() {
		return nil, nil
	}

	return &rec, nil
}

// Put implements Store. The secret service replaces the entry in one call.
func (s *KeyringStore) Put(ctx context.Context, rec *Record) error {
	if !rec.Usable() {
		return apierror.New(apierror.KindValidation, "credential record has no token")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "credential write canceled")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to encode credential record")
	}

	_, err = await(ctx, func() (struct{}, error) {
		return struct{}{}, s.secrets.Set(s.service, s.key, string(data))
	})
	if err != nil {
		return apierror.Wrap(err, apierror.KindNetwork, "failed to write credential to keyring")
	}

	return nil
}

// Delete implements Store.
func (s *KeyringStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "credential delete canceled")
	}

	_, err := await(ctx, func() (struct{}, error) {
		return struct{}{}, s.secrets.Delete(s.service, s.key)
	})
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return nil
	}

	return apierror.Wrap(err, apierror.KindNetwork, "failed to delete credential from keyring")
}

// await runs call on its own goroutine so a secret service that stops answering
// cannot outlive ctx. The call itself is abandoned, not interrupted.
func await[T any](ctx context.Context, call func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}

	done := make(chan result, 1)
	go func() {
		value, err := call()
		done <- result{value: value, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, apierror.Wrap(ctx.Err(), apierror.KindNetwork, "keyring did not answer")
	}
}
