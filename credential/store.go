// Package credential persists the eero session token.
//
// Three backends implement Store:
//   - KeyringStore keeps the record in the operating system's secret service
//     (macOS Keychain, Windows Credential Manager, Secret Service on Linux).
//   - FileStore keeps a JSON document readable only by the owner and replaces it
//     atomically on every write.
//   - MemoryStore keeps the record in process memory.
//
// Open selects a backend from Options. With BackendAuto the keyring is preferred
// and the file backend is used when no secret service is reachable, for example
// in containers and on headless hosts.
package credential

import (
	"context"
	"time"

	"github.com/lexfrei/go-eero/apierror"
	"github.com/lexfrei/go-eero/observability"
)

// Kind names a storage backend implementation.
type Kind string

// Backend kinds.
const (
	KindKeyring Kind = "keyring"
	KindFile    Kind = "file"
	KindMemory  Kind = "memory"
)

// Backend is the storage preference passed to Open.
type Backend string

// Backend preferences.
const (
	// BackendAuto prefers the keyring and falls back to the file backend.
	BackendAuto Backend = "auto"
	// BackendKeyring requires the keyring and fails when it is unavailable.
	BackendKeyring Backend = "keyring"
	// BackendFile always uses the file backend.
	BackendFile Backend = "file"
	// BackendMemory keeps the record in memory only.
	BackendMemory Backend = "memory"
)

const (
	// DefaultService is the keyring service name.
	DefaultService = "go-eero"
	// DefaultKey is the keyring account name the record is stored under.
	DefaultKey = "session"

	defaultProbeTimeout = 3 * time.Second
)

// Store persists at most one Record per storage scope.
type Store interface {
	// Get returns the current record, or nil when none is stored.
	// Absence is not an error.
	Get(ctx context.Context) (*Record, error)

	// Put replaces the stored record atomically.
	Put(ctx context.Context, rec *Record) error

	// Delete removes the record. Deleting an absent record succeeds.
	Delete(ctx context.Context) error

	// Kind reports the backend implementation.
	Kind() Kind

	// Location describes where the record lives (file path or keyring service/key).
	Location() string
}

// Options configures Open.
type Options struct {
	// Backend selects the storage preference (defaults to BackendAuto).
	Backend Backend

	// Path overrides the file backend location (defaults to DefaultFilePath).
	Path string

	// Service overrides the keyring service name (defaults to DefaultService).
	Service string

	// Key overrides the keyring account name (defaults to DefaultKey).
	Key string

	// ProbeTimeout bounds the keyring availability check (defaults to 3s).
	ProbeTimeout time.Duration

	// Logger receives the fallback warning (optional).
	Logger observability.Logger
}

// Open returns the Store selected by opts.
//
// With BackendAuto an unreachable keyring is not an error: Open logs a warning
// and returns a FileStore instead.
//
//nolint:ireturn // Backend is chosen at runtime
func Open(ctx context.Context, opts Options) (Store, error) {
	if opts.Logger == nil {
		opts.Logger = observability.NoopLogger()
	}
	if opts.Backend == "" {
		opts.Backend = BackendAuto
	}
	if opts.ProbeTimeout == 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}

	switch opts.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil

	case BackendFile:
		return openFile(opts)

	case BackendAuto, BackendKeyring:
		ks := NewKeyringStore(opts.Service, opts.Key)

		probeCtx, cancel := context.WithTimeout(ctx, opts.ProbeTimeout)
		defer cancel()

		probeErr := ks.Probe(probeCtx)
		if probeErr == nil {
			opts.Logger.Debug("using keyring credential store",
				observability.Field{Key: "location", Value: ks.Location()},
			)
			return ks, nil
		}

		if opts.Backend == BackendKeyring {
			return nil, probeErr
		}

		fs, err := openFile(opts)
		if err != nil {
			return nil, err
		}

		opts.Logger.Warn("keyring unavailable, storing credentials in file",
			observability.Field{Key: "error", Value: probeErr.Error()},
			observability.Field{Key: "path", Value: fs.Location()},
		)

		return fs, nil
	}

	return nil, apierror.Newf(apierror.KindValidation, "unknown credential backend %q", opts.Backend)
}

func openFile(opts Options) (*FileStore, error) {
	path := opts.Path
	if path == "" {
		var err error
		path, err = DefaultFilePath()
		if err != nil {
			return nil, err
		}
	}

	return NewFileStore(path), nil
}
