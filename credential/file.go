package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/lexfrei/go-eero/apierror"
)

const (
	fileMode = 0o600
	dirMode  = 0o700
)

// FileStore keeps the record in a JSON file readable and writable only by its owner.
type FileStore struct {
	path string
}

// Compile-time check to ensure FileStore implements Store.
var _ Store = (*FileStore)(nil)

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultFilePath returns <user config dir>/eero/session.json.
func DefaultFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve user config directory")
	}

	return filepath.Join(dir, "eero", "session.json"), nil
}

// Kind implements Store.
func (s *FileStore) Kind() Kind { return KindFile }

// Location implements Store.
func (s *FileStore) Location() string { return s.path }

// Get implements Store. A missing or empty file yields no record.
func (s *FileStore) Get(ctx context.Context) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "credential read canceled")
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read credential file %s", s.path)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to decode credential file %s", s.path), ErrCorrupt)
	}

	if !rec.Usable() {
		return nil, nil
	}

	return &rec, nil
}

// Put implements Store.
//
// The record is written to a temporary file in the target directory whose mode is
// restricted before any content is written, synced, then renamed over the target.
// Readers see either the previous document or the new one.
func (s *FileStore) Put(ctx context.Context, rec *Record) error {
	if !rec.Usable() {
		return apierror.New(apierror.KindValidation, "credential record has no token")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "credential write canceled")
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode credential record")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return errors.Wrapf(err, "failed to create credential directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary credential file")
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(fileMode); err != nil {
		return errors.Wrap(err, "failed to restrict temporary credential file")
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, "failed to write temporary credential file")
	}
	if err := tmp.Sync(); err != nil {
		return errors.Wrap(err, "failed to sync temporary credential file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temporary credential file")
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return errors.Wrapf(err, "failed to replace credential file %s", s.path)
	}

	committed = true

	return nil
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "credential delete canceled")
	}

	err := os.Remove(s.path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return errors.Wrapf(err, "failed to delete credential file %s", s.path)
}
