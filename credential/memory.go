package credential

import (
	"context"
	"sync"

	"github.com/lexfrei/go-eero/apierror"
)

// MemoryStore keeps the record in process memory.
type MemoryStore struct {
	mu  sync.RWMutex
	rec *Record
}

// Compile-time check to ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Kind implements Store.
func (s *MemoryStore) Kind() Kind { return KindMemory }

// Location implements Store.
func (s *MemoryStore) Location() string { return "memory" }

// Get implements Store.
func (s *MemoryStore) Get(context.Context) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.rec.clone(), nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, rec *Record) error {
	if !rec.Usable() {
		return apierror.New(apierror.KindValidation, "credential record has no token")
	}

	s.mu.Lock()
	s.rec = rec.clone()
	s.mu.Unlock()

	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(context.Context) error {
	s.mu.Lock()
	s.rec = nil
	s.mu.Unlock()

	return nil
}
