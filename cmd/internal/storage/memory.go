package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps uploads in process memory. Intended for tests and single-node dev runs.
type MemoryStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	now   func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string][]byte),
		now:   time.Now,
	}
}

func (s *MemoryStore) Put(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	h, err := NewHandle(s.now().UTC())
	if err != nil {
		return "", err
	}

	cp := append([]byte(nil), data...)

	s.mu.Lock()
	s.blobs[h] = cp
	s.mu.Unlock()

	return h, nil
}

func (s *MemoryStore) Exists(ctx context.Context, handle string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	_, ok := s.blobs[handle]
	s.mu.Unlock()
	return ok, nil
}

func (s *MemoryStore) Delete(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[handle]; !ok {
		return ErrNotFound
	}
	delete(s.blobs, handle)
	return nil
}

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
