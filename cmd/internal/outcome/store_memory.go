package outcome

import (
	"context"
	"sync"
)

const memMaxRecords = 10_000

// InMemoryStore is the fallback when no database is configured.
// It keeps the newest memMaxRecords records across all sessions.
type InMemoryStore struct {
	mu   sync.Mutex
	recs []Record // append order
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{recs: make([]Record, 0, 256)}
}

func (s *InMemoryStore) Append(ctx context.Context, rec Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.recs = append(s.recs, rec)
	if len(s.recs) > memMaxRecords {
		s.recs = append([]Record(nil), s.recs[len(s.recs)-memMaxRecords:]...)
	}
	return nil
}

// Recent returns up to limit records for sessionID, newest first.
func (s *InMemoryStore) Recent(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, limit)
	for i := len(s.recs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.recs[i].SessionID == sessionID {
			out = append(out, s.recs[i])
		}
	}
	return out, nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }
