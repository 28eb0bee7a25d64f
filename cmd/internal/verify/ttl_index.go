package verify

import (
	"sync"
	"time"
)

// ttlEntry tracks one resident artifact for reclamation.
type ttlEntry struct {
	handle     string
	sessionID  string
	insertedAt time.Time
}

// ttlIndex is a FIFO of artifact registrations. With a single fixed TTL,
// insertion order is also expiry order.
//
// Membership is the single source of truth for "this handle still needs
// reclaiming": whoever removes an entry (remove or drain) owns the storage delete.
type ttlIndex struct {
	mu      sync.Mutex
	entries []ttlEntry
}

func newTTLIndex() *ttlIndex {
	return &ttlIndex{entries: make([]ttlEntry, 0, 64)}
}

func (x *ttlIndex) push(e ttlEntry) {
	x.mu.Lock()
	x.entries = append(x.entries, e)
	x.mu.Unlock()
}

// remove deletes the entry for handle and reports whether it was present.
func (x *ttlIndex) remove(handle string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	for i, e := range x.entries {
		if e.handle == handle {
			x.entries = append(x.entries[:i], x.entries[i+1:]...)
			return true
		}
	}
	return false
}

// drainExpired swaps in a new index holding only entries younger than ttl and
// returns the expired ones oldest first. An entry is expired once its age reaches ttl.
// Partitioning is in-memory only; the caller does all I/O after the lock is released.
func (x *ttlIndex) drainExpired(now time.Time, ttl time.Duration) (expired []ttlEntry, scanned int) {
	x.mu.Lock()
	defer x.mu.Unlock()

	scanned = len(x.entries)
	live := make([]ttlEntry, 0, len(x.entries))
	for _, e := range x.entries {
		if now.Sub(e.insertedAt) >= ttl {
			expired = append(expired, e)
			continue
		}
		live = append(live, e)
	}
	x.entries = live

	return expired, scanned
}

func (x *ttlIndex) len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.entries)
}

func (x *ttlIndex) contains(handle string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, e := range x.entries {
		if e.handle == handle {
			return true
		}
	}
	return false
}
