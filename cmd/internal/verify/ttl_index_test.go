package verify

import (
	"testing"
	"time"
)

func TestTTLIndex_DrainExpired_Boundary(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	x := newTTLIndex()
	x.push(ttlEntry{handle: "a", sessionID: "s1", insertedAt: t0})
	x.push(ttlEntry{handle: "b", sessionID: "s2", insertedAt: t0.Add(10 * time.Second)})
	x.push(ttlEntry{handle: "c", sessionID: "s3", insertedAt: t0.Add(20 * time.Second)})

	expired, scanned := x.drainExpired(t0.Add(119*time.Second), 120*time.Second)
	if len(expired) != 0 || scanned != 3 {
		t.Fatalf("expired=%d scanned=%d, want 0/3", len(expired), scanned)
	}

	// Exactly at age == ttl counts as expired.
	expired, _ = x.drainExpired(t0.Add(130*time.Second), 120*time.Second)
	if len(expired) != 2 {
		t.Fatalf("expired=%d, want 2", len(expired))
	}
	if expired[0].handle != "a" || expired[1].handle != "b" {
		t.Fatalf("order=%v, want oldest first", expired)
	}
	if x.len() != 1 || !x.contains("c") {
		t.Fatalf("remaining len=%d contains(c)=%v", x.len(), x.contains("c"))
	}
}

func TestTTLIndex_RemoveOwnsOnce(t *testing.T) {
	t.Parallel()

	now := time.Now()
	x := newTTLIndex()
	x.push(ttlEntry{handle: "a", insertedAt: now})

	if !x.remove("a") {
		t.Fatalf("first remove should report presence")
	}
	if x.remove("a") {
		t.Fatalf("second remove should report absence")
	}

	x.push(ttlEntry{handle: "b", insertedAt: now})
	expired, _ := x.drainExpired(now, 0)
	if len(expired) != 1 {
		t.Fatalf("expired=%d, want 1", len(expired))
	}
	if x.remove("b") {
		t.Fatalf("remove after drain should report absence")
	}
}
