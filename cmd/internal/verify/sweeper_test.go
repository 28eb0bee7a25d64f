package verify

import (
	"context"
	"testing"
	"time"
)

func TestSweeper_OnceReportsCycle(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	reg, _ := newTestArtifacts(t, clock)
	ctx := context.Background()

	if _, err := reg.Put(ctx, "s1", []byte("face")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	sw := NewSweeper(discardLogger(), reg, 30*time.Second, nil)
	if rep := sw.Once(ctx); rep.Expired != 0 || rep.Scanned != 1 {
		t.Fatalf("report=%+v", rep)
	}

	clock.Advance(reg.TTL())
	if rep := sw.Once(ctx); rep.Expired != 1 {
		t.Fatalf("report=%+v", rep)
	}
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	reg, _ := newTestArtifacts(t, clock)

	if _, err := reg.Put(context.Background(), "s1", []byte("face")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	sw := NewSweeper(discardLogger(), reg, 5*time.Millisecond, nil)
	go func() { done <- sw.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for reg.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sweeper never reclaimed the artifact")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}
