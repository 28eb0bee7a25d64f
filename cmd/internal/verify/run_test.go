package verify

import (
	"testing"
	"time"
)

func TestRun_TerminalIsFinal(t *testing.T) {
	t.Parallel()

	now := time.Now()
	r := newRun("run1", now, 10*time.Second, "h")

	if !r.succeed(now, msgSuccess) {
		t.Fatalf("succeed from Verifying should transition")
	}
	if r.fail(now, msgTimeout) {
		t.Fatalf("fail after success must be refused")
	}
	if r.succeed(now, msgSuccess) {
		t.Fatalf("second succeed must be refused")
	}
	if r.State != StateSucceeded || !r.MatchedLiveOnce || r.Reason != msgSuccess {
		t.Fatalf("run=%+v", r)
	}
}

func TestRun_Expired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	r := newRun("run1", now, 10*time.Second, "h")

	cases := []struct {
		at   time.Duration
		want bool
	}{
		{0, false},
		{9 * time.Second, false},
		{10 * time.Second, false},
		{10*time.Second + time.Millisecond, true},
	}
	for _, tc := range cases {
		if got := r.expired(now.Add(tc.at)); got != tc.want {
			t.Fatalf("expired(+%v)=%v want %v", tc.at, got, tc.want)
		}
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	for s, want := range map[State]string{
		StateIdle:      "idle",
		StateVerifying: "verifying",
		StateSucceeded: "succeeded",
		StateFailed:    "failed",
	} {
		if s.String() != want {
			t.Fatalf("%d.String()=%q want %q", s, s.String(), want)
		}
		if s.Terminal() != (s == StateSucceeded || s == StateFailed) {
			t.Fatalf("%v.Terminal() wrong", s)
		}
	}
}
