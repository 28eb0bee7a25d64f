package verify

import "time"

// State is the verification state of a session.
type State uint8

const (
	StateIdle State = iota
	StateVerifying
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateVerifying:
		return "verifying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible without a new start.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Run is one verification attempt. Idle is represented by the absence of a Run.
//
// Transitions only go Verifying -> Succeeded or Verifying -> Failed; every
// transition method returns false when the run is already terminal, which is
// what prevents a second result from being reported.
type Run struct {
	ID        string
	State     State
	StartedAt time.Time
	Deadline  time.Time

	// MatchedLiveOnce flips to true on the first live match and never back.
	MatchedLiveOnce bool

	// ArtifactHandle is the artifact the run started against (informational;
	// frames always use the session's current artifact).
	ArtifactHandle string

	FinishedAt time.Time
	Reason     string
}

func newRun(id string, now time.Time, window time.Duration, handle string) *Run {
	return &Run{
		ID:             id,
		State:          StateVerifying,
		StartedAt:      now,
		Deadline:       now.Add(window),
		ArtifactHandle: handle,
	}
}

// expired reports whether the deadline passed at now.
func (r *Run) expired(now time.Time) bool {
	return now.After(r.Deadline)
}

func (r *Run) succeed(now time.Time, reason string) bool {
	if r.State != StateVerifying {
		return false
	}
	r.State = StateSucceeded
	r.MatchedLiveOnce = true
	r.FinishedAt = now
	r.Reason = reason
	return true
}

func (r *Run) fail(now time.Time, reason string) bool {
	if r.State != StateVerifying {
		return false
	}
	r.State = StateFailed
	r.FinishedAt = now
	r.Reason = reason
	return true
}
