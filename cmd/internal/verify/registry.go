package verify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"livecheck/cmd/internal/ids"
	"livecheck/cmd/internal/metrics"
	"livecheck/cmd/internal/outcome"
)

const outcomeWriteTimeout = 3 * time.Second

// OutcomeRecorder receives every finished run.
type OutcomeRecorder interface {
	Append(ctx context.Context, rec outcome.Record) error
}

// Session is the per-connection entry of the Registry.
type Session struct {
	ID        string
	CreatedAt time.Time

	// opMu serializes artifact mutations (upload, disconnect) for this session.
	// It is held across slow matcher/storage calls, so it is never taken by
	// the frame path or the sweeper.
	opMu sync.Mutex

	// mu guards the fields below and is only held for in-memory transitions.
	mu         sync.Mutex
	run        *Run
	evaluating bool
	connected  bool
	closed     bool
}

// Snapshot is a consistent copy of a session's observable state.
type Snapshot struct {
	SessionID  string
	State      State
	Run        *Run
	Artifact   *Artifact
	ExpiresAt  time.Time
	Connected  bool
	Evaluating bool
}

// Registry is the concurrent sessionID -> Session map and the entry point for
// every lifecycle event (upload, start, frame, stop, disconnect).
type Registry struct {
	log       *slog.Logger
	cfg       Config
	artifacts *ArtifactRegistry
	engine    *Engine
	notifier  Notifier
	outcomes  OutcomeRecorder
	metrics   *metrics.Metrics
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithNotifier sets where results are delivered.
func WithNotifier(n Notifier) RegistryOption {
	return func(r *Registry) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithOutcomeRecorder sets where finished runs are recorded.
func WithOutcomeRecorder(o OutcomeRecorder) RegistryOption {
	return func(r *Registry) { r.outcomes = o }
}

// WithRegistryMetrics attaches Prometheus instruments.
func WithRegistryMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// WithRegistryClock overrides the time source (tests).
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry builds a Registry and subscribes it to artifact expiry.
func NewRegistry(log *slog.Logger, cfg Config, artifacts *ArtifactRegistry, engine *Engine, opts ...RegistryOption) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		log:       log,
		cfg:       cfg,
		artifacts: artifacts,
		engine:    engine,
		notifier:  nopNotifier{},
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	artifacts.OnExpire(r.onArtifactExpired)
	return r
}

// Artifacts exposes the underlying artifact registry.
func (r *Registry) Artifacts() *ArtifactRegistry { return r.artifacts }

func (r *Registry) lookup(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

func (r *Registry) getOrCreate(id string) *Session {
	if s := r.lookup(id); s != nil {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := &Session{ID: id, CreatedAt: r.now()}
	r.sessions[id] = s
	r.metrics.SessionsActive(len(r.sessions))
	return s
}

// remove drops id from the map only if it still maps to s.
func (r *Registry) remove(id string, s *Session) {
	r.mu.Lock()
	if cur, ok := r.sessions[id]; ok && cur == s {
		delete(r.sessions, id)
	}
	r.metrics.SessionsActive(len(r.sessions))
	r.mu.Unlock()
}

// Connect marks a session as backed by a live connection, creating it if needed.
func (r *Registry) Connect(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrMissingSession
	}
	for {
		s := r.getOrCreate(id)

		s.mu.Lock()
		if !s.closed {
			s.connected = true
			s.mu.Unlock()
			break
		}
		s.mu.Unlock()
		// A closed session may still be mapped for a moment; replace it.
		r.remove(id, s)
	}

	r.log.Info("session.connect", "session_id", id)
	return nil
}

// Upload registers img as the session's reference artifact.
func (r *Registry) Upload(ctx context.Context, id string, img []byte) (*Artifact, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrMissingSession
	}
	s := r.getOrCreate(id)

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.isClosed() {
		return nil, opErr("verify.Upload", ErrSessionClosed, "", nil)
	}
	a, err := r.artifacts.Put(ctx, id, img)
	if err != nil {
		r.dropIfUnused(id, s)
		return nil, err
	}
	return a, nil
}

// dropIfUnused removes a session that a rejected upload created and nothing
// else refers to. The caller holds s.opMu.
func (r *Registry) dropIfUnused(id string, s *Session) {
	s.mu.Lock()
	unused := !s.connected && !s.closed && s.run == nil && r.artifacts.Get(id) == nil
	if unused {
		s.closed = true
	}
	s.mu.Unlock()

	if unused {
		r.remove(id, s)
	}
}

// Start begins a fresh run. It fails with ErrNotFound when the session has no
// resident artifact; the session then stays in its previous state.
func (r *Registry) Start(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrMissingSession
	}
	s := r.getOrCreate(id)

	a, err := r.artifacts.Resident(ctx, id)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return opErr("verify.Start", ErrSessionClosed, "", nil)
	}
	if err != nil {
		r.notify(id, Result{Kind: ResultError, Message: UserMessage(err)})
		s.mu.Unlock()
		r.log.Info("run.start.refused", "session_id", id, "err", err)
		return err
	}

	now := r.now()
	var superseded *finishedRun
	if prev := s.run; prev != nil && prev.fail(now, "Superseded by a new start.") {
		superseded = &finishedRun{run: *prev, cause: "superseded", artifact: a}
	}

	run := newRun(ids.MustULID(now), now, r.cfg.VerifyWindow, a.Handle)
	s.run = run
	r.notify(id, Result{Kind: ResultStarted, RunID: run.ID, Message: msgStarted})
	s.mu.Unlock()

	r.log.Info("run.start", "session_id", id, "run_id", run.ID, "deadline", run.Deadline)
	r.record(ctx, id, superseded)
	return nil
}

// Frame evaluates one frame for the session. Fire-and-forget: frames for a
// session without a Verifying run are dropped, and a frame that arrives while
// the previous one is still being evaluated is dropped too.
func (r *Registry) Frame(ctx context.Context, id string, payload []byte) {
	s := r.lookup(id)
	if s == nil {
		r.metrics.Frame("idle", 0)
		return
	}

	now := r.now()

	s.mu.Lock()
	run := s.run
	if s.closed || run == nil || run.State != StateVerifying {
		s.mu.Unlock()
		r.metrics.Frame("idle", 0)
		return
	}

	if run.expired(now) {
		var fin *finishedRun
		if run.fail(now, msgTimeout) {
			r.notify(id, Result{Kind: ResultFailed, RunID: run.ID, Message: msgTimeout})
			fin = &finishedRun{run: *run, cause: "timeout", artifact: r.artifacts.Get(id)}
		}
		s.mu.Unlock()
		r.metrics.Frame("late", 0)
		r.log.Info("run.timeout", "session_id", id, "run_id", run.ID)
		r.record(ctx, id, fin)
		return
	}

	if s.evaluating {
		s.mu.Unlock()
		r.metrics.Frame("dropped", 0)
		return
	}

	a := r.artifacts.Get(id)
	if a == nil {
		var fin *finishedRun
		if run.fail(now, msgExpiredMidRun) {
			r.notify(id, Result{Kind: ResultError, RunID: run.ID, Message: msgExpiredMidRun})
			fin = &finishedRun{run: *run, cause: "expired"}
		}
		s.mu.Unlock()
		r.metrics.Frame("no_artifact", 0)
		r.record(ctx, id, fin)
		return
	}

	s.evaluating = true
	s.mu.Unlock()

	start := time.Now()
	ev := r.engine.Evaluate(ctx, payload, a.Template)
	took := time.Since(start)

	var fin *finishedRun

	s.mu.Lock()
	s.evaluating = false
	// The run may have been stopped, superseded or timed out meanwhile; only
	// the exact run this frame was admitted for can succeed.
	if ev.Outcome == OutcomeLive && s.run == run && !s.closed && run.succeed(r.now(), msgSuccess) {
		r.notify(id, Result{Kind: ResultSuccess, RunID: run.ID, Message: msgSuccess, DisplayName: a.DisplayName})
		fin = &finishedRun{run: *run, cause: "succeeded", artifact: a}
	}
	s.mu.Unlock()

	r.metrics.Frame(ev.Outcome.String(), took)
	if ev.Err != nil {
		r.log.Debug("frame.eval.fail", "session_id", id, "run_id", run.ID, "err", ev.Err)
	}
	if fin != nil {
		r.log.Info("run.succeeded", "session_id", id, "run_id", run.ID, "faces", ev.Faces, "score", ev.Score)
	}
	r.record(ctx, id, fin)
}

// Stop fails a Verifying run with "stopped by user". A run that already
// succeeded is left alone.
func (r *Registry) Stop(ctx context.Context, id string) {
	s := r.lookup(id)
	if s == nil {
		return
	}

	var fin *finishedRun

	s.mu.Lock()
	if run := s.run; run != nil && run.fail(r.now(), msgStopped) {
		r.notify(id, Result{Kind: ResultFailed, RunID: run.ID, Message: msgStopped})
		fin = &finishedRun{run: *run, cause: "stopped", artifact: r.artifacts.Get(id)}
	}
	s.mu.Unlock()

	if fin != nil {
		r.log.Info("run.stopped", "session_id", id, "run_id", fin.run.ID)
	}
	r.record(ctx, id, fin)
}

// Disconnect stops any run, evicts the artifact and destroys the session.
// Safe to call for unknown sessions.
func (r *Registry) Disconnect(ctx context.Context, id string) {
	r.mu.Lock()
	s := r.sessions[id]
	delete(r.sessions, id)
	r.metrics.SessionsActive(len(r.sessions))
	r.mu.Unlock()

	if s == nil {
		r.artifacts.Evict(ctx, id)
		return
	}

	var fin *finishedRun

	s.mu.Lock()
	s.closed = true
	s.connected = false
	if run := s.run; run != nil && run.fail(r.now(), reasonDisconnect) {
		fin = &finishedRun{run: *run, cause: "disconnected", artifact: r.artifacts.Get(id)}
	}
	s.mu.Unlock()

	// Waits for an in-flight upload; anything it registered is evicted here.
	s.opMu.Lock()
	r.artifacts.Evict(ctx, id)
	s.opMu.Unlock()

	r.log.Info("session.disconnect", "session_id", id)
	r.record(ctx, id, fin)
}

// Snapshot returns a copy of the session's state.
func (r *Registry) Snapshot(id string) (Snapshot, bool) {
	s := r.lookup(id)
	if s == nil {
		return Snapshot{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID:  id,
		State:      StateIdle,
		Connected:  s.connected,
		Evaluating: s.evaluating,
	}
	if s.run != nil {
		cp := *s.run
		snap.Run = &cp
		snap.State = cp.State
	}
	if a := r.artifacts.Get(id); a != nil {
		snap.Artifact = a
		snap.ExpiresAt = a.CreatedAt.Add(r.artifacts.TTL())
	}
	return snap, true
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// onArtifactExpired fails a run that was verifying against the expired
// artifact and drops sessions that no connection will ever clean up.
func (r *Registry) onArtifactExpired(id string, a *Artifact) {
	s := r.lookup(id)
	if s == nil {
		return
	}

	var fin *finishedRun

	s.mu.Lock()
	if run := s.run; run != nil && !s.closed && run.fail(r.now(), msgExpiredMidRun) {
		r.notify(id, Result{Kind: ResultError, RunID: run.ID, Message: msgExpiredMidRun})
		fin = &finishedRun{run: *run, cause: "expired", artifact: a}
	}
	orphan := !s.connected && !s.closed
	s.mu.Unlock()

	if orphan && s.opMu.TryLock() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		r.remove(id, s)
		s.opMu.Unlock()
		r.log.Info("session.orphan.removed", "session_id", id)
	}

	r.record(context.Background(), id, fin)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// notify must be called with the session locked so results leave in transition order.
func (r *Registry) notify(id string, res Result) {
	if res.At.IsZero() {
		res.At = r.now()
	}
	r.notifier.Notify(id, res)
}

type finishedRun struct {
	run      Run
	cause    string
	artifact *Artifact
}

func (r *Registry) record(ctx context.Context, id string, fin *finishedRun) {
	if fin == nil {
		return
	}
	r.metrics.RunFinished(fin.cause)

	if r.outcomes == nil {
		return
	}

	rec := outcome.Record{
		RunID:      fin.run.ID,
		SessionID:  id,
		State:      fin.run.State.String(),
		Reason:     fin.run.Reason,
		StartedAt:  fin.run.StartedAt,
		FinishedAt: fin.run.FinishedAt,
	}
	rec.ArtifactHandle = fin.run.ArtifactHandle
	if fin.artifact != nil {
		rec.ArtifactDigest = fin.artifact.Digest
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), outcomeWriteTimeout)
	defer cancel()

	if err := r.outcomes.Append(wctx, rec); err != nil {
		r.log.Error("outcome.append.fail", "session_id", id, "run_id", rec.RunID, "err", err)
	}
}
