package verify

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"livecheck/cmd/internal/metrics"
	"livecheck/cmd/internal/storage"

	"golang.org/x/crypto/blake2b"
)

const storageOpTimeout = 5 * time.Second

// Artifact is one uploaded reference image in its derived, registered form.
// Artifacts are immutable once registered; replacement creates a new one.
type Artifact struct {
	Handle      string
	SessionID   string
	Template    Template
	Digest      string // BLAKE2b-256 of the uploaded bytes, hex
	Size        int
	CreatedAt   time.Time
	DisplayName string
}

// ExpireHook is called after the sweeper reclaims a session's artifact.
type ExpireHook func(sessionID string, a *Artifact)

// ArtifactRegistry tracks the current artifact per session and the TTL index used for reclamation.
//
// Locking:
//   - mu guards the artifact map; the TTL index has its own lock and is only
//     ever taken after mu (never the other way around).
//   - No storage or matcher I/O happens while either lock is held.
type ArtifactRegistry struct {
	log     *slog.Logger
	store   storage.Store
	matcher Matcher
	metrics *metrics.Metrics

	ttl         time.Duration
	displayName string
	now         func() time.Time

	mu        sync.Mutex
	artifacts map[string]*Artifact

	index *ttlIndex

	hookMu sync.RWMutex
	hooks  []ExpireHook
}

// ArtifactOption configures an ArtifactRegistry.
type ArtifactOption func(*ArtifactRegistry)

// WithArtifactClock overrides the time source (tests).
func WithArtifactClock(now func() time.Time) ArtifactOption {
	return func(r *ArtifactRegistry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithArtifactMetrics attaches Prometheus instruments.
func WithArtifactMetrics(m *metrics.Metrics) ArtifactOption {
	return func(r *ArtifactRegistry) { r.metrics = m }
}

// NewArtifactRegistry constructs a registry over store and matcher.
func NewArtifactRegistry(log *slog.Logger, store storage.Store, matcher Matcher, cfg Config, opts ...ArtifactOption) *ArtifactRegistry {
	if log == nil {
		log = slog.Default()
	}
	name := strings.TrimSpace(cfg.DisplayName)
	if name == "" {
		name = DefaultDisplayName
	}

	r := &ArtifactRegistry{
		log:         log,
		store:       store,
		matcher:     matcher,
		ttl:         cfg.ArtifactTTL,
		displayName: name,
		now:         time.Now,
		artifacts:   make(map[string]*Artifact),
		index:       newTTLIndex(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// OnExpire registers a hook fired after TTL reclamation detaches an artifact from its session.
func (r *ArtifactRegistry) OnExpire(fn ExpireHook) {
	if fn == nil {
		return
	}
	r.hookMu.Lock()
	r.hooks = append(r.hooks, fn)
	r.hookMu.Unlock()
}

// Put derives a template from img, stores the bytes and registers the result as
// the session's artifact, replacing (and evicting) any previous one.
//
// Fails with ErrNoFace / *MultiFaceError (both ErrValidation) when the image does
// not contain exactly one face; nothing is stored in that case.
func (r *ArtifactRegistry) Put(ctx context.Context, sessionID string, img []byte) (*Artifact, error) {
	const op = "verify.Put"

	if strings.TrimSpace(sessionID) == "" {
		r.metrics.Upload("rejected")
		return nil, ErrMissingSession
	}
	if len(img) == 0 {
		r.metrics.Upload("rejected")
		return nil, opErr(op, ErrValidation, "empty image", nil)
	}

	tmpl, err := r.matcher.ExtractTemplate(ctx, img)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			r.metrics.Upload("rejected")
			r.log.Info("artifact.put.rejected", "session_id", sessionID, "err", err)
			return nil, err
		}
		r.metrics.Upload("error")
		return nil, opErr(op, ErrProcessing, "extract template", err)
	}
	if len(tmpl) == 0 {
		r.metrics.Upload("error")
		return nil, opErr(op, ErrProcessing, "empty template", nil)
	}

	handle, err := r.store.Put(ctx, img)
	if err != nil {
		r.metrics.Upload("error")
		r.metrics.StorageError("put")
		return nil, opErr(op, ErrStorage, "store upload", err)
	}

	sum := blake2b.Sum256(img)
	now := r.now()
	a := &Artifact{
		Handle:      handle,
		SessionID:   sessionID,
		Template:    append(Template(nil), tmpl...),
		Digest:      hex.EncodeToString(sum[:]),
		Size:        len(img),
		CreatedAt:   now,
		DisplayName: r.displayName,
	}

	r.mu.Lock()
	old := r.artifacts[sessionID]
	ownsOld := false
	if old != nil {
		ownsOld = r.index.remove(old.Handle)
	}
	r.artifacts[sessionID] = a
	r.index.push(ttlEntry{handle: handle, sessionID: sessionID, insertedAt: now})
	r.mu.Unlock()

	r.metrics.ArtifactRegistered()
	r.metrics.Upload("ok")

	if old != nil {
		r.metrics.ArtifactEvicted("replaced")
		if ownsOld {
			r.deleteBlob(ctx, old.Handle, "replaced")
		}
		r.log.Info("artifact.replaced", "session_id", sessionID, "old_handle", old.Handle, "handle", handle)
	}

	r.log.Info("artifact.put",
		"session_id", sessionID,
		"handle", handle,
		"digest", a.Digest,
		"size", a.Size,
	)
	return a, nil
}

// Get returns the session's artifact, or nil.
func (r *ArtifactRegistry) Get(sessionID string) *Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.artifacts[sessionID]
}

// Resident returns the session's artifact after confirming its bytes still exist.
// An artifact whose storage vanished is evicted and reported as ErrNotFound.
func (r *ArtifactRegistry) Resident(ctx context.Context, sessionID string) (*Artifact, error) {
	const op = "verify.Resident"

	a := r.Get(sessionID)
	if a == nil {
		return nil, opErr(op, ErrNotFound, msgNotSet, nil)
	}

	ok, err := r.store.Exists(ctx, a.Handle)
	if err != nil {
		r.metrics.StorageError("exists")
		return nil, opErr(op, ErrStorage, "check upload", err)
	}
	if !ok {
		r.evict(ctx, sessionID, a.Handle, "stale")
		return nil, opErr(op, ErrNotFound, msgStale, nil)
	}
	return a, nil
}

// Evict removes the session's artifact and its storage. Idempotent: returns
// false when there was nothing to evict.
func (r *ArtifactRegistry) Evict(ctx context.Context, sessionID string) bool {
	return r.evict(ctx, sessionID, "", "disconnect")
}

// evict detaches the session's artifact (only if it still has handle, when
// handle is non-empty) and deletes its bytes if this call won the TTL entry.
func (r *ArtifactRegistry) evict(ctx context.Context, sessionID, handle, reason string) bool {
	r.mu.Lock()
	a := r.artifacts[sessionID]
	if a == nil || (handle != "" && a.Handle != handle) {
		r.mu.Unlock()
		return false
	}
	delete(r.artifacts, sessionID)
	owns := r.index.remove(a.Handle)
	r.mu.Unlock()

	r.metrics.ArtifactEvicted(reason)
	if owns {
		r.deleteBlob(ctx, a.Handle, reason)
	}

	r.log.Info("artifact.evicted", "session_id", sessionID, "handle", a.Handle, "reason", reason)
	return true
}

// SweepReport summarizes one reclamation cycle.
type SweepReport struct {
	Scanned       int
	Expired       int
	Reclaimed     int // artifacts detached from a live session
	StorageErrors int
}

// Sweep reclaims every artifact whose age reached the TTL.
func (r *ArtifactRegistry) Sweep(ctx context.Context) SweepReport {
	expired, scanned := r.index.drainExpired(r.now(), r.ttl)
	rep := r.reclaim(ctx, expired, "expired", true)
	rep.Scanned = scanned
	return rep
}

// Purge reclaims every registered artifact regardless of age. Used on shutdown.
func (r *ArtifactRegistry) Purge(ctx context.Context) SweepReport {
	all, scanned := r.index.drainExpired(r.now(), 0)
	rep := r.reclaim(ctx, all, "shutdown", false)
	rep.Scanned = scanned
	return rep
}

func (r *ArtifactRegistry) reclaim(ctx context.Context, entries []ttlEntry, reason string, fire bool) SweepReport {
	rep := SweepReport{Expired: len(entries)}

	for _, e := range entries {
		if err := r.deleteBlob(ctx, e.handle, reason); err != nil {
			rep.StorageErrors++
		}

		r.mu.Lock()
		a := r.artifacts[e.sessionID]
		detached := a != nil && a.Handle == e.handle
		if detached {
			delete(r.artifacts, e.sessionID)
		}
		r.mu.Unlock()

		if !detached {
			continue
		}
		rep.Reclaimed++
		r.metrics.ArtifactEvicted(reason)
		r.log.Info("artifact.evicted",
			"session_id", e.sessionID,
			"handle", e.handle,
			"reason", reason,
			"age", r.now().Sub(e.insertedAt).String(),
		)

		if fire {
			r.fireExpire(e.sessionID, a)
		}
	}
	return rep
}

func (r *ArtifactRegistry) fireExpire(sessionID string, a *Artifact) {
	r.hookMu.RLock()
	hooks := append([]ExpireHook(nil), r.hooks...)
	r.hookMu.RUnlock()

	for _, h := range hooks {
		h(sessionID, a)
	}
}

// deleteBlob removes bytes from storage. Not-found is success; other failures
// are logged and counted but never undo the eviction.
func (r *ArtifactRegistry) deleteBlob(ctx context.Context, handle, reason string) error {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storageOpTimeout)
	defer cancel()

	err := r.store.Delete(dctx, handle)
	if err == nil || errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	r.metrics.StorageError("delete")
	r.log.Error("artifact.delete.fail", "handle", handle, "reason", reason, "err", err)
	return err
}

// Len returns the number of resident artifacts.
func (r *ArtifactRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.artifacts)
}

// TTL returns the configured artifact time-to-live.
func (r *ArtifactRegistry) TTL() time.Duration { return r.ttl }
