package verify

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"livecheck/cmd/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var (
	imgNoFace   = []byte("no-face")
	imgTwoFaces = []byte("two-faces")
	imgBroken   = []byte("broken")
)

// fakeMatcher treats the upload bytes as the template. Compare delegates to match.
type fakeMatcher struct {
	mu    sync.Mutex
	match func(face image.Image) (bool, error)
	calls int
}

func (m *fakeMatcher) ExtractTemplate(_ context.Context, img []byte) (Template, error) {
	switch {
	case bytes.Equal(img, imgNoFace):
		return nil, ErrNoFace
	case bytes.Equal(img, imgTwoFaces):
		return nil, &MultiFaceError{Count: 2}
	case bytes.Equal(img, imgBroken):
		return nil, errors.New("model unavailable")
	}
	return Template(img), nil
}

func (m *fakeMatcher) Compare(_ context.Context, _ Template, face image.Image, _ float64) (bool, error) {
	m.mu.Lock()
	m.calls++
	fn := m.match
	m.mu.Unlock()
	if fn == nil {
		return true, nil
	}
	return fn(face)
}

func (m *fakeMatcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fakeLocator struct {
	boxes []image.Rectangle
	err   error
}

func (l *fakeLocator) Locate(context.Context, image.Image) ([]image.Rectangle, error) {
	return l.boxes, l.err
}

type fakeLiveness struct {
	mu     sync.Mutex
	assess func(crop image.Image) (Liveness, error)
	crops  []image.Rectangle
}

func (f *fakeLiveness) Assess(_ context.Context, crop image.Image) (Liveness, error) {
	f.mu.Lock()
	f.crops = append(f.crops, crop.Bounds())
	fn := f.assess
	f.mu.Unlock()
	if fn == nil {
		return Liveness{IsLive: true, Score: 0.9}, nil
	}
	return fn(crop)
}

func (f *fakeLiveness) Crops() []image.Rectangle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]image.Rectangle(nil), f.crops...)
}

type fakeDecoder struct{}

func (fakeDecoder) Decode(p []byte) (image.Image, error) {
	if bytes.Equal(p, imgBroken) {
		return nil, errors.New("not an image")
	}
	return image.NewRGBA(image.Rect(0, 0, 100, 100)), nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	results map[string][]Result
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{results: make(map[string][]Result)}
}

func (n *recordingNotifier) Notify(id string, res Result) {
	n.mu.Lock()
	n.results[id] = append(n.results[id], res)
	n.mu.Unlock()
}

func (n *recordingNotifier) For(id string) []Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Result(nil), n.results[id]...)
}

// countingStore wraps a MemoryStore and counts delete attempts per handle.
type countingStore struct {
	*storage.MemoryStore

	mu        sync.Mutex
	deletes   map[string]int
	deleteErr error
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: storage.NewMemoryStore(), deletes: make(map[string]int)}
}

func (s *countingStore) Delete(ctx context.Context, handle string) error {
	s.mu.Lock()
	s.deletes[handle]++
	injected := s.deleteErr
	s.mu.Unlock()
	if injected != nil {
		return injected
	}
	return s.MemoryStore.Delete(ctx, handle)
}

func (s *countingStore) setDeleteErr(err error) {
	s.mu.Lock()
	s.deleteErr = err
	s.mu.Unlock()
}

func (s *countingStore) Deletes(handle string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes[handle]
}

func testConfig() Config {
	return DefaultConfig()
}

func newTestArtifacts(t *testing.T, clock *fakeClock) (*ArtifactRegistry, *countingStore) {
	t.Helper()
	st := newCountingStore()
	reg := NewArtifactRegistry(discardLogger(), st, &fakeMatcher{}, testConfig(), WithArtifactClock(clock.Now))
	return reg, st
}
