package verify

import (
	"context"
	"image"
)

// Template is the matcher-derived representation of one reference face. Opaque to this package.
type Template []byte

// Matcher extracts reference templates and compares live faces against them.
type Matcher interface {
	// ExtractTemplate returns ErrNoFace or *MultiFaceError when the image does not hold exactly one face.
	ExtractTemplate(ctx context.Context, img []byte) (Template, error)

	// Compare reports whether face belongs to the person described by tmpl under threshold.
	Compare(ctx context.Context, tmpl Template, face image.Image, threshold float64) (bool, error)
}

// FaceLocator finds faces in a decoded frame.
// The returned order must be stable for a given frame; the engine evaluates faces in that order.
type FaceLocator interface {
	Locate(ctx context.Context, frame image.Image) ([]image.Rectangle, error)
}

// Liveness is the classifier verdict for one face crop.
type Liveness struct {
	IsLive bool
	Score  float64
}

// LivenessClassifier decides whether a crop shows a real, non-spoofed face.
// Errors are treated as "not live" for that crop.
type LivenessClassifier interface {
	Assess(ctx context.Context, crop image.Image) (Liveness, error)
}

// FrameDecoder turns an opaque frame payload into an image.
type FrameDecoder interface {
	Decode(payload []byte) (image.Image, error)
}

// Notifier delivers results to whoever is connected for a session.
// Notify is called while the session is locked and must not block.
type Notifier interface {
	Notify(sessionID string, res Result)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(sessionID string, res Result)

func (f NotifierFunc) Notify(sessionID string, res Result) { f(sessionID, res) }

type nopNotifier struct{}

func (nopNotifier) Notify(string, Result) {}
