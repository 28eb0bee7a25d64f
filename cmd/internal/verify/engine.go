package verify

import (
	"context"
	"image"
	"image/draw"
	"log/slog"
)

// Outcome is the result of evaluating one frame.
type Outcome uint8

const (
	// OutcomeNoMatch: no face in the frame matched the reference.
	OutcomeNoMatch Outcome = iota
	// OutcomeNotLive: at least one face matched but none was classified live.
	OutcomeNotLive
	// OutcomeLive: a matching face was classified live.
	OutcomeLive
	// OutcomeFailed: the frame could not be evaluated (decode or locate error).
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoMatch:
		return "no_match"
	case OutcomeNotLive:
		return "not_live"
	case OutcomeLive:
		return "live"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Evaluation is what the engine learned from one frame.
type Evaluation struct {
	Outcome Outcome
	Faces   int
	Matched int
	Score   float64 // liveness score of the winning face, when Outcome is OutcomeLive
	Err     error   // set only for OutcomeFailed
}

// Engine evaluates frames against a reference template. It holds no per-session
// state and is safe for concurrent use.
type Engine struct {
	log      *slog.Logger
	decoder  FrameDecoder
	locator  FaceLocator
	matcher  Matcher
	liveness LivenessClassifier

	threshold float64
	padding   int
}

// NewEngine wires the collaborators with the threshold and padding from cfg.
func NewEngine(log *slog.Logger, dec FrameDecoder, loc FaceLocator, m Matcher, live LivenessClassifier, cfg Config) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		log:       log,
		decoder:   dec,
		locator:   loc,
		matcher:   m,
		liveness:  live,
		threshold: cfg.MatchThreshold,
		padding:   cfg.CropPadding,
	}
}

// Evaluate decodes payload, locates faces and checks each one, in detection
// order, for a template match and then liveness.
//
// The first face that is both a match and live ends the evaluation: remaining
// faces in the frame are not examined. Compare and Assess errors only skip the
// face they happened on.
func (e *Engine) Evaluate(ctx context.Context, payload []byte, tmpl Template) Evaluation {
	const op = "verify.Evaluate"

	frame, err := e.decoder.Decode(payload)
	if err != nil {
		return Evaluation{Outcome: OutcomeFailed, Err: opErr(op, ErrProcessing, "decode frame", err)}
	}

	boxes, err := e.locator.Locate(ctx, frame)
	if err != nil {
		return Evaluation{Outcome: OutcomeFailed, Err: opErr(op, ErrProcessing, "locate faces", err)}
	}

	ev := Evaluation{Outcome: OutcomeNoMatch, Faces: len(boxes)}

	for i, box := range boxes {
		if err := ctx.Err(); err != nil {
			return Evaluation{Outcome: OutcomeFailed, Faces: len(boxes), Matched: ev.Matched, Err: err}
		}

		face, ok := cropFace(frame, box, 0)
		if !ok {
			continue
		}

		match, err := e.matcher.Compare(ctx, tmpl, face, e.threshold)
		if err != nil {
			e.log.Debug("engine.compare.fail", "face", i, "err", err)
			continue
		}
		if !match {
			continue
		}
		ev.Matched++

		crop, ok := cropFace(frame, box, e.padding)
		if !ok {
			continue
		}

		lv, err := e.liveness.Assess(ctx, crop)
		if err != nil {
			e.log.Debug("engine.liveness.fail", "face", i, "err", err)
			continue
		}
		if lv.IsLive {
			ev.Outcome = OutcomeLive
			ev.Score = lv.Score
			return ev
		}
		e.log.Debug("engine.liveness.negative", "face", i, "score", lv.Score)
	}

	if ev.Matched > 0 {
		ev.Outcome = OutcomeNotLive
	}
	return ev
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// cropFace returns box grown by pad pixels on every side and clamped to the
// frame. ok is false when the clamped region is empty.
func cropFace(frame image.Image, box image.Rectangle, pad int) (image.Image, bool) {
	r := box.Canon()
	if pad > 0 {
		r = r.Inset(-pad)
	}
	r = r.Intersect(frame.Bounds())
	if r.Empty() {
		return nil, false
	}

	if si, ok := frame.(subImager); ok {
		return si.SubImage(r), true
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), frame, r.Min, draw.Src)
	return dst, true
}
