package verify

import (
	"errors"
	"fmt"
)

// Error kinds. Callers classify with errors.Is.
var (
	// ErrValidation covers bad input that the caller can fix: no face, several faces, missing session id.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a session has no resident artifact (never uploaded, expired or removed).
	ErrNotFound = errors.New("not found")

	// ErrProcessing marks a collaborator failure (matcher, decoder). Transient.
	ErrProcessing = errors.New("processing failed")

	// ErrStorage marks a storage backend failure.
	ErrStorage = errors.New("storage failure")

	// ErrSessionClosed is returned when an operation races with a disconnect.
	ErrSessionClosed = errors.New("session closed")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

var (
	// ErrNoFace is returned by Matcher.ExtractTemplate when the image has no detectable face.
	ErrNoFace = fmt.Errorf("%w: no face found in image", ErrValidation)

	// ErrMultiFace is the kind wrapped by MultiFaceError.
	ErrMultiFace = fmt.Errorf("%w: multiple faces in image", ErrValidation)

	// ErrMissingSession is returned when a session id is empty.
	ErrMissingSession = fmt.Errorf("%w: missing session id", ErrValidation)
)

// MultiFaceError reports how many faces were found in an upload that must contain exactly one.
type MultiFaceError struct {
	Count int
}

func (e *MultiFaceError) Error() string {
	return fmt.Sprintf("multiple faces detected (%d found)", e.Count)
}

func (e *MultiFaceError) Unwrap() error { return ErrMultiFace }

// OpError attaches the failing operation to an error kind.
type OpError struct {
	Op   string
	Kind error
	Msg  string
	Err  error
}

func (e *OpError) Error() string {
	s := e.Op + ": " + e.Kind.Error()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opErr(op string, kind error, msg string, cause error) error {
	return &OpError{Op: op, Kind: kind, Msg: msg, Err: cause}
}

// UserMessage renders err the way it is shown to the person verifying.
// Unknown errors collapse to a generic message so internals never leak.
func UserMessage(err error) string {
	var mf *MultiFaceError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &mf):
		return fmt.Sprintf("Multiple faces detected (%d found). Please upload an image with only one person.", mf.Count)
	case errors.Is(err, ErrNoFace):
		return "No face found in the uploaded image. Please ensure the image contains a clear, single face."
	case errors.Is(err, ErrMissingSession):
		return "Socket ID is required for target upload."
	case errors.Is(err, ErrNotFound):
		var oe *OpError
		if errors.As(err, &oe) && oe.Msg != "" {
			return oe.Msg
		}
		return "Target image not set. Please upload target image first."
	case errors.Is(err, ErrSessionClosed):
		return "Session closed."
	case errors.Is(err, ErrValidation):
		return "Invalid request."
	default:
		return "Could not process target image."
	}
}
