// Package vision provides the image-facing collaborators of the verify
// package: a stdlib frame decoder and an HTTP client for the inference
// sidecar that does face detection, template matching and liveness.
package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
)

// DefaultMaxPixels bounds decoded frames (4096x4096).
const DefaultMaxPixels = 4096 * 4096

var (
	ErrEmptyFrame    = errors.New("vision: empty frame")
	ErrFrameTooLarge = errors.New("vision: frame too large")
)

// StdDecoder decodes JPEG and PNG payloads with the standard image codecs.
type StdDecoder struct {
	MaxPixels int
}

// Decode checks the header dimensions before decoding pixels.
func (d StdDecoder) Decode(payload []byte) (image.Image, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyFrame
	}

	limit := d.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("vision: decode header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("vision: invalid %s dimensions %dx%d", format, cfg.Width, cfg.Height)
	}
	if cfg.Width*cfg.Height > limit {
		return nil, fmt.Errorf("%w: %s %dx%d", ErrFrameTooLarge, format, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("vision: decode %s: %w", format, err)
	}
	return img, nil
}
