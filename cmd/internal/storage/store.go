// Package storage holds the byte stores that back uploaded reference images.
//
// A Store maps an opaque handle to the raw upload. Handles are minted by the
// store on Put and are unique per artifact version; a replaced upload always
// gets a new handle.
package storage

import (
	"context"
	"errors"
	"regexp"
	"time"

	"livecheck/cmd/internal/ids"
)

var (
	// ErrNotFound is returned when a handle has no backing bytes (never stored, deleted, or expired).
	ErrNotFound = errors.New("storage: not found")

	// ErrEmpty is returned when Put is called with no data.
	ErrEmpty = errors.New("storage: empty payload")

	// ErrInvalidHandle is returned for handles that were not minted by this package.
	ErrInvalidHandle = errors.New("storage: invalid handle")
)

// Store is the durable handle -> bytes mapping used by the artifact registry.
//
// Delete must report ErrNotFound (possibly wrapped) when the handle is already gone;
// callers treat that as success.
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Exists(ctx context.Context, handle string) (bool, error)
	Delete(ctx context.Context, handle string) error
	Close() error
}

const handlePrefix = "target_"

var handleRE = regexp.MustCompile(`^target_[0-9A-HJKMNP-TV-Z]{26}$`)

// NewHandle mints a fresh artifact handle.
func NewHandle(now time.Time) (string, error) {
	id, err := ids.NewULID(now)
	if err != nil {
		return "", err
	}
	return handlePrefix + id, nil
}

// ValidHandle reports whether h has the shape produced by NewHandle.
// File-backed stores rely on this to keep handles out of path traversal.
func ValidHandle(h string) bool {
	return handleRE.MatchString(h)
}
