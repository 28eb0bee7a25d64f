package realtime

import (
	"time"

	"livecheck/cmd/internal/ids"
)

// NewSessionID returns a ULID used as websocket session id. Clients echo it
// back as socket_id on upload.
func NewSessionID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// NewEnvelopeID returns a ULID used as envelope id.
// ULID is preferable to random hex for tracing and ordering in logs.
func NewEnvelopeID(now time.Time) string {
	return ids.MustULID(now)
}
