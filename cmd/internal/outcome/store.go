// Package outcome persists terminal verification results.
//
// Sessions and artifacts are ephemeral; the outcome log is the only record
// that a run happened once its session is gone.
package outcome

import (
	"context"
	"errors"
	"time"
)

// Record is one finished verification run.
type Record struct {
	RunID          string
	SessionID      string
	ArtifactHandle string
	ArtifactDigest string
	State          string // "succeeded" | "failed"
	Reason         string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Store appends and queries outcome records.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Recent(ctx context.Context, sessionID string, limit int) ([]Record, error)
	Close() error
}

var errInvalidRecord = errors.New("outcome: invalid record")

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 200
)

func (r Record) validate() error {
	if r.RunID == "" || r.SessionID == "" || r.State == "" {
		return errInvalidRecord
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	if limit > maxRecentLimit {
		return maxRecentLimit
	}
	return limit
}
