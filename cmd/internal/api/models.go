package api

import (
	"time"

	"livecheck/cmd/internal/outcome"
	"livecheck/cmd/internal/verify"
)

type runResponse struct {
	ID              string     `json:"id"`
	State           string     `json:"state"`
	StartedAt       time.Time  `json:"started_at"`
	Deadline        time.Time  `json:"deadline"`
	MatchedLiveOnce bool       `json:"matched_live_once"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	Reason          string     `json:"reason,omitempty"`
}

type artifactResponse struct {
	Handle      string    `json:"handle"`
	Digest      string    `json:"digest"`
	Size        int       `json:"size"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type sessionResponse struct {
	SessionID  string            `json:"session_id"`
	State      string            `json:"state"`
	Connected  bool              `json:"connected"`
	Evaluating bool              `json:"evaluating"`
	Run        *runResponse      `json:"run,omitempty"`
	Artifact   *artifactResponse `json:"artifact,omitempty"`
}

type outcomeResponse struct {
	RunID          string    `json:"run_id"`
	State          string    `json:"state"`
	Reason         string    `json:"reason,omitempty"`
	ArtifactHandle string    `json:"artifact_handle,omitempty"`
	ArtifactDigest string    `json:"artifact_digest,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

type outcomesResponse struct {
	SessionID string            `json:"session_id"`
	Outcomes  []outcomeResponse `json:"outcomes"`
}

func toSessionResponse(s verify.Snapshot) sessionResponse {
	out := sessionResponse{
		SessionID:  s.SessionID,
		State:      s.State.String(),
		Connected:  s.Connected,
		Evaluating: s.Evaluating,
	}
	if r := s.Run; r != nil {
		rr := &runResponse{
			ID:              r.ID,
			State:           r.State.String(),
			StartedAt:       r.StartedAt,
			Deadline:        r.Deadline,
			MatchedLiveOnce: r.MatchedLiveOnce,
			Reason:          r.Reason,
		}
		if !r.FinishedAt.IsZero() {
			t := r.FinishedAt
			rr.FinishedAt = &t
		}
		out.Run = rr
	}
	if a := s.Artifact; a != nil {
		out.Artifact = &artifactResponse{
			Handle:      a.Handle,
			Digest:      a.Digest,
			Size:        a.Size,
			DisplayName: a.DisplayName,
			CreatedAt:   a.CreatedAt,
			ExpiresAt:   s.ExpiresAt,
		}
	}
	return out
}

func toOutcomeResponse(r outcome.Record) outcomeResponse {
	return outcomeResponse{
		RunID:          r.RunID,
		State:          r.State,
		Reason:         r.Reason,
		ArtifactHandle: r.ArtifactHandle,
		ArtifactDigest: r.ArtifactDigest,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
	}
}
