// Package v1 defines the livecheck realtime protocol v1 contract.
//
// It is shared between the server, the smoke tool and clients so the wire
// protocol stays authoritative in one place.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is negotiated on the websocket upgrade.
const Subprotocol = "livecheck.v1"

// Type constants (wire-stable).
const (
	// TypeHello starts a session handshake (client -> server).
	TypeHello = "hello"
	// TypeHelloAck carries the session id the client must use for uploads (server -> client).
	TypeHelloAck = "hello_ack"

	// TypeVerifyStart begins a verification run (client -> server).
	TypeVerifyStart = "verify_start"
	// TypeVideoFrame carries one camera frame (client -> server).
	TypeVideoFrame = "video_frame"
	// TypeVerifyStop cancels the current run (client -> server).
	TypeVerifyStop = "verify_stop"

	// TypeVerificationStatus reports run progress (server -> client).
	TypeVerificationStatus = "verification_status"
	// TypeVerificationResult reports a terminal or error outcome (server -> client).
	TypeVerificationResult = "verification_result"

	// TypeError is a generic protocol error (server -> client).
	TypeError = "error"
)

// Result statuses carried by VerificationResultPayload.
const (
	StatusStarted = "started"
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusError   = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeHello,
		TypeHelloAck,
		TypeVerifyStart,
		TypeVideoFrame,
		TypeVerifyStop,
		TypeVerificationStatus,
		TypeVerificationResult,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// HelloPayload is sent by the client to initiate a session.
type HelloPayload struct{}

// HelloAckPayload returns the server-assigned session id.
type HelloAckPayload struct {
	SessionID string `json:"session_id"`
}

// VideoFramePayload carries a frame as a data URL, e.g. "data:image/jpeg;base64,...".
type VideoFramePayload struct {
	Image string `json:"image"`
}

// VerificationStatusPayload reports that a run is in progress.
type VerificationStatusPayload struct {
	Status  string `json:"status"`
	RunID   string `json:"run_id,omitempty"`
	Message string `json:"message"`
}

// VerificationResultPayload reports how a run ended, or why it could not proceed.
type VerificationResultPayload struct {
	Status      string `json:"status"`
	RunID       string `json:"run_id,omitempty"`
	Message     string `json:"message"`
	DisplayName string `json:"display_name,omitempty"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
