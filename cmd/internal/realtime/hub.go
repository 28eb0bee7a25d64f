package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"

	"livecheck/cmd/internal/verify"
	v1 "livecheck/shared/contracts/realtime/v1"
)

// Hub maps session ids to connected clients and delivers verification
// results to them. It implements verify.Notifier.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		clients: make(map[string]*Client),
	}
}

// Register makes c the delivery target for its session.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.SessionID] = c
	h.mu.Unlock()
}

// Unregister removes c, leaving any newer client for the same session in place.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.SessionID]; ok && cur == c {
		delete(h.clients, c.SessionID)
	}
	h.mu.Unlock()
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) client(sessionID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[sessionID]
}

// Notify never blocks: results for a session without a client, or with a
// full send queue, are dropped.
func (h *Hub) Notify(sessionID string, res verify.Result) {
	c := h.client(sessionID)
	if c == nil {
		h.log.Debug("hub.notify.no_client", "session_id", sessionID, "kind", res.Kind)
		return
	}

	env := resultEnvelope(res)
	if !c.TrySend(env) {
		h.log.Warn("hub.notify.dropped", "session_id", sessionID, "kind", res.Kind)
	}
}

func resultEnvelope(res verify.Result) v1.Envelope {
	if res.Kind == verify.ResultStarted {
		p, _ := json.Marshal(v1.VerificationStatusPayload{
			Status:  v1.StatusStarted,
			RunID:   res.RunID,
			Message: res.Message,
		})
		return newEnvelope(v1.TypeVerificationStatus, p, res.At.UTC())
	}

	status := v1.StatusError
	switch res.Kind {
	case verify.ResultSuccess:
		status = v1.StatusSuccess
	case verify.ResultFailed:
		status = v1.StatusFailed
	}

	p, _ := json.Marshal(v1.VerificationResultPayload{
		Status:      status,
		RunID:       res.RunID,
		Message:     res.Message,
		DisplayName: res.DisplayName,
	})
	return newEnvelope(v1.TypeVerificationResult, p, res.At.UTC())
}
