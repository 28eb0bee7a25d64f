package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"livecheck/cmd/internal/metrics"
	v1 "livecheck/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const (
	wsDefaultSendQueueSize = 64
	wsMinSendQueueSize     = 16

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second
	wsDisconnectTimeout   = 10 * time.Second

	wsMaxPingFailures = 3

	// Security defaults:
	// - Origin is required by default.
	// - Only localhost is allowed by default (secure-by-default for dev).
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"

	jpegDataURLPrefix = "data:image/jpeg;base64,"
)

// Sessions is what the gateway drives for each connection. *verify.Registry implements it.
type Sessions interface {
	Connect(id string) error
	Start(ctx context.Context, id string) error
	Frame(ctx context.Context, id string, payload []byte)
	Stop(ctx context.Context, id string)
	Disconnect(ctx context.Context, id string)
}

// WSGateway is the WebSocket entrypoint for livecheck sessions.
//
// It enforces origin policy, subprotocol selection, rate limits, heartbeats,
// and routes validated envelopes to Sessions. Results flow back through the Hub.
type WSGateway struct {
	log      *slog.Logger
	hub      *Hub
	sessions Sessions
	metrics  *metrics.Metrics

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks.
	// Accept() authorizes same-host origins by default, but for cross-origin it requires OriginPatterns.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration

	controlEvents int
	controlWindow time.Duration
}

// GatewayOption configures a WSGateway.
type GatewayOption func(*WSGateway)

// WithGatewayMetrics attaches Prometheus instruments.
func WithGatewayMetrics(m *metrics.Metrics) GatewayOption {
	return func(g *WSGateway) { g.metrics = m }
}

// NewWSGateway constructs a gateway with secure defaults read from LIVECHECK_WS_* variables.
func NewWSGateway(log *slog.Logger, hub *Hub, sessions Sessions, opts ...GatewayOption) *WSGateway {
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		hub = NewHub(log)
	}

	g := &WSGateway{log: log, hub: hub, sessions: sessions}

	// NOTE: InsecureSkipVerify is a dev-only knob that disables websocket.Accept's origin check.
	g.devInsecure = envBoolWS("LIVECHECK_WS_DEV_INSECURE", false)

	g.originRequired = envBoolWS("LIVECHECK_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSVWS("LIVECHECK_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)

	// websocket.Accept enforces its own origin policy (same-host ok, cross-origin
	// needs OriginPatterns). Derive the patterns from the allowlist so both agree.
	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(g.allowedOrigins)

	g.writeTimeout = envDurationWS("LIVECHECK_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.readIdleTimeout = envDurationWS("LIVECHECK_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)

	g.sendQueueSize = envIntWS("LIVECHECK_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}

	g.heartbeatEvery = envDurationWS("LIVECHECK_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDurationWS("LIVECHECK_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	g.rateEvents = envIntWS("LIVECHECK_WS_RATE_EVENTS", rateLimitEvents)
	g.rateWindow = envDurationWS("LIVECHECK_WS_RATE_WINDOW", rateLimitWindow)
	g.controlEvents = envIntWS("LIVECHECK_WS_CONTROL_RATE_EVENTS", controlRateEvents)
	g.controlWindow = envDurationWS("LIVECHECK_WS_CONTROL_RATE_WINDOW", controlRateWindow)

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an HTTP request to a WebSocket session and runs the session loop.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	sessionID, err := NewSessionID(time.Now().UTC())
	if err != nil {
		g.log.Error("ws.session_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "session id")
		return
	}
	client := NewClient(sessionID, g.sendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	g.hub.Register(client)
	if err := g.sessions.Connect(sessionID); err != nil {
		g.hub.Unregister(client)
		g.log.Error("ws.session.connect.fail", "session_id", sessionID, "err", err)
		_ = conn.Close(websocket.StatusInternalError, "session")
		return
	}
	g.log.Info("ws.connect", "session_id", sessionID, "remote", r.RemoteAddr)

	var closeOnce sync.Once

	// shutdown is idempotent. It does NOT close client.Send.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)
	ctl := NewRateLimiter(g.controlEvents, g.controlWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "session_id", sessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "session_id", sessionID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	// Frames and verify_start/verify_stop share one queue and one worker, so
	// the session sees them in arrival order. Only frames are ever dropped.
	events := make(chan sessionEvent, eventQueueSize)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				g.dispatch(ctx, sessionID, ev)
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "session_id", sessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.trySendError(client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(client, "bad_envelope", err.Error())
			continue readLoop
		}

		switch env.Type {
		case v1.TypeHello:
			if err := g.onHello(client, env); err != nil {
				g.trySendError(client, "hello_failed", err.Error())
				shutdown(websocket.StatusPolicyViolation, "hello failed")
				break readLoop
			}

		case v1.TypeVerifyStart, v1.TypeVerifyStop:
			if !ctl.Allow(now) {
				g.trySendError(client, "rate_limited", "too many control events")
				continue readLoop
			}
			select {
			case events <- sessionEvent{kind: env.Type}:
			case <-ctx.Done():
				break readLoop
			}

		case v1.TypeVideoFrame:
			g.onFrame(sessionID, env, events)

		default:
			g.trySendError(client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone
	<-workerDone

	g.hub.Unregister(client)

	dctx, dcancel := context.WithTimeout(context.WithoutCancel(r.Context()), wsDisconnectTimeout)
	g.sessions.Disconnect(dctx, sessionID)
	dcancel()

	g.log.Info("ws.disconnect", "session_id", sessionID)

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// ---- handlers ----

func (g *WSGateway) onHello(client *Client, env v1.Envelope) error {
	if len(env.Payload) > 0 {
		var p v1.HelloPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
	}

	ackPayload, _ := json.Marshal(v1.HelloAckPayload{SessionID: client.SessionID})
	ack := newEnvelope(v1.TypeHelloAck, ackPayload, time.Now().UTC())

	if !client.TrySend(ack) {
		return errors.New("backpressure: hello_ack")
	}
	return nil
}

// sessionEvent is one queued lifecycle event for the connection's session.
type sessionEvent struct {
	kind  string // v1.TypeVideoFrame, v1.TypeVerifyStart or v1.TypeVerifyStop
	frame []byte
}

func (g *WSGateway) dispatch(ctx context.Context, sessionID string, ev sessionEvent) {
	switch ev.kind {
	case v1.TypeVideoFrame:
		g.sessions.Frame(ctx, sessionID, ev.frame)
	case v1.TypeVerifyStart:
		// Refusals are reported to the client as a verification_result by the registry.
		if err := g.sessions.Start(ctx, sessionID); err != nil {
			g.log.Debug("ws.verify_start.refused", "session_id", sessionID, "err", err)
		}
	case v1.TypeVerifyStop:
		g.sessions.Stop(ctx, sessionID)
	}
}

// onFrame queues a decoded frame behind any pending events. Anything that is
// not a JPEG data URL is ignored, and a frame is dropped once frameQueueSize
// events are already waiting. Only the read loop enqueues, so the length
// check cannot race with another sender.
func (g *WSGateway) onFrame(sessionID string, env v1.Envelope, events chan<- sessionEvent) {
	var p v1.VideoFramePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.metrics.Frame("malformed", 0)
		return
	}
	payload, ok := parseDataURL(p.Image)
	if !ok {
		g.metrics.Frame("malformed", 0)
		return
	}

	if len(events) >= frameQueueSize {
		g.metrics.Frame("queue_full", 0)
		g.log.Debug("ws.frame.dropped", "session_id", sessionID)
		return
	}
	events <- sessionEvent{kind: v1.TypeVideoFrame, frame: payload}
}

// parseDataURL extracts the bytes of a base64 JPEG data URL.
func parseDataURL(s string) ([]byte, bool) {
	if !strings.HasPrefix(s, jpegDataURLPrefix) {
		return nil, false
	}
	b, err := base64.StdEncoding.DecodeString(s[len(jpegDataURLPrefix):])
	if err != nil || len(b) == 0 {
		return nil, false
	}
	return b, true
}

// ---- send helpers ----

func (g *WSGateway) trySendError(client *Client, code, msg string) {
	p, _ := json.Marshal(v1.ErrorPayload{Code: code, Message: msg})
	env := newEnvelope(v1.TypeError, p, time.Now().UTC())
	_ = client.TrySend(env)
}

// ---- envelope IO ----

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) v1.Envelope {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      NewEnvelopeID(ts),
		TS:      ts,
		Payload: payload,
	}
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, err
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host using filepath.Match patterns.
	// We keep this strict: only hosts extracted from allowlist are accepted.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	slices.Sort(out)
	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
