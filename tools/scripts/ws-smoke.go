// Package main provides a CI-friendly WebSocket smoke test for livecheck.
//
// Without -image it checks the handshake and that verify_start without a
// reference is answered with an error result. With -image (and optionally
// -frame) it uploads the reference for the session, starts a run, streams the
// frame and waits for a terminal verification_result.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	v1 "livecheck/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const (
	maxReadBytes  = 1 << 20 // 1MiB
	frameInterval = 200 * time.Millisecond
)

type smokeClient struct {
	name      string
	conn      *websocket.Conn
	sessionID string

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		wsURL     = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		uploadURL = flag.String("upload", "", "Upload URL (default: derived from -url)")
		origin    = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		image     = flag.String("image", "", "Reference JPEG/PNG to upload (optional)")
		frame     = flag.String("frame", "", "JPEG frame to stream after start (default: the reference image)")
		expect    = flag.String("expect", "", "Expected terminal status (success|failed|error); empty accepts any")
		timeout   = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		runWait   = flag.Duration("run-timeout", 20*time.Second, "How long to stream frames before giving up")
		verbose   = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()

	c := mustConnect(root, "A", *wsURL, *origin, *timeout)
	defer closeWS(c.conn)

	if *verbose {
		fmt.Printf("connected: session=%s origin=%q\n", c.sessionID, *origin)
	}

	if *image == "" {
		mustStart(root, c, *timeout)
		res := c.mustReadResult(root, *timeout)
		if res.Status != v1.StatusError {
			fatalf("start without reference: got status=%q want=%q", res.Status, v1.StatusError)
		}
		fmt.Printf("OK: session=%s start_without_reference=%q\n", c.sessionID, res.Message)
		return
	}

	target := *uploadURL
	if target == "" {
		target = deriveUploadURL(*wsURL)
	}
	refBytes := mustReadFile(*image)
	mustUpload(root, target, *origin, c.sessionID, filepath.Base(*image), refBytes, *timeout)
	if *verbose {
		fmt.Printf("uploaded: %s -> %s\n", *image, target)
	}

	frameBytes := refBytes
	if *frame != "" {
		frameBytes = mustReadFile(*frame)
	}
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(frameBytes)

	mustStart(root, c, *timeout)
	c.mustReadUntilType(root, v1.TypeVerificationStatus, *timeout, nil)

	res := c.streamUntilResult(root, dataURL, *runWait)
	mustWriteWithTimeout(root, c.conn, newEnvelope(c.name, v1.TypeVerifyStop, nil), *timeout)

	if *expect != "" && res.Status != *expect {
		fatalf("result status=%q want=%q (message=%q)", res.Status, *expect, res.Message)
	}
	fmt.Printf("OK: session=%s status=%s message=%q display_name=%q\n", c.sessionID, res.Status, res.Message, res.DisplayName)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	assertSubprotocol(resp, v1.Subprotocol)

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	mustWriteWithTimeout(parent, conn, newEnvelope(name, v1.TypeHello, v1.HelloPayload{}), stepTimeout)

	ack := c.mustReadUntilType(parent, v1.TypeHelloAck, stepTimeout, nil)

	var p v1.HelloAckPayload
	if err := json.Unmarshal(ack.Payload, &p); err != nil {
		fatalf("unmarshal hello_ack payload (%s): %v", name, err)
	}
	if strings.TrimSpace(p.SessionID) == "" {
		fatalf("hello_ack missing session_id (%s)", name)
	}
	c.sessionID = p.SessionID

	return c
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got == "" {
		return
	}
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if err := env.Validate(); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration, skipTypes map[string]struct{}) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			if skipTypes != nil {
				if _, ok := skipTypes[env.Type]; ok {
					continue
				}
			}
			fatalf("unexpected envelope type (%s): got=%q want=%q", c.name, env.Type, wantType)
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}

func newEnvelope(name, typ string, payload any) v1.Envelope {
	env := v1.Envelope{
		V:    v1.Version,
		Type: typ,
		ID:   fmt.Sprintf("%s-%s-%d", name, typ, time.Now().UnixNano()),
		TS:   time.Now().UTC(),
	}
	if payload != nil {
		env.Payload = mustJSON(payload)
	}
	return env
}

func mustStart(parent context.Context, c *smokeClient, stepTimeout time.Duration) {
	mustWriteWithTimeout(parent, c.conn, newEnvelope(c.name, v1.TypeVerifyStart, nil), stepTimeout)
}

func (c *smokeClient) mustReadResult(parent context.Context, stepTimeout time.Duration) v1.VerificationResultPayload {
	env := c.mustReadUntilType(parent, v1.TypeVerificationResult, stepTimeout, nil)

	var p v1.VerificationResultPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal verification_result payload (%s): %v", c.name, err)
	}
	return p
}

// streamUntilResult sends the frame on a fixed cadence until the server
// reports a terminal result or wait elapses.
func (c *smokeClient) streamUntilResult(parent context.Context, dataURL string, wait time.Duration) v1.VerificationResultPayload {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	t := time.NewTicker(frameInterval)
	defer t.Stop()

	frame := v1.VideoFramePayload{Image: dataURL}
	for {
		select {
		case <-ctx.Done():
			fatalf("no verification_result within %s (%s)", wait, c.name)
		case err := <-c.errCh:
			fatalf("connection error while streaming (%s): %v", c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while streaming (%s)", c.name)
			}
			switch env.Type {
			case v1.TypeVerificationResult:
				var p v1.VerificationResultPayload
				if err := json.Unmarshal(env.Payload, &p); err != nil {
					fatalf("unmarshal verification_result payload (%s): %v", c.name, err)
				}
				return p
			case v1.TypeError:
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
		case <-t.C:
			mustWriteWithTimeout(ctx, c.conn, newEnvelope(c.name, v1.TypeVideoFrame, frame), frameInterval*5)
		}
	}
}

func deriveUploadURL(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil {
		fatalf("derive upload url: %v", err)
	}
	if u.Scheme == "wss" {
		u.Scheme = "https"
	} else {
		u.Scheme = "http"
	}
	u.Path = "/upload_target"
	u.RawQuery = ""
	return u.String()
}

func mustReadFile(path string) []byte {
	b, err := os.ReadFile(path)
	if err != nil {
		fatalf("read %s: %v", path, err)
	}
	return b
}

type uploadResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func mustUpload(parent context.Context, target, origin, sessionID, filename string, img []byte, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("target_image", filename)
	if err != nil {
		fatalf("build upload: %v", err)
	}
	if _, err := fw.Write(img); err != nil {
		fatalf("build upload: %v", err)
	}
	if err := mw.WriteField("socket_id", sessionID); err != nil {
		fatalf("build upload: %v", err)
	}
	if err := mw.Close(); err != nil {
		fatalf("build upload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &body)
	if err != nil {
		fatalf("build upload request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if strings.TrimSpace(origin) != "" {
		req.Header.Set("Origin", origin)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("upload: %v", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxReadBytes))
	if err != nil {
		fatalf("read upload response: %v", err)
	}
	var p uploadResponse
	if err := json.Unmarshal(raw, &p); err != nil {
		fatalf("upload response not JSON (status %d): %q", res.StatusCode, raw)
	}
	if res.StatusCode != http.StatusOK || p.Status != "success" {
		fatalf("upload rejected: status=%d message=%q", res.StatusCode, p.Message)
	}
}
