package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"livecheck/cmd/internal/verify"
)

const (
	defaultTimeout  = 5 * time.Second
	maxResponseBody = 1 << 20
	cropJPEGQuality = 90
)

// StatusError is returned for non-2xx sidecar responses that carry no
// recognized error code.
type StatusError struct {
	Path   string
	Status int
	Code   string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("vision: %s: status %d (%s)", e.Path, e.Status, e.Code)
	}
	return fmt.Sprintf("vision: %s: status %d", e.Path, e.Status)
}

// Client talks JSON to the inference sidecar. It implements verify.Matcher,
// verify.FaceLocator and verify.LivenessClassifier.
type Client struct {
	log  *slog.Logger
	base *url.URL
	http *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient builds a client for the sidecar at baseURL (e.g. http://127.0.0.1:8500).
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("vision: base url is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("vision: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("vision: unsupported scheme %q", u.Scheme)
	}

	c := &Client{
		log:  slog.Default(),
		base: u,
		http: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type imageRequest struct {
	Image string `json:"image"`
}

type templateResponse struct {
	Template string `json:"template"`
}

type faceBox struct {
	X0 int `json:"x0"`
	Y0 int `json:"y0"`
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
}

type facesResponse struct {
	Faces []faceBox `json:"faces"`
}

type compareRequest struct {
	Template  string  `json:"template"`
	Image     string  `json:"image"`
	Threshold float64 `json:"threshold"`
}

type compareResponse struct {
	Match    bool    `json:"match"`
	Distance float64 `json:"distance"`
}

type livenessResponse struct {
	Live  bool    `json:"live"`
	Score float64 `json:"score"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Faces   int    `json:"faces"`
}

// ExtractTemplate sends the raw upload; the sidecar rejects images that do
// not contain exactly one face with 422.
func (c *Client) ExtractTemplate(ctx context.Context, img []byte) (verify.Template, error) {
	var resp templateResponse
	if err := c.post(ctx, "/v1/templates", imageRequest{Image: base64.StdEncoding.EncodeToString(img)}, &resp); err != nil {
		return nil, err
	}
	tmpl, err := base64.StdEncoding.DecodeString(resp.Template)
	if err != nil {
		return nil, fmt.Errorf("vision: decode template: %w", err)
	}
	return verify.Template(tmpl), nil
}

// Locate returns face boxes in frame coordinates, in the order the sidecar reported them.
func (c *Client) Locate(ctx context.Context, frame image.Image) ([]image.Rectangle, error) {
	enc, err := encodeJPEG(frame)
	if err != nil {
		return nil, err
	}

	var resp facesResponse
	if err := c.post(ctx, "/v1/faces", imageRequest{Image: enc}, &resp); err != nil {
		return nil, err
	}

	// The sidecar sees a zero-origin image.
	off := frame.Bounds().Min
	boxes := make([]image.Rectangle, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		boxes = append(boxes, image.Rect(f.X0, f.Y0, f.X1, f.Y1).Add(off))
	}
	return boxes, nil
}

// Compare asks the sidecar whether face matches tmpl within threshold.
func (c *Client) Compare(ctx context.Context, tmpl verify.Template, face image.Image, threshold float64) (bool, error) {
	enc, err := encodeJPEG(face)
	if err != nil {
		return false, err
	}

	var resp compareResponse
	req := compareRequest{
		Template:  base64.StdEncoding.EncodeToString(tmpl),
		Image:     enc,
		Threshold: threshold,
	}
	if err := c.post(ctx, "/v1/compare", req, &resp); err != nil {
		return false, err
	}
	return resp.Match, nil
}

// Assess runs the anti-spoofing classifier on crop.
func (c *Client) Assess(ctx context.Context, crop image.Image) (verify.Liveness, error) {
	enc, err := encodeJPEG(crop)
	if err != nil {
		return verify.Liveness{}, err
	}

	var resp livenessResponse
	if err := c.post(ctx, "/v1/liveness", imageRequest{Image: enc}, &resp); err != nil {
		return verify.Liveness{}, err
	}
	return verify.Liveness{IsLive: resp.Live, Score: resp.Score}, nil
}

// Ping checks the sidecar's health endpoint. Used by /readyz.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/healthz"), nil)
	if err != nil {
		return err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("vision: ping: %w", err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxResponseBody))

	if res.StatusCode/100 != 2 {
		return &StatusError{Path: "/healthz", Status: res.StatusCode}
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	return c.base.JoinPath(path).String()
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("vision: encode %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("vision: %s: %w", path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("vision: %s: read body: %w", path, err)
	}

	c.log.Debug("vision.call", "path", path, "status", res.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if res.StatusCode/100 != 2 {
		return decodeError(path, res.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("vision: %s: decode response: %w", path, err)
	}
	return nil
}

// decodeError maps the sidecar's face-count rejections onto the verify
// validation errors; everything else becomes a StatusError.
func decodeError(path string, status int, raw []byte) error {
	var e errorResponse
	_ = json.Unmarshal(raw, &e)

	if status == http.StatusUnprocessableEntity {
		switch e.Code {
		case "no_face":
			return verify.ErrNoFace
		case "multi_face":
			return &verify.MultiFaceError{Count: e.Faces}
		}
	}
	return &StatusError{Path: path, Status: status, Code: e.Code}
}

func encodeJPEG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: cropJPEGQuality}); err != nil {
		return "", fmt.Errorf("vision: encode jpeg: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
