package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"livecheck/cmd/internal/verify"
)

func solidImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 80, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestStdDecoder(t *testing.T) {
	t.Parallel()

	payload := pngBytes(t, solidImage(40, 30))

	img, err := StdDecoder{}.Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 40, 30) {
		t.Fatalf("bounds=%v", img.Bounds())
	}

	if _, err := (StdDecoder{MaxPixels: 100}).Decode(payload); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("err=%v want ErrFrameTooLarge", err)
	}
	if _, err := (StdDecoder{}).Decode(nil); !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("err=%v want ErrEmptyFrame", err)
	}
	if _, err := (StdDecoder{}).Decode([]byte("not an image")); err == nil {
		t.Fatalf("expected error for garbage payload")
	}
}

// sidecar is a scripted inference service.
func sidecar(t *testing.T, routes map[string]http.HandlerFunc) *Client {
	t.Helper()

	mux := http.NewServeMux()
	for path, h := range routes {
		mux.HandleFunc(path, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_ExtractTemplate(t *testing.T) {
	t.Parallel()

	c := sidecar(t, map[string]http.HandlerFunc{
		"POST /v1/templates": func(w http.ResponseWriter, r *http.Request) {
			var req imageRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_json"})
				return
			}
			raw, _ := base64.StdEncoding.DecodeString(req.Image)
			switch string(raw) {
			case "none":
				writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Code: "no_face"})
			case "crowd":
				writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Code: "multi_face", Faces: 4})
			case "crash":
				writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "model_error"})
			default:
				writeJSON(w, http.StatusOK, templateResponse{Template: base64.StdEncoding.EncodeToString([]byte("tmpl:" + string(raw)))})
			}
		},
	})
	ctx := context.Background()

	tmpl, err := c.ExtractTemplate(ctx, []byte("alice"))
	if err != nil || string(tmpl) != "tmpl:alice" {
		t.Fatalf("tmpl=%q err=%v", tmpl, err)
	}

	if _, err := c.ExtractTemplate(ctx, []byte("none")); !errors.Is(err, verify.ErrNoFace) {
		t.Fatalf("err=%v want ErrNoFace", err)
	}

	_, err = c.ExtractTemplate(ctx, []byte("crowd"))
	var mf *verify.MultiFaceError
	if !errors.As(err, &mf) || mf.Count != 4 {
		t.Fatalf("err=%v want MultiFaceError{4}", err)
	}

	_, err = c.ExtractTemplate(ctx, []byte("crash"))
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusInternalServerError || se.Code != "model_error" {
		t.Fatalf("err=%v want StatusError 500", err)
	}
	if errors.Is(err, verify.ErrValidation) {
		t.Fatalf("server errors must not look like validation errors")
	}
}

func TestClient_LocateOffsetsBoxes(t *testing.T) {
	t.Parallel()

	c := sidecar(t, map[string]http.HandlerFunc{
		"POST /v1/faces": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, facesResponse{Faces: []faceBox{
				{X0: 1, Y0: 2, X1: 11, Y1: 12},
				{X0: 20, Y0: 20, X1: 30, Y1: 30},
			}})
		},
	})

	frame := solidImage(100, 100).SubImage(image.Rect(50, 50, 100, 100))
	boxes, err := c.Locate(context.Background(), frame)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	want := []image.Rectangle{image.Rect(51, 52, 61, 62), image.Rect(70, 70, 80, 80)}
	if len(boxes) != len(want) || boxes[0] != want[0] || boxes[1] != want[1] {
		t.Fatalf("boxes=%v want %v", boxes, want)
	}
}

func TestClient_CompareAndAssess(t *testing.T) {
	t.Parallel()

	thresholds := make(chan float64, 1)
	c := sidecar(t, map[string]http.HandlerFunc{
		"POST /v1/compare": func(w http.ResponseWriter, r *http.Request) {
			var req compareRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			thresholds <- req.Threshold
			writeJSON(w, http.StatusOK, compareResponse{Match: req.Template != "", Distance: 0.31})
		},
		"POST /v1/liveness": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, livenessResponse{Live: true, Score: 0.93})
		},
	})
	ctx := context.Background()
	face := solidImage(20, 20)

	ok, err := c.Compare(ctx, verify.Template("t"), face, 0.5)
	if err != nil || !ok {
		t.Fatalf("match=%v err=%v", ok, err)
	}
	if got := <-thresholds; got != 0.5 {
		t.Fatalf("threshold=%v want 0.5", got)
	}

	lv, err := c.Assess(ctx, face)
	if err != nil || !lv.IsLive || lv.Score != 0.93 {
		t.Fatalf("liveness=%+v err=%v", lv, err)
	}
}

func TestClient_Ping(t *testing.T) {
	t.Parallel()

	healthy := sidecar(t, map[string]http.HandlerFunc{
		"GET /healthz": func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) },
	})
	if err := healthy.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	down := sidecar(t, map[string]http.HandlerFunc{
		"GET /healthz": func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
	})
	var se *StatusError
	if err := down.Ping(context.Background()); !errors.As(err, &se) || se.Status != http.StatusServiceUnavailable {
		t.Fatalf("err=%v want StatusError 503", err)
	}
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	t.Parallel()

	for _, u := range []string{"", "   ", "ftp://x", "://nope"} {
		if _, err := NewClient(u); err == nil {
			t.Fatalf("NewClient(%q) should fail", u)
		}
	}
}
