package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"livecheck/cmd/internal/storage"
	"livecheck/cmd/internal/verify"
)

func TestRuntimeBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "explicit localhost", in: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v4", in: "0.0.0.0:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v6", in: "[::]:9090", want: "http://127.0.0.1:9090"},
		{name: "ipv6 host", in: "[2001:db8::1]:9090", want: "http://[2001:db8::1]:9090"},
		{name: "port only", in: ":8080", want: "http://127.0.0.1:8080"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := runtimeBaseURL(tc.in)
			if got != tc.want {
				t.Fatalf("runtimeBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
			}
		})
	}
}

func TestWSBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "http://127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
		{in: "https://livecheck.example.com", want: "wss://livecheck.example.com"},
		{in: "127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
	}

	for _, tc := range cases {
		got := wsBaseURL(tc.in)
		if got != tc.want {
			t.Fatalf("wsBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func testAppConfig(inferenceURL string) Config {
	return Config{
		HTTPAddr:                  "127.0.0.1:0",
		MaxUploadBytes:            1 << 20,
		InferenceURL:              inferenceURL,
		InferenceTimeout:          time.Second,
		MaxFramePixels:            1024 * 1024,
		ReadinessRequireInference: true,
		Storage:                   storage.Config{Backend: storage.BackendMemory},
		Verify:                    verify.DefaultConfig(),
	}
}

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.close(context.Background()) })
	return a
}

func TestApp_Routes(t *testing.T) {
	sidecar := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer sidecar.Close()

	a := newTestApp(t, testAppConfig(sidecar.URL))
	h := a.Handler()

	cases := []struct {
		path   string
		status int
		body   string
	}{
		{path: "/healthz", status: http.StatusOK, body: "ok"},
		{path: "/readyz", status: http.StatusOK, body: "ready"},
		{path: "/metrics", status: http.StatusOK, body: "livecheck_"},
		{path: "/sessions/unknown", status: http.StatusNotFound},
		{path: "/sessions/unknown/outcomes", status: http.StatusOK, body: `"outcomes":[]`},
	}

	for _, tc := range cases {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rr.Code != tc.status {
			t.Fatalf("GET %s status=%d want=%d body=%s", tc.path, rr.Code, tc.status, rr.Body.String())
		}
		if tc.body != "" && !strings.Contains(rr.Body.String(), tc.body) {
			t.Fatalf("GET %s body=%q missing %q", tc.path, rr.Body.String(), tc.body)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Fatalf("GET %s missing security headers", tc.path)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Fatalf("GET %s missing request id", tc.path)
		}
	}
}

func TestApp_ReadyzFailures(t *testing.T) {
	sidecar := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer sidecar.Close()

	cfg := testAppConfig(sidecar.URL)
	rr := httptest.NewRecorder()
	newTestApp(t, cfg).Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "inference") {
		t.Fatalf("sidecar down: status=%d body=%q", rr.Code, rr.Body.String())
	}

	cfg.ReadinessRequireDB = true
	rr = httptest.NewRecorder()
	newTestApp(t, cfg).Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "db not configured") {
		t.Fatalf("db required: status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := testAppConfig("http://127.0.0.1:1")
	cfg.Verify.SweepInterval = cfg.Verify.ArtifactTTL
	if _, err := New(context.Background(), cfg, log); !errors.Is(err, verify.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}

	cfg = testAppConfig("ftp://sidecar")
	if _, err := New(context.Background(), cfg, log); err == nil {
		t.Fatalf("expected error for unsupported inference scheme")
	}

	cfg = testAppConfig("http://127.0.0.1:1")
	cfg.Storage.Backend = "tape"
	if _, err := New(context.Background(), cfg, log); err == nil {
		t.Fatalf("expected error for unknown storage backend")
	}
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	a := newTestApp(t, testAppConfig("http://127.0.0.1:1"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
