// Package app wires the livecheck server runtime: config, logging, storage,
// the verification core, HTTP routes and the realtime gateway.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"livecheck/cmd/internal/api"
	"livecheck/cmd/internal/metrics"
	"livecheck/cmd/internal/outcome"
	"livecheck/cmd/internal/realtime"
	"livecheck/cmd/internal/storage"
	"livecheck/cmd/internal/verify"
	"livecheck/cmd/internal/vision"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// App is the livecheck server runtime: it owns the HTTP server, the sweeper
// and every long-lived resource they share.
type App struct {
	cfg Config
	log Logger

	metrics *metrics.Metrics

	blobs    storage.Store
	outcomes outcome.Store
	dbPool   *pgxpool.Pool

	vision   *vision.Client
	sessions *verify.Registry
	sweeper  *verify.Sweeper

	ws  *realtime.WSGateway
	api *api.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := cfg.Verify.Validate(); err != nil {
		return nil, err
	}

	m := metrics.New()

	vc, err := vision.NewClient(cfg.InferenceURL,
		vision.WithLogger(log),
		vision.WithHTTPClient(&http.Client{Timeout: nonZeroDuration(cfg.InferenceTimeout, 5*time.Second)}),
	)
	if err != nil {
		return nil, err
	}

	blobs, err := storage.Open(ctx, cfg.Storage, log)
	if err != nil {
		return nil, err
	}

	outcomes, pool, err := newOutcomeStore(ctx, cfg, log)
	if err != nil {
		_ = blobs.Close()
		return nil, err
	}

	artifacts := verify.NewArtifactRegistry(log, blobs, vc, cfg.Verify, verify.WithArtifactMetrics(m))
	engine := verify.NewEngine(log, vision.StdDecoder{MaxPixels: cfg.MaxFramePixels}, vc, vc, vc, cfg.Verify)

	hub := realtime.NewHub(log)
	sessions := verify.NewRegistry(log, cfg.Verify, artifacts, engine,
		verify.WithNotifier(hub),
		verify.WithOutcomeRecorder(outcomes),
		verify.WithRegistryMetrics(m),
	)

	return &App{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		blobs:    blobs,
		outcomes: outcomes,
		dbPool:   pool,
		vision:   vc,
		sessions: sessions,
		sweeper:  verify.NewSweeper(log, artifacts, cfg.Verify.SweepInterval, m),
		ws:       realtime.NewWSGateway(log, hub, sessions, realtime.WithGatewayMetrics(m)),
		api:      api.NewHandler(log, api.Config{MaxUploadBytes: cfg.MaxUploadBytes}, sessions, outcomes, cfg.Verify.ArtifactTTL),
	}, nil
}

// Handler returns the full middleware-wrapped route tree.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, routes{
		log:     a.log,
		cfg:     a.cfg,
		dbPool:  a.dbPool,
		vision:  a.vision,
		ws:      a.ws,
		api:     a.api,
		metrics: a.metrics,
	})

	var h http.Handler = mux
	h = WithCORS(h, a.cfg, a.log)
	h = WithSecurityHeaders(h)
	return WithRequestLogging(h, a.log)
}

// Run starts the HTTP server and the sweeper and blocks until ctx is cancelled
// or either fails. Resources are released before it returns.
func (a *App) Run(ctx context.Context) error {
	// Hijacked websocket connections outlive Shutdown; cancelling their base
	// context ends every session loop.
	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelBase)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		base := runtimeBaseURL(a.cfg.HTTPAddr)
		a.log.Info("server.start",
			"addr", a.cfg.HTTPAddr,
			"http", base,
			"ws", wsBaseURL(base)+"/ws",
			"db_enabled", a.dbPool != nil,
			"storage", a.cfg.Storage.Backend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		return a.sweeper.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	err := g.Wait()
	a.close(context.WithoutCancel(ctx))
	a.log.Info("server.stopped")
	return err
}

// close reclaims every resident artifact and releases stores.
func (a *App) close(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	rep := a.sessions.Artifacts().Purge(ctx)
	a.log.Info("artifacts.purge", "reclaimed", rep.Reclaimed, "storage_errors", rep.StorageErrors)

	if err := a.blobs.Close(); err != nil {
		a.log.Error("storage.close.fail", "err", err)
	}
	if err := a.outcomes.Close(); err != nil {
		a.log.Error("outcomes.close.fail", "err", err)
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return "ws://" + strings.TrimPrefix(base, "//")
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String()
}
