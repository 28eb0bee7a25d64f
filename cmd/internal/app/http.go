package app

import (
	"context"
	"net/http"
	"time"

	"livecheck/cmd/internal/api"
	"livecheck/cmd/internal/metrics"
	"livecheck/cmd/internal/realtime"
	"livecheck/cmd/internal/vision"

	"github.com/jackc/pgx/v5/pgxpool"
)

type routes struct {
	log     Logger
	cfg     Config
	dbPool  *pgxpool.Pool
	vision  *vision.Client
	ws      *realtime.WSGateway
	api     *api.Handler
	metrics *metrics.Metrics
}

func registerHTTP(mux *http.ServeMux, rt routes) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		dbEnabled := rt.dbPool != nil
		if rt.cfg.ReadinessRequireDB && !dbEnabled {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if dbEnabled {
			if err := PingDB(r.Context(), rt.dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				rt.log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		if rt.cfg.ReadinessRequireInference && rt.vision != nil {
			pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := rt.vision.Ping(pingCtx)
			cancel()
			if err != nil {
				http.Error(w, "inference not ready", http.StatusServiceUnavailable)
				rt.log.Info("readyz.inference.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	if rt.api != nil {
		rt.api.Register(mux)
	}

	if rt.ws != nil {
		mux.HandleFunc("/ws", rt.ws.HandleWS)
	}
}
