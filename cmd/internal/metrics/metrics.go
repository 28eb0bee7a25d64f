// Package metrics exposes livecheck's Prometheus instruments.
//
// All methods are nil-safe so components can run without metrics in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "livecheck"

// Metrics bundles the collectors registered on one registry.
type Metrics struct {
	reg *prometheus.Registry

	uploads          *prometheus.CounterVec
	artifactsLive    prometheus.Gauge
	artifactsEvicted *prometheus.CounterVec
	storageErrors    *prometheus.CounterVec

	sweeps         prometheus.Counter
	sweepDuration  prometheus.Histogram
	sessionsActive prometheus.Gauge

	runs          *prometheus.CounterVec
	frames        *prometheus.CounterVec
	frameDuration prometheus.Histogram
}

// New creates a fresh registry with process/go collectors and livecheck instruments.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		reg: reg,
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Reference image uploads by result.",
		}, []string{"result"}),
		artifactsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifacts_resident",
			Help:      "Artifacts currently registered.",
		}),
		artifactsEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_evicted_total",
			Help:      "Artifacts removed, by reason (replaced, disconnect, expired, stale, shutdown).",
		}, []string{"reason"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Storage operation failures by operation.",
		}, []string{"op"}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Completed reclamation sweep cycles.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of one sweep cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently tracked by the registry.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Verification runs by terminal outcome.",
		}, []string{"outcome"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames received by evaluation outcome.",
		}, []string{"outcome"}),
		frameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_evaluation_seconds",
			Help:      "Time spent evaluating one frame (decode, locate, match, liveness).",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.uploads,
		m.artifactsLive,
		m.artifactsEvicted,
		m.storageErrors,
		m.sweeps,
		m.sweepDuration,
		m.sessionsActive,
		m.runs,
		m.frames,
		m.frameDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry returns the underlying registry (for tests and extra collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Upload(result string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result).Inc()
}

func (m *Metrics) ArtifactRegistered() {
	if m == nil {
		return
	}
	m.artifactsLive.Inc()
}

func (m *Metrics) ArtifactEvicted(reason string) {
	if m == nil {
		return
	}
	m.artifactsLive.Dec()
	m.artifactsEvicted.WithLabelValues(reason).Inc()
}

func (m *Metrics) StorageError(op string) {
	if m == nil {
		return
	}
	m.storageErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) Sweep(d time.Duration) {
	if m == nil {
		return
	}
	m.sweeps.Inc()
	m.sweepDuration.Observe(d.Seconds())
}

func (m *Metrics) SessionsActive(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

func (m *Metrics) RunFinished(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Frame(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.frameDuration.Observe(d.Seconds())
	}
}
