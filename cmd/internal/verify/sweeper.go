package verify

import (
	"context"
	"log/slog"
	"time"

	"livecheck/cmd/internal/metrics"
)

// Sweeper periodically reclaims expired artifacts.
type Sweeper struct {
	log      *slog.Logger
	reg      *ArtifactRegistry
	metrics  *metrics.Metrics
	interval time.Duration
}

// NewSweeper builds a sweeper that runs reg.Sweep every interval.
func NewSweeper(log *slog.Logger, reg *ArtifactRegistry, interval time.Duration, m *metrics.Metrics) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{log: log, reg: reg, metrics: m, interval: interval}
}

// Run blocks until ctx is done. It never returns a non-nil error; the
// signature fits errgroup.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info("sweep.start", "interval", s.interval.String(), "ttl", s.reg.TTL().String())

	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweep.stop")
			return nil
		case <-t.C:
			s.Once(ctx)
		}
	}
}

// Once runs a single cycle.
func (s *Sweeper) Once(ctx context.Context) SweepReport {
	start := time.Now()
	rep := s.reg.Sweep(ctx)
	d := time.Since(start)
	s.metrics.Sweep(d)

	if rep.Expired > 0 || rep.StorageErrors > 0 {
		s.log.Info("sweep.cycle",
			"scanned", rep.Scanned,
			"expired", rep.Expired,
			"reclaimed", rep.Reclaimed,
			"storage_errors", rep.StorageErrors,
			"duration_ms", d.Milliseconds(),
		)
	} else {
		s.log.Debug("sweep.cycle", "scanned", rep.Scanned)
	}
	return rep
}
