package app

import (
	"context"
	"os/signal"
	"syscall"
)

// Run is the serve entrypoint used by cmd/livecheck.
// It returns an error instead of calling os.Exit to keep defers effective and lint clean.
func Run(parent context.Context) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
