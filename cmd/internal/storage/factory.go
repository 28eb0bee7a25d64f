package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config selects and configures a Store backend.
type Config struct {
	Backend string
	Dir     string
	Redis   RedisConfig
}

// Open builds the Store named by cfg.Backend. Unknown backends are an error;
// a misconfigured Redis is not silently replaced with memory.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (Store, error) {
	if log == nil {
		log = slog.Default()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendFile:
		st, err := NewFileStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		log.Info("storage.open", "backend", BackendFile, "dir", st.Dir())
		return st, nil

	case BackendMemory:
		log.Info("storage.open", "backend", BackendMemory)
		return NewMemoryStore(), nil

	case BackendRedis:
		st, err := NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		log.Info("storage.open", "backend", BackendRedis, "addr", cfg.Redis.Addr)
		return st, nil

	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}
