package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "livecheck:artifact:"

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int

	// Prefix is prepended to every handle to form the key (default "livecheck:artifact:").
	Prefix string

	// KeyTTL is a server-side expiry applied to every key. The sweeper is the
	// primary reclamation path; this only bounds leaks if the process dies.
	// Zero disables key expiry.
	KeyTTL time.Duration
}

// RedisStore keeps uploads in Redis so several replicas can share one upload pool.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore connects and pings Redis (2s budget) before returning.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("storage: empty redis addr")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("storage: redis ping: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.Prefix, cfg.KeyTTL), nil
}

// NewRedisStoreFromClient wraps an existing client. The store takes ownership and closes it on Close.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

func (s *RedisStore) key(handle string) string {
	return s.prefix + handle
}

func (s *RedisStore) Put(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}

	h, err := NewHandle(s.now().UTC())
	if err != nil {
		return "", err
	}

	ok, err := s.client.SetNX(ctx, s.key(h), data, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("storage: redis set: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("storage: redis handle collision: %s", h)
	}
	return h, nil
}

func (s *RedisStore) Exists(ctx context.Context, handle string) (bool, error) {
	if !ValidHandle(handle) {
		return false, nil
	}
	n, err := s.client.Exists(ctx, s.key(handle)).Result()
	if err != nil {
		return false, fmt.Errorf("storage: redis exists: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Delete(ctx context.Context, handle string) error {
	if !ValidHandle(handle) {
		return ErrInvalidHandle
	}
	n, err := s.client.Del(ctx, s.key(handle)).Result()
	if err != nil {
		return fmt.Errorf("storage: redis del: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns the stored bytes for handle.
func (s *RedisStore) Get(ctx context.Context, handle string) ([]byte, error) {
	b, err := s.client.Get(ctx, s.key(handle)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: redis get: %w", err)
	}
	return b, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
