package storage

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

// Enabled when LIVECHECK_TEST_REDIS_ADDR is set so plain "go test ./..." needs no Redis.

func TestRedisStore_Contract(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("LIVECHECK_TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("LIVECHECK_TEST_REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := NewRedisStore(ctx, RedisConfig{
		Addr:   addr,
		Prefix: "livecheck:test:" + time.Now().UTC().Format("150405.000000") + ":",
		KeyTTL: time.Minute,
	})
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	testStoreContract(t, st)

	h, err := st.Put(ctx, []byte("payload"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	b, err := st.Get(ctx, h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(b) != "payload" {
		t.Fatalf("Get=%q", b)
	}

	ttl, err := st.client.TTL(ctx, st.key(h)).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected key ttl %v", ttl)
	}
}
