package storage

import (
	"PShare/global"
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// PSHARE_TEST_REDIS_ADDR=localhost:6379 enables these tests.
const envRedisAddr = "PSHARE_TEST_REDIS_ADDR"

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv(envRedisAddr)
	if addr == "" {
		t.Skipf("%s not set", envRedisAddr)
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisPresenceCountsConnections(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	user := fmt.Sprintf("u%d", time.Now().UnixNano())
	t.Cleanup(func() { rdb.Del(ctx, global.PresenceKey(user)) })
	p := NewRedisPresence(rdb, time.Minute)

	if first, err := p.Online(ctx, user, "c1"); err != nil || !first {
		t.Fatalf("first Online = %v, %v", first, err)
	}
	if first, _ := p.Online(ctx, user, "c2"); first {
		t.Fatalf("second connection reported first")
	}
	if left, _ := p.Offline(ctx, user, "c1"); left != 1 {
		t.Fatalf("remaining = %d, want 1", left)
	}
	if on, _ := p.IsOnline(ctx, user); !on {
		t.Fatalf("user should still be online")
	}
	if left, _ := p.Offline(ctx, user, "c2"); left != 0 {
		t.Fatalf("remaining = %d, want 0", left)
	}
	if on, _ := p.IsOnline(ctx, user); on {
		t.Fatalf("user should be offline")
	}
}

func TestRedisPresenceRefreshOutlivesTTL(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	user := fmt.Sprintf("u%d", time.Now().UnixNano())
	key := global.PresenceKey(user)
	t.Cleanup(func() { rdb.Del(ctx, key) })
	p := NewRedisPresence(rdb, 2*time.Second)

	if _, err := p.Online(ctx, user, "c1"); err != nil {
		t.Fatalf("Online: %v", err)
	}
	// keep renewing past two TTLs, as the gateway's ping hook does
	for i := 0; i < 5; i++ {
		time.Sleep(time.Second)
		if err := p.Refresh(ctx, user, "c1"); err != nil {
			t.Fatalf("Refresh: %v", err)
		}
	}
	if on, err := p.IsOnline(ctx, user); err != nil || !on {
		t.Fatalf("live connection expired: online=%v err=%v", on, err)
	}
	if ttl := rdb.TTL(ctx, key).Val(); ttl <= 0 || ttl > 2*time.Second {
		t.Fatalf("ttl after refresh = %v", ttl)
	}

	// without renewal the entry goes away
	time.Sleep(2500 * time.Millisecond)
	if on, _ := p.IsOnline(ctx, user); on {
		t.Fatalf("entry survived its TTL")
	}
}

func TestMemoryPresenceRefreshIsHarmless(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPresence()
	if err := p.Refresh(ctx, "u1", "c1"); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if on, _ := p.IsOnline(ctx, "u1"); on {
		t.Fatalf("refresh of an unknown connection made the user online")
	}
}
