package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"van-dispatch/internal/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, logger.NewDiscard()), mr
}

func TestLockOwnership(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	ok, err := c.AcquireLock(ctx, KeyRouteGenerationLock, "first", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: %v %v", ok, err)
	}
	ok, err = c.AcquireLock(ctx, KeyRouteGenerationLock, "second", time.Minute)
	if err != nil || ok {
		t.Fatalf("second acquire must fail while lock is held: %v %v", ok, err)
	}

	// чужой владелец не снимает блокировку
	if err := c.ReleaseLock(ctx, KeyRouteGenerationLock, "second"); err != nil {
		t.Fatalf("release by other owner: %v", err)
	}
	if got, _ := mr.Get(KeyRouteGenerationLock); got != "first" {
		t.Fatalf("lock owner after foreign release: %q", got)
	}

	if err := c.ReleaseLock(ctx, KeyRouteGenerationLock, "first"); err != nil {
		t.Fatalf("release by owner: %v", err)
	}
	if mr.Exists(KeyRouteGenerationLock) {
		t.Fatal("lock still present after owner release")
	}
	ok, err = c.AcquireLock(ctx, KeyRouteGenerationLock, "second", time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire after release: %v %v", ok, err)
	}
}

func TestLockExpires(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	if ok, _ := c.AcquireLock(ctx, KeyRouteGenerationLock, "crashed", 30*time.Second); !ok {
		t.Fatal("acquire failed")
	}
	if ttl := mr.TTL(KeyRouteGenerationLock); ttl != 30*time.Second {
		t.Fatalf("lock ttl: %v", ttl)
	}
	mr.FastForward(31 * time.Second)

	if ok, _ := c.AcquireLock(ctx, KeyRouteGenerationLock, "next", 30*time.Second); !ok {
		t.Fatal("expired lock must be acquirable")
	}
}

func TestSetGetDelete(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	type payload struct {
		VanNumber string `json:"van_number"`
		Stops     int    `json:"stops"`
	}
	if err := c.Set(ctx, "vans:date:2024-06-03", payload{"VAN-01", 4}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if mr.TTL("vans:date:2024-06-03") != time.Minute {
		t.Fatal("ttl not applied")
	}

	var got payload
	if err := c.Get(ctx, "vans:date:2024-06-03", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.VanNumber != "VAN-01" || got.Stops != 4 {
		t.Fatalf("unexpected value: %+v", got)
	}

	if n, err := c.Size(ctx); err != nil || n != 1 {
		t.Fatalf("Size: %d %v", n, err)
	}
	if err := c.Delete(ctx, "vans:date:2024-06-03"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.Get(ctx, "vans:date:2024-06-03", &got); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if err := c.Delete(ctx); err != nil {
		t.Fatalf("Delete without keys: %v", err)
	}
	if err := c.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}
}

func TestHealthReportsOutage(t *testing.T) {
	c, mr := newTestClient(t)
	mr.Close()
	if err := c.Health(context.Background()); err == nil {
		t.Fatal("expected error when Redis is down")
	}
}
