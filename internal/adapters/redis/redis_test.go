package redisad_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	redisad "booking_feed/internal/adapters/redis"
)

func newServer(t *testing.T) (*miniredis.Miniredis, *redisad.Cache, *redisad.Locker) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redisad.NewClient(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })
	return mr, redisad.NewCache(c), redisad.NewLocker(c)
}

type entry struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func TestCache_GetSetDel(t *testing.T) {
	mr, cache, _ := newServer(t)
	ctx := context.Background()

	var got entry
	if ok, err := cache.Get(ctx, "k", &got); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}

	if err := cache.Set(ctx, "k", entry{ID: 7, Name: "Harbour"}, 30); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ok, err := cache.Get(ctx, "k", &got); err != nil || !ok || got.Name != "Harbour" {
		t.Fatalf("expected hit, got %+v ok=%v err=%v", got, ok, err)
	}

	mr.FastForward(31 * time.Second)
	if ok, _ := cache.Get(ctx, "k", &got); ok {
		t.Fatalf("expected entry to expire")
	}

	_ = cache.Set(ctx, "k", entry{ID: 1}, 30)
	if err := cache.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if mr.Exists("k") {
		t.Fatalf("key still present after Del")
	}
}

func TestCache_CorruptValue(t *testing.T) {
	mr, cache, _ := newServer(t)
	_ = mr.Set("k", "{not json")

	var got entry
	if _, err := cache.Get(context.Background(), "k", &got); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestLocker_ExclusiveUntilReleased(t *testing.T) {
	mr, _, locker := newServer(t)
	ctx := context.Background()

	release, ok, err := locker.TryAcquire(ctx, "cycle", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := locker.TryAcquire(ctx, "cycle", time.Minute); ok {
		t.Fatalf("second acquire should fail while held")
	}

	release()
	if mr.Exists("cycle") {
		t.Fatalf("lease not released")
	}
	if _, ok, _ := locker.TryAcquire(ctx, "cycle", time.Minute); !ok {
		t.Fatalf("acquire after release should succeed")
	}
}

func TestLocker_StaleReleaseKeepsNewHolder(t *testing.T) {
	mr, _, locker := newServer(t)
	ctx := context.Background()

	staleRelease, ok, _ := locker.TryAcquire(ctx, "cycle", time.Second)
	if !ok {
		t.Fatalf("acquire failed")
	}
	mr.FastForward(2 * time.Second)

	_, ok, _ = locker.TryAcquire(ctx, "cycle", time.Minute)
	if !ok {
		t.Fatalf("acquire after expiry should succeed")
	}

	staleRelease()
	if !mr.Exists("cycle") {
		t.Fatalf("stale release removed the new holder's lease")
	}
}

func TestLocker_ServerDown(t *testing.T) {
	mr, _, locker := newServer(t)
	mr.Close()

	if _, _, err := locker.TryAcquire(context.Background(), "cycle", time.Minute); err == nil {
		t.Fatalf("expected error when redis is unreachable")
	}
}

func TestLocker_RenewsWhileHeld(t *testing.T) {
	mr, _, locker := newServer(t)
	ctx := context.Background()

	release, ok, err := locker.TryAcquire(ctx, "cycle", 600*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	defer release()

	// without renewal these two jumps add up to more than the ttl
	mr.FastForward(400 * time.Millisecond)
	time.Sleep(350 * time.Millisecond) // at least one renewal tick (every 200ms)
	mr.FastForward(400 * time.Millisecond)

	if !mr.Exists("cycle") {
		t.Fatalf("lease expired while its holder was still running")
	}
	if _, ok, _ := locker.TryAcquire(ctx, "cycle", time.Minute); ok {
		t.Fatalf("another holder acquired a renewed lease")
	}
}

func TestLocker_ReleaseStopsRenewal(t *testing.T) {
	mr, _, locker := newServer(t)
	ctx := context.Background()

	release, ok, _ := locker.TryAcquire(ctx, "cycle", 60*time.Millisecond)
	if !ok {
		t.Fatalf("acquire failed")
	}
	release()
	release() // second call is a no-op

	time.Sleep(50 * time.Millisecond)
	if mr.Exists("cycle") {
		t.Fatalf("released lease came back")
	}
}
