package lease

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisLocker(client, "lease"), mr
}

func TestAcquireAndRelease(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "schedule:abc", 10*time.Second, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if !mr.Exists("lease:schedule:abc") {
		t.Fatal("expected lease key to exist in redis")
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	if mr.Exists("lease:schedule:abc") {
		t.Fatal("expected lease key to be gone after release")
	}
}

func TestAcquireContendedReturnsNotAcquired(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	held, err := locker.Acquire(ctx, "schedule:abc", 10*time.Second, time.Second)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer func() { _ = held.Release(ctx) }()

	start := time.Now()
	_, err = locker.Acquire(ctx, "schedule:abc", 10*time.Second, 300*time.Millisecond)
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
	if waited := time.Since(start); waited < 300*time.Millisecond {
		t.Fatalf("expected at least the wait budget to elapse, waited %v", waited)
	}
}

func TestAcquireAfterExpiry(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	if _, err := locker.Acquire(ctx, "schedule:abc", 500*time.Millisecond, time.Second); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	// TTL lapses without a release; the lock must become free.
	mr.FastForward(time.Second)

	if _, err := locker.Acquire(ctx, "schedule:abc", time.Second, 100*time.Millisecond); err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
}

func TestRenewExtendsOwnLeaseOnly(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "schedule:abc", 500*time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if err := lease.Renew(ctx, 5*time.Second); err != nil {
		t.Fatalf("renew: %v", err)
	}

	mr.FastForward(time.Second)
	if !mr.Exists("lease:schedule:abc") {
		t.Fatal("expected renewed lease to survive the original TTL")
	}

	mr.FastForward(10 * time.Second)
	if err := lease.Renew(ctx, time.Second); err == nil {
		t.Fatal("expected renew on expired lease to fail")
	}
}

func TestReleaseDoesNotTouchForeignLease(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "schedule:abc", 200*time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Expire the original lease and let another holder take over.
	mr.FastForward(time.Second)
	other, err := locker.Acquire(ctx, "schedule:abc", 10*time.Second, time.Second)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if !mr.Exists("lease:schedule:abc") {
		t.Fatal("stale release must not delete another holder's lease")
	}

	_ = other.Release(ctx)
}
