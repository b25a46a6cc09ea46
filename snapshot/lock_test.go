package snapshot

import (
	"context"
	"testing"
	"time"
)

func lockers(t *testing.T) map[string]Locker {
	_, client := newRedisClient(t)
	return map[string]Locker{
		"local": NewLocalLocker(),
		"redis": NewRedisLocker(client, "lock:", time.Minute),
	}
}

func TestLockerExclusive(t *testing.T) {
	for name, locker := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			release, ok, err := locker.TryLock(ctx, "job")
			if err != nil || !ok {
				t.Fatalf("first TryLock() ok=%v err=%v", ok, err)
			}

			if _, ok, err := locker.TryLock(ctx, "job"); err != nil || ok {
				t.Fatalf("second TryLock() ok=%v err=%v, want false nil", ok, err)
			}

			otherRelease, ok, err := locker.TryLock(ctx, "other-job")
			if err != nil || !ok {
				t.Fatalf("independent name TryLock() ok=%v err=%v", ok, err)
			}
			otherRelease()

			release()
			release()

			again, ok, err := locker.TryLock(ctx, "job")
			if err != nil || !ok {
				t.Fatalf("TryLock() after release ok=%v err=%v", ok, err)
			}
			again()
		})
	}
}

func TestRedisLockerReleaseKeepsForeignLock(t *testing.T) {
	mr, client := newRedisClient(t)
	locker := NewRedisLocker(client, "", time.Second)
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, "job")
	if err != nil || !ok {
		t.Fatalf("TryLock() ok=%v err=%v", ok, err)
	}

	// The lock expires and another process takes it.
	mr.FastForward(2 * time.Second)
	if err := mr.Set("lock:job", "someone-else"); err != nil {
		t.Fatalf("seed foreign lock: %v", err)
	}

	release()

	got, err := mr.Get("lock:job")
	if err != nil || got != "someone-else" {
		t.Errorf("foreign lock = %q, %v; release must not delete it", got, err)
	}
}

func TestRedisLockerTTL(t *testing.T) {
	mr, client := newRedisClient(t)
	locker := NewRedisLocker(client, "locks/", 30*time.Second)

	if _, ok, _ := locker.TryLock(context.Background(), "job"); !ok {
		t.Fatal("TryLock() failed")
	}
	if ttl := mr.TTL("locks/job"); ttl != 30*time.Second {
		t.Errorf("TTL = %v, want 30s", ttl)
	}

	mr.FastForward(31 * time.Second)
	if _, ok, _ := locker.TryLock(context.Background(), "job"); !ok {
		t.Error("lock should be free once its TTL lapses")
	}
}

func TestRedisLockerError(t *testing.T) {
	mr, client := newRedisClient(t)
	locker := NewRedisLocker(client, "", 0)
	mr.Close()

	if _, ok, err := locker.TryLock(context.Background(), "job"); err == nil || ok {
		t.Errorf("TryLock() ok=%v err=%v, want an error", ok, err)
	}
}
