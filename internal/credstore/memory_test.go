package credstore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_SetGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	value, found, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !found {
		t.Fatal("expected key to be found")
	}
	if value != "v" {
		t.Errorf("expected %q, got %q", "v", value)
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore()

	_, found, err := store.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if found {
		t.Error("expected missing key")
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	current := time.Now()
	store.now = func() time.Time { return current }

	if err := store.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	if _, found, _ := store.Get(ctx, "k"); !found {
		t.Fatal("expected key before expiry")
	}

	remaining, hasTTL, err := store.TTL(ctx, "k")
	if err != nil {
		t.Fatalf("ttl failed: %v", err)
	}
	if !hasTTL || remaining != time.Minute {
		t.Errorf("expected 1m TTL, got %v (hasTTL=%v)", remaining, hasTTL)
	}

	current = current.Add(2 * time.Minute)
	if _, found, _ := store.Get(ctx, "k"); found {
		t.Error("expected key to have expired")
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Set(ctx, "k", "v", 0)
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, found, _ := store.Get(ctx, "k"); found {
		t.Error("expected key to be gone")
	}
}

func TestMemoryStore_Incr(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := store.Incr(ctx, "counter", 0)
		if err != nil {
			t.Fatalf("incr failed: %v", err)
		}
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}
}

func TestMemoryStore_IncrTTLOnlyOnCreation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	current := time.Now()
	store.now = func() time.Time { return current }

	if _, err := store.Incr(ctx, "counter", time.Minute); err != nil {
		t.Fatalf("incr failed: %v", err)
	}

	// A later increment with a different TTL must not extend the deadline.
	current = current.Add(30 * time.Second)
	if _, err := store.Incr(ctx, "counter", time.Hour); err != nil {
		t.Fatalf("incr failed: %v", err)
	}

	remaining, hasTTL, err := store.TTL(ctx, "counter")
	if err != nil {
		t.Fatalf("ttl failed: %v", err)
	}
	if !hasTTL || remaining != 30*time.Second {
		t.Errorf("expected 30s remaining, got %v (hasTTL=%v)", remaining, hasTTL)
	}
}

func TestMemoryStore_ConcurrentIncr(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const goroutines = 50
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			if _, err := store.Incr(ctx, "counter", 0); err != nil {
				t.Errorf("incr failed: %v", err)
			}
		}()
	}
	wg.Wait()

	value, found, err := store.Get(ctx, "counter")
	if err != nil || !found {
		t.Fatalf("get failed: %v found=%v", err, found)
	}
	if value != "50" {
		t.Errorf("expected 50, got %s", value)
	}
}

func TestMemoryStore_IncrAfterExpiryRestarts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	current := time.Now()
	store.now = func() time.Time { return current }

	if _, err := store.Incr(ctx, "counter", time.Minute); err != nil {
		t.Fatalf("incr failed: %v", err)
	}

	current = current.Add(2 * time.Minute)
	got, err := store.Incr(ctx, "counter", time.Minute)
	if err != nil {
		t.Fatalf("incr failed: %v", err)
	}
	if got != 1 {
		t.Errorf("expected counter to restart at 1, got %d", got)
	}
}
