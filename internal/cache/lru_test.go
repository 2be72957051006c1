package cache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestLRUSetGet(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "k1", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	v, err := c.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(v) != "v1" {
		t.Errorf("got %q, want v1", v)
	}

	// Missing key is a nil value, not an error.
	v, err = c.Get(ctx, "missing")
	if err != nil || v != nil {
		t.Errorf("missing key: v=%v err=%v", v, err)
	}
}

func TestLRUTTLExpiry(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "short", []byte("v"), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	v, _ := c.Get(ctx, "short")
	if v != nil {
		t.Errorf("expired entry should be gone, got %q", v)
	}
}

func TestLRUEviction(t *testing.T) {
	c := NewLRUCache(3)
	defer c.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		c.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), time.Minute)
	}

	size, capacity := c.Stats()
	if size != 3 || capacity != 3 {
		t.Errorf("stats = %d/%d, want 3/3", size, capacity)
	}

	// Oldest entries were evicted.
	if v, _ := c.Get(ctx, "k0"); v != nil {
		t.Error("k0 should have been evicted")
	}
	if v, _ := c.Get(ctx, "k4"); v == nil {
		t.Error("k4 should still be cached")
	}
}

func TestLRUDelete(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Minute)
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if v, _ := c.Get(ctx, "k"); v != nil {
		t.Error("deleted key should be gone")
	}

	// Deleting a missing key is a no-op.
	if err := c.Delete(ctx, "missing"); err != nil {
		t.Errorf("delete of missing key failed: %v", err)
	}
}

func TestLRUIncrementCounter(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := c.IncrementCounter(ctx, "card:velocity:42", time.Minute)
		if err != nil {
			t.Fatalf("increment failed: %v", err)
		}
		if got != want {
			t.Errorf("count = %d, want %d", got, want)
		}
	}

	// A fresh window restarts the count.
	got, _ := c.IncrementCounter(ctx, "burst", 10*time.Millisecond)
	if got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
	time.Sleep(30 * time.Millisecond)
	got, _ = c.IncrementCounter(ctx, "burst", 10*time.Millisecond)
	if got != 1 {
		t.Errorf("expired window should restart at 1, got %d", got)
	}
}
