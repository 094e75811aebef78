package cache

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemory_SetGetDelete(t *testing.T) {
	c := NewMemory("t")
	ctx := context.Background()

	if err := c.Set(ctx, "k1", "v1", time.Minute); err != nil {
		t.Fatalf("Set err: %v", err)
	}
	v, err := c.Get(ctx, "k1")
	if err != nil || v != "v1" {
		t.Fatalf("Get = (%q, %v), want (v1, nil)", v, err)
	}

	if err := c.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete err: %v", err)
	}
	if _, err := c.Get(ctx, "k1"); !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	c := NewMemory("")
	ctx := context.Background()

	if err := c.Set(ctx, "short", "v", 10*time.Millisecond); err != nil {
		t.Fatalf("Set err: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, err := c.Get(ctx, "short"); !IsNotFound(err) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestMemory_IncrCountsAndExpires(t *testing.T) {
	c := NewMemory("")
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := c.Incr(ctx, "hits", 20*time.Millisecond)
		if err != nil || n != want {
			t.Fatalf("Incr = (%d, %v), want (%d, nil)", n, err, want)
		}
	}

	time.Sleep(50 * time.Millisecond)
	if n, err := c.Incr(ctx, "hits", 20*time.Millisecond); err != nil || n != 1 {
		t.Fatalf("after expiry Incr = (%d, %v), want (1, nil)", n, err)
	}
}

func TestMemory_TakeSingleWinner(t *testing.T) {
	c := NewMemory("")
	ctx := context.Background()

	if err := c.Set(ctx, "code", "payload", time.Minute); err != nil {
		t.Fatalf("Set err: %v", err)
	}

	const n = 32
	var wg sync.WaitGroup
	wins := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, err := c.Take(ctx, "code"); err == nil {
				wins <- v
			}
		}()
	}
	wg.Wait()
	close(wins)

	got := 0
	for v := range wins {
		if v != "payload" {
			t.Fatalf("winner got %q, want payload", v)
		}
		got++
	}
	if got != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", got)
	}
}
