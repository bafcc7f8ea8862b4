package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestCacheGetSet(t *testing.T) {
	c := New(4, 0)
	defer c.Close()

	if _, ok := c.Get("missing"); ok {
		t.Fatalf("expected miss")
	}
	c.Set("a", []byte("alpha"))
	got, ok := c.Get("a")
	if !ok || string(got) != "alpha" {
		t.Fatalf("got %q %v", got, ok)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Size != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestCacheCopiesValues(t *testing.T) {
	c := New(4, 0)
	defer c.Close()

	in := []byte("original")
	c.Set("k", in)
	in[0] = 'X'

	out, ok := c.Get("k")
	if !ok || string(out) != "original" {
		t.Fatalf("cached value aliased caller slice: %q", out)
	}
	out[0] = 'Y'
	again, _ := c.Get("k")
	if string(again) != "original" {
		t.Fatalf("returned value aliased cache storage: %q", again)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(3, 0)
	defer c.Close()

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), []byte{byte(i)})
	}
	// Touch k0 so k1 becomes the eviction candidate.
	if _, ok := c.Get("k0"); !ok {
		t.Fatalf("expected k0 present")
	}
	c.Set("k3", []byte{3})

	if _, ok := c.Get("k1"); ok {
		t.Fatalf("expected k1 evicted")
	}
	for _, key := range []string{"k0", "k2", "k3"} {
		if _, ok := c.Get(key); !ok {
			t.Fatalf("expected %s present", key)
		}
	}
	if stats := c.Stats(); stats.Evictions != 1 {
		t.Fatalf("expected 1 eviction, got %d", stats.Evictions)
	}
}

func TestCacheUpdateMovesToFront(t *testing.T) {
	c := New(2, 0)
	defer c.Close()

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	c.Set("a", []byte("3"))
	c.Set("c", []byte("4"))

	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected b evicted")
	}
	got, ok := c.Get("a")
	if !ok || string(got) != "3" {
		t.Fatalf("expected updated a, got %q %v", got, ok)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c := New(4, 10*time.Millisecond)
	defer c.Close()

	c.Set("short", []byte("lived"))
	if _, ok := c.Get("short"); !ok {
		t.Fatalf("expected entry before expiry")
	}
	time.Sleep(25 * time.Millisecond)
	if _, ok := c.Get("short"); ok {
		t.Fatalf("expected entry expired")
	}
	if stats := c.Stats(); stats.Expired != 1 {
		t.Fatalf("expected 1 expired, got %d", stats.Expired)
	}
}

func TestCacheDeleteAndClear(t *testing.T) {
	c := New(4, 0)
	defer c.Close()

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	c.Delete("a")
	c.Delete("a") // absent delete is a no-op
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected a deleted")
	}
	c.Clear()
	if c.Size() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Size())
	}
}

func TestCacheCloseIdempotent(t *testing.T) {
	c := New(4, time.Minute)
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestCacheCloseConcurrent(t *testing.T) {
	c := New(4, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Close(); err != nil {
				t.Errorf("close: %v", err)
			}
		}()
	}
	wg.Wait()
}
