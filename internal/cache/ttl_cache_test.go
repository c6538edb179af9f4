package cache

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newTestCache(ttl time.Duration) (*TTLCache[string, int], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string, int](ttl)
	c.now = clock.Now
	return c, clock
}

func TestNew(t *testing.T) {
	ttl := 5 * time.Minute
	cache := New[string, int](ttl)

	if cache == nil {
		t.Fatal("New returned nil")
	}
	if cache.TTL() != ttl {
		t.Errorf("TTL mismatch: got %v, want %v", cache.TTL(), ttl)
	}
	if cache.Len() != 0 {
		t.Error("new cache should be empty")
	}
}

func TestSetAndGet(t *testing.T) {
	cache, _ := newTestCache(time.Minute)

	cache.Set("key1", 42)

	value, ok := cache.Get("key1")
	if !ok {
		t.Fatal("Get returned ok=false for existing key")
	}
	if value != 42 {
		t.Errorf("Get returned wrong value: got %d, want 42", value)
	}

	if _, ok := cache.Get("nonexistent"); ok {
		t.Error("Get returned ok=true for non-existent key")
	}
}

func TestEntriesExpireIndependently(t *testing.T) {
	cache, clock := newTestCache(time.Minute)

	cache.Set("old", 1)
	clock.Advance(40 * time.Second)
	cache.Set("new", 2)
	clock.Advance(30 * time.Second)

	if _, ok := cache.Get("old"); ok {
		t.Error("old entry should have expired")
	}
	if v, ok := cache.Get("new"); !ok || v != 2 {
		t.Error("new entry should still be cached")
	}

	if n := cache.Purge(); n != 1 {
		t.Errorf("Purge removed %d entries, want 1", n)
	}
	if cache.Len() != 1 {
		t.Errorf("Len after Purge = %d, want 1", cache.Len())
	}
}

func TestSetRestartsLifetime(t *testing.T) {
	cache, clock := newTestCache(time.Minute)

	cache.Set("k", 1)
	clock.Advance(50 * time.Second)
	cache.Set("k", 2)
	clock.Advance(50 * time.Second)

	if v, ok := cache.Get("k"); !ok || v != 2 {
		t.Errorf("Get = %d, %v; want 2, true", v, ok)
	}
}

func TestZeroTTLDisablesCache(t *testing.T) {
	cache, _ := newTestCache(0)
	cache.Set("k", 1)
	if _, ok := cache.Get("k"); ok {
		t.Error("zero TTL cache should never hit")
	}
}

func TestDeleteAndInvalidate(t *testing.T) {
	cache, _ := newTestCache(time.Minute)
	cache.Set("a", 1)
	cache.Set("b", 2)

	cache.Delete("a")
	if _, ok := cache.Get("a"); ok {
		t.Error("deleted key still present")
	}

	cache.Invalidate()
	if cache.Len() != 0 {
		t.Errorf("Len after Invalidate = %d", cache.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	cache := New[int, int](time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cache.Set(id*100+j, j)
				cache.Get(id*100 + j)
			}
		}(i)
	}
	wg.Wait()

	if cache.Len() != 1000 {
		t.Errorf("Len = %d, want 1000", cache.Len())
	}
}
