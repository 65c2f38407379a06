package ttlcache

import (
	"fmt"
	"testing"
	"time"
)

func TestGetMissingReturnsFalse(t *testing.T) {
	c := New[string, int](time.Minute)
	if v, ok := c.Get("nope"); ok || v != 0 {
		t.Fatalf("Get(missing) = (%d, %v), want (0, false)", v, ok)
	}
}

func TestExpiryOnAccess(t *testing.T) {
	c := New[string, string](10 * time.Millisecond)
	c.Set("k", "v")
	if _, ok := c.Get("k"); !ok {
		t.Fatal("fresh entry must be present")
	}
	time.Sleep(25 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expired entry must be absent")
	}
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	c := New[string, int](40 * time.Millisecond)
	c.Set("old", 1)
	time.Sleep(60 * time.Millisecond)
	c.Set("young", 2)

	removed := c.Sweep()
	if removed != 1 {
		t.Fatalf("Sweep removed %d, want 1", removed)
	}
	if _, ok := c.Get("old"); ok {
		t.Fatal("old entry survived sweep")
	}
	if v, ok := c.Get("young"); !ok || v != 2 {
		t.Fatal("young entry must survive sweep")
	}
}

func TestEnsureCreatesOnce(t *testing.T) {
	c := New[string, int](time.Minute)
	calls := 0
	mk := func() int { calls++; return 7 }
	if got := c.Ensure("k", mk); got != 7 {
		t.Fatalf("Ensure = %d", got)
	}
	if got := c.Ensure("k", mk); got != 7 {
		t.Fatalf("Ensure = %d", got)
	}
	if calls != 1 {
		t.Fatalf("mk called %d times, want 1", calls)
	}
}

func TestTakeIsSingleUse(t *testing.T) {
	c := New[string, int](time.Minute)
	c.Set("k", 9)
	if v, ok := c.Take("k"); !ok || v != 9 {
		t.Fatalf("Take = (%d, %v)", v, ok)
	}
	if _, ok := c.Take("k"); ok {
		t.Fatal("second Take must miss")
	}
}

func TestSizeCapEvictsOldest(t *testing.T) {
	c := NewBounded[string, int](time.Minute, 3)
	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}
	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}
	for _, gone := range []string{"k0", "k1"} {
		if _, ok := c.Get(gone); ok {
			t.Fatalf("%s should have been evicted", gone)
		}
	}
	if v, ok := c.Get("k4"); !ok || v != 4 {
		t.Fatal("newest entry must survive")
	}
}
