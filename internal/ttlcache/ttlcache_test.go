package ttlcache

import (
	"testing"
	"time"
)

func TestRefreshMapExpiry(t *testing.T) {
	m := NewRefreshMap[string, int](20*time.Millisecond, 0, 0)
	defer m.Close()

	m.Set("a", 1)
	if v, ok := m.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1, got %v ok=%v", v, ok)
	}

	time.Sleep(30 * time.Millisecond)
	if _, ok := m.Get("a"); ok {
		t.Fatal("expected a to have expired")
	}
}

func TestRefreshMapRefreshResetsTTL(t *testing.T) {
	m := NewRefreshMap[string, int](30*time.Millisecond, 0, 0)
	defer m.Close()

	m.Set("a", 1)
	time.Sleep(20 * time.Millisecond)
	m.Set("a", 2) // refresh
	time.Sleep(20 * time.Millisecond)

	v, ok := m.Get("a")
	if !ok || v != 2 {
		t.Fatalf("expected refreshed entry to survive, got %v ok=%v", v, ok)
	}
}

func TestRefreshMapEvictsOldestOnOverflow(t *testing.T) {
	m := NewRefreshMap[string, int](time.Minute, 2, 0)
	defer m.Close()

	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3) // evicts "a"

	if _, ok := m.Get("a"); ok {
		t.Fatal("expected a to be evicted")
	}
	if _, ok := m.Get("b"); !ok {
		t.Fatal("expected b to survive")
	}
	if _, ok := m.Get("c"); !ok {
		t.Fatal("expected c to survive")
	}
}

func TestIdleExpiringDictClearsAsWhole(t *testing.T) {
	d := NewIdleExpiringDict[string, int](20 * time.Millisecond)

	d.Set(map[string]int{"pid": 1})
	if got := d.Get(); len(got) != 1 {
		t.Fatalf("expected 1 entry, got %v", got)
	}

	time.Sleep(30 * time.Millisecond)
	if got := d.Get(); len(got) != 0 {
		t.Fatalf("expected dict to expire as a whole, got %v", got)
	}
}

func TestExpiringFifoPurgesOldEntries(t *testing.T) {
	f := NewExpiringFifo[int](20*time.Millisecond, 0)

	f.Push(1)
	time.Sleep(30 * time.Millisecond)
	f.Push(2)

	got := f.Snapshot()
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected only the fresh entry to survive, got %v", got)
	}
}

func TestExpiringFifoMaxLen(t *testing.T) {
	f := NewExpiringFifo[int](time.Minute, 2)

	f.Push(1)
	f.Push(2)
	f.Push(3)

	got := f.Snapshot()
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("expected last 2 entries, got %v", got)
	}
}

func TestExpiringFifoDrainEmpties(t *testing.T) {
	f := NewExpiringFifo[int](time.Minute, 0)
	f.Push(1)
	f.Push(2)

	drained := f.Drain()
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained items, got %d", len(drained))
	}
	if f.Len() != 0 {
		t.Fatal("expected fifo to be empty after drain")
	}
}
