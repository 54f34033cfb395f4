package gencache

import (
	"strconv"
	"sync"
	"testing"
)

func put(tb *table, key string, gen uint64) *Entry {
	e := newEntry(tb.ns, key, key, Never(), t0, gen)
	tb.set(e)
	return e
}

func TestTableSetGetRemove(t *testing.T) {
	tb := newTable("ns", 4, 0)

	if _, ok := tb.get("a", t0, 1); ok {
		t.Fatalf("empty table hit")
	}
	a := put(tb, "a", 1)
	got, ok := tb.get("a", t0, 7)
	if !ok || got != a {
		t.Fatalf("get a: ok=%v same=%v", ok, got == a)
	}
	if a.Generation() != 7 {
		t.Fatalf("get should touch generation, got %d", a.Generation())
	}
	if tb.len() != 1 {
		t.Fatalf("len=%d want 1", tb.len())
	}

	if e := tb.remove("a"); e != a {
		t.Fatalf("remove returned a different entry")
	}
	if e := tb.remove("a"); e != nil {
		t.Fatalf("second remove should be nil")
	}
	if tb.len() != 0 {
		t.Fatalf("len=%d want 0", tb.len())
	}
}

func TestTableSetReturnsSuperseded(t *testing.T) {
	tb := newTable("ns", 4, 0)
	a1 := put(tb, "a", 1)
	a2 := newEntry("ns", "a", "v2", Never(), t0, 1)

	if old := tb.set(a2); old != a1 {
		t.Fatalf("set should return the superseded entry")
	}
	if tb.len() != 1 {
		t.Fatalf("replacement changed len to %d", tb.len())
	}
}

func TestTableRemoveEntryIgnoresReplacement(t *testing.T) {
	tb := newTable("ns", 4, 0)
	old := put(tb, "k", 1)
	fresh := put(tb, "k", 1)

	if tb.removeEntry(old) {
		t.Fatalf("removeEntry removed a replacement")
	}
	if e, ok := tb.peek("k"); !ok || e != fresh {
		t.Fatalf("replacement should still be stored")
	}
	if !tb.removeEntry(fresh) {
		t.Fatalf("removeEntry should remove the live entry")
	}
	if tb.removeEntry(fresh) {
		t.Fatalf("removeEntry must succeed only once")
	}
}

func TestTableShardCountRoundsToPow2(t *testing.T) {
	for in, want := range map[int]int{1: 1, 3: 4, 16: 16, 17: 32} {
		if got := len(newTable("ns", in, 0).shards); got != want {
			t.Fatalf("shards(%d)=%d want %d", in, got, want)
		}
	}
}

// ==============================
// Capacity
// ==============================

func TestCheckCapacityEvictsLowestGenerationsFirst(t *testing.T) {
	tb := newTable("ns", 4, 0)
	for g := uint64(1); g <= 5; g++ {
		put(tb, "g"+strconv.FormatUint(g, 10), g)
	}

	var evicted []string
	n := tb.checkCapacity(3, 3, 5, func(e *Entry) { evicted = append(evicted, e.Key()) })
	if n != 2 || len(evicted) != 2 {
		t.Fatalf("evicted n=%d keys=%v, want 2", n, evicted)
	}
	for _, k := range []string{"g1", "g2"} {
		if _, ok := tb.peek(k); ok {
			t.Fatalf("%s (oldest) should be evicted", k)
		}
	}
	for _, k := range []string{"g3", "g4", "g5"} {
		if _, ok := tb.peek(k); !ok {
			t.Fatalf("%s should survive", k)
		}
	}
}

func TestCheckCapacityTieEvictsToLowWater(t *testing.T) {
	tb := newTable("ns", 4, 0)
	for _, k := range []string{"A", "B", "C"} {
		put(tb, k, 1)
	}

	seen := map[string]int{}
	n := tb.checkCapacity(2, lowWaterMark(2, defaultLowWaterRatio), 1, func(e *Entry) { seen[e.Key()]++ })
	if n != 2 || tb.len() != 1 {
		t.Fatalf("evicted=%d len=%d, want 2 and 1", n, tb.len())
	}
	for k, c := range seen {
		if c != 1 {
			t.Fatalf("%s notified %d times", k, c)
		}
	}
}

func TestCheckCapacityWithinBoundIsNoop(t *testing.T) {
	tb := newTable("ns", 4, 0)
	put(tb, "a", 1)
	put(tb, "b", 1)

	called := false
	if n := tb.checkCapacity(2, 1, 1, func(*Entry) { called = true }); n != 0 || called {
		t.Fatalf("within capacity should not evict (n=%d called=%v)", n, called)
	}
	if n := tb.checkCapacity(0, 0, 1, func(*Entry) { called = true }); n != 0 || called {
		t.Fatalf("capacity 0 means unbounded")
	}
}

func TestCheckCapacityTreatsFutureStampsAsCurrent(t *testing.T) {
	tb := newTable("ns", 4, 0)
	put(tb, "old", 1)
	put(tb, "touched-late", 9) // stamped after the pass read the clock
	put(tb, "cur", 3)

	n := tb.checkCapacity(2, 2, 3, func(*Entry) {})
	if n != 1 {
		t.Fatalf("evicted=%d want 1", n)
	}
	if _, ok := tb.peek("old"); ok {
		t.Fatalf("oldest generation should go first")
	}
}

func TestLowWaterMark(t *testing.T) {
	cases := []struct {
		capacity int
		ratio    float64
		want     int
	}{
		{2, 0.5, 1},
		{1, 0.5, 1},
		{10, 0.5, 5},
		{10, 1, 10},
		{10, 0.25, 2},
		{0, 0.5, 0},
	}
	for _, c := range cases {
		if got := lowWaterMark(c.capacity, c.ratio); got != c.want {
			t.Fatalf("lowWaterMark(%d, %v)=%d want %d", c.capacity, c.ratio, got, c.want)
		}
	}
}

func TestTableConcurrentAccess(t *testing.T) {
	tb := newTable("ns", 8, 0)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				k := strconv.Itoa(i % 64)
				switch (w + i) % 3 {
				case 0:
					tb.set(newEntry("ns", k, i, Never(), t0, uint64(w)))
				case 1:
					tb.get(k, t0, uint64(i))
				default:
					tb.remove(k)
				}
			}
		}(w)
	}
	wg.Wait()

	if got, want := tb.len(), len(tb.snapshot()); got != want {
		t.Fatalf("count drifted: len=%d actual=%d", got, want)
	}
}
