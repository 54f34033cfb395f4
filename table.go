package gencache

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// shard is one lock stripe of a namespace table.
type shard struct {
	mu sync.RWMutex
	m  map[string]*Entry
}

// table maps keys to entries for a single namespace. Keys are striped over
// shards so unrelated keys never contend; capacity passes are serialized per
// table but never hold a shard lock longer than one map operation.
type table struct {
	ns     string
	shards []*shard
	mask   uint64

	count    atomic.Int64
	capacity atomic.Int64 // 0 => unbounded

	evictMu sync.Mutex
}

func newTable(ns string, shards, capacity int) *table {
	n := nextPow2(shards)
	t := &table{
		ns:     ns,
		shards: make([]*shard, n),
		mask:   uint64(n - 1),
	}
	for i := range t.shards {
		t.shards[i] = &shard{m: make(map[string]*Entry)}
	}
	t.capacity.Store(int64(capacity))
	return t
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (t *table) shardFor(key string) *shard {
	return t.shards[xxhash.Sum64String(key)&t.mask]
}

func (t *table) len() int { return int(t.count.Load()) }

func (t *table) limit() int { return int(t.capacity.Load()) }

// get returns the entry for key and records the access.
// Expiration is not checked here; that is the sweeper's job.
func (t *table) get(key string, now time.Time, gen uint64) (*Entry, bool) {
	e, ok := t.peek(key)
	if !ok {
		return nil, false
	}
	e.Touch(now, gen)
	return e, true
}

// peek returns the entry without touching it.
func (t *table) peek(key string) (*Entry, bool) {
	s := t.shardFor(key)
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	return e, ok
}

// set stores e and returns the entry it superseded, if any.
func (t *table) set(e *Entry) (replaced *Entry) {
	s := t.shardFor(e.key)
	s.mu.Lock()
	old, ok := s.m[e.key]
	s.m[e.key] = e
	if !ok {
		t.count.Add(1)
	}
	s.mu.Unlock()
	return old
}

// remove deletes whatever entry is stored under key.
func (t *table) remove(key string) *Entry {
	s := t.shardFor(key)
	s.mu.Lock()
	e, ok := s.m[key]
	if ok {
		delete(s.m, key)
		t.count.Add(-1)
	}
	s.mu.Unlock()
	return e
}

// removeEntry deletes e only if it is still the entry stored under its key.
// A replacement inserted after e was observed is left alone.
func (t *table) removeEntry(e *Entry) bool {
	s := t.shardFor(e.key)
	s.mu.Lock()
	cur, ok := s.m[e.key]
	if ok && cur == e {
		delete(s.m, e.key)
		t.count.Add(-1)
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()
	return false
}

// scanShard appends the entries of shard i to buf.
func (t *table) scanShard(i int, buf []*Entry) []*Entry {
	s := t.shards[i]
	s.mu.RLock()
	for _, e := range s.m {
		buf = append(buf, e)
	}
	s.mu.RUnlock()
	return buf
}

func (t *table) snapshot() []*Entry {
	out := make([]*Entry, 0, t.len())
	for i := range t.shards {
		out = t.scanShard(i, out)
	}
	return out
}

// clear empties the table and hands back everything it held.
func (t *table) clear() []*Entry {
	var out []*Entry
	for _, s := range t.shards {
		s.mu.Lock()
		for _, e := range s.m {
			out = append(out, e)
		}
		n := len(s.m)
		s.m = make(map[string]*Entry)
		t.count.Add(int64(-n))
		s.mu.Unlock()
	}
	return out
}

type victim struct {
	e   *Entry
	gen uint64
}

// checkCapacity brings the table back under capacity once it exceeds it,
// removing the lowest generations first until lowWater entries remain.
// Entries sharing a generation are interchangeable. Stamps above
// currentMaxGen (touched after the pass began) count as current.
// onRemoved runs once for every entry this pass actually removed.
func (t *table) checkCapacity(capacity, lowWater int, currentMaxGen uint64, onRemoved func(*Entry)) int {
	if capacity <= 0 || t.len() <= capacity {
		return 0
	}

	t.evictMu.Lock()
	defer t.evictMu.Unlock()

	if t.len() <= capacity {
		return 0
	}
	if lowWater <= 0 || lowWater > capacity {
		lowWater = capacity
	}

	entries := t.snapshot()
	vs := make([]victim, len(entries))
	for i, e := range entries {
		vs[i] = victim{e: e, gen: min(e.Generation(), currentMaxGen)}
	}
	slices.SortFunc(vs, func(a, b victim) int { return cmp.Compare(a.gen, b.gen) })

	removed := 0
	for _, v := range vs {
		if t.len() <= lowWater {
			break
		}
		if t.removeEntry(v.e) {
			removed++
			onRemoved(v.e)
		}
	}
	return removed
}

// lowWaterMark is the size a capacity pass shrinks a table to.
func lowWaterMark(capacity int, ratio float64) int {
	if capacity <= 0 {
		return 0
	}
	if ratio <= 0 || ratio >= 1 {
		return capacity
	}
	return max(1, int(float64(capacity)*ratio))
}
