package gencache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/gencache/genclock"
)

type counters struct {
	hits, misses, sets                 atomic.Uint64
	removed, deleted, expired, evicted atomic.Uint64
	replaced, cleared, disposeErrors   atomic.Uint64
}

type store struct {
	log   Logger
	hooks Hooks
	now   func() time.Time
	clock genclock.Clock

	defaultCapacity int
	capacities      map[string]int
	defaultExp      Expiration
	lowWaterRatio   float64
	shards          int

	mu     sync.RWMutex
	tables map[string]*table

	regMu    sync.Mutex
	handlers atomic.Pointer[[]RemovalHandler]

	sweeper *sweeper
	loads   singleflight.Group
	stats   counters
	closed  atomic.Bool
}

var _ Store = (*store)(nil)

func newStore(opts Options) (*store, error) {
	var errs []error
	if opts.DefaultCapacity < 0 {
		errs = append(errs, &CapacityError{Namespace: "*", Capacity: opts.DefaultCapacity})
	}
	for ns, c := range opts.Capacities {
		if ns == "" {
			errs = append(errs, ErrNamespaceRequired)
			continue
		}
		if c <= 0 {
			errs = append(errs, &CapacityError{Namespace: ns, Capacity: c})
		}
	}
	if opts.LowWaterRatio < 0 || opts.LowWaterRatio > 1 {
		errs = append(errs, fmt.Errorf("low water ratio %v outside (0,1]", opts.LowWaterRatio))
	}
	if opts.Shards < 0 {
		errs = append(errs, fmt.Errorf("shards %d is negative", opts.Shards))
	}
	if len(errs) > 0 {
		return nil, errors.Join(append([]error{ErrInvalidOptions}, errs...)...)
	}

	s := &store{
		tables:          make(map[string]*table),
		defaultCapacity: opts.DefaultCapacity,
		capacities:      make(map[string]int, len(opts.Capacities)),
		now:             opts.Now,
	}
	for ns, c := range opts.Capacities {
		s.capacities[ns] = c
	}

	// defaults
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	s.clock = coalesce[genclock.Clock](opts.Clock, genclock.NewLocal())
	s.lowWaterRatio = coalesce(opts.LowWaterRatio, defaultLowWaterRatio)
	s.shards = coalesce(opts.Shards, defaultShards)
	if s.now == nil {
		s.now = time.Now
	}
	s.defaultExp = opts.DefaultExpiration
	if s.defaultExp.IsZero() {
		s.defaultExp = Never()
	}

	s.sweeper = &sweeper{
		clock:    s.clock,
		interval: coalesce(opts.SweepInterval, defaultSweepInterval),
		now:      s.now,
		tables:   s.snapshotTables,
		retire:   s.retire,
		log:      s.log,
		hooks:    s.hooks,
	}
	s.sweeper.start()
	return s, nil
}

func (s *store) Close(_ context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	s.sweeper.stop()
	s.log.Debug("store closed", Fields{"gen": s.clock.Current()})
	return nil
}

func (s *store) Get(ns, key string) (any, bool) {
	t := s.lookup(ns)
	if t == nil {
		s.stats.misses.Add(1)
		return nil, false
	}
	e, ok := t.get(key, s.now(), s.clock.Current())
	if !ok {
		s.stats.misses.Add(1)
		return nil, false
	}
	s.stats.hits.Add(1)
	return e.value, true
}

func (s *store) Contains(ns, key string) bool {
	t := s.lookup(ns)
	if t == nil {
		return false
	}
	_, ok := t.peek(key)
	return ok
}

func (s *store) Set(ns, key string, value any, exp Expiration, opts ...SetOption) error {
	if ns == "" {
		return ErrNamespaceRequired
	}
	if s.closed.Load() {
		return ErrClosed
	}
	o := setOptions{checkExpired: true}
	for _, opt := range opts {
		opt(&o)
	}
	if exp.IsZero() {
		exp = s.defaultExp
	}

	now := s.now()
	t := s.table(ns)
	e := newEntry(ns, key, value, exp, now, s.clock.Current())

	if o.checkExpired && e.HasExpired(now) {
		// nothing worth caching; whatever was there is stale too
		s.log.Debug("set skipped (already expired)", Fields{"ns": ns, "key": key, "exp": exp.String()})
		if old := t.remove(key); old != nil {
			s.retire(old, Expired, true)
		}
		return nil
	}

	s.stats.sets.Add(1)
	if old := t.set(e); old != nil {
		s.retire(old, Replaced, !sameValue(old.value, value))
	}
	if c := t.limit(); c > 0 {
		s.evict(t, c)
	}
	return nil
}

func (s *store) Remove(ns, key string) (any, bool) {
	t := s.lookup(ns)
	if t == nil {
		return nil, false
	}
	e := t.remove(key)
	if e == nil {
		return nil, false
	}
	s.retire(e, Removed, false)
	return e.value, true
}

func (s *store) Delete(ns, key string) bool {
	t := s.lookup(ns)
	if t == nil {
		return false
	}
	e := t.remove(key)
	if e == nil {
		return false
	}
	s.retire(e, Deleted, true)
	return true
}

func (s *store) GetOrAdd(ctx context.Context, ns, key string, fn Factory) (any, error) {
	if fn == nil {
		return nil, ErrNilFactory
	}
	if ns == "" {
		return nil, ErrNamespaceRequired
	}
	if v, ok := s.Get(ns, key); ok {
		return v, nil
	}

	// The leader's context must not fail the followers when it goes away.
	loadCtx := context.WithoutCancel(ctx)
	ch := s.loads.DoChan(ns+"\x00"+key, func() (any, error) {
		if t := s.lookup(ns); t != nil {
			if e, ok := t.get(key, s.now(), s.clock.Current()); ok {
				return e.value, nil
			}
		}
		v, exp, err := fn(loadCtx)
		if err != nil {
			return nil, err
		}
		if err := s.Set(ns, key, v, exp); err != nil {
			return nil, err
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.Val, r.Err
	}
}

func (s *store) Len(ns string) int {
	t := s.lookup(ns)
	if t == nil {
		return 0
	}
	return t.len()
}

func (s *store) Namespaces() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.tables))
	for ns := range s.tables {
		out = append(out, ns)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (s *store) Clear(ns string) int {
	t := s.lookup(ns)
	if t == nil {
		return 0
	}
	entries := t.clear()
	for _, e := range entries {
		s.retire(e, Cleared, true)
	}
	if len(entries) > 0 {
		s.log.Debug("namespace cleared", Fields{"ns": ns, "removed": len(entries)})
	}
	return len(entries)
}

func (s *store) Configure(ns string, capacity int) error {
	if ns == "" {
		return ErrNamespaceRequired
	}
	if capacity <= 0 {
		return &CapacityError{Namespace: ns, Capacity: capacity}
	}
	s.table(ns).capacity.Store(int64(capacity))
	return nil
}

func (s *store) EnforceCapacity(ns string, maxEntries int) (int, error) {
	if maxEntries <= 0 {
		return 0, &CapacityError{Namespace: ns, Capacity: maxEntries}
	}
	t := s.lookup(ns)
	if t == nil {
		return 0, nil
	}
	return s.evict(t, maxEntries), nil
}

func (s *store) RegisterRemovalHandler(h RemovalHandler) {
	if h == nil {
		return
	}
	s.regMu.Lock()
	defer s.regMu.Unlock()
	var next []RemovalHandler
	if cur := s.handlers.Load(); cur != nil {
		next = make([]RemovalHandler, len(*cur), len(*cur)+1)
		copy(next, *cur)
	}
	next = append(next, h)
	s.handlers.Store(&next)
}

func (s *store) Sweep() (SweepResult, bool) { return s.sweeper.run() }

func (s *store) SweepState() SweepState { return s.sweeper.State() }

func (s *store) Generation() uint64 { return s.clock.Current() }

func (s *store) Stats() Stats {
	st := Stats{
		Hits:          s.stats.hits.Load(),
		Misses:        s.stats.misses.Load(),
		Sets:          s.stats.sets.Load(),
		Removed:       s.stats.removed.Load(),
		Deleted:       s.stats.deleted.Load(),
		Expired:       s.stats.expired.Load(),
		Evicted:       s.stats.evicted.Load(),
		Replaced:      s.stats.replaced.Load(),
		Cleared:       s.stats.cleared.Load(),
		DisposeErrors: s.stats.disposeErrors.Load(),
		Sweeps:        s.sweeper.cycles.Load(),
		Generation:    s.clock.Current(),
	}
	for _, t := range s.snapshotTables() {
		st.Entries += t.len()
		st.Namespaces++
	}
	return st
}

// evict runs a capacity pass on t and reports what it removed.
func (s *store) evict(t *table, capacity int) int {
	n := t.checkCapacity(capacity, lowWaterMark(capacity, s.lowWaterRatio), s.clock.Current(), func(e *Entry) {
		s.retire(e, Evicted, true)
	})
	if n > 0 {
		s.log.Debug("capacity pass evicted entries", Fields{"ns": t.ns, "evicted": n, "capacity": capacity})
		s.hooks.Evicted(t.ns, n, capacity)
	}
	return n
}

// retire finishes a removal won by the caller: handlers first, then the
// payload's release hook. It runs exactly once per removed entry.
func (s *store) retire(e *Entry, reason RemovalReason, dispose bool) {
	s.count(reason)
	s.notify(e, reason)
	if !dispose {
		return
	}
	if err := e.Dispose(); err != nil {
		s.stats.disposeErrors.Add(1)
		s.log.Warn("dispose failed", Fields{"ns": e.ns, "key": e.key, "reason": reason.String(), "err": err})
		s.hooks.DisposeFailed(e.ns, e.key, err)
	}
}

func (s *store) count(reason RemovalReason) {
	switch reason {
	case Removed:
		s.stats.removed.Add(1)
	case Deleted:
		s.stats.deleted.Add(1)
	case Expired:
		s.stats.expired.Add(1)
	case Evicted:
		s.stats.evicted.Add(1)
	case Replaced:
		s.stats.replaced.Add(1)
	case Cleared:
		s.stats.cleared.Add(1)
	}
}

func (s *store) notify(e *Entry, reason RemovalReason) {
	hs := s.handlers.Load()
	if hs == nil {
		return
	}
	for _, h := range *hs {
		s.invoke(h, e, reason)
	}
}

func (s *store) invoke(h RemovalHandler, e *Entry, reason RemovalReason) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("removal handler panicked", Fields{"ns": e.ns, "key": e.key, "reason": reason.String(), "panic": r})
			s.hooks.HandlerPanicked(e.ns, e.key, reason, r)
		}
	}()
	h(e, reason)
}

func (s *store) lookup(ns string) *table {
	s.mu.RLock()
	t := s.tables[ns]
	s.mu.RUnlock()
	return t
}

// table returns the namespace table, creating it on first use.
func (s *store) table(ns string) *table {
	if t := s.lookup(ns); t != nil {
		return t
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[ns]; ok {
		return t
	}
	capacity, ok := s.capacities[ns]
	if !ok {
		capacity = s.defaultCapacity
	}
	t := newTable(ns, s.shards, capacity)
	s.tables[ns] = t
	return t
}

func (s *store) snapshotTables() []*table {
	s.mu.RLock()
	out := make([]*table, 0, len(s.tables))
	for _, t := range s.tables {
		out = append(out, t)
	}
	s.mu.RUnlock()
	return out
}

// sameValue reports whether a and b are the identical comparable value, in
// which case a replacement must not release the payload it still holds.
func sameValue(a, b any) (same bool) {
	if a == nil || b == nil {
		return false
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}
