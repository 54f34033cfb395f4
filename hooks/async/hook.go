// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    SweepEvery: 60, // one sweep summary per ~hour at the default interval
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	store, _ := gencache.New(gencache.Options{
//	    DefaultCapacity: 10_000,
//	    Hooks:           hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/gencache"
)

// Hooks forwards events to inner on a small worker pool. When the queue is
// full the event is dropped and counted; the store never blocks on a hook.
type Hooks struct {
	inner   gencache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ gencache.Hooks = (*Hooks)(nil)

func New(inner gencache.Hooks, workers, qlen int) *Hooks {
	if inner == nil {
		inner = gencache.NopHooks{}
	}
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events arriving after
// Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded because the queue was full
// or the hooks were closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) DisposeFailed(ns, key string, err error) {
	h.try(func() { h.inner.DisposeFailed(ns, key, err) })
}
func (h *Hooks) HandlerPanicked(ns, key string, r gencache.RemovalReason, rec any) {
	h.try(func() { h.inner.HandlerPanicked(ns, key, r, rec) })
}
func (h *Hooks) Evicted(ns string, n, capacity int) {
	h.try(func() { h.inner.Evicted(ns, n, capacity) })
}
func (h *Hooks) SweepCompleted(gen uint64, scanned, expired int, took time.Duration) {
	h.try(func() { h.inner.SweepCompleted(gen, scanned, expired, took) })
}
func (h *Hooks) SweepSkipped() { h.try(func() { h.inner.SweepSkipped() }) }
