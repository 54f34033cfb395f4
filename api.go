package gencache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/gencache/genclock"
)

// Factory produces a value (and its expiration) for GetOrAdd on a miss.
type Factory func(ctx context.Context) (value any, exp Expiration, err error)

// Store is the process-wide cache: namespaced tables bounded by capacity,
// a shared generation clock and one background sweeper.
// All methods are safe for concurrent use.
type Store interface {
	// Get returns the value for key and refreshes its generation.
	Get(namespace, key string) (any, bool)
	// Set inserts or replaces key. A superseded entry is reported with
	// reason Replaced and disposed.
	Set(namespace, key string, value any, exp Expiration, opts ...SetOption) error
	// Remove takes key out and hands its value to the caller without disposing it.
	Remove(namespace, key string) (any, bool)
	// Delete takes key out and disposes its value.
	Delete(namespace, key string) bool
	// Contains reports presence without touching the entry.
	Contains(namespace, key string) bool
	// GetOrAdd returns the cached value or stores the one produced by fn.
	// Concurrent misses for the same key share one fn call.
	GetOrAdd(ctx context.Context, namespace, key string, fn Factory) (any, error)

	Len(namespace string) int
	Namespaces() []string
	// Clear drops every entry of namespace; returns how many were dropped.
	Clear(namespace string) int

	// Configure sets the capacity enforced on every Set into namespace.
	Configure(namespace string, capacity int) error
	// EnforceCapacity runs one capacity pass against maxEntries; returns evictions.
	EnforceCapacity(namespace string, maxEntries int) (int, error)
	// RegisterRemovalHandler appends h; handlers run in registration order
	// and cannot be unregistered.
	RegisterRemovalHandler(h RemovalHandler)

	// Sweep runs one expiration cycle now. False if one was already running.
	Sweep() (SweepResult, bool)
	SweepState() SweepState
	// Generation is the clock's current value.
	Generation() uint64
	Stats() Stats

	Close(ctx context.Context) error
}

// Options configure a Store. Everything is optional; zero values pick defaults.
// Options are read once by New and never consulted again.
type Options struct {
	SweepInterval     time.Duration  // 0 => 1m; < 0 => no background sweeper (call Sweep)
	DefaultCapacity   int            // per namespace; 0 => unbounded
	Capacities        map[string]int // per-namespace overrides; values must be > 0
	DefaultExpiration Expiration     // used when Set gets a zero Expiration; zero => Never
	Shards            int            // lock stripes per namespace; 0 => 16, rounded up to a power of two

	// LowWaterRatio sets how far a capacity pass shrinks an over-full
	// namespace: down to max(1, floor(capacity*ratio)) entries. The default
	// 0.5 halves it, so a namespace with capacity 10 that reaches 11 entries
	// drops to 5. Use 1 to evict only down to capacity.
	LowWaterRatio float64

	Clock  genclock.Clock   // nil => genclock.NewLocal()
	Now    func() time.Time // nil => time.Now
	Logger Logger           // nil => NopLogger
	Hooks  Hooks            // nil => NopHooks
}

// SetOption tweaks a single Set call.
type SetOption func(*setOptions)

type setOptions struct {
	checkExpired bool
}

// WithoutExpiryCheck stores the entry even if its policy has already
// elapsed. Use it when the caller guarantees freshness and wants to skip the
// re-validation; the next sweep still reaps it.
func WithoutExpiryCheck() SetOption {
	return func(o *setOptions) { o.checkExpired = false }
}

// Stats is a point-in-time view of store counters.
type Stats struct {
	Hits          uint64
	Misses        uint64
	Sets          uint64
	Removed       uint64
	Deleted       uint64
	Expired       uint64
	Evicted       uint64
	Replaced      uint64
	Cleared       uint64
	DisposeErrors uint64
	Sweeps        uint64
	Generation    uint64
	Entries       int
	Namespaces    int
}

// HitRate is Hits/(Hits+Misses); 0 with no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func New(opts Options) (Store, error) {
	return newStore(opts)
}

// GetAs is Get with a type assertion. A value of another type is a miss.
func GetAs[V any](s Store, namespace, key string) (V, bool) {
	v, ok := s.Get(namespace, key)
	if !ok {
		var zero V
		return zero, false
	}
	tv, ok := v.(V)
	return tv, ok
}
