package genclock

import (
	"sync/atomic"
	"time"
)

// First is the generation of a freshly constructed clock.
const First uint64 = 1

// Local keeps the generation in-process (default).
// Reads and increments are plain atomics; the value is only a coarse
// recency signal, so no ordering beyond atomicity is relied upon.
type Local struct {
	gen        atomic.Uint64
	advancedAt atomic.Int64 // unix nanos of the last Advance; 0 => never
}

var _ Clock = (*Local)(nil)

func NewLocal() *Local {
	l := &Local{}
	l.gen.Store(First)
	return l
}

func (l *Local) Current() uint64 { return l.gen.Load() }

func (l *Local) Advance() uint64 {
	l.advancedAt.Store(time.Now().UnixNano())
	return l.gen.Add(1)
}

// AdvancedAt reports when the clock last moved. Zero if it never did.
func (l *Local) AdvancedAt() time.Time {
	ns := l.advancedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
