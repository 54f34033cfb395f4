package gencache

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

type expirationKind uint8

const (
	expireDefault expirationKind = iota // zero value => store default
	expireNever
	expireAbsolute
	expireSliding
)

// Expiration is the lifetime policy of an entry.
// The zero value means "use the store's DefaultExpiration".
type Expiration struct {
	kind     expirationKind
	deadline time.Time
	window   time.Duration
}

// Never keeps the entry until it is removed, evicted or replaced.
func Never() Expiration { return Expiration{kind: expireNever} }

// At expires the entry once now >= deadline. A zero deadline means Never.
func At(deadline time.Time) Expiration {
	if deadline.IsZero() {
		return Never()
	}
	return Expiration{kind: expireAbsolute, deadline: deadline}
}

// After is At(now.Add(d)).
func After(now time.Time, d time.Duration) Expiration { return At(now.Add(d)) }

// Sliding expires the entry once it has not been touched for d.
// Non-positive windows mean Never.
func Sliding(d time.Duration) Expiration {
	if d <= 0 {
		return Never()
	}
	return Expiration{kind: expireSliding, window: d}
}

func (e Expiration) IsZero() bool { return e.kind == expireDefault }

func (e Expiration) IsNever() bool { return e.kind == expireNever || e.kind == expireDefault }

// Deadline returns the absolute deadline, if any.
func (e Expiration) Deadline() (time.Time, bool) {
	return e.deadline, e.kind == expireAbsolute
}

// Window returns the sliding window, if any.
func (e Expiration) Window() (time.Duration, bool) {
	return e.window, e.kind == expireSliding
}

func (e Expiration) String() string {
	switch e.kind {
	case expireAbsolute:
		return "at(" + e.deadline.Format(time.RFC3339Nano) + ")"
	case expireSliding:
		return "sliding(" + e.window.String() + ")"
	case expireNever:
		return "never"
	default:
		return "default"
	}
}

// elapsed evaluates the policy against a last-touch instant.
func (e Expiration) elapsed(now time.Time, lastTouch int64) bool {
	switch e.kind {
	case expireAbsolute:
		return !now.Before(e.deadline)
	case expireSliding:
		return now.UnixNano()-lastTouch >= int64(e.window)
	default:
		return false
	}
}

// Disposer is implemented by payloads that hold resources to release when
// their entry leaves the cache. io.Closer payloads are released too.
type Disposer interface {
	Dispose() error
}

// Entry is one cached payload plus the metadata describing its lifetime.
// Key and namespace never change; an entry that has left its table is never
// put back, a fresh one is created instead.
type Entry struct {
	ns    string
	key   string
	value any
	exp   Expiration

	lastTouch  atomic.Int64 // unix nanos
	generation atomic.Uint64
	disposed   atomic.Bool
}

func newEntry(ns, key string, value any, exp Expiration, now time.Time, gen uint64) *Entry {
	e := &Entry{ns: ns, key: key, value: value, exp: exp}
	e.lastTouch.Store(now.UnixNano())
	e.generation.Store(gen)
	return e
}

func (e *Entry) Namespace() string      { return e.ns }
func (e *Entry) Key() string            { return e.key }
func (e *Entry) Value() any             { return e.value }
func (e *Entry) Expiration() Expiration { return e.exp }
func (e *Entry) Generation() uint64     { return e.generation.Load() }

// LastTouch is the instant of the last access or update.
func (e *Entry) LastTouch() time.Time { return time.Unix(0, e.lastTouch.Load()) }

// HasExpired reports whether the policy has elapsed at now. Once true it
// stays true for every later now; touching an expired entry does not revive it.
func (e *Entry) HasExpired(now time.Time) bool {
	return e.exp.elapsed(now, e.lastTouch.Load())
}

// Touch records an access: the sliding window restarts at now and the
// generation moves up to gen. A lower gen never moves it back. A sliding
// entry whose window already elapsed keeps its last touch and waits for the
// sweeper.
func (e *Entry) Touch(now time.Time, gen uint64) {
	if e.exp.kind == expireSliding {
		n := now.UnixNano()
		for {
			cur := e.lastTouch.Load()
			if n <= cur || e.exp.elapsed(now, cur) || e.lastTouch.CompareAndSwap(cur, n) {
				break
			}
		}
	}
	for {
		cur := e.generation.Load()
		if gen <= cur || e.generation.CompareAndSwap(cur, gen) {
			return
		}
	}
}

// Disposed reports whether Dispose already ran.
func (e *Entry) Disposed() bool { return e.disposed.Load() }

// Dispose releases the payload exactly once. Later calls return nil.
// A panicking release hook is reported as a *DisposeError.
func (e *Entry) Dispose() (err error) {
	if !e.disposed.CompareAndSwap(false, true) {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = &DisposeError{Namespace: e.ns, Key: e.key, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	var derr error
	switch v := e.value.(type) {
	case Disposer:
		derr = v.Dispose()
	case io.Closer:
		derr = v.Close()
	}
	if derr != nil {
		return &DisposeError{Namespace: e.ns, Key: e.key, Err: derr}
	}
	return nil
}
