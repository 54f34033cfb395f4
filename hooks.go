package gencache

import "time"

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking: the store calls them from
// caller goroutines and from the sweeper.
type Hooks interface {
	// A payload's release hook failed (error or panic). The entry is gone anyway.
	DisposeFailed(namespace, key string, err error)

	// A removal handler panicked. Remaining handlers still ran.
	HandlerPanicked(namespace, key string, reason RemovalReason, recovered any)

	// A capacity pass removed n entries from namespace.
	Evicted(namespace string, n int, capacity int)

	// One sweep cycle finished.
	SweepCompleted(generation uint64, scanned, expired int, took time.Duration)

	// A sweep was requested while another one was running.
	SweepSkipped()
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) DisposeFailed(string, string, error)                {}
func (NopHooks) HandlerPanicked(string, string, RemovalReason, any) {}
func (NopHooks) Evicted(string, int, int)                           {}
func (NopHooks) SweepCompleted(uint64, int, int, time.Duration)     {}
func (NopHooks) SweepSkipped()                                      {}
