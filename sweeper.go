package gencache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/gencache/genclock"
)

// SweepState is the sweeper's position in its cycle.
type SweepState int32

const (
	Idle SweepState = iota
	Sweeping
)

func (s SweepState) String() string {
	if s == Sweeping {
		return "sweeping"
	}
	return "idle"
}

// SweepResult summarizes one sweep cycle.
type SweepResult struct {
	Generation uint64 // clock value the cycle ran under
	Scanned    int
	Expired    int
	Took       time.Duration
}

// sweeper advances the generation clock and reaps expired entries on a
// fixed interval. It is the only writer of the clock.
type sweeper struct {
	clock    genclock.Clock
	interval time.Duration
	now      func() time.Time
	tables   func() []*table
	retire   func(e *Entry, reason RemovalReason, dispose bool)
	log      Logger
	hooks    Hooks

	state  atomic.Int32
	cycles atomic.Uint64

	// background loop
	ticker    *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func (w *sweeper) start() {
	if w.interval <= 0 {
		return
	}
	w.ticker = time.NewTicker(w.interval)
	w.stopCh = make(chan struct{})
	w.wg.Add(1)
	go w.loop()
}

func (w *sweeper) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ticker.C:
			w.run()
		case <-w.stopCh:
			return
		}
	}
}

// stop ends the loop after the current cycle, if any. Safe to call twice.
func (w *sweeper) stop() {
	w.closeOnce.Do(func() {
		if w.stopCh != nil {
			close(w.stopCh)
			w.ticker.Stop()
			w.wg.Wait()
		}
	})
}

func (w *sweeper) State() SweepState { return SweepState(w.state.Load()) }

// run performs one cycle. It returns false without doing anything when
// another cycle is already in progress.
func (w *sweeper) run() (SweepResult, bool) {
	if !w.state.CompareAndSwap(int32(Idle), int32(Sweeping)) {
		w.hooks.SweepSkipped()
		return SweepResult{}, false
	}
	defer w.state.Store(int32(Idle))

	start := time.Now()
	res := SweepResult{Generation: w.clock.Advance()}
	now := w.now()

	var buf []*Entry
	for _, t := range w.tables() {
		for i := range t.shards {
			buf = t.scanShard(i, buf[:0])
			for _, e := range buf {
				res.Scanned++
				if w.reap(t, e, now) {
					res.Expired++
				}
			}
		}
	}
	clear(buf)

	res.Took = time.Since(start)
	w.cycles.Add(1)
	if res.Expired > 0 {
		w.log.Debug("sweep removed expired entries", Fields{
			"gen": res.Generation, "scanned": res.Scanned, "expired": res.Expired, "took": res.Took,
		})
	}
	w.hooks.SweepCompleted(res.Generation, res.Scanned, res.Expired, res.Took)
	return res, true
}

// reap removes e if it has expired and is still the live entry for its key.
// A failure on one entry never aborts the cycle.
func (w *sweeper) reap(t *table, e *Entry, now time.Time) (reaped bool) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("sweep: entry failed", Fields{"ns": e.ns, "key": e.key, "panic": r})
		}
	}()
	if !e.HasExpired(now) || !t.removeEntry(e) {
		return false
	}
	reaped = true
	w.log.Debug("remove expired entry", Fields{"ns": e.ns, "key": e.key})
	w.retire(e, Expired, true)
	return reaped
}
