package gencache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSweepAdvancesGeneration(t *testing.T) {
	s, _, _ := newTestStore(t, nil)

	g0 := s.Generation()
	_ = s.Set("ns", "a", 1, Never())
	res, ok := s.Sweep()
	if !ok {
		t.Fatalf("Sweep should run")
	}
	if res.Generation != g0+1 || s.Generation() != g0+1 {
		t.Fatalf("generation=%d/%d want %d", res.Generation, s.Generation(), g0+1)
	}
	if res.Scanned != 1 || res.Expired != 0 {
		t.Fatalf("scanned=%d expired=%d", res.Scanned, res.Expired)
	}

	// entries touched after the sweep carry the new generation
	_ = s.Set("ns", "b", 2, Never())
	e, _ := mustImpl(t, s).lookup("ns").peek("b")
	if e.Generation() != g0+1 {
		t.Fatalf("b generation=%d want %d", e.Generation(), g0+1)
	}
}

func TestSlidingEntryReapedOnce(t *testing.T) {
	s, now, rec := newTestStore(t, nil)
	r := &countingRes{id: "slide"}

	_ = s.Set("ns", "k", r, Sliding(time.Second))
	now.At(2 * time.Second)

	res, _ := s.Sweep()
	if res.Expired != 1 {
		t.Fatalf("expired=%d want 1", res.Expired)
	}
	s.Sweep()

	if rec.count(Expired) != 1 || r.disposed.Load() != 1 {
		t.Fatalf("notified=%d disposed=%d, want 1/1", rec.count(Expired), r.disposed.Load())
	}
	if s.Contains("ns", "k") {
		t.Fatalf("entry should be gone")
	}
}

func TestReadAfterSlidingExpiryDoesNotRevive(t *testing.T) {
	s, now, rec := newTestStore(t, nil)
	r := &countingRes{id: "late"}
	_ = s.Set("ns", "k", r, Sliding(time.Second))

	now.At(2 * time.Second)
	if _, ok := s.Get("ns", "k"); !ok {
		t.Fatalf("Get before the sweep should still return the entry")
	}

	now.At(2500 * time.Millisecond)
	res, _ := s.Sweep()
	if res.Expired != 1 || s.Len("ns") != 0 {
		t.Fatalf("expired=%d len=%d, want 1/0", res.Expired, s.Len("ns"))
	}
	s.Sweep()
	if rec.count(Expired) != 1 || r.disposed.Load() != 1 {
		t.Fatalf("notified=%d disposed=%d, want 1/1", rec.count(Expired), r.disposed.Load())
	}
}

func TestSlidingEntryKeptAliveByReads(t *testing.T) {
	s, now, _ := newTestStore(t, nil)
	_ = s.Set("ns", "k", "v", Sliding(time.Second))

	for i := 1; i <= 5; i++ {
		now.At(time.Duration(i) * 800 * time.Millisecond)
		if _, ok := s.Get("ns", "k"); !ok {
			t.Fatalf("read %d missed", i)
		}
		s.Sweep()
	}
	if !s.Contains("ns", "k") {
		t.Fatalf("regular reads should keep a sliding entry alive")
	}
}

func TestAbsoluteExpiryScenario(t *testing.T) {
	s, now, rec := newTestStore(t, nil)
	_ = s.Set("ns", "k", "v", At(t0.Add(5*time.Second)))

	now.At(4 * time.Second)
	if v, ok := s.Get("ns", "k"); !ok || v != "v" {
		t.Fatalf("Get at t=4: ok=%v v=%v", ok, v)
	}

	now.At(6 * time.Second)
	s.Sweep()

	now.At(7 * time.Second)
	if _, ok := s.Get("ns", "k"); ok {
		t.Fatalf("Get at t=7 should miss")
	}
	if rec.count(Expired) != 1 {
		t.Fatalf("expired notifications=%d", rec.count(Expired))
	}
}

func TestGetMayReturnExpiredBeforeSweep(t *testing.T) {
	s, now, _ := newTestStore(t, nil)
	_ = s.Set("ns", "k", "v", At(t0.Add(time.Second)))

	now.At(time.Hour)
	if _, ok := s.Get("ns", "k"); !ok {
		t.Fatalf("Get does not check expiration; only the sweeper reaps")
	}
}

func TestSweepIsolatesDisposeFailures(t *testing.T) {
	hooks := &recHooks{}
	s, now, rec := newTestStore(t, func(o *Options) { o.Hooks = hooks })

	exp := At(t0.Add(time.Second))
	_ = s.Set("ns", "err", &resource{name: "err", err: errors.New("close failed")}, exp)
	_ = s.Set("ns", "panic", &resource{name: "panic", panicky: true}, exp)
	ok := &countingRes{id: "ok"}
	_ = s.Set("ns", "ok", ok, exp)

	now.At(2 * time.Second)
	res, _ := s.Sweep()

	if res.Expired != 3 || s.Len("ns") != 0 {
		t.Fatalf("expired=%d len=%d, want 3/0", res.Expired, s.Len("ns"))
	}
	if ok.disposed.Load() != 1 {
		t.Fatalf("healthy payload disposed %d times", ok.disposed.Load())
	}
	if rec.count(Expired) != 3 {
		t.Fatalf("every failed entry still counts as removed")
	}
	if st := s.Stats(); st.DisposeErrors != 2 {
		t.Fatalf("DisposeErrors=%d want 2", st.DisposeErrors)
	}
	if hooks.disposeFailed.Load() != 2 || hooks.sweeps.Load() != 1 {
		t.Fatalf("hooks disposeFailed=%d sweeps=%d", hooks.disposeFailed.Load(), hooks.sweeps.Load())
	}
	if s.SweepState() != Idle {
		t.Fatalf("sweeper should be idle after a cycle")
	}
}

func TestSweepSkippedWhileSweeping(t *testing.T) {
	hooks := &recHooks{}
	s, _, _ := newTestStore(t, func(o *Options) { o.Hooks = hooks })
	impl := mustImpl(t, s)

	impl.sweeper.state.Store(int32(Sweeping))
	g := s.Generation()
	if _, ok := s.Sweep(); ok {
		t.Fatalf("Sweep should be skipped while another runs")
	}
	if s.Generation() != g || hooks.skipped.Load() != 1 {
		t.Fatalf("skipped sweep must not advance the clock")
	}
	impl.sweeper.state.Store(int32(Idle))
	if _, ok := s.Sweep(); !ok {
		t.Fatalf("Sweep should run once idle")
	}
}

func TestReapLeavesReplacementAlone(t *testing.T) {
	s, now, rec := newTestStore(t, nil)
	impl := mustImpl(t, s)

	_ = s.Set("ns", "k", "old", At(t0.Add(time.Second)))
	tb := impl.lookup("ns")
	stale, _ := tb.peek("k")

	// a Set lands between the sweeper's expiry check and its removal
	_ = s.Set("ns", "k", "fresh", Never())
	now.At(2 * time.Second)
	if impl.sweeper.reap(tb, stale, now.Now()) {
		t.Fatalf("reap removed the replacement")
	}
	if v, ok := s.Get("ns", "k"); !ok || v != "fresh" {
		t.Fatalf("replacement lost: ok=%v v=%v", ok, v)
	}
	if rec.count(Expired) != 0 {
		t.Fatalf("no expiry should be reported")
	}
}

func TestBackgroundSweeperReapsWithoutCalls(t *testing.T) {
	s, err := New(Options{SweepInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close(context.Background())

	_ = s.Set("ns", "ttl", "v", After(time.Now(), 20*time.Millisecond))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if !s.Contains("ns", "ttl") {
			if s.Generation() < 2 {
				t.Fatalf("background sweeps should advance the clock")
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("background sweeper did not reap the entry")
}

func TestCloseStopsSweeper(t *testing.T) {
	s, err := New(Options{SweepInterval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	g := s.Generation()
	time.Sleep(30 * time.Millisecond)
	if s.Generation() != g {
		t.Fatalf("clock moved after Close: %d -> %d", g, s.Generation())
	}
}
