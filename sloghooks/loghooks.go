package sloghooks

import (
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/unkn0wn-root/gencache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SweepEvery uint64
	EvictEvery uint64
	// Optional key redactor. Defaults to an xxhash digest of the key.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	sweepCtr atomic.Uint64
	evictCtr atomic.Uint64
}

var _ gencache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return strconv.FormatUint(xxhash.Sum64String(k), 16)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) DisposeFailed(ns, key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("gencache.dispose_failed",
		"ns", ns,
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) HandlerPanicked(ns, key string, reason gencache.RemovalReason, recovered any) {
	if h.l == nil {
		return
	}
	h.l.Error("gencache.handler_panicked",
		"ns", ns,
		"key", h.redact(key),
		"reason", reason.String(),
		"panic", recovered)
}

func (h *Hooks) Evicted(ns string, n, capacity int) {
	if h.l == nil || !sample(h.opts.EvictEvery, &h.evictCtr) {
		return
	}
	h.l.Info("gencache.evicted",
		"ns", ns,
		"n", n,
		"capacity", capacity)
}

func (h *Hooks) SweepCompleted(gen uint64, scanned, expired int, took time.Duration) {
	if h.l == nil || !sample(h.opts.SweepEvery, &h.sweepCtr) {
		return
	}
	h.l.Debug("gencache.sweep_completed",
		"gen", gen,
		"scanned", scanned,
		"expired", expired,
		"took", took)
}

func (h *Hooks) SweepSkipped() {
	if h.l == nil {
		return
	}
	h.l.Warn("gencache.sweep_skipped",
		"msg", "previous sweep still running; consider a longer sweep interval")
}
