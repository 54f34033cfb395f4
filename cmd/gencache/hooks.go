package main

import (
	"time"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/gencache"
)

// loggingHooks reports store events through zap.
type loggingHooks struct{ l *zap.Logger }

var _ gencache.Hooks = loggingHooks{}

func (h loggingHooks) DisposeFailed(ns, key string, err error) {
	h.l.Warn("dispose failed", zap.String("ns", ns), zap.String("key", key), zap.Error(err))
}

func (h loggingHooks) HandlerPanicked(ns, key string, r gencache.RemovalReason, rec any) {
	h.l.Error("removal handler panicked",
		zap.String("ns", ns), zap.String("key", key), zap.Stringer("reason", r), zap.Any("panic", rec))
}

func (h loggingHooks) Evicted(ns string, n, capacity int) {
	h.l.Debug("capacity pass", zap.String("ns", ns), zap.Int("evicted", n), zap.Int("capacity", capacity))
}

func (h loggingHooks) SweepCompleted(gen uint64, scanned, expired int, took time.Duration) {
	h.l.Debug("sweep", zap.Uint64("gen", gen), zap.Int("scanned", scanned), zap.Int("expired", expired), zap.Duration("took", took))
}

func (h loggingHooks) SweepSkipped() { h.l.Warn("sweep skipped; previous sweep still running") }
