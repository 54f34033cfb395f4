package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/gencache"
)

func TestZapLoggerForwardsLevelAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Debug("sweep removed expired entries", gencache.Fields{"expired": 3})
	l.Warn("dispose failed", gencache.Fields{"key": "k", "err": errors.New("boom")})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel || entries[0].LoggerName != "gencache" {
		t.Fatalf("entry0 level=%v name=%q", entries[0].Level, entries[0].LoggerName)
	}
	if got := entries[0].ContextMap()["expired"]; got != int64(3) {
		t.Fatalf("expired field=%v (%T)", got, got)
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("entry1 level=%v", entries[1].Level)
	}
	if got := entries[1].ContextMap()["err"]; got != "boom" {
		t.Fatalf("err field=%v", got)
	}
}

func TestZapLoggerNilFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	New(zap.New(core)).Info("store closed", nil)
	if logs.Len() != 1 || len(logs.All()[0].Context) != 0 {
		t.Fatalf("want one entry without fields")
	}
}
