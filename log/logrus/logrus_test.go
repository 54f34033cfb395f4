package logrus

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/unkn0wn-root/gencache"
)

func TestLogrusLoggerForwards(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := New(base)

	l.Debug("capacity pass evicted entries", gencache.Fields{"ns": "user", "evicted": 2})
	l.Error("removal handler panicked", gencache.Fields{"key": "k"})

	if len(hook.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(hook.Entries))
	}
	first := hook.Entries[0]
	if first.Level != logrus.DebugLevel || first.Data["ns"] != "user" || first.Data["component"] != "gencache" {
		t.Fatalf("first entry=%+v", first)
	}
	if last := hook.LastEntry(); last.Level != logrus.ErrorLevel || last.Message != "removal handler panicked" {
		t.Fatalf("last entry level=%v msg=%q", last.Level, last.Message)
	}
}
