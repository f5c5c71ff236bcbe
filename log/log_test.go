package log

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	return NewWithCore(core), logs
}

func TestModuleTagsEntries(t *testing.T) {
	l, logs := newObserved()
	execLogger := l.Module("execution")
	execLogger.Info("order and execute", zap.Uint64("height", 7))

	all := logs.All()
	if len(all) != 1 {
		t.Fatalf("got %d entries, want 1", len(all))
	}
	ctx := all[0].ContextMap()
	if ctx["module"] != "execution" {
		t.Errorf("module field = %v, want execution", ctx["module"])
	}
	if ctx["height"] != uint64(7) {
		t.Errorf("height field = %v, want 7", ctx["height"])
	}
}

func TestWithAddsFields(t *testing.T) {
	l, logs := newObserved()
	child := l.With(zap.String("component", "blockgen"))
	child.Warn("shard update failed")

	entry := logs.All()[0]
	if entry.ContextMap()["component"] != "blockgen" {
		t.Errorf("expected component field to carry through With()")
	}
	if entry.Level.String() != "warn" {
		t.Errorf("level = %s, want warn", entry.Level)
	}
}

func TestDebugIsSuppressedBelowInfoLevel(t *testing.T) {
	l, logs := newObserved()
	l.Debug("should not appear")
	if len(logs.All()) != 0 {
		t.Errorf("debug entry was logged despite info-level core")
	}
}
