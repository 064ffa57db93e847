package logxzap

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/scylladb/dc-aware-lbp-golang/logx"
)

func TestLoggerWritesAttributes(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core)).Named("lbp").With(logx.A("policy", "s0|default"))

	l.Debug("node went DOWN", logx.A("node", "a"), logx.Error(errors.New("boom")))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Message != "node went DOWN" || e.LoggerName != "lbp" || e.Level != zapcore.DebugLevel {
		t.Fatalf("unexpected entry: %+v", e)
	}
	fields := e.ContextMap()
	if fields["policy"] != "s0|default" || fields["node"] != "a" || fields["error"] != "boom" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestLoggerLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	l := New(zap.New(core))

	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")
	l.Log(logx.ErrorLevel, "x")

	if logs.Len() != 3 {
		t.Fatalf("expected 3 entries at warn and above, got %d", logs.Len())
	}
	if l.Enabled(logx.InfoLevel) || !l.Enabled(logx.WarnLevel) {
		t.Fatal("Enabled does not follow the core level")
	}
}

func TestNewProduction(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewProduction(&buf, logx.InfoLevel)
	l.Debug("hidden")
	l.Info("local datacenter resolved", logx.A("localDC", "dc1"))

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "local datacenter resolved" || line["localDC"] != "dc1" {
		t.Fatalf("unexpected line: %v", line)
	}
}

func TestNewConsole(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewConsole(&buf, logx.DebugLevel)
	l.Debug("node was added", logx.A("distance", "LOCAL"))
	if !bytes.Contains(buf.Bytes(), []byte("node was added")) || !bytes.Contains(buf.Bytes(), []byte("DEBUG")) {
		t.Fatalf("unexpected console output: %q", buf.String())
	}
}
