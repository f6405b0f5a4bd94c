package log

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

type testLogger struct {
	entries []string
}

func (l *testLogger) Info(_ map[string]any, msg string)  { l.entries = append(l.entries, "INFO:"+msg) }
func (l *testLogger) Error(_ map[string]any, msg string) { l.entries = append(l.entries, "ERROR:"+msg) }
func (l *testLogger) Debug(_ map[string]any, msg string) { l.entries = append(l.entries, "DEBUG:"+msg) }
func (l *testLogger) Warn(_ map[string]any, msg string)  { l.entries = append(l.entries, "WARN:"+msg) }
func (l *testLogger) Panic(_ map[string]any, msg string) {}
func (l *testLogger) Fatal(_ map[string]any, msg string) {}

func TestActualZapLogger(t *testing.T) {
	Debug(map[string]any{
		"key1": "value1",
		"key2": 42,
		"err":  errors.New("boom"),
	}, "test debug")
	Info(nil, "test info")
	Warn(nil, "test warn")
	Error(nil, "test error")
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic, but none occurred")
		}
	}()
	Panic(nil, "test panic")
}

func TestSetLoggerAndGlobalLogging(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)
	tlog := &testLogger{}
	SetLogger(tlog)

	Info(nil, "info msg")
	Error(nil, "error msg")
	Debug(nil, "debug msg")
	Warn(nil, "warn msg")

	expected := []string{
		"INFO:info msg",
		"ERROR:error msg",
		"DEBUG:debug msg",
		"WARN:warn msg",
	}

	if len(tlog.entries) != len(expected) {
		t.Fatalf("expected %d log entries, got %d", len(expected), len(tlog.entries))
	}
	for i, msg := range expected {
		if tlog.entries[i] != msg {
			t.Errorf("expected log[%d] = %q, got %q", i, msg, tlog.entries[i])
		}
	}
}

func TestConfigure_Levels(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)

	for _, lvl := range []string{"debug", "info", "warn", "error", "DEBUG"} {
		if err := Configure("dev", lvl, "", 0); err != nil {
			t.Errorf("Configure(%q) returned error: %v", lvl, err)
		}
		if _, ok := GetLogger().(*zapLogger); !ok {
			t.Errorf("Configure(%q) did not install a zap logger", lvl)
		}
	}

	if err := Configure("prod", "chatty", "", 0); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestConfigure_FileOutput(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)

	path := filepath.Join(t.TempDir(), "simplefilter.log")
	if err := Configure("prod", "info", path, 1); err != nil {
		t.Fatalf("Configure returned error: %v", err)
	}
	Info(map[string]any{"profile": "inProfile0"}, "file_output_check")
	if zl, ok := GetLogger().(*zapLogger); ok {
		_ = zl.base.Sync()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "file_output_check") || !strings.Contains(string(data), "inProfile0") {
		t.Errorf("log file missing entry: %q", data)
	}
}

func TestNewZapLogger_DevConsole(t *testing.T) {
	l := newZapLogger(Options{Dev: true, Level: zapcore.DebugLevel})
	if _, ok := l.(*zapLogger); !ok {
		t.Fatalf("expected *zapLogger, got %T", l)
	}
}

func TestNoopLogger(t *testing.T) {
	l := NewNoopLogger()
	l.Info(nil, "x")
	l.Error(nil, "x")
	l.Debug(nil, "x")
	l.Warn(nil, "x")
	l.Panic(nil, "x")
	l.Fatal(nil, "x")
}
