package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	defaultLogger.mu.Lock()
	orig := defaultLogger.output
	defaultLogger.mu.Unlock()
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(orig) })
	return &buf
}

func decode(t *testing.T, line string) LogEntry {
	t.Helper()
	var entry LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("failed to unmarshal log entry %q: %v", line, err)
	}
	return entry
}

func TestF(t *testing.T) {
	tests := []struct {
		name    string
		keyvals []interface{}
		want    map[string]interface{}
	}{
		{"single pair", []interface{}{"type", "app"}, map[string]interface{}{"type": "app"}},
		{"mixed values", []interface{}{"queue", "disk", "size", 3, "ok", true}, map[string]interface{}{"queue": "disk", "size": 3, "ok": true}},
		{"empty", nil, map[string]interface{}{}},
		{"odd count drops last key", []interface{}{"a", 1, "b"}, map[string]interface{}{"a": 1}},
		{"non-string key ignored", []interface{}{7, "x", "k", "v"}, map[string]interface{}{"k": "v"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := F(tt.keyvals...)
			if len(got) != len(tt.want) {
				t.Fatalf("F() returned %d fields, want %d", len(got), len(tt.want))
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("F()[%q] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestLevels(t *testing.T) {
	tests := []struct {
		name     string
		emit     func(string, ...map[string]interface{})
		level    Level
		severity int
	}{
		{"info", Info, LevelInfo, 9},
		{"warn", Warn, LevelWarn, 13},
		{"error", Error, LevelError, 17},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureOutput(t)
			tt.emit("drain finished", F("type", "app", "sent", 2))

			entry := decode(t, buf.String())
			if entry.SeverityText != string(tt.level) {
				t.Errorf("SeverityText = %q, want %q", entry.SeverityText, tt.level)
			}
			if entry.SeverityNumber != tt.severity {
				t.Errorf("SeverityNumber = %d, want %d", entry.SeverityNumber, tt.severity)
			}
			if entry.Body != "drain finished" {
				t.Errorf("Body = %q", entry.Body)
			}
			if entry.Attributes["type"] != "app" {
				t.Errorf("Attributes[type] = %v", entry.Attributes["type"])
			}
			if !strings.HasSuffix(buf.String(), "\n") {
				t.Error("entry should end with a newline")
			}
		})
	}
}

func TestDebugGatedBySetDebug(t *testing.T) {
	buf := captureOutput(t)
	defer SetDebug(false)

	Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug entry written while disabled: %s", buf.String())
	}

	SetDebug(true)
	if !DebugEnabled() {
		t.Fatal("DebugEnabled() = false after SetDebug(true)")
	}
	Debug("visible")
	entry := decode(t, buf.String())
	if entry.SeverityText != "DEBUG" || entry.SeverityNumber != 5 {
		t.Errorf("unexpected debug entry: %+v", entry)
	}
}

func TestResourceAttached(t *testing.T) {
	buf := captureOutput(t)
	SetResource(map[string]string{"service.name": "logship"})
	defer SetResource(nil)

	Info("with resource")
	entry := decode(t, buf.String())
	if entry.Resource["service.name"] != "logship" {
		t.Errorf("Resource = %v", entry.Resource)
	}
}

func TestResourceOmittedWhenNil(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{output: &buf}
	l.log(LevelInfo, "bare", nil)
	if strings.Contains(buf.String(), `"Resource"`) {
		t.Errorf("Resource should be omitted: %s", buf.String())
	}
	if strings.Contains(buf.String(), `"Attributes"`) {
		t.Errorf("Attributes should be omitted: %s", buf.String())
	}
}

func TestUnencodableAttributeKeepsMessage(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{output: &buf}
	l.log(LevelWarn, "still here", map[string]interface{}{"fn": func() {}})

	entry := decode(t, buf.String())
	if entry.Body != "still here" {
		t.Errorf("Body = %q", entry.Body)
	}
	if _, ok := entry.Attributes["marshal_error"]; !ok {
		t.Errorf("expected marshal_error attribute, got %v", entry.Attributes)
	}
}

func TestHookReceivesEntries(t *testing.T) {
	captureOutput(t)
	var calls atomic.Int32
	var gotLevel atomic.Value
	SetHook(func(level Level, msg string, attrs map[string]interface{}) {
		calls.Add(1)
		gotLevel.Store(level)
	})
	defer SetHook(nil)

	Warn("hooked", F("k", "v"))

	if calls.Load() != 1 {
		t.Fatalf("hook called %d times, want 1", calls.Load())
	}
	if gotLevel.Load().(Level) != LevelWarn {
		t.Errorf("hook level = %v", gotLevel.Load())
	}
}

func TestSeverityNumber(t *testing.T) {
	if SeverityNumber(LevelFatal) != 21 {
		t.Errorf("SeverityNumber(FATAL) = %d", SeverityNumber(LevelFatal))
	}
	if SeverityNumber(Level("bogus")) != 0 {
		t.Error("unknown level should map to 0")
	}
}
