package status

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/szibis/logship/internal/logging"
)

func TestLoggerWritesStructuredEntries(t *testing.T) {
	var buf bytes.Buffer
	logging.SetOutput(&buf)
	defer logging.SetOutput(os.Stderr)

	Logger{Type: "nginx"}.Warning("Got 400 from listener", errors.New("bad line"))

	var entry logging.LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if entry.SeverityText != "WARN" {
		t.Errorf("SeverityText = %s", entry.SeverityText)
	}
	if entry.Attributes["type"] != "nginx" || entry.Attributes["error"] != "bad line" {
		t.Errorf("Attributes = %v", entry.Attributes)
	}
}

func TestLoggerOmitsNilCause(t *testing.T) {
	var buf bytes.Buffer
	logging.SetOutput(&buf)
	defer logging.SetOutput(os.Stderr)

	Logger{}.Error("Uncaught error", nil)

	var entry logging.LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if _, ok := entry.Attributes["error"]; ok {
		t.Errorf("nil cause should not produce an error attribute: %v", entry.Attributes)
	}
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	cause := errors.New("boom")

	r.Info("started")
	r.Warning("dropping", nil)
	r.Error("failed", cause)

	msgs := r.Messages()
	if len(msgs) != 3 {
		t.Fatalf("recorded %d messages, want 3", len(msgs))
	}
	errs := r.Filter(LevelError)
	if len(errs) != 1 || errs[0].Text != "failed" || !errors.Is(errs[0].Cause, cause) {
		t.Errorf("Filter(error) = %+v", errs)
	}

	r.Reset()
	if len(r.Messages()) != 0 {
		t.Error("Reset should clear messages")
	}
}

func TestRecorderConcurrent(t *testing.T) {
	r := &Recorder{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Warning("w", nil)
			}
		}()
	}
	wg.Wait()
	if n := len(r.Filter(LevelWarning)); n != 800 {
		t.Errorf("recorded %d warnings, want 800", n)
	}
}

func TestDiscardSatisfiesReporter(t *testing.T) {
	var r Reporter = Discard{}
	r.Info("x")
	r.Warning("x", nil)
	r.Error("x", errors.New("y"))
}
