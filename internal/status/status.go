// Package status carries diagnostics from a sender to its host.
//
// The sender never writes to a logging framework directly; everything it has
// to say about its own health goes through a Reporter.
package status

import (
	"sync"

	"github.com/szibis/logship/internal/logging"
)

// Reporter receives sender diagnostics. cause may be nil.
type Reporter interface {
	Info(msg string)
	Warning(msg string, cause error)
	Error(msg string, cause error)
}

// Logger writes diagnostics through the structured logger.
type Logger struct {
	// Type tags every entry with the sender's stream type.
	Type string
}

func (l Logger) fields(cause error) map[string]interface{} {
	f := logging.F("component", "sender")
	if l.Type != "" {
		f["type"] = l.Type
	}
	if cause != nil {
		f["error"] = cause.Error()
	}
	return f
}

func (l Logger) Info(msg string) {
	logging.Info(msg, l.fields(nil))
}

func (l Logger) Warning(msg string, cause error) {
	logging.Warn(msg, l.fields(cause))
}

func (l Logger) Error(msg string, cause error) {
	logging.Error(msg, l.fields(cause))
}

// Discard drops everything.
type Discard struct{}

func (Discard) Info(string)           {}
func (Discard) Warning(string, error) {}
func (Discard) Error(string, error)   {}

// Level of a recorded message.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Message is one captured diagnostic.
type Message struct {
	Level Level
	Text  string
	Cause error
}

// Recorder keeps every message in memory. Safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) add(level Level, msg string, cause error) {
	r.mu.Lock()
	r.messages = append(r.messages, Message{Level: level, Text: msg, Cause: cause})
	r.mu.Unlock()
}

func (r *Recorder) Info(msg string)                 { r.add(LevelInfo, msg, nil) }
func (r *Recorder) Warning(msg string, cause error) { r.add(LevelWarning, msg, cause) }
func (r *Recorder) Error(msg string, cause error)   { r.add(LevelError, msg, cause) }

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Filter returns the recorded messages of one level.
func (r *Recorder) Filter(level Level) []Message {
	var out []Message
	for _, m := range r.Messages() {
		if m.Level == level {
			out = append(out, m)
		}
	}
	return out
}

// Reset forgets every recorded message.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.messages = nil
	r.mu.Unlock()
}
