// Package format turns plain log lines into the JSON records a sender ships.
package format

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/szibis/logship/internal/status"
)

// DefaultLevel is used when an entry carries no level.
const DefaultLevel = "INFO"

// TimestampLayout is RFC 3339 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Reserved names cannot be overridden by additional fields.
var Reserved = map[string]bool{
	"@timestamp": true,
	"loglevel":   true,
	"message":    true,
	"logger":     true,
	"thread":     true,
}

// Entry is one log event before formatting.
type Entry struct {
	Time    time.Time
	Level   string
	Message string
	Logger  string
	// Fields are event-specific and are written before the static fields,
	// so they never hide a reserved or configured name.
	Fields map[string]string
}

// Formatter renders entries with a fixed set of additional fields.
type Formatter struct {
	fields map[string]string
}

// Options configures a Formatter.
type Options struct {
	// AdditionalFields is "k=v;k2=$ENV". A value starting with $ is read
	// from the environment and skipped when unset.
	AdditionalFields string
	// AddHostname adds a "hostname" field.
	AddHostname bool
	Reporter    status.Reporter
	// LookupEnv replaces os.LookupEnv.
	LookupEnv func(string) (string, bool)
	// Hostname replaces os.Hostname.
	Hostname func() (string, error)
}

// New builds a Formatter. Problems with individual fields are reported as
// warnings and the field is left out.
func New(opts Options) *Formatter {
	reporter := opts.Reporter
	if reporter == nil {
		reporter = status.Discard{}
	}
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	fields := ParseAdditionalFields(opts.AdditionalFields, lookup, reporter)
	if opts.AdditionalFields != "" {
		reporter.Info("The additional fields that would be added: " + describe(fields))
	}

	if opts.AddHostname {
		hostname := opts.Hostname
		if hostname == nil {
			hostname = os.Hostname
		}
		if h, err := hostname(); err == nil && h != "" {
			fields["hostname"] = h
		} else {
			reporter.Warning("The configuration addHostName was specified but the host could not be resolved, thus the field 'hostname' will not be added", err)
		}
	}

	return &Formatter{fields: fields}
}

// ParseAdditionalFields parses "k=v;k2=$ENV". Empty segments and segments
// without '=' are ignored; reserved names are skipped with a warning.
func ParseAdditionalFields(raw string, lookup func(string) (string, bool), reporter status.Reporter) map[string]string {
	fields := make(map[string]string)
	for _, part := range strings.Split(raw, ";") {
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok || k == "" {
			reporter.Warning(fmt.Sprintf("Ignoring additional field %q, expected key=value", part), nil)
			continue
		}
		if Reserved[k] {
			reporter.Warning("The field name '"+k+"' defined in additionalFields configuration can't be used since it's a reserved field name. This field will not be added to the outgoing log messages", nil)
			continue
		}
		if strings.HasPrefix(v, "$") {
			env, found := lookup(strings.TrimPrefix(v, "$"))
			if !found {
				continue
			}
			v = env
		}
		fields[k] = v
	}
	return fields
}

func describe(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fields[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Fields returns a copy of the static fields.
func (f *Formatter) Fields() map[string]string {
	out := make(map[string]string, len(f.fields))
	for k, v := range f.fields {
		out[k] = v
	}
	return out
}

// Format renders e as one JSON object without a trailing newline.
func (f *Formatter) Format(e Entry) ([]byte, error) {
	obj := make(map[string]string, len(e.Fields)+len(f.fields)+4)
	for k, v := range e.Fields {
		obj[k] = v
	}

	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	level := e.Level
	if level == "" {
		level = DefaultLevel
	}
	obj["@timestamp"] = ts.UTC().Format(TimestampLayout)
	obj["loglevel"] = level
	obj["message"] = e.Message
	if e.Logger != "" {
		obj["logger"] = e.Logger
	}

	for k, v := range f.fields {
		obj[k] = v
	}
	return json.Marshal(obj)
}

// Line formats a single line of text read from logger.
func (f *Formatter) Line(logger, text string) ([]byte, error) {
	return f.Format(Entry{Message: text, Logger: logger})
}
