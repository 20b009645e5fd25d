package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// ValidationSeverity indicates the severity of a validation issue.
type ValidationSeverity string

const (
	// SeverityError indicates a configuration error that prevents startup.
	SeverityError ValidationSeverity = "error"
	// SeverityWarning indicates a potential issue that won't prevent startup.
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue represents a single validation finding.
type ValidationIssue struct {
	Severity ValidationSeverity `json:"severity"`
	Field    string             `json:"field"`
	Message  string             `json:"message"`
}

// ValidationResult holds the complete validation output.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	File   string            `json:"file"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// JSON returns the validation result as formatted JSON.
func (r *ValidationResult) JSON() string {
	data, _ := json.MarshalIndent(r, "", "  ")
	return string(data)
}

func (r *ValidationResult) fail(field, msg string) {
	r.Valid = false
	r.Issues = append(r.Issues, ValidationIssue{Severity: SeverityError, Field: field, Message: msg})
}

func (r *ValidationResult) warn(field, msg string) {
	r.Issues = append(r.Issues, ValidationIssue{Severity: SeverityWarning, Field: field, Message: msg})
}

// ValidateFile loads a YAML config file, applies the environment and
// validates it, returning structured results.
func ValidateFile(path string, lookup func(string) (string, bool)) *ValidationResult {
	result := &ValidationResult{Valid: true, File: path}

	info, err := os.Stat(path)
	if err != nil {
		result.fail("file", fmt.Sprintf("cannot access file: %v", err))
		return result
	}
	if info.IsDir() {
		result.fail("file", "path is a directory, expected a file")
		return result
	}

	cfg, err := Load(path)
	if err != nil {
		result.fail("yaml", fmt.Sprintf("YAML parse error: %v", err))
		return result
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		result.fail("env", err.Error())
		return result
	}

	if err := cfg.Validate(); err != nil {
		msg := err.Error()
		prefix := "configuration validation failed:\n  - "
		if strings.HasPrefix(msg, prefix) {
			for _, item := range strings.Split(strings.TrimPrefix(msg, prefix), "\n  - ") {
				result.fail(fieldOf(item), item)
			}
		} else {
			result.fail("config", msg)
		}
	}

	addWarnings(cfg, result)
	return result
}

// fieldOf extracts the leading field path of a validation message, e.g.
// "senders[0].token is required" gives "senders[0].token".
func fieldOf(s string) string {
	s = strings.TrimSpace(s)
	for _, sep := range []string{" must ", " is ", " should ", " may "} {
		if idx := strings.Index(s, sep); idx > 0 {
			field := s[:idx]
			if !strings.Contains(field, " ") {
				return field
			}
		}
	}
	return "config"
}

// addWarnings checks for non-fatal issues that are worth flagging.
func addWarnings(cfg *Config, result *ValidationResult) {
	for i, s := range cfg.Senders {
		prefix := fmt.Sprintf("senders[%d]", i)
		if u, err := url.Parse(s.ListenerURL); err == nil && u.Scheme == "http" && !isLocalhost(u.Hostname()) {
			result.warn(prefix+".listener_url", fmt.Sprintf("token is sent in clear text to non-localhost listener %q", u.Host))
		}
		if s.InMemoryQueue && s.QueueDir != "" {
			result.warn(prefix+".queue_dir", "queue_dir is ignored when in_memory_queue is set")
		}
		if s.InMemoryQueue && s.InMemoryCapacity == -1 && (s.InMemoryLogsLimit == nil || *s.InMemoryLogsLimit == -1) {
			result.warn(prefix+".in_memory_capacity", "in-memory queue is unbounded; an outage can exhaust memory")
		}
		if !s.Compress && s.Compression != "" {
			result.warn(prefix+".compression", "compression is ignored unless compress is true")
		}
		for _, src := range s.Sources {
			if src == StdinSource {
				continue
			}
			if _, err := os.Stat(src); err != nil {
				result.warn(prefix+".sources", fmt.Sprintf("source %q is not readable yet: %v", src, err))
			}
		}
	}
}

func isLocalhost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
