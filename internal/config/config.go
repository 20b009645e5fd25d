// Package config loads the logship YAML configuration and turns it into
// sender, metrics and telemetry settings.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/szibis/logship/internal/backpressure"
	"github.com/szibis/logship/internal/compression"
	"github.com/szibis/logship/internal/sender"
	"github.com/szibis/logship/internal/telemetry"
)

// StdinSource reads records from standard input.
const StdinSource = "-"

// Config is the whole configuration file.
type Config struct {
	Senders   []SenderConfig  `yaml:"senders"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Memory    MemoryConfig    `yaml:"memory"`
}

// SenderConfig configures one sender and the sources feeding it.
type SenderConfig struct {
	Token              string   `yaml:"token"`
	Type               string   `yaml:"type"`
	ListenerURL        string   `yaml:"listener_url"`
	DrainInterval      Duration `yaml:"drain_interval"`
	SocketTimeout      Duration `yaml:"socket_timeout"`
	ConnectTimeout     Duration `yaml:"connect_timeout"`
	GCInterval         Duration `yaml:"gc_interval"`
	FSPercentThreshold *int     `yaml:"fs_percent_threshold"`
	QueueDir           string   `yaml:"queue_dir"`
	InMemoryQueue      bool     `yaml:"in_memory_queue"`
	InMemoryCapacity   ByteSize `yaml:"in_memory_capacity"`
	InMemoryLogsLimit  *int     `yaml:"in_memory_logs_limit"`
	Compress           bool     `yaml:"compress"`
	Compression        string   `yaml:"compression"`
	Debug              bool     `yaml:"debug"`
	AdditionalFields   string   `yaml:"additional_fields"`
	AddHostname        bool     `yaml:"add_hostname"`
	// Sources are file paths to follow; "-" is standard input.
	Sources []string `yaml:"sources"`
}

// MetricsConfig holds the Prometheus and health endpoint settings.
type MetricsConfig struct {
	Address string `yaml:"address"` // empty disables the HTTP server
	Path    string `yaml:"path"`
}

// TelemetryConfig holds OTLP self-monitoring telemetry configuration.
type TelemetryConfig struct {
	Endpoint        string            `yaml:"endpoint"` // empty = disabled
	Protocol        string            `yaml:"protocol"` // "grpc" or "http"
	Insecure        *bool             `yaml:"insecure"`
	Timeout         Duration          `yaml:"timeout"`
	PushInterval    Duration          `yaml:"push_interval"`
	Compression     string            `yaml:"compression"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"`
	Headers         map[string]string `yaml:"headers"`
}

// MemoryConfig holds memory limit configuration.
type MemoryConfig struct {
	// LimitRatio is the share of the container memory limit used for
	// GOMEMLIMIT (0 disables).
	LimitRatio float64 `yaml:"limit_ratio"`
}

// Load reads, parses and defaults a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses YAML configuration from bytes and applies defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults sets default values for unspecified fields.
func (c *Config) ApplyDefaults() {
	for i := range c.Senders {
		c.Senders[i].applyDefaults()
	}

	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Telemetry.Protocol == "" {
		c.Telemetry.Protocol = "grpc"
	}
	if c.Telemetry.Insecure == nil {
		insecure := true
		c.Telemetry.Insecure = &insecure
	}
	if c.Telemetry.PushInterval == 0 {
		c.Telemetry.PushInterval = Duration(30 * time.Second)
	}
	if c.Telemetry.ShutdownTimeout == 0 {
		c.Telemetry.ShutdownTimeout = Duration(5 * time.Second)
	}

	if c.Memory.LimitRatio == 0 {
		c.Memory.LimitRatio = 0.9
	}
}

func (s *SenderConfig) applyDefaults() {
	d := sender.DefaultConfig()
	if s.ListenerURL == "" {
		s.ListenerURL = d.ListenerURL
	}
	if s.DrainInterval == 0 {
		s.DrainInterval = Duration(d.DrainInterval)
	}
	if s.SocketTimeout == 0 {
		s.SocketTimeout = Duration(d.SocketTimeout)
	}
	if s.ConnectTimeout == 0 {
		s.ConnectTimeout = Duration(d.ConnectTimeout)
	}
	if s.GCInterval == 0 {
		s.GCInterval = Duration(d.GCInterval)
	}
	if s.FSPercentThreshold == nil {
		v := d.FileSystemFullPercentThreshold
		s.FSPercentThreshold = &v
	}
	if s.InMemoryCapacity == 0 {
		s.InMemoryCapacity = ByteSize(d.InMemoryQueueCapacityBytes)
	}
	if s.InMemoryLogsLimit == nil {
		v := d.InMemoryLogsCountLimit
		s.InMemoryLogsLimit = &v
	}
	if s.Compress && s.Compression == "" {
		s.Compression = string(compression.TypeGzip)
	}
	if len(s.Sources) == 0 {
		s.Sources = []string{StdinSource}
	}
}

// Validate checks every sender and the process-level settings.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Senders) == 0 {
		errs = append(errs, "senders must contain at least one sender")
	}

	types := make(map[string]bool, len(c.Senders))
	stdin := 0
	for i, s := range c.Senders {
		prefix := fmt.Sprintf("senders[%d]", i)
		if s.Token == "" {
			errs = append(errs, prefix+".token is required")
		}
		if s.Type == "" {
			errs = append(errs, prefix+".type is required")
		} else if types[s.Type] {
			errs = append(errs, fmt.Sprintf("%s.type %q is used by more than one sender", prefix, s.Type))
		}
		types[s.Type] = true

		if u, err := url.Parse(s.ListenerURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("%s.listener_url must be an http(s) URL, got %q", prefix, s.ListenerURL))
		}
		if s.DrainInterval < 0 || s.SocketTimeout < 0 || s.ConnectTimeout < 0 || s.GCInterval < 0 {
			errs = append(errs, prefix+" intervals and timeouts must be positive")
		}
		if s.FSPercentThreshold != nil && !s.InMemoryQueue {
			if err := backpressure.ValidateThreshold(*s.FSPercentThreshold); err != nil {
				errs = append(errs, fmt.Sprintf("%s.%v", prefix, err))
			}
		}
		if s.InMemoryQueue {
			if s.InMemoryCapacity == 0 || s.InMemoryCapacity < -1 {
				errs = append(errs, fmt.Sprintf("%s.in_memory_capacity must be positive or -1, got %d", prefix, s.InMemoryCapacity))
			}
			if s.InMemoryLogsLimit != nil && (*s.InMemoryLogsLimit == 0 || *s.InMemoryLogsLimit < -1) {
				errs = append(errs, fmt.Sprintf("%s.in_memory_logs_limit must be positive or -1, got %d", prefix, *s.InMemoryLogsLimit))
			}
		}
		if s.Compression != "" {
			if _, err := compression.ParseType(s.Compression); err != nil {
				errs = append(errs, fmt.Sprintf("%s.compression is invalid: %v", prefix, err))
			}
		}
		for _, src := range s.Sources {
			if src == StdinSource {
				stdin++
			}
		}
	}
	if stdin > 1 {
		errs = append(errs, "sources may name standard input (\"-\") only once")
	}

	if c.Telemetry.Endpoint != "" && c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http" {
		errs = append(errs, fmt.Sprintf("telemetry.protocol must be grpc or http, got %q", c.Telemetry.Protocol))
	}
	if c.Memory.LimitRatio < 0 || c.Memory.LimitRatio > 1 {
		errs = append(errs, fmt.Sprintf("memory.limit_ratio must be between 0.0 and 1.0, got %v", c.Memory.LimitRatio))
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.New("configuration validation failed:\n  - " + strings.Join(errs, "\n  - "))
}

// SenderConfig converts s into the sender's configuration.
func (s SenderConfig) SenderConfig() sender.Config {
	cfg := sender.DefaultConfig()
	cfg.Token = s.Token
	cfg.Type = s.Type
	cfg.ListenerURL = s.ListenerURL
	cfg.DrainInterval = time.Duration(s.DrainInterval)
	cfg.SocketTimeout = time.Duration(s.SocketTimeout)
	cfg.ConnectTimeout = time.Duration(s.ConnectTimeout)
	cfg.GCInterval = time.Duration(s.GCInterval)
	if s.FSPercentThreshold != nil {
		cfg.FileSystemFullPercentThreshold = *s.FSPercentThreshold
	}
	cfg.QueueDir = s.QueueDir
	cfg.InMemoryQueue = s.InMemoryQueue
	if s.InMemoryCapacity != 0 {
		cfg.InMemoryQueueCapacityBytes = int64(s.InMemoryCapacity)
	}
	if s.InMemoryLogsLimit != nil {
		cfg.InMemoryLogsCountLimit = *s.InMemoryLogsLimit
	}
	cfg.Compress = s.Compress
	if t, err := compression.ParseType(s.Compression); err == nil {
		cfg.Compression = t
	}
	cfg.Debug = s.Debug
	return cfg
}

// TelemetryConfig converts the telemetry section.
func (c *Config) TelemetryConfig() telemetry.Config {
	t := c.Telemetry
	insecure := t.Insecure == nil || *t.Insecure
	return telemetry.Config{
		Endpoint:        t.Endpoint,
		Protocol:        t.Protocol,
		Insecure:        insecure,
		Timeout:         time.Duration(t.Timeout),
		PushInterval:    time.Duration(t.PushInterval),
		Compression:     t.Compression,
		Headers:         t.Headers,
		ShutdownTimeout: time.Duration(t.ShutdownTimeout),
		RetryEnabled:    true,
	}
}

// Debug reports whether any sender asks for debug output.
func (c *Config) Debug() bool {
	for _, s := range c.Senders {
		if s.Debug {
			return true
		}
	}
	return false
}

func parseBool(s string) (bool, error) {
	return strconv.ParseBool(strings.TrimSpace(s))
}
