package config

import (
	"strings"
	"testing"
	"time"

	"github.com/szibis/logship/internal/compression"
)

const fullConfig = `
senders:
  - token: abc
    type: nginx
    listener_url: https://listener.example.com:8071
    drain_interval: 2s
    socket_timeout: 3s
    connect_timeout: 4s
    gc_interval: 1m
    fs_percent_threshold: -1
    queue_dir: /var/lib/logship/nginx
    compress: true
    compression: zstd
    additional_fields: "env=prod"
    add_hostname: true
    sources: [/var/log/nginx/access.log]
  - token: def
    type: app
    in_memory_queue: true
    in_memory_capacity: 10Mi
    in_memory_logs_limit: 5000
metrics:
  address: ":9191"
telemetry:
  endpoint: otel:4317
memory:
  limit_ratio: 0.8
`

func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	nginx := cfg.Senders[0].SenderConfig()
	if nginx.Type != "nginx" || nginx.Token != "abc" {
		t.Errorf("identity = %q/%q", nginx.Type, nginx.Token)
	}
	if nginx.DrainInterval != 2*time.Second || nginx.SocketTimeout != 3*time.Second ||
		nginx.ConnectTimeout != 4*time.Second || nginx.GCInterval != time.Minute {
		t.Errorf("durations = %+v", nginx)
	}
	if nginx.FileSystemFullPercentThreshold != -1 {
		t.Errorf("threshold = %d, want -1", nginx.FileSystemFullPercentThreshold)
	}
	if !nginx.Compress || nginx.Compression != compression.TypeZstd {
		t.Errorf("compression = %v/%q", nginx.Compress, nginx.Compression)
	}
	if nginx.QueueDir != "/var/lib/logship/nginx" {
		t.Errorf("queue dir = %q", nginx.QueueDir)
	}

	app := cfg.Senders[1].SenderConfig()
	if !app.InMemoryQueue || app.InMemoryQueueCapacityBytes != 10<<20 || app.InMemoryLogsCountLimit != 5000 {
		t.Errorf("memory queue = %+v", app)
	}
	if app.ListenerURL != "https://listener.logz.io:8071" {
		t.Errorf("default listener = %q", app.ListenerURL)
	}
	if got := cfg.Senders[1].Sources; len(got) != 1 || got[0] != StdinSource {
		t.Errorf("default sources = %v, want stdin", got)
	}

	if cfg.Metrics.Address != ":9191" || cfg.Metrics.Path != "/metrics" {
		t.Errorf("metrics = %+v", cfg.Metrics)
	}
	tc := cfg.TelemetryConfig()
	if tc.Endpoint != "otel:4317" || tc.Protocol != "grpc" || !tc.Insecure || tc.PushInterval != 30*time.Second {
		t.Errorf("telemetry = %+v", tc)
	}
	if cfg.Memory.LimitRatio != 0.8 {
		t.Errorf("limit ratio = %v", cfg.Memory.LimitRatio)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("senders:\n  - token: t\n    type: x\n    compress: true\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	s := cfg.Senders[0].SenderConfig()
	if s.DrainInterval != 5*time.Second || s.GCInterval != 30*time.Second {
		t.Errorf("durations = %v/%v", s.DrainInterval, s.GCInterval)
	}
	if s.FileSystemFullPercentThreshold != 98 {
		t.Errorf("threshold = %d", s.FileSystemFullPercentThreshold)
	}
	if s.InMemoryQueueCapacityBytes != 100<<20 || s.InMemoryLogsCountLimit != -1 {
		t.Errorf("memory budgets = %d/%d", s.InMemoryQueueCapacityBytes, s.InMemoryLogsCountLimit)
	}
	if s.Compression != compression.TypeGzip {
		t.Errorf("compression = %q, want gzip", s.Compression)
	}
	if cfg.Memory.LimitRatio != 0.9 {
		t.Errorf("limit ratio = %v", cfg.Memory.LimitRatio)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no senders", "metrics: {address: ':1'}", "senders must contain at least one sender"},
		{"missing token", "senders: [{type: a}]", "senders[0].token is required"},
		{"missing type", "senders: [{token: t}]", "senders[0].type is required"},
		{"duplicate type", "senders: [{token: t, type: a, sources: [x]}, {token: t, type: a}]", `senders[1].type "a" is used by more than one sender`},
		{"bad listener", "senders: [{token: t, type: a, listener_url: 'listener:8071'}]", "senders[0].listener_url must be an http(s) URL"},
		{"threshold", "senders: [{token: t, type: a, fs_percent_threshold: 0}]", "senders[0].fs_percent_threshold should be a number between 1 and 100"},
		{"memory capacity", "senders: [{token: t, type: a, in_memory_queue: true, in_memory_capacity: -7}]", "senders[0].in_memory_capacity must be positive or -1"},
		{"memory limit", "senders: [{token: t, type: a, in_memory_queue: true, in_memory_logs_limit: 0}]", "senders[0].in_memory_logs_limit must be positive or -1"},
		{"compression", "senders: [{token: t, type: a, compress: true, compression: brotli}]", "senders[0].compression is invalid"},
		{"two stdin", "senders: [{token: t, type: a}, {token: t, type: b}]", "only once"},
		{"telemetry protocol", "senders: [{token: t, type: a}]\ntelemetry: {endpoint: x, protocol: udp}", "telemetry.protocol must be grpc or http"},
		{"limit ratio", "senders: [{token: t, type: a}]\nmemory: {limit_ratio: 2}", "memory.limit_ratio must be between 0.0 and 1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			err = cfg.Validate()
			if err == nil {
				t.Fatal("Validate() error = nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestValidate_ThresholdIgnoredForMemoryQueue(t *testing.T) {
	cfg, err := Parse([]byte("senders: [{token: t, type: a, in_memory_queue: true, fs_percent_threshold: 0}]"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestDebug(t *testing.T) {
	cfg := &Config{Senders: []SenderConfig{{Type: "a"}, {Type: "b", Debug: true}}}
	if !cfg.Debug() {
		t.Error("Debug() = false with a debug sender")
	}
	cfg.Senders[1].Debug = false
	if cfg.Debug() {
		t.Error("Debug() = true without debug senders")
	}
}
