package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Environment variables read by ApplyEnv.
const (
	EnvToken            = "LOGSHIP_TOKEN"
	EnvType             = "LOGSHIP_TYPE"
	EnvListenerURL      = "LOGSHIP_LISTENER_URL"
	EnvQueueDir         = "LOGSHIP_QUEUE_DIR"
	EnvDebug            = "LOGSHIP_DEBUG"
	EnvMetricsAddress   = "LOGSHIP_METRICS_ADDRESS"
	EnvTelemetryURL     = "LOGSHIP_TELEMETRY_ENDPOINT"
	EnvMemoryLimitRatio = "LOGSHIP_MEMORY_LIMIT_RATIO"
)

// ApplyEnv overlays LOGSHIP_* variables on c. LOGSHIP_TOKEN fills senders
// without a token, so secrets can stay out of the file. With no senders
// configured, LOGSHIP_TYPE creates one reading standard input. LOGSHIP_QUEUE_DIR
// is a base directory; each sender without queue_dir gets <base>/<type>.
// A nil lookup uses os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if typ, ok := lookup(EnvType); ok && typ != "" && len(c.Senders) == 0 {
		s := SenderConfig{Type: typ}
		s.applyDefaults()
		c.Senders = append(c.Senders, s)
	}

	for i := range c.Senders {
		s := &c.Senders[i]
		if v, ok := lookup(EnvToken); ok && s.Token == "" {
			s.Token = v
		}
		if v, ok := lookup(EnvListenerURL); ok && v != "" {
			s.ListenerURL = v
		}
		if v, ok := lookup(EnvQueueDir); ok && v != "" && s.QueueDir == "" {
			s.QueueDir = filepath.Join(v, s.Type)
		}
		if v, ok := lookup(EnvDebug); ok {
			debug, err := parseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", EnvDebug, err)
			}
			s.Debug = debug
		}
	}

	if v, ok := lookup(EnvMetricsAddress); ok {
		c.Metrics.Address = v
	}
	if v, ok := lookup(EnvTelemetryURL); ok {
		c.Telemetry.Endpoint = v
	}
	if v, ok := lookup(EnvMemoryLimitRatio); ok {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMemoryLimitRatio, err)
		}
		c.Memory.LimitRatio = ratio
	}
	return nil
}
