// Package health serves liveness and readiness probes for the logship
// process. Readiness has one check per sender.
package health

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/szibis/logship/internal/queue"
)

// Status represents the health status of a component.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// ComponentCheck is the state of one component.
type ComponentCheck struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the JSON body returned by health endpoints.
type Response struct {
	Status     Status                    `json:"status"`
	Components map[string]ComponentCheck `json:"components,omitempty"`
	Timestamp  string                    `json:"timestamp"`
	Uptime     string                    `json:"uptime,omitempty"`
}

// CheckFunc reports a component's state. detail is shown for healthy
// components too; err marks the component down.
type CheckFunc func() (detail string, err error)

// Checker provides liveness and readiness probes.
type Checker struct {
	mu              sync.RWMutex
	readinessChecks map[string]CheckFunc
	shuttingDown    atomic.Bool
	started         time.Time
}

// New creates a Checker.
func New() *Checker {
	return &Checker{
		readinessChecks: make(map[string]CheckFunc),
		started:         time.Now(),
	}
}

// RegisterReadiness registers a named readiness check, replacing any check
// with the same name.
func (c *Checker) RegisterReadiness(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readinessChecks[name] = check
}

// SetShuttingDown makes both probes return 503.
func (c *Checker) SetShuttingDown() {
	c.shuttingDown.Store(true)
}

// Sender is the view of a sender a readiness check needs.
type Sender interface {
	Stopped() bool
	Queue() queue.Queue
}

// SenderCheck is down once the sender is stopped and reports its backlog.
func SenderCheck(s Sender) CheckFunc {
	return func() (string, error) {
		if s.Stopped() {
			return "", errors.New("sender is stopped")
		}
		q := s.Queue()
		return fmt.Sprintf("pending=%d bytes=%d", q.Len(), q.Bytes()), nil
	}
}

// Handler returns a mux serving /live and /ready.
func (c *Checker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/live", c.LiveHandler())
	mux.HandleFunc("/ready", c.ReadyHandler())
	return mux
}

func (c *Checker) down() Response {
	return Response{
		Status:    StatusDown,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Components: map[string]ComponentCheck{
			"process": {Status: StatusDown, Message: "shutting down"},
		},
	}
}

// LiveHandler answers 200 while the process runs and is not shutting down.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c.shuttingDown.Load() {
			writeJSON(w, http.StatusServiceUnavailable, c.down())
			return
		}
		writeJSON(w, http.StatusOK, Response{
			Status:    StatusUp,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Uptime:    time.Since(c.started).Truncate(time.Second).String(),
		})
	}
}

// ReadyHandler runs every registered check; any failure answers 503.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c.shuttingDown.Load() {
			writeJSON(w, http.StatusServiceUnavailable, c.down())
			return
		}

		c.mu.RLock()
		checks := make(map[string]CheckFunc, len(c.readinessChecks))
		for k, v := range c.readinessChecks {
			checks[k] = v
		}
		c.mu.RUnlock()

		overall := StatusUp
		components := make(map[string]ComponentCheck, len(checks))
		for name, check := range checks {
			detail, err := check()
			if err != nil {
				overall = StatusDown
				components[name] = ComponentCheck{Status: StatusDown, Message: err.Error()}
				continue
			}
			components[name] = ComponentCheck{Status: StatusUp, Message: detail}
		}

		code := http.StatusOK
		if overall == StatusDown {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, Response{
			Status:     overall,
			Components: components,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
