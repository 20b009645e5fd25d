package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/szibis/logship/internal/config"
	"github.com/szibis/logship/internal/logging"
	"github.com/szibis/logship/internal/sender"
)

type collector struct {
	mu    sync.Mutex
	lines []string
	urls  []string
}

func (c *collector) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.urls = append(c.urls, r.URL.RawQuery)
	c.lines = append(c.lines, strings.Split(string(body), "\n")...)
	c.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func quietLogs(t *testing.T) {
	logging.SetOutput(io.Discard)
	t.Cleanup(func() { logging.SetOutput(os.Stderr) })
}

func agentConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg.Metrics.Address = ""
	cfg.Memory.LimitRatio = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return cfg
}

func TestAgent_ShipsStdinAndDrainsOnEOF(t *testing.T) {
	quietLogs(t)
	c := &collector{}
	srv := httptest.NewServer(http.HandlerFunc(c.handler))
	defer srv.Close()

	cfg := agentConfig(t, `
senders:
  - token: abc
    type: app
    listener_url: `+srv.URL+`
    drain_interval: 1h
    in_memory_queue: true
    additional_fields: "env=test"
`)

	a := newAgent(cfg, strings.NewReader("first\nsecond\n"))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) != 2 {
		t.Fatalf("received %d lines, want 2: %q", len(c.lines), c.lines)
	}
	for i, want := range []string{"first", "second"} {
		var rec map[string]any
		if err := json.Unmarshal([]byte(c.lines[i]), &rec); err != nil {
			t.Fatalf("line %d is not JSON: %v", i, err)
		}
		if rec["message"] != want {
			t.Errorf("line %d message = %v, want %s", i, rec["message"], want)
		}
		if rec["logger"] != "stdin" || rec["env"] != "test" {
			t.Errorf("line %d = %v", i, rec)
		}
	}
	if !strings.Contains(c.urls[0], "token=abc") || !strings.Contains(c.urls[0], "type=app") {
		t.Errorf("query = %q", c.urls[0])
	}

	s, ok := a.registry.Get("app")
	if !ok || !s.Stopped() {
		t.Error("sender was not stopped on shutdown")
	}
}

func TestAgent_CancelStopsFileSources(t *testing.T) {
	quietLogs(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	path := t.TempDir() + "/app.log"
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := agentConfig(t, `
senders:
  - token: abc
    type: files
    listener_url: `+srv.URL+`
    queue_dir: `+t.TempDir()+`
    sources: ["`+path+`"]
`)

	a := newAgent(cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestAgent_InvalidSenderFailsStartup(t *testing.T) {
	quietLogs(t)
	cfg := agentConfig(t, `
senders:
  - token: abc
    type: app
`)
	// An unusable queue directory fails sender construction.
	blocker := t.TempDir() + "/file"
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Senders[0].QueueDir = blocker + "/queue"

	a := newAgent(cfg, strings.NewReader(""))
	a.senderOptions = func(string) sender.Options { return sender.Options{} }
	if err := a.run(context.Background()); err == nil {
		t.Fatal("expected startup error")
	}
}
