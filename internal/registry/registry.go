// Package registry keeps at most one sender per stream type.
package registry

import (
	"sort"
	"sync"

	"github.com/szibis/logship/internal/sender"
	"github.com/szibis/logship/internal/status"
)

// Registry maps stream types to senders. Entries are never removed.
type Registry struct {
	mu      sync.Mutex
	senders map[string]*sender.Sender
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{senders: make(map[string]*sender.Sender)}
}

// GetOrCreate returns the sender registered for cfg.Type, or builds and
// registers a new one. An existing sender is returned unchanged even when
// cfg differs; the reporter is warned.
func (r *Registry) GetOrCreate(cfg sender.Config, opts sender.Options) (*sender.Sender, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.senders[cfg.Type]; ok {
		reporter := opts.Reporter
		if reporter == nil {
			reporter = status.Logger{Type: cfg.Type}
		}
		reporter.Warning("Already found appender configured for type "+cfg.Type+", re-using the same one.", nil)
		return s, nil
	}

	s, err := sender.New(cfg, opts)
	if err != nil {
		return nil, err
	}
	r.senders[cfg.Type] = s
	return s, nil
}

// Get returns the sender for typ.
func (r *Registry) Get(typ string) (*sender.Sender, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.senders[typ]
	return s, ok
}

// Types returns the registered stream types in sorted order.
func (r *Registry) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.senders))
	for t := range r.senders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// StopAll stops every sender concurrently and waits for them.
func (r *Registry) StopAll() {
	r.mu.Lock()
	senders := make([]*sender.Sender, 0, len(r.senders))
	for _, s := range r.senders {
		senders = append(senders, s)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range senders {
		wg.Add(1)
		go func(s *sender.Sender) {
			defer wg.Done()
			s.Stop()
		}(s)
	}
	wg.Wait()
}
