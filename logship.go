// Package logship is a reliable asynchronous log shipping client.
//
// Records are buffered in a durable disk queue (or a bounded in-memory
// queue), drained on a fixed interval in batches of up to 3 MiB and posted
// to an HTTP listener with retries. A Registry keeps one Sender per stream
// type so every producer of a type shares a single queue and drain loop.
//
//	reg := logship.NewRegistry()
//	cfg := logship.DefaultConfig()
//	cfg.Token, cfg.Type = token, "app"
//	s, err := reg.GetOrCreate(cfg, logship.Options{})
//	if err != nil {
//		return err
//	}
//	s.Start()
//	defer reg.StopAll()
//	s.Send([]byte(`{"message":"hello"}`))
package logship

import (
	"github.com/szibis/logship/internal/registry"
	"github.com/szibis/logship/internal/sender"
	"github.com/szibis/logship/internal/status"
)

type (
	// Sender ships records of one stream type.
	Sender = sender.Sender
	// Config configures a Sender.
	Config = sender.Config
	// Options carries the collaborators of a Sender.
	Options = sender.Options
	// Record is one formatted log line.
	Record = sender.Record
	// Registry holds one Sender per type.
	Registry = registry.Registry
	// Reporter receives status messages from senders.
	Reporter = status.Reporter
)

// NewRegistry returns an empty sender registry.
func NewRegistry() *Registry { return registry.New() }

// NewSender builds a standalone Sender that is not shared through a registry.
func NewSender(cfg Config, opts Options) (*Sender, error) { return sender.New(cfg, opts) }

// DefaultConfig returns the sender defaults.
func DefaultConfig() Config { return sender.DefaultConfig() }
