package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/szibis/logship/internal/config"
	"github.com/szibis/logship/internal/format"
	"github.com/szibis/logship/internal/health"
	"github.com/szibis/logship/internal/logging"
	"github.com/szibis/logship/internal/registry"
	"github.com/szibis/logship/internal/scheduler"
	"github.com/szibis/logship/internal/sender"
	"github.com/szibis/logship/internal/status"
	"github.com/szibis/logship/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

// agent wires sources, senders and the metrics server for one run.
type agent struct {
	cfg      *config.Config
	stdin    io.Reader
	registry *registry.Registry
	health   *health.Checker
	pool     *scheduler.Pool

	// senderOptions lets tests replace transport and timers.
	senderOptions func(typ string) sender.Options
}

func newAgent(cfg *config.Config, stdin io.Reader) *agent {
	return &agent{
		cfg:      cfg,
		stdin:    stdin,
		registry: registry.New(),
		health:   health.New(),
	}
}

// run blocks until every source is exhausted or ctx is cancelled, then
// stops all senders with their final drain.
func (a *agent) run(ctx context.Context) error {
	logging.SetResource(map[string]string{
		"service.name":    telemetry.ServiceName,
		"service.version": version,
	})
	logging.SetDebug(a.cfg.Debug())

	if ratio := a.cfg.Memory.LimitRatio; ratio > 0 {
		limit, err := memlimit.SetGoMemLimitWithOpts(
			memlimit.WithRatio(ratio),
			memlimit.WithProvider(memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)),
		)
		if err != nil {
			logging.Warn("failed to set memory limit", logging.F("error", err.Error()))
		} else {
			logging.Info("memory limit set", logging.F("limit_bytes", limit, "ratio", ratio))
		}
	}

	tel, err := telemetry.Init(ctx, a.cfg.TelemetryConfig(), version)
	if err != nil {
		return fmt.Errorf("failed to start telemetry: %w", err)
	}
	tel.Install()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), tel.ShutdownTimeout())
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			logging.Warn("telemetry shutdown error", logging.F("error", err.Error()))
		}
	}()

	workers := scheduler.DefaultWorkers
	if n := 2 * len(a.cfg.Senders); n > workers {
		workers = n
	}
	a.pool = scheduler.NewPool(workers)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.pool.Shutdown(sctx); err != nil {
			logging.Warn("scheduler shutdown error", logging.F("error", err.Error()))
		}
	}()

	sources, err := a.startSenders()
	if err != nil {
		a.registry.StopAll()
		return err
	}

	srv := a.startServer()

	logging.Info("logship started", logging.F("senders", a.registry.Types(), "version", version))

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		g.Go(func() error { return src(gctx) })
	}
	srcErr := g.Wait()
	if srcErr != nil {
		logging.Error("source failed", logging.F("error", srcErr.Error()))
	}

	logging.Info("shutting down, draining senders")
	a.health.SetShuttingDown()
	a.registry.StopAll()

	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(sctx); err != nil {
			logging.Warn("metrics server shutdown error", logging.F("error", err.Error()))
		}
		cancel()
	}

	logging.Info("logship stopped")
	return srcErr
}

// startSenders creates and starts one sender per configured type and
// returns a reader function for each of its sources.
func (a *agent) startSenders() ([]func(context.Context) error, error) {
	var sources []func(context.Context) error

	for _, sc := range a.cfg.Senders {
		reporter := status.Logger{Type: sc.Type}
		opts := sender.Options{}
		if a.senderOptions != nil {
			opts = a.senderOptions(sc.Type)
		}
		opts.Reporter = reporter
		opts.Pool = a.pool

		s, err := a.registry.GetOrCreate(sc.SenderConfig(), opts)
		if err != nil {
			return nil, fmt.Errorf("sender %q: %w", sc.Type, err)
		}
		s.Start()
		a.health.RegisterReadiness("sender:"+sc.Type, health.SenderCheck(s))

		f := format.New(format.Options{
			AdditionalFields: sc.AdditionalFields,
			AddHostname:      sc.AddHostname,
			Reporter:         reporter,
		})

		for _, path := range sc.Sources {
			sources = append(sources, a.source(path, s, f))
		}
	}
	return sources, nil
}

func (a *agent) source(path string, s *sender.Sender, f *format.Formatter) func(context.Context) error {
	logger := path
	if path == config.StdinSource {
		logger = "stdin"
	}
	emit := func(line string) {
		payload, err := f.Line(logger, line)
		if err != nil {
			logging.Warn("failed to format line", logging.F("source", logger, "error", err.Error()))
			return
		}
		s.Send(payload)
	}

	if path == config.StdinSource {
		return func(ctx context.Context) error {
			if a.stdin == nil {
				return nil
			}
			return readLines(ctx, a.stdin, emit)
		}
	}
	return func(ctx context.Context) error {
		if err := followFile(ctx, path, emit); err != nil {
			return fmt.Errorf("source %s: %w", path, err)
		}
		return nil
	}
}

// startServer serves metrics and health probes; nil when disabled.
func (a *agent) startServer() *http.Server {
	if a.cfg.Metrics.Address == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, promhttp.Handler())
	mux.HandleFunc("/live", a.health.LiveHandler())
	mux.HandleFunc("/ready", a.health.ReadyHandler())

	srv := &http.Server{
		Addr:              a.cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logging.Info("metrics server listening", logging.F("addr", srv.Addr, "path", a.cfg.Metrics.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("metrics server error", logging.F("error", err.Error()))
		}
	}()
	return srv
}
