// Package sender ties a queue, a backpressure gate and the delivery client
// into one asynchronous log shipper per stream type.
//
// Producers call Send, which only checks the gate and enqueues. A scheduled
// drain task moves records from the queue to the listener in batches, and a
// GC task reclaims disk queue chunks that were already delivered.
package sender

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/szibis/logship/internal/backpressure"
	"github.com/szibis/logship/internal/compression"
	"github.com/szibis/logship/internal/delivery"
	"github.com/szibis/logship/internal/queue"
	"github.com/szibis/logship/internal/scheduler"
	"github.com/szibis/logship/internal/status"
)

const (
	// FinalDrainTimeout bounds the drain run by Stop.
	FinalDrainTimeout = 20 * time.Second

	DefaultListenerURL                = "https://listener.logz.io:8071"
	DefaultDrainInterval              = 5 * time.Second
	DefaultSocketTimeout              = 10 * time.Second
	DefaultConnectTimeout             = 10 * time.Second
	DefaultGCInterval                 = 30 * time.Second
	DefaultFileSystemFullPercent      = 98
	DefaultInMemoryQueueCapacityBytes = 100 * 1024 * 1024
	DefaultInMemoryLogsCountLimit     = queue.Unbounded
)

// ErrStopped is the cause reported for records sent after Stop.
var ErrStopped = errors.New("sender is stopped")

// Config configures one sender. Use DefaultConfig as the starting point.
type Config struct {
	Token       string
	Type        string
	ListenerURL string

	DrainInterval  time.Duration
	SocketTimeout  time.Duration
	ConnectTimeout time.Duration
	GCInterval     time.Duration

	// FileSystemFullPercentThreshold drops records while the queue's
	// filesystem is at least this full. -1 disables the check.
	FileSystemFullPercentThreshold int
	// QueueDir is the disk queue directory. Empty means
	// <os.TempDir>/logship/<Type>.
	QueueDir string

	InMemoryQueue bool
	// InMemoryQueueCapacityBytes bounds the memory queue (-1 unbounded).
	InMemoryQueueCapacityBytes int64
	// InMemoryLogsCountLimit bounds the memory queue by entries (-1 unbounded).
	InMemoryLogsCountLimit int

	Compress    bool
	Compression compression.Type

	// Debug forwards "DEBUG: " prefixed progress messages to the reporter.
	Debug bool
}

// DefaultConfig returns a Config with every tunable at its default.
func DefaultConfig() Config {
	return Config{
		ListenerURL:                    DefaultListenerURL,
		DrainInterval:                  DefaultDrainInterval,
		SocketTimeout:                  DefaultSocketTimeout,
		ConnectTimeout:                 DefaultConnectTimeout,
		GCInterval:                     DefaultGCInterval,
		FileSystemFullPercentThreshold: DefaultFileSystemFullPercent,
		InMemoryQueueCapacityBytes:     DefaultInMemoryQueueCapacityBytes,
		InMemoryLogsCountLimit:         DefaultInMemoryLogsCountLimit,
	}
}

// DefaultQueueDir returns the queue directory used when QueueDir is empty.
func DefaultQueueDir(typ string) string {
	return filepath.Join(os.TempDir(), "logship", typ)
}

// Options carries collaborators. Every field is optional.
type Options struct {
	// Reporter receives diagnostics (default: status.Logger).
	Reporter status.Reporter
	// Pool runs the drain and GC tasks. A sender creates and owns one when
	// nil; a supplied pool is never shut down by Stop.
	Pool *scheduler.Pool
	// HTTPClient replaces the client built from the timeouts.
	HTTPClient *http.Client
	// Sleep replaces the backoff timer.
	Sleep delivery.SleepFunc
	// DiskUsage replaces statfs for the disk gate.
	DiskUsage backpressure.UsageFunc
	// ChunkFileSize overrides the disk queue chunk size.
	ChunkFileSize int64
}

// Sender ships records of one stream type.
type Sender struct {
	cfg      Config
	reporter status.Reporter
	queue    queue.Queue
	gate     backpressure.Gate
	client   *delivery.Client
	pool     *scheduler.Pool
	ownsPool bool

	// ctx is cancelled by Stop and interrupts on-demand drains.
	ctx    context.Context
	cancel context.CancelFunc

	// drainSlot holds a token while a drain runs.
	drainSlot chan struct{}
	stopped   atomic.Bool

	mu        sync.Mutex
	started   bool
	drainTask *scheduler.Task
	gcTask    *scheduler.Task
	stopOnce  sync.Once
}

// New validates cfg, opens the queue and builds the delivery client.
// Configuration errors are reported through the reporter and returned.
func New(cfg Config, opts Options) (*Sender, error) {
	reporter := opts.Reporter
	if reporter == nil {
		reporter = status.Logger{Type: cfg.Type}
	}

	s, err := build(cfg, opts)
	if err != nil {
		reporter.Error("Invalid sender configuration", err)
		return nil, err
	}
	s.reporter = reporter
	s.debug("Created new sender")
	return s, nil
}

func build(cfg Config, opts Options) (*Sender, error) {
	if cfg.Token == "" {
		return nil, errors.New("token is required")
	}
	if cfg.Type == "" {
		return nil, errors.New("type is required")
	}
	if cfg.ListenerURL == "" {
		cfg.ListenerURL = DefaultListenerURL
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = DefaultDrainInterval
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = DefaultGCInterval
	}
	if cfg.InMemoryQueue {
		if cfg.InMemoryQueueCapacityBytes == 0 || cfg.InMemoryQueueCapacityBytes < queue.Unbounded {
			return nil, fmt.Errorf("in-memory queue capacity must be positive or %d, got %d", queue.Unbounded, cfg.InMemoryQueueCapacityBytes)
		}
		if cfg.InMemoryLogsCountLimit == 0 || cfg.InMemoryLogsCountLimit < queue.Unbounded {
			return nil, fmt.Errorf("in-memory logs count limit must be positive or %d, got %d", queue.Unbounded, cfg.InMemoryLogsCountLimit)
		}
	} else if err := backpressure.ValidateThreshold(cfg.FileSystemFullPercentThreshold); err != nil {
		return nil, err
	}

	comp := compression.Config{Type: compression.TypeNone}
	if cfg.Compress {
		comp.Type = cfg.Compression
		if !comp.Type.Enabled() {
			comp.Type = compression.TypeGzip
		}
	}

	client, err := delivery.New(delivery.Config{
		ListenerURL:    cfg.ListenerURL,
		Token:          cfg.Token,
		Type:           cfg.Type,
		ConnectTimeout: cfg.ConnectTimeout,
		SocketTimeout:  cfg.SocketTimeout,
		Compression:    comp,
		HTTPClient:     opts.HTTPClient,
		Sleep:          opts.Sleep,
	})
	if err != nil {
		return nil, err
	}

	var (
		q    queue.Queue
		gate backpressure.Gate
	)
	if cfg.InMemoryQueue {
		mq := queue.NewMemoryQueue(cfg.Type, cfg.InMemoryQueueCapacityBytes, cfg.InMemoryLogsCountLimit)
		q = mq
		gate = &backpressure.CapacityGate{
			Queue:      mq,
			MaxBytes:   cfg.InMemoryQueueCapacityBytes,
			MaxEntries: cfg.InMemoryLogsCountLimit,
		}
	} else {
		if cfg.QueueDir == "" {
			cfg.QueueDir = DefaultQueueDir(cfg.Type)
		}
		dq, err := queue.NewDiskQueue(queue.DiskQueueConfig{
			Path:          cfg.QueueDir,
			Name:          cfg.Type,
			ChunkFileSize: opts.ChunkFileSize,
		})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to open queue directory %s: %w", cfg.QueueDir, err)
		}
		q = dq
		gate = backpressure.NewDiskGate(cfg.QueueDir, cfg.FileSystemFullPercentThreshold)
		if dg, ok := gate.(*backpressure.DiskGate); ok && opts.DiskUsage != nil {
			dg.Usage = opts.DiskUsage
		}
	}

	pool, owns := opts.Pool, false
	if pool == nil {
		pool, owns = scheduler.NewPool(scheduler.DefaultWorkers), true
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Sender{
		cfg:      cfg,
		queue:    q,
		gate:     gate,
		client:   client,
		pool:     pool,
		ownsPool: owns,
		ctx:      ctx,
		cancel:   cancel,

		drainSlot: make(chan struct{}, 1),
	}, nil
}

// Config returns the effective configuration.
func (s *Sender) Config() Config { return s.cfg }

// Type returns the stream type.
func (s *Sender) Type() string { return s.cfg.Type }

// Queue exposes the underlying queue for health checks.
func (s *Sender) Queue() queue.Queue { return s.queue }

// Stopped reports whether Stop was called.
func (s *Sender) Stopped() bool { return s.stopped.Load() }

// Start schedules the drain task, first run immediately, and for disk queues
// the GC task. Calling Start twice or after Stop does nothing.
func (s *Sender) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped.Load() {
		return
	}
	s.started = true

	s.drainTask = s.pool.Every("drain:"+s.cfg.Type, 0, s.cfg.DrainInterval, func(ctx context.Context) {
		s.drain(ctx)
	})
	if c, ok := s.queue.(queue.Compactor); ok {
		s.gcTask = s.pool.Every("gc:"+s.cfg.Type, 0, s.cfg.GCInterval, func(context.Context) {
			s.gc(c)
		})
	}
}

// Send admits and enqueues one record. It never blocks on the network and
// never fails; drops are reported as warnings.
func (s *Sender) Send(payload []byte) {
	if s.stopped.Load() {
		s.drop("stopped", "Dropping logs, sender is stopped", ErrStopped)
		return
	}
	if err := s.gate.Admit(len(payload)); err != nil {
		reason := "rejected"
		var de *backpressure.DropError
		if errors.As(err, &de) {
			reason = de.Reason
		}
		s.drop(reason, err.Error(), nil)
		return
	}
	if err := s.queue.Enqueue(payload); err != nil {
		reason := "error"
		switch {
		case errors.Is(err, queue.ErrQueueFull):
			reason = backpressure.ReasonCapacity
		case errors.Is(err, queue.ErrDiskFull):
			reason = "disk_full"
		case errors.Is(err, queue.ErrQueueClosed):
			reason = "stopped"
		}
		s.drop(reason, "Dropping logs, could not enqueue", err)
	}
}

// SendRecord enqueues r.Payload.
func (s *Sender) SendRecord(r Record) { s.Send(r.Payload) }

func (s *Sender) drop(reason, msg string, cause error) {
	queue.IncrementDropped(s.cfg.Type, reason)
	s.reporter.Warning(msg, cause)
}

// Drain runs one drain cycle now. It returns false when another drain was
// already running.
func (s *Sender) Drain() bool {
	return s.drain(s.ctx)
}

func (s *Sender) drain(ctx context.Context) bool {
	select {
	case s.drainSlot <- struct{}{}:
	default:
		senderDrainSkippedTotal.WithLabelValues(s.cfg.Type).Inc()
		s.debug("Drain is running so we won't run another one in parallel")
		return false
	}
	defer func() { <-s.drainSlot }()
	s.runDrain(ctx)
	return true
}

// runDrain must be called with the drain slot held.
func (s *Sender) runDrain(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.reporter.Error("Uncaught error from sender", fmt.Errorf("panic: %v", r))
		}
	}()

	start := time.Now()
	s.drainQueue(ctx)
	senderDrainsTotal.WithLabelValues(s.cfg.Type).Inc()
	senderDrainDuration.WithLabelValues(s.cfg.Type).Observe(time.Since(start).Seconds())
}

// drainQueue sends batches until the queue is empty, a delivery needs to
// wait for the next cycle, or ctx is done.
func (s *Sender) drainQueue(ctx context.Context) {
	s.debug("Attempting to drain queue")
	for ctx.Err() == nil {
		b, err := collectBatch(ctx, s.queue, MaxBatchSizeBytes, func(err error) {
			s.reporter.Error("Skipped corrupt queue data", err)
		})
		if err != nil && !errors.Is(err, queue.ErrQueueClosed) {
			s.reporter.Error("Failed to read from queue", err)
		}
		if b.len() == 0 {
			return
		}
		if ctx.Err() != nil {
			// Accumulation was cut short and no request could complete.
			s.requeue(b)
			return
		}
		if !s.deliver(ctx, b) {
			return
		}
		if err != nil {
			return
		}
	}
	if ctx.Err() != nil {
		s.debug("Stopping drain, context is done")
	}
}

// deliver sends b and settles it in the queue. It returns false when the
// drain cycle must stop.
func (s *Sender) deliver(ctx context.Context, b *batch) bool {
	s.debug(fmt.Sprintf("Sending bulk of %d logs, %d bytes", b.len(), b.bytes))

	err := s.client.Send(ctx, b.records)
	var de *delivery.Error
	switch {
	case err == nil:
		s.commit(b, "sent")
		return true

	case errors.As(err, &de) && de.Type == delivery.ErrorTypeBadRequest:
		s.reporter.Warning("Got 400 from listener, here is the output: \n"+de.Message, nil)
		s.commit(b, "dropped")
		return true

	case errors.As(err, &de) && de.Type == delivery.ErrorTypeAuth:
		s.reporter.Error("Got forbidden! Your token is not right. Unfortunately, dropping logs. Message: "+de.Message, nil)
		s.commit(b, "dropped")
		return true
	}

	s.requeue(b)
	s.reporter.Warning("Could not send logs to listener, will retry in the next interval", err)
	return false
}

func (s *Sender) requeue(b *batch) {
	if err := s.queue.PushFront(b.records); err != nil {
		s.reporter.Error("Could not return unsent logs to the queue", err)
		return
	}
	senderRecordsTotal.WithLabelValues(s.cfg.Type, "requeued").Add(float64(b.len()))
}

func (s *Sender) commit(b *batch, outcome string) {
	if err := s.queue.Commit(); err != nil {
		s.reporter.Error("Failed to acknowledge delivered logs", err)
	}
	senderRecordsTotal.WithLabelValues(s.cfg.Type, outcome).Add(float64(b.len()))
}

func (s *Sender) gc(c queue.Compactor) {
	if err := c.Compact(); err != nil && !errors.Is(err, queue.ErrQueueClosed) {
		s.reporter.Error("Uncaught error from queue compaction", err)
	}
}

// Stop cancels the scheduled tasks, runs a final drain bounded by
// FinalDrainTimeout, closes the queue and, when owned, shuts the pool down.
// It is safe to call more than once.
func (s *Sender) Stop() {
	s.stopOnce.Do(s.stop)
}

func (s *Sender) stop() {
	s.debug("Got stop request, running a final drain before shutdown")
	s.stopped.Store(true)
	s.cancel()

	s.mu.Lock()
	drainTask, gcTask := s.drainTask, s.gcTask
	s.mu.Unlock()
	if drainTask != nil {
		drainTask.Cancel()
	}
	if gcTask != nil {
		gcTask.Cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), FinalDrainTimeout)
	// An on-demand Drain may still be unwinding from the cancelled context.
	select {
	case s.drainSlot <- struct{}{}:
		s.runDrain(ctx)
		<-s.drainSlot
	case <-ctx.Done():
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		s.reporter.Warning(fmt.Sprintf("Waited %s, but could not finish draining. quitting.", FinalDrainTimeout), nil)
	}
	cancel()

	if err := s.queue.Close(); err != nil {
		s.reporter.Error("Failed to close queue", err)
	}
	_ = s.client.Close()

	if s.ownsPool {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.pool.Shutdown(sctx); err != nil {
			s.reporter.Warning("Scheduled tasks did not stop in time", err)
		}
		scancel()
	}
}

func (s *Sender) debug(msg string) {
	if s.cfg.Debug {
		s.reporter.Info("DEBUG: " + msg)
	}
}
