// Package scheduler runs named fixed-delay tasks on a shared, bounded pool.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/szibis/logship/internal/logging"
)

// DefaultWorkers bounds concurrent task runs when NewPool gets a
// non-positive value.
const DefaultWorkers = 3

// PanicHandler is called with the recovered value when a task run panics.
type PanicHandler func(task string, recovered any)

// Pool schedules tasks and limits how many of them run at once. Runs of a
// single task never overlap: the next delay starts after the previous run
// returns.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
	sem    *semaphore.Weighted

	mu      sync.Mutex
	tasks   map[*Task]struct{}
	closed  bool
	onPanic PanicHandler
}

// NewPool creates a pool allowing workers concurrent task runs.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		ctx:    ctx,
		cancel: cancel,
		sem:    semaphore.NewWeighted(int64(workers)),
		tasks:  make(map[*Task]struct{}),
	}
}

// SetPanicHandler replaces the default handler, which logs the panic.
func (p *Pool) SetPanicHandler(h PanicHandler) {
	p.mu.Lock()
	p.onPanic = h
	p.mu.Unlock()
}

// Task is a handle on a scheduled job.
type Task struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	runs   atomic.Int64
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Runs returns how many runs have completed.
func (t *Task) Runs() int64 { return t.runs.Load() }

// Cancel stops future runs and interrupts the current one through its
// context, then waits for it to return.
func (t *Task) Cancel() {
	t.cancel()
	<-t.done
}

// Done is closed once the task will never run again.
func (t *Task) Done() <-chan struct{} { return t.done }

// Every runs fn after initialDelay and then again delay after each run
// returns, until the task or the pool is cancelled.
func (p *Pool) Every(name string, initialDelay, delay time.Duration, fn func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(p.ctx)
	t := &Task{name: name, cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		close(t.done)
		return t
	}
	p.tasks[t] = struct{}{}
	p.mu.Unlock()

	if delay <= 0 {
		delay = time.Second
	}
	if initialDelay < 0 {
		initialDelay = 0
	}

	p.group.Go(func() error {
		defer close(t.done)
		defer p.forget(t)

		timer := time.NewTimer(initialDelay)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-timer.C:
			}

			if err := p.sem.Acquire(ctx, 1); err != nil {
				return nil
			}
			p.run(ctx, t, fn)
			p.sem.Release(1)

			timer.Reset(delay)
		}
	})
	return t
}

func (p *Pool) run(ctx context.Context, t *Task, fn func(context.Context)) {
	start := time.Now()
	defer func() {
		taskDuration.WithLabelValues(t.name).Observe(time.Since(start).Seconds())
		t.runs.Add(1)
		taskRunsTotal.WithLabelValues(t.name).Inc()

		if r := recover(); r != nil {
			taskPanicsTotal.WithLabelValues(t.name).Inc()
			p.mu.Lock()
			h := p.onPanic
			p.mu.Unlock()
			if h != nil {
				h(t.name, r)
				return
			}
			logging.Error("scheduled task panicked", logging.F(
				"task", t.name,
				"panic", fmt.Sprint(r),
			))
		}
	}()
	fn(ctx)
}

func (p *Pool) forget(t *Task) {
	p.mu.Lock()
	delete(p.tasks, t)
	p.mu.Unlock()
}

// Len returns the number of live tasks.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// Shutdown cancels every task and waits for in-flight runs to return, or
// for ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()

	done := make(chan struct{})
	go func() {
		_ = p.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}
