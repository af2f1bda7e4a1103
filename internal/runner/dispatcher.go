package runner

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ppiankov/patchpilot/internal/model"
	"github.com/ppiankov/patchpilot/internal/store"
	"github.com/ppiankov/patchpilot/internal/telemetry"
)

const (
	DefaultWorkers   = 2
	DefaultQueueSize = 100
)

// interruptedMessage is recorded on runs a previous process left IN_PROGRESS.
const interruptedMessage = "interrupted: process stopped before completion"

// Executor runs one run to completion.
type Executor interface {
	Execute(ctx context.Context, runID string) error
}

// DispatcherConfig holds worker pool parameters.
type DispatcherConfig struct {
	Workers   int
	QueueSize int
}

// Dispatcher hands run ids to a fixed pool of workers. Producers never
// block on run execution.
type Dispatcher struct {
	exec    Executor
	store   store.Store
	workers int
	queue   chan string

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	draining atomic.Bool
}

// NewDispatcher creates a dispatcher. Zero config values take defaults.
func NewDispatcher(exec Executor, st store.Store, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &Dispatcher{
		exec:    exec,
		store:   st,
		workers: cfg.Workers,
		queue:   make(chan string, cfg.QueueSize),
	}
}

// Enqueue schedules a run without blocking. It returns false when the queue
// is full or the dispatcher is stopped; the run then stays PENDING and is
// picked up again by the next Start.
func (d *Dispatcher) Enqueue(runID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		slog.Warn("dispatcher stopped, run left pending", "run", runID)
		return false
	}
	select {
	case d.queue <- runID:
		telemetry.QueueDepth.Inc()
		slog.Debug("run enqueued", "run", runID)
		return true
	default:
		slog.Warn("run queue full, run left pending", "run", runID)
		return false
	}
}

// Start launches the workers and recovers runs left over by a previous
// process: IN_PROGRESS runs are marked FAILED and PENDING runs are queued
// again, oldest first.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return fmt.Errorf("dispatcher already started")
	}
	if d.stopped {
		return fmt.Errorf("dispatcher already stopped")
	}
	d.started = true

	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel

	// start workers
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for id := range d.queue {
				telemetry.QueueDepth.Dec()
				if d.draining.Load() || workCtx.Err() != nil {
					// shutting down; the run stays PENDING for the next start
					continue
				}
				if err := d.exec.Execute(workCtx, id); err != nil {
					slog.Error("execute run", "run", id, "error", err)
				}
			}
		}()
	}
	slog.Info("dispatcher started", "workers", d.workers, "queue", cap(d.queue))

	interrupted, requeued, err := d.recoverLocked(ctx)
	if err != nil {
		return fmt.Errorf("recover runs: %w", err)
	}
	if interrupted > 0 || requeued > 0 {
		slog.Info("recovered runs", "interrupted", interrupted, "requeued", requeued)
	}
	return nil
}

func (d *Dispatcher) recoverLocked(ctx context.Context) (interrupted, requeued int, err error) {
	stale, err := d.store.RunsByStatus(ctx, model.RunInProgress)
	if err != nil {
		return 0, 0, err
	}
	now := time.Now()
	for i := range stale {
		r := stale[i]
		r.Status = model.RunFailed
		r.ErrorMessage = interruptedMessage
		r.CompletedAt = &now
		if err := d.store.SaveRun(ctx, &r); err != nil {
			slog.Warn("mark run interrupted", "run", r.ID, "error", err)
			continue
		}
		telemetry.RunsTotal.WithLabelValues(string(model.RunFailed)).Inc()
		interrupted++
	}

	pending, err := d.store.RunsByStatus(ctx, model.RunPending)
	if err != nil {
		return interrupted, 0, err
	}
	slices.Reverse(pending)
	for _, r := range pending {
		select {
		case d.queue <- r.ID:
			telemetry.QueueDepth.Inc()
			requeued++
		case <-ctx.Done():
			return interrupted, requeued, ctx.Err()
		}
	}
	return interrupted, requeued, nil
}

// Stop closes the queue and waits for in-flight runs. Queued runs that have
// not started are left PENDING. If ctx ends first, in-flight runs are
// cancelled and ctx's error is returned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	d.draining.Store(true)
	close(d.queue)
	cancel := d.cancel
	d.mu.Unlock()

	if cancel == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		slog.Info("dispatcher stopped")
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}
