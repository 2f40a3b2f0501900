// Package pipeline routes background jobs to their engines, with
// at-most-one in-flight job per key so work on one recording, chunk or
// batch is serialized without any global lock.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
)

// Job is one unit of keyed background work.
type Job func(ctx context.Context)

// Pool is the subset of the frame worker pool the dispatcher submits to.
type Pool interface {
	Submit(ctx context.Context, fn func()) error
}

// Dispatcher runs jobs on the worker pool, serialized per key. A job
// submitted while another with the same key is running is coalesced into
// one trailing re-run, which is sufficient for idempotent recomputation.
type Dispatcher struct {
	pool Pool

	mu       sync.Mutex
	inflight map[string]bool
	pending  map[string]Job
}

// NewDispatcher creates a dispatcher over the given worker pool.
func NewDispatcher(pool Pool) *Dispatcher {
	return &Dispatcher{
		pool:     pool,
		inflight: make(map[string]bool),
		pending:  make(map[string]Job),
	}
}

// Submit schedules the job for the key. When a job with the same key is
// already running the new job replaces any queued trailing run instead of
// executing concurrently.
func (d *Dispatcher) Submit(ctx context.Context, key string, job Job) error {
	d.mu.Lock()
	if d.inflight[key] {
		d.pending[key] = job
		d.mu.Unlock()
		return nil
	}
	d.inflight[key] = true
	d.mu.Unlock()

	return d.dispatch(ctx, key, job)
}

func (d *Dispatcher) dispatch(ctx context.Context, key string, job Job) error {
	err := d.pool.Submit(ctx, func() {
		d.run(ctx, key, job)
	})
	if err != nil {
		d.mu.Lock()
		delete(d.inflight, key)
		delete(d.pending, key)
		d.mu.Unlock()
		slog.WarnContext(ctx, "worker pool rejected job", slog.String("key", key))
	}
	return err
}

func (d *Dispatcher) run(ctx context.Context, key string, job Job) {
	for {
		job(ctx)

		d.mu.Lock()
		next, ok := d.pending[key]
		if !ok {
			delete(d.inflight, key)
			d.mu.Unlock()
			return
		}
		delete(d.pending, key)
		d.mu.Unlock()
		job = next
	}
}

// InFlight reports whether a job with the key is currently running.
func (d *Dispatcher) InFlight(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inflight[key]
}
