package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// goPool runs each submitted function on its own goroutine.
type goPool struct{ wg sync.WaitGroup }

func (p *goPool) Submit(_ context.Context, fn func()) error {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
	return nil
}

type rejectingPool struct{}

func (rejectingPool) Submit(context.Context, func()) error {
	return errors.New("pool full")
}

func TestDispatcherRunsJob(t *testing.T) {
	pool := &goPool{}
	d := NewDispatcher(pool)

	done := make(chan struct{})
	err := d.Submit(context.Background(), "recording/a", func(context.Context) {
		close(done)
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}
	pool.wg.Wait()
	if d.InFlight("recording/a") {
		t.Error("key still in flight after completion")
	}
}

func TestDispatcherSerializesPerKey(t *testing.T) {
	pool := &goPool{}
	d := NewDispatcher(pool)

	var concurrent, peak atomic.Int32
	release := make(chan struct{})
	job := func(context.Context) {
		n := concurrent.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		concurrent.Add(-1)
	}

	if err := d.Submit(context.Background(), "chunk/x", job); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// Wait for the first job to be running before coalescing on the key.
	for concurrent.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	if err := d.Submit(context.Background(), "chunk/x", job); err != nil {
		t.Fatalf("second submit: %v", err)
	}

	close(release)
	pool.wg.Wait()

	if got := peak.Load(); got != 1 {
		t.Errorf("peak concurrency for one key = %d, want 1", got)
	}
}

func TestDispatcherCoalescesTrailingJobs(t *testing.T) {
	pool := &goPool{}
	d := NewDispatcher(pool)

	var ran []string
	var mu sync.Mutex
	record := func(name string) Job {
		return func(context.Context) {
			mu.Lock()
			ran = append(ran, name)
			mu.Unlock()
		}
	}

	gate := make(chan struct{})
	started := make(chan struct{})
	if err := d.Submit(context.Background(), "batch/b", func(ctx context.Context) {
		close(started)
		<-gate
		record("first")(ctx)
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started

	// Both land while the first is running; only the last survives.
	if err := d.Submit(context.Background(), "batch/b", record("second")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := d.Submit(context.Background(), "batch/b", record("third")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	close(gate)
	pool.wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 2 || ran[0] != "first" || ran[1] != "third" {
		t.Errorf("ran = %v, want [first third]", ran)
	}
}

func TestDispatcherIndependentKeys(t *testing.T) {
	pool := &goPool{}
	d := NewDispatcher(pool)

	var count atomic.Int32
	for _, key := range []string{"recording/1", "recording/2", "chunk/1"} {
		if err := d.Submit(context.Background(), key, func(context.Context) {
			count.Add(1)
		}); err != nil {
			t.Fatalf("submit %s: %v", key, err)
		}
	}
	pool.wg.Wait()
	if got := count.Load(); got != 3 {
		t.Errorf("jobs ran = %d, want 3", got)
	}
}

func TestDispatcherPoolRejection(t *testing.T) {
	d := NewDispatcher(rejectingPool{})

	err := d.Submit(context.Background(), "recording/r", func(context.Context) {})
	if err == nil {
		t.Fatal("expected error from rejecting pool")
	}
	if d.InFlight("recording/r") {
		t.Error("rejected job left the key in flight")
	}
}
