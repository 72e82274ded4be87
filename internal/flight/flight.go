// Package flight collapses concurrent identical operations into a single
// execution. It is the in-flight request table behind request deduplication:
// the first caller for a key becomes the owner and runs the operation,
// later callers for the same key wait and receive the owner's result.
package flight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrEvicted is delivered to waiters whose entry was force-expired by the
// staleness sweep before the owning execution settled.
var ErrEvicted = errors.New("flight: entry evicted before completion")

// call is one in-flight execution. val and err are written under Table.mu
// before done is closed; waiters read them only after done is closed.
type call struct {
	done    chan struct{}
	val     interface{}
	err     error
	started time.Time
	cancel  context.CancelFunc
}

// Table maps keys to in-flight calls. A background sweep force-evicts
// entries older than maxAge so one stuck operation cannot starve its
// duplicates forever.
type Table struct {
	mu    sync.Mutex
	calls map[string]*call

	maxAge     time.Duration
	sweepEvery time.Duration
	stop       chan struct{}
	stopOnce   sync.Once

	total   uint64
	shared  uint64
	evicted uint64
}

// New creates a Table. The sweeper runs every sweepEvery and evicts entries
// older than maxAge; pass zero for either to disable sweeping.
func New(sweepEvery, maxAge time.Duration) *Table {
	t := &Table{
		calls:      make(map[string]*call),
		maxAge:     maxAge,
		sweepEvery: sweepEvery,
		stop:       make(chan struct{}),
	}
	if sweepEvery > 0 && maxAge > 0 {
		go t.sweeper()
	}
	return t
}

// Close stops the background sweeper. In-flight calls are unaffected.
func (t *Table) Close() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Do executes fn at most once per key among concurrent callers. The first
// caller (owner) runs fn with a cancellable context; concurrent callers for
// the same key wait and receive the identical value and error. shared
// reports whether the result came from another caller's execution.
//
// The entry is inserted before fn runs, so between the existence check and
// registration no second caller can slip through; it is removed before
// waiters are released, so a caller arriving after settle starts a fresh
// execution.
func (t *Table) Do(ctx context.Context, key string, fn func(ctx context.Context) (interface{}, error)) (val interface{}, shared bool, err error) {
	atomic.AddUint64(&t.total, 1)

	t.mu.Lock()
	if c, ok := t.calls[key]; ok {
		t.mu.Unlock()
		atomic.AddUint64(&t.shared, 1)
		select {
		case <-c.done:
			return c.val, true, c.err
		case <-ctx.Done():
			return nil, true, ctx.Err()
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := &call{
		done:    make(chan struct{}),
		started: time.Now(),
		cancel:  cancel,
	}
	t.calls[key] = c
	t.mu.Unlock()

	val, err = fn(runCtx)
	cancel()

	t.mu.Lock()
	if t.calls[key] == c {
		delete(t.calls, key)
		c.val, c.err = val, err
		close(c.done)
	}
	// If the sweep already evicted this call, done is closed with
	// ErrEvicted and waiters were released; the owner still returns its
	// own outcome.
	t.mu.Unlock()

	return val, false, err
}

// Forget drops the entry for key, letting the next caller execute even if a
// previous call is still in progress. Existing waiters keep waiting on the
// old call.
func (t *Table) Forget(key string) {
	t.mu.Lock()
	delete(t.calls, key)
	t.mu.Unlock()
}

// Active returns the number of currently in-flight entries.
func (t *Table) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// Counters returns totals since creation: requests seen, requests served
// from another caller's execution, and entries force-evicted.
func (t *Table) Counters() (total, shared, evicted uint64) {
	return atomic.LoadUint64(&t.total), atomic.LoadUint64(&t.shared), atomic.LoadUint64(&t.evicted)
}

func (t *Table) sweeper() {
	ticker := time.NewTicker(t.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.sweep(time.Now())
		case <-t.stop:
			return
		}
	}
}

func (t *Table) sweep(now time.Time) {
	t.mu.Lock()
	for key, c := range t.calls {
		if now.Sub(c.started) >= t.maxAge {
			delete(t.calls, key)
			c.err = ErrEvicted
			c.cancel()
			close(c.done)
			atomic.AddUint64(&t.evicted, 1)
		}
	}
	t.mu.Unlock()
}
