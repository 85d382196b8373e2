// Package tasks runs best-effort background side effects (sentiment logging,
// record updates, journal entries) off the response path.
//
// Delivery is not guaranteed: a full queue drops the task, a failing task is
// logged and forgotten, and tasks still queued when the process dies are lost.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PabloGalante/farum-companion/internal/observability"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("tasks: queue closed")

// ErrFull is returned by Submit when the buffer is full.
var ErrFull = errors.New("tasks: queue full")

// Task is one unit of background work. Run receives a context carrying the
// values of Parent (request and user ids) but none of its cancellation.
type Task struct {
	Name   string
	Parent context.Context
	Run    func(ctx context.Context) error
}

func (t Task) base() context.Context {
	if t.Parent == nil {
		return context.Background()
	}
	return context.WithoutCancel(t.Parent)
}

// Stats counts what happened to submitted tasks.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Dropped   int64 `json:"dropped"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Queue is a bounded channel drained by a fixed set of workers.
type Queue struct {
	ch      chan Task
	timeout time.Duration
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	submitted, dropped, completed, failed atomic.Int64
}

// New starts workers goroutines draining a buffer of size tasks. Each task
// gets at most timeout to run; zero means no limit.
func New(size, workers int, timeout time.Duration) *Queue {
	if size <= 0 {
		size = 1
	}
	if workers <= 0 {
		workers = 1
	}
	q := &Queue{ch: make(chan Task, size), timeout: timeout}
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker()
	}
	return q
}

// Submit enqueues t without blocking.
func (q *Queue) Submit(t Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.ch <- t:
		q.submitted.Add(1)
		return nil
	default:
		q.dropped.Add(1)
		observability.LoggerFromContext(t.base()).Warn("background task dropped", slog.String("task", t.Name))
		return ErrFull
	}
}

// Go is Submit for callers that do not care whether the task was accepted.
func (q *Queue) Go(parent context.Context, name string, run func(ctx context.Context) error) {
	_ = q.Submit(Task{Name: name, Parent: parent, Run: run})
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for t := range q.ch {
		q.run(t)
	}
}

func (q *Queue) run(t Task) {
	ctx := t.base()
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("tasks: %s panicked: %v", t.Name, r)
			}
		}()
		return t.Run(ctx)
	}()

	if err != nil {
		q.failed.Add(1)
		observability.LoggerFromContext(ctx).Warn("background task failed",
			slog.String("task", t.Name),
			slog.String("error", err.Error()),
		)
		return
	}
	q.completed.Add(1)
}

// Close stops accepting tasks, lets the workers finish what is queued and
// waits for them, or for ctx.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Submitted: q.submitted.Load(),
		Dropped:   q.dropped.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
	}
}
