// Package queue serializes mutations of the page store.
//
// A Queue runs submitted tasks one at a time, in submission order, on a
// single worker goroutine. A task that fails or panics only affects its own
// caller; later tasks still run. There is no priority, cancellation or
// timeout, and the queue is unbounded so submitters never block on depth.
package queue

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrClosed is returned when submitting to a closed Queue.
var ErrClosed = errors.New("queue closed")

// ErrPanic wraps the value recovered from a panicking task.
var ErrPanic = errors.New("task panicked")

// Task is a unit of serialized work.
type Task func() (any, error)

// Future is the pending result of a submitted task.
type Future struct {
	task Task
	done chan struct{}
	val  any
	err  error
}

// Done is closed once the task has completed.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the task completed and returns its result.
func (f *Future) Wait() (any, error) {
	<-f.done
	return f.val, f.err
}

// Queue is a FIFO of tasks with at most one task in flight.
//
// Submit may be called from any goroutine. A task must not Push onto its own
// Queue and wait for the result; the worker would wait on itself.
type Queue struct {
	mu      sync.Mutex
	pending []*Future
	closed  bool
	signal  chan struct{} // buffered, size 1; coalesces wakeups
	stopped chan struct{}
}

// New starts a Queue and its worker goroutine.
func New() *Queue {
	q := &Queue{
		pending: make([]*Future, 0, 16),
		signal:  make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go q.run()
	return q
}

// Submit enqueues task and returns its Future.
func (q *Queue) Submit(task Task) (*Future, error) {
	f := &Future{task: task, done: make(chan struct{})}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrClosed
	}
	q.pending = append(q.pending, f)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return f, nil
}

// Push enqueues task and blocks until exactly that task has completed.
func (q *Queue) Push(task Task) (any, error) {
	f, err := q.Submit(task)
	if err != nil {
		return nil, err
	}
	return f.Wait()
}

// Do pushes fn and returns its typed result.
func Do[T any](q *Queue, fn func() (T, error)) (T, error) {
	v, err := q.Push(func() (any, error) { return fn() })
	if err != nil {
		var zero T
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}

// Len returns the number of tasks waiting to run (the running task excluded).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting tasks, runs everything already queued, and waits for
// the worker to exit. It is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.signal)
	}
	q.mu.Unlock()

	<-q.stopped
}

func (q *Queue) run() {
	defer close(q.stopped)
	for {
		f, ok := q.next()
		if !ok {
			return
		}
		f.val, f.err = execute(f.task)
		close(f.done)
	}
}

// next blocks until a task is available. It returns false once the queue is
// closed and drained.
func (q *Queue) next() (*Future, bool) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			f := q.pending[0]
			q.pending[0] = nil
			if len(q.pending) == 1 {
				q.pending = q.pending[:0]
			} else {
				q.pending = q.pending[1:]
			}
			q.mu.Unlock()
			return f, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()

		<-q.signal
	}
}

func execute(task Task) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("queued task panicked", "panic", r)
			val, err = nil, fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return task()
}
