// Package queue provides the FIFO queues that connect pipeline stages.
//
// The default queue is unbounded: a stalled consumer never blocks the
// producer, and memory grows instead. The bounded variant blocks Put when
// full and is selected with a positive capacity.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Put after Close, and by Get once a closed queue is drained
var ErrClosed = errors.New("queue closed")

// Queue is a FIFO queue safe for concurrent producers and consumers
type Queue[T any] interface {
	Put(ctx context.Context, v T) error
	// Get blocks until an item is available, the queue is closed and
	// drained, or ctx is done.
	Get(ctx context.Context) (T, error)
	Len() int
	Close()
}

// New returns an unbounded queue for capacity <= 0, bounded otherwise
func New[T any](capacity int) Queue[T] {
	if capacity <= 0 {
		return NewUnbounded[T]()
	}
	return NewBounded[T](capacity)
}

// Unbounded never blocks Put
type Unbounded[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	ready chan struct{}
	done  chan struct{}
}

func NewUnbounded[T any]() *Unbounded[T] {
	return &Unbounded[T]{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (q *Unbounded[T]) Put(_ context.Context, v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	q.signal()
	return nil
}

func (q *Unbounded[T]) Get(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()

			// Pass the wakeup on to another waiting consumer
			if more {
				q.signal()
			}
			return v, nil
		}
		if q.closed {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-q.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

func (q *Unbounded[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Unbounded[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Unbounded[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Bounded blocks Put while capacity items are queued
type Bounded[T any] struct {
	mu     sync.RWMutex
	closed bool
	ch     chan T

	once sync.Once
	done chan struct{}
}

func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Bounded[T]{
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}
}

func (q *Bounded[T]) Put(ctx context.Context, v T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	// Free capacity wins over a done ctx
	select {
	case q.ch <- v:
		return nil
	default:
	}

	select {
	case q.ch <- v:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Bounded[T]) Get(ctx context.Context) (T, error) {
	var zero T
	select {
	case v, ok := <-q.ch:
		if !ok {
			return zero, ErrClosed
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (q *Bounded[T]) Len() int {
	return len(q.ch)
}

func (q *Bounded[T]) Close() {
	q.once.Do(func() {
		// Release blocked producers before taking the write lock
		close(q.done)
		q.mu.Lock()
		q.closed = true
		close(q.ch)
		q.mu.Unlock()
	})
}
