// Package queue provides the bounded FIFO that decouples a session's reader
// from its consumer.
//
// A queue is Working between StartWork and StopWork. While working, Push waits
// for capacity (PolicyWait) or discards the item (PolicyDrop), and Pop waits for
// an item. StopWork wakes every waiter; a stopped queue turns Push into a no-op
// and Pop into an immediate zero-value return.
package queue

import (
	"sync"
	"sync/atomic"
)

// DefaultCapacity bounds memory growth when the consumer falls behind.
const DefaultCapacity = 200_000

// Policy selects producer behavior when the queue is full.
type Policy int

const (
	PolicyWait Policy = iota
	PolicyDrop
)

func (p Policy) String() string {
	switch p {
	case PolicyWait:
		return "wait"
	case PolicyDrop:
		return "drop"
	default:
		return "unknown"
	}
}

type Options struct {
	Capacity int
	Policy   Policy
}

func DefaultOptions() Options {
	return Options{
		Capacity: DefaultCapacity,
		Policy:   PolicyWait,
	}
}

// Queue is a thread-safe FIFO with a backpressure policy.
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	items   []T
	head    int
	working bool

	capacity int
	policy   Policy

	dropped atomic.Uint64
}

func New[T any](opts Options) *Queue[T] {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	q := &Queue[T]{
		capacity: opts.Capacity,
		policy:   opts.Policy,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

func (q *Queue[T]) StartWork() {
	q.mu.Lock()
	q.working = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

func (q *Queue[T]) StopWork() {
	q.mu.Lock()
	q.working = false
	q.mu.Unlock()
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

func (q *Queue[T]) Working() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.working
}

// Push appends item and reports whether it was accepted. It returns false
// without enqueueing when the queue is stopped or when PolicyDrop discards an
// over-capacity item.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	for q.working && q.lenLocked() >= q.capacity {
		if q.policy == PolicyDrop {
			q.mu.Unlock()
			q.dropped.Add(1)
			return false
		}
		q.notFull.Wait()
	}
	if !q.working {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.notEmpty.Signal()
	return true
}

// PushForce appends item past the capacity limit, ignoring the policy. It
// returns false only when the queue is stopped and never counts as a drop.
func (q *Queue[T]) PushForce(item T) bool {
	q.mu.Lock()
	if !q.working {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.notEmpty.Signal()
	return true
}

// Pop removes the head item. ok is false when the queue was stopped.
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	for q.working && q.lenLocked() == 0 {
		q.notEmpty.Wait()
	}
	if !q.working {
		q.mu.Unlock()
		return item, false
	}
	item = q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head++
	q.compactLocked()
	q.mu.Unlock()
	q.notFull.Signal()
	return item, true
}

func (q *Queue[T]) HasItems() bool {
	return q.Count() > 0
}

func (q *Queue[T]) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Dropped returns how many pushes PolicyDrop discarded.
func (q *Queue[T]) Dropped() uint64 {
	return q.dropped.Load()
}

// Clear discards every queued item and wakes blocked pushers.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	n := q.lenLocked()
	q.items = nil
	q.head = 0
	q.mu.Unlock()
	q.notFull.Broadcast()
	return n
}

func (q *Queue[T]) lenLocked() int {
	return len(q.items) - q.head
}

func (q *Queue[T]) compactLocked() {
	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= 1024 && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
}
