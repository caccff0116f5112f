package session

import (
	"sync"
	"time"
)

// PendingMessage is one outbound message written while no session was active.
type PendingMessage[T any] struct {
	Type     T
	Payload  []byte
	QueuedAt time.Time
}

// Outbox keeps pending messages in write order.
type Outbox[T any] struct {
	mu    sync.Mutex
	items []PendingMessage[T]
}

func NewOutbox[T any]() *Outbox[T] {
	return &Outbox[T]{}
}

func (o *Outbox[T]) Append(msgType T, payload []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = append(o.items, PendingMessage[T]{
		Type:     msgType,
		Payload:  payload,
		QueuedAt: time.Now(),
	})
}

func (o *Outbox[T]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

func (o *Outbox[T]) List() []PendingMessage[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]PendingMessage[T], len(o.items))
	copy(out, o.items)
	return out
}

// Clear drops every pending message and returns how many were dropped.
func (o *Outbox[T]) Clear() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := len(o.items)
	o.items = nil
	return n
}

// Drain hands pending messages to send in order and removes each one once
// sent. It stops at the first error; the failed message and everything after
// it stay pending.
func (o *Outbox[T]) Drain(send func(PendingMessage[T]) error) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	sent := 0
	for sent < len(o.items) {
		if err := send(o.items[sent]); err != nil {
			o.items = o.items[sent:]
			return sent, err
		}
		sent++
	}
	o.items = nil
	return sent, nil
}
