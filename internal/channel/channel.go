package channel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/msgpipe/internal/observability"
	"github.com/danmuck/msgpipe/internal/protocol/frame"
	"github.com/danmuck/msgpipe/internal/protocol/session"
	"github.com/danmuck/msgpipe/internal/queue"
	"github.com/danmuck/msgpipe/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Channel is a bidirectional typed message channel over one named endpoint.
type Channel[T MessageType] struct {
	cfg      session.Config
	provider transport.Provider
	rng      *rand.Rand

	ctx    context.Context
	cancel context.CancelFunc

	lifeMu   sync.Mutex
	stopped  bool
	running  bool
	endpoint string
	role     Role
	drivers  sync.WaitGroup

	state     atomic.Int32
	connected atomic.Bool

	// writeMu serializes transport writes and guards the pending outbox,
	// the flush waiters and the active session fields below.
	writeMu       sync.Mutex
	conn          transport.Conn
	sessionCtx    context.Context
	sessionCancel context.CancelFunc
	sessionID     uuid.UUID
	pending       *session.Outbox[T]
	waiters       []*flushWaiter[T]
	endReason     endReason
	endErr        error

	cbMu          sync.RWMutex
	onConnected   func()
	onInterrupted func()

	inbox *queue.Queue[Message[T]]

	sessions         atomic.Uint64
	messagesSent     atomic.Uint64
	messagesReceived atomic.Uint64
	bytesSent        atomic.Uint64
	bytesReceived    atomic.Uint64
}

type flushWaiter[T MessageType] struct {
	msgType  T
	done     chan struct{}
	resolved bool
	err      error
}

// New builds a stopped channel over provider. Zero config fields take defaults.
func New[T MessageType](provider transport.Provider, cfg session.Config) *Channel[T] {
	cfg = cfg.WithDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel[T]{
		cfg:      cfg,
		provider: provider,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		ctx:      ctx,
		cancel:   cancel,
		pending:  session.NewOutbox[T](),
		inbox:    queue.New[Message[T]](cfg.Queue),
	}
	c.state.Store(int32(StateIdle))
	return c
}

func (c *Channel[T]) SetOnConnected(fn func()) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onConnected = fn
}

func (c *Channel[T]) SetOnInterrupted(fn func()) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onInterrupted = fn
}

func (c *Channel[T]) IsConnected() bool {
	return c.connected.Load()
}

func (c *Channel[T]) State() State {
	return State(c.state.Load())
}

func (c *Channel[T]) setState(s State) {
	c.state.Store(int32(s))
}

// SessionID returns the id of the active session, or "" when disconnected.
func (c *Channel[T]) SessionID() string {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return ""
	}
	return c.sessionID.String()
}

// Write sends one message. While no session is active the message is kept
// pending and flushed, in order, as soon as the next session starts. A write
// that races with session teardown is kept pending the same way.
func (c *Channel[T]) Write(msgType T, payload []byte) error {
	if msgType == None {
		return fmt.Errorf("%w: %d", ErrReservedType, msgType)
	}
	if c.ctx.Err() != nil {
		return ErrStopped
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if !c.connected.Load() {
		c.pending.Append(msgType, bytes.Clone(payload))
		return nil
	}
	err := c.writeLocked(msgType, payload)
	if errors.Is(err, ErrSessionClosed) {
		c.pending.Append(msgType, bytes.Clone(payload))
		return nil
	}
	return err
}

// WritePendingMessages flushes the pending outbox onto the active session. It
// is a no-op while disconnected.
func (c *Channel[T]) WritePendingMessages() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if !c.connected.Load() {
		return nil
	}
	return c.flushPendingLocked()
}

// ClearPendingMessages drops every message still waiting for a session.
func (c *Channel[T]) ClearPendingMessages() int {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.pending.Clear()
}

// WaitFinishSendingMessage blocks until a message of msgType has been handed
// to the transport, timeout elapses (ErrFlushTimeout), the session ends
// (ErrSessionClosed) or the channel stops (ErrStopped). A timeout <= 0 waits
// without a deadline.
func (c *Channel[T]) WaitFinishSendingMessage(msgType T, timeout time.Duration) error {
	if msgType == None {
		return nil
	}
	w := &flushWaiter[T]{msgType: msgType, done: make(chan struct{})}
	c.writeMu.Lock()
	c.waiters = append(c.waiters, w)
	c.writeMu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-w.done:
		return w.err
	case <-expired:
		return c.abandonWaiter(w, ErrFlushTimeout)
	case <-c.ctx.Done():
		return c.abandonWaiter(w, ErrStopped)
	}
}

func (c *Channel[T]) abandonWaiter(w *flushWaiter[T], err error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if w.resolved {
		return w.err
	}
	for i, cur := range c.waiters {
		if cur == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			break
		}
	}
	w.resolved = true
	w.err = err
	return err
}

func (c *Channel[T]) resolveWaitersLocked(match func(T) bool, err error) {
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if !match(w.msgType) {
			kept = append(kept, w)
			continue
		}
		w.resolved = true
		w.err = err
		close(w.done)
	}
	clear(c.waiters[len(kept):])
	c.waiters = kept
}

func (c *Channel[T]) writeLocked(msgType T, payload []byte) error {
	buf, err := frame.Encode(uint32(msgType), payload, c.cfg.Limits)
	if err != nil {
		return err
	}
	if err := c.conn.Write(c.sessionCtx, buf); err != nil {
		if c.sessionCtx.Err() != nil {
			return ErrSessionClosed
		}
		log.Warn().
			Err(err).
			Str("endpoint", c.endpoint).
			Str("session", c.sessionID.String()).
			Uint32("type", uint32(msgType)).
			Msg("channel.Write transport write failed")
		c.failSessionLocked(endWriteError, err)
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	c.messagesSent.Add(1)
	c.bytesSent.Add(uint64(len(payload)))
	observability.RecordFrameSent(c.endpoint, string(c.role), len(payload))
	c.resolveWaitersLocked(func(t T) bool { return t == msgType }, nil)
	return nil
}

func (c *Channel[T]) flushPendingLocked() error {
	n, err := c.pending.Drain(func(m session.PendingMessage[T]) error {
		return c.writeLocked(m.Type, m.Payload)
	})
	if n > 0 {
		log.Debug().Str("endpoint", c.endpoint).Int("flushed", n).Msg("channel.WritePendingMessages")
	}
	return err
}

// failSessionLocked records why the session ends (first reason wins) and
// wakes the consumer loop.
func (c *Channel[T]) failSessionLocked(reason endReason, err error) {
	if c.endReason == endNone {
		c.endReason = reason
		c.endErr = err
	}
	if c.sessionCancel != nil {
		c.sessionCancel()
	}
	c.inbox.StopWork()
}

func (c *Channel[T]) failSession(reason endReason, err error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.failSessionLocked(reason, err)
}

// Cancel requests a stop without waiting for the driving loop to return. It
// is safe to call from handlers and callbacks.
func (c *Channel[T]) Cancel() {
	c.lifeMu.Lock()
	first := !c.stopped
	c.stopped = true
	endpoint := c.endpoint
	c.lifeMu.Unlock()
	if first {
		if c.State() != StateStopped {
			c.setState(StateStopping)
		}
		log.Debug().Str("endpoint", endpoint).Msg("channel.Cancel")
	}
	c.cancel()
	c.inbox.StopWork()
}

// StopChannel stops the channel permanently and waits for Listen/Connect and
// the session reader to return. It is idempotent.
func (c *Channel[T]) StopChannel() {
	c.Cancel()
	c.drivers.Wait()
	c.setState(StateStopped)
}

// Stop satisfies lifecycle.Stoppable.
func (c *Channel[T]) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.StopChannel()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel[T]) Stats() Stats {
	c.lifeMu.Lock()
	endpoint, role := c.endpoint, c.role
	c.lifeMu.Unlock()
	return Stats{
		Endpoint:         endpoint,
		Role:             role,
		State:            c.State(),
		Connected:        c.IsConnected(),
		SessionID:        c.SessionID(),
		Sessions:         c.sessions.Load(),
		MessagesSent:     c.messagesSent.Load(),
		MessagesReceived: c.messagesReceived.Load(),
		BytesSent:        c.bytesSent.Load(),
		BytesReceived:    c.bytesReceived.Load(),
		Dropped:          c.inbox.Dropped(),
		Pending:          c.pending.Len(),
		Queued:           c.inbox.Count(),
		QueuePolicy:      c.cfg.Queue.Policy,
	}
}

// begin claims the channel for one Listen/Connect call.
func (c *Channel[T]) begin(endpoint string, role Role) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.stopped {
		return ErrStopped
	}
	if c.running {
		return ErrAlreadyRunning
	}
	c.running = true
	c.endpoint = endpoint
	c.role = role
	c.drivers.Add(1)
	return nil
}

func (c *Channel[T]) end() {
	c.lifeMu.Lock()
	c.running = false
	c.lifeMu.Unlock()
	c.drivers.Done()
}
