package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/danmuck/msgpipe/internal/observability"
	"github.com/danmuck/msgpipe/internal/protocol/frame"
	"github.com/danmuck/msgpipe/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// runSession drives one established connection until it ends and returns why.
// It owns conn and always closes it.
func (c *Channel[T]) runSession(conn transport.Conn, handler Handler[T]) (endReason, error) {
	started := time.Now()
	sid := uuid.New()

	var reader sync.WaitGroup
	if err := c.openSession(conn, sid, &reader); err != nil {
		log.Warn().
			Err(err).
			Str("endpoint", c.endpoint).
			Str("session", sid.String()).
			Msg("channel.session handshake failed")
	}

	c.consume(handler)

	reason, err := c.closeSession(&reader)
	observability.RecordSessionEnd(c.endpoint, string(c.role), reason.String(), time.Since(started))
	log.Info().
		Str("endpoint", c.endpoint).
		Str("session", sid.String()).
		Str("reason", reason.String()).
		Dur("duration", time.Since(started)).
		Msg("channel.session end")
	return reason, err
}

// openSession publishes conn as the active session. The Connect frame and the
// pending outbox go out under the write lock so no concurrent Write can slip
// in front of them. The reader is started first because both peers send their
// Connect frame at once and an unbuffered stream would otherwise stall.
func (c *Channel[T]) openSession(conn transport.Conn, sid uuid.UUID, reader *sync.WaitGroup) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.sessionCtx, c.sessionCancel = context.WithCancel(c.ctx)
	c.conn = conn
	c.sessionID = sid
	c.endReason = endNone
	c.endErr = nil

	c.inbox.Clear()
	c.inbox.StartWork()
	if c.ctx.Err() != nil {
		// Cancel raced with the accept; make sure the consumer exits.
		c.inbox.StopWork()
	}
	c.connected.Store(true)
	c.setState(StateConnected)
	c.sessions.Add(1)
	observability.RecordSessionStart(c.endpoint, string(c.role))
	log.Info().
		Str("endpoint", c.endpoint).
		Str("role", string(c.role)).
		Str("session", sid.String()).
		Msg("channel.session connected")

	reader.Add(1)
	go func() {
		defer reader.Done()
		c.readLoop(c.sessionCtx, conn)
	}()

	c.cbMu.RLock()
	onConnected := c.onConnected
	c.cbMu.RUnlock()
	if onConnected != nil {
		go onConnected()
	}

	if err := c.writeLocked(Connect, nil); err != nil {
		return err
	}
	return c.flushPendingLocked()
}

// consume pops inbound messages into handler until the handler declines, the
// peer-closed marker arrives or the queue is stopped.
func (c *Channel[T]) consume(handler Handler[T]) {
	for {
		msg, ok := c.inbox.Pop()
		if !ok {
			if c.ctx.Err() != nil {
				c.failSession(endStopped, nil)
			}
			return
		}
		if msg.Type == None {
			c.failSession(endPeerClosed, nil)
			return
		}
		if !handler(msg, c) {
			c.failSession(endHandler, nil)
			return
		}
	}
}

// readLoop decodes frames from conn into the inbox until ctx is cancelled,
// the peer closes or a read fails.
func (c *Channel[T]) readLoop(ctx context.Context, conn transport.Conn) {
	parser := frame.NewParser(c.cfg.Limits)
	buf := make([]byte, c.cfg.ReadBufferSize)
	for {
		n, err := conn.Read(ctx, buf)
		if n > 0 {
			frames, perr := parser.Feed(buf[:n])
			for _, f := range frames {
				if !c.deliver(f) {
					return
				}
			}
			if perr != nil {
				c.readFailed(perr)
				return
			}
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, io.EOF) {
			if ferr := parser.Finish(); ferr != nil {
				c.readFailed(ferr)
				return
			}
			// In-band marker: the consumer drains what is queued, then ends.
			// It bypasses the capacity limit so a full drop queue keeps it.
			if !c.inbox.PushForce(Message[T]{Type: None}) {
				c.failSession(endPeerClosed, nil)
			}
			return
		}
		c.readFailed(err)
		return
	}
}

// deliver queues one decoded frame. It returns false once the queue stopped.
func (c *Channel[T]) deliver(f frame.Frame) bool {
	if f.Type == None || uint64(f.Type) > maxOf[T]() {
		log.Warn().
			Str("endpoint", c.endpoint).
			Uint32("type", f.Type).
			Int("size", len(f.Payload)).
			Msg("channel.readLoop skipped frame with unusable type")
		return true
	}
	c.messagesReceived.Add(1)
	c.bytesReceived.Add(uint64(len(f.Payload)))
	observability.RecordFrameReceived(c.endpoint, string(c.role), len(f.Payload))

	before := c.inbox.Dropped()
	if !c.inbox.Push(Message[T]{Type: T(f.Type), Payload: f.Payload}) {
		if c.inbox.Dropped() > before {
			observability.RecordQueueDrop(c.endpoint, string(c.role))
			return true
		}
		return false
	}
	return true
}

func (c *Channel[T]) readFailed(err error) {
	log.Warn().
		Err(err).
		Str("endpoint", c.endpoint).
		Msg("channel.readLoop read failed")
	c.failSession(endReadError, fmt.Errorf("%w: %v", ErrRead, err))
}

// closeSession tears the active session down and returns how it ended.
func (c *Channel[T]) closeSession(reader *sync.WaitGroup) (endReason, error) {
	c.writeMu.Lock()
	if c.endReason == endNone {
		c.endReason = endStopped
	}
	c.sessionCancel()
	c.writeMu.Unlock()

	c.inbox.StopWork()
	reader.Wait()

	c.writeMu.Lock()
	reason, err := c.endReason, c.endErr
	c.connected.Store(false)
	if cerr := c.conn.Close(); cerr != nil && !errors.Is(cerr, transport.ErrClosed) {
		log.Debug().Err(cerr).Str("endpoint", c.endpoint).Msg("channel.session close")
	}
	c.conn = nil
	c.resolveWaitersLocked(func(T) bool { return true }, ErrSessionClosed)
	c.writeMu.Unlock()

	if dropped := c.inbox.Clear(); dropped > 0 {
		log.Debug().Str("endpoint", c.endpoint).Int("discarded", dropped).Msg("channel.session inbox cleared")
	}

	c.cbMu.RLock()
	onInterrupted := c.onInterrupted
	c.cbMu.RUnlock()
	if onInterrupted != nil {
		go onInterrupted()
	}

	if c.ctx.Err() == nil {
		if reason.failed() {
			c.setState(StateFailed)
		} else {
			c.setState(StateIdle)
		}
	}
	return reason, err
}

// maxOf is the largest wire type value representable as T.
func maxOf[T MessageType]() uint64 {
	return uint64(^T(0))
}
