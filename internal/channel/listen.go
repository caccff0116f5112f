package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/msgpipe/internal/protocol/session"
	"github.com/danmuck/msgpipe/internal/transport"
	"github.com/rs/zerolog/log"
)

// Listen serves endpoint as the listener role. Each accepted connection runs
// one session through handler; when it ends the endpoint is re-armed for the
// next peer. A timeout > 0 bounds each wait for a peer (ErrConnectTimeout).
// Consecutive failed sessions back off and, past MaxRearmFailures, end Listen
// with the last session error. Listen returns ErrStopped after StopChannel.
func (c *Channel[T]) Listen(endpoint string, handler Handler[T], timeout time.Duration) error {
	if handler == nil {
		return ErrNilHandler
	}
	if err := c.begin(endpoint, RoleListener); err != nil {
		return err
	}
	defer c.end()

	ln, err := c.provider.Listen(endpoint)
	if err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	defer ln.Close()
	log.Info().Str("endpoint", endpoint).Msg("channel.Listen armed")

	failures := 0
	for {
		if c.ctx.Err() != nil {
			return c.finishStopped()
		}
		c.setState(StateAwaitingConnection)

		conn, err := c.accept(ln, timeout)
		if err != nil {
			return err
		}

		reason, serr := c.runSession(conn, handler)
		if reason == endStopped || c.ctx.Err() != nil {
			return c.finishStopped()
		}
		if !reason.failed() {
			failures = 0
			continue
		}

		failures++
		if failures >= c.cfg.MaxRearmFailures {
			c.setState(StateFailed)
			log.Warn().
				Err(serr).
				Str("endpoint", endpoint).
				Int("failures", failures).
				Msg("channel.Listen giving up")
			return serr
		}
		delay := session.NextBackoffDelay(c.cfg.Backoff, failures, c.rng)
		log.Debug().
			Str("endpoint", endpoint).
			Int("failures", failures).
			Dur("delay", delay).
			Msg("channel.Listen re-arm backoff")
		if err := session.Sleep(c.ctx, delay); err != nil {
			return c.finishStopped()
		}
	}
}

func (c *Channel[T]) accept(ln transport.Listener, timeout time.Duration) (transport.Conn, error) {
	ctx := c.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(c.ctx, timeout)
		defer cancel()
	}
	conn, err := ln.Accept(ctx)
	if err == nil {
		return conn, nil
	}
	switch {
	case c.ctx.Err() != nil:
		return nil, c.finishStopped()
	case errors.Is(err, context.DeadlineExceeded):
		c.setState(StateFailed)
		return nil, fmt.Errorf("%w: no peer on %q within %s", ErrConnectTimeout, ln.Name(), timeout)
	default:
		c.setState(StateFailed)
		return nil, fmt.Errorf("%w: accept: %v", ErrInvalidEndpoint, err)
	}
}

// Connect opens endpoint as the client role, retrying every RetryInterval
// until it succeeds, timeout elapses (ErrConnectTimeout; 0 waits forever) or
// the channel stops (ErrStopped). It runs exactly one session and returns nil
// when that session ends, or ErrStopped if the channel was stopped.
func (c *Channel[T]) Connect(endpoint string, handler Handler[T], timeout time.Duration) error {
	if handler == nil {
		return ErrNilHandler
	}
	if err := transport.ValidateName(endpoint); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if err := c.begin(endpoint, RoleClient); err != nil {
		return err
	}
	defer c.end()

	c.setState(StateAwaitingOpen)
	conn, err := c.open(endpoint, timeout)
	if err != nil {
		return err
	}

	reason, serr := c.runSession(conn, handler)
	if reason == endStopped || c.ctx.Err() != nil {
		return c.finishStopped()
	}
	if reason.failed() {
		log.Debug().Err(serr).Str("endpoint", endpoint).Msg("channel.Connect session failed")
	}
	return nil
}

func (c *Channel[T]) open(endpoint string, timeout time.Duration) (transport.Conn, error) {
	ctx := c.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(c.ctx, timeout)
		defer cancel()
	}
	attempts := 0
	for {
		attempts++
		conn, err := c.provider.Dial(ctx, endpoint)
		if err == nil {
			log.Debug().Str("endpoint", endpoint).Int("attempts", attempts).Msg("channel.Connect opened")
			return conn, nil
		}
		if errors.Is(err, transport.ErrInvalidName) {
			c.setState(StateFailed)
			return nil, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
		}
		if ctx.Err() == nil {
			err = session.Sleep(ctx, c.cfg.RetryInterval)
		}
		if err != nil && ctx.Err() != nil {
			if c.ctx.Err() != nil {
				return nil, c.finishStopped()
			}
			c.setState(StateFailed)
			return nil, fmt.Errorf("%w: %q not reachable within %s after %d attempts", ErrConnectTimeout, endpoint, timeout, attempts)
		}
	}
}

func (c *Channel[T]) finishStopped() error {
	c.setState(StateStopping)
	return ErrStopped
}
