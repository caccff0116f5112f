// Package transport owns the named, connection-oriented byte-stream endpoints
// a channel runs on.
//
// Ownership boundary:
// - endpoint naming and validation
// - listen/accept and dial
// - cancellable read/write on an established stream
//
// Reads and writes are cancelled cooperatively: each call polls the stream with
// a short deadline and checks its context between polls.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

// DefaultPollInterval bounds how long a blocked read, write or accept runs
// before it re-checks its context.
const DefaultPollInterval = 50 * time.Millisecond

// maxNameLen keeps <dir>/<name>.sock inside sun_path on every platform.
const maxNameLen = 64

var (
	ErrInvalidName   = errors.New("transport: invalid endpoint name")
	ErrNoEndpoint    = errors.New("transport: endpoint not available")
	ErrEndpointInUse = errors.New("transport: endpoint already in use")
	ErrClosed        = errors.New("transport: closed")
)

// Conn is one established duplex stream.
type Conn interface {
	Read(ctx context.Context, p []byte) (int, error)
	Write(ctx context.Context, p []byte) error
	Close() error
}

// Listener accepts incoming streams on one named endpoint.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Name() string
	Close() error
}

// Provider creates listeners and dials named endpoints.
type Provider interface {
	Listen(name string) (Listener, error)
	Dial(ctx context.Context, name string) (Conn, error)
}

// ValidateName rejects names that cannot map onto a single endpoint.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "":
		return ErrInvalidName
	case trimmed != name:
		return fmt.Errorf("%w: surrounding whitespace", ErrInvalidName)
	case len(name) > maxNameLen:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, maxNameLen)
	case strings.ContainsAny(name, `/\`+"\x00"):
		return fmt.Errorf("%w: path separator in %q", ErrInvalidName, name)
	case name == "." || name == "..":
		return ErrInvalidName
	}
	return nil
}

type streamConn struct {
	conn      net.Conn
	poll      time.Duration
	closeOnce sync.Once
	closeErr  error
}

// Wrap adapts a net.Conn into a cancellable Conn.
func Wrap(conn net.Conn, poll time.Duration) Conn {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &streamConn{conn: conn, poll: poll}
}

func (c *streamConn) Read(ctx context.Context, p []byte) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.poll))
		n, err := c.conn.Read(p)
		if n > 0 {
			return n, nil
		}
		if err == nil || isTimeout(err) {
			continue
		}
		return 0, mapClosed(err)
	}
}

func (c *streamConn) Write(ctx context.Context, p []byte) error {
	for len(p) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.poll))
		n, err := c.conn.Write(p)
		p = p[n:]
		if err != nil && !isTimeout(err) {
			return mapClosed(err)
		}
	}
	return nil
}

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func mapClosed(err error) error {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return ErrClosed
	}
	return err
}
