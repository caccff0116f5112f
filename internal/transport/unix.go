package transport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// UnixProvider maps endpoint names onto Unix domain sockets under Dir.
type UnixProvider struct {
	Dir          string
	PollInterval time.Duration
}

func NewUnixProvider(dir string) UnixProvider {
	if dir == "" {
		dir = os.TempDir()
	}
	return UnixProvider{Dir: dir, PollInterval: DefaultPollInterval}
}

// Path resolves the socket path for name.
func (p UnixProvider) Path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	dir := p.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, name+".sock"), nil
}

func (p UnixProvider) Listen(name string) (Listener, error) {
	path, err := p.Path(name)
	if err != nil {
		return nil, err
	}
	if err := removeStaleSocket(path); err != nil {
		return nil, err
	}
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", path, err)
	}
	ln.SetUnlinkOnClose(true)
	return &unixListener{name: name, ln: ln, poll: p.poll()}, nil
}

func (p UnixProvider) Dial(ctx context.Context, name string) (Conn, error) {
	path, err := p.Path(name)
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT) {
			return nil, fmt.Errorf("%w: %s", ErrNoEndpoint, path)
		}
		return nil, err
	}
	return Wrap(conn, p.poll()), nil
}

func (p UnixProvider) poll() time.Duration {
	if p.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return p.PollInterval
}

// removeStaleSocket clears a socket file left behind by a dead listener and
// refuses to steal one that still accepts connections.
func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("%w: %s is not a socket", ErrEndpointInUse, path)
	}
	conn, err := net.DialTimeout("unix", path, 100*time.Millisecond)
	if err == nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %s", ErrEndpointInUse, path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

type unixListener struct {
	name string
	ln   *net.UnixListener
	poll time.Duration
}

func (l *unixListener) Name() string {
	return l.name
}

func (l *unixListener) Accept(ctx context.Context) (Conn, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_ = l.ln.SetDeadline(time.Now().Add(l.poll))
		conn, err := l.ln.AcceptUnix()
		if err == nil {
			return Wrap(conn, l.poll), nil
		}
		if isTimeout(err) {
			continue
		}
		return nil, mapClosed(err)
	}
}

func (l *unixListener) Close() error {
	err := l.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
