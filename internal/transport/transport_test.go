package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/msgpipe/internal/testutil/testlog"
)

func TestValidateName(t *testing.T) {
	testlog.Start(t)
	valid := []string{"chan", "svc.primary", "a-b_c"}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Fatalf("ValidateName(%q) unexpected err=%v", name, err)
		}
	}
	invalid := []string{"", "  ", " lead", "a/b", `a\b`, "..", strings.Repeat("x", maxNameLen+1)}
	for _, name := range invalid {
		if err := ValidateName(name); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("ValidateName(%q) expected ErrInvalidName, got %v", name, err)
		}
	}
}

func exerciseProvider(t *testing.T, p Provider, name string) {
	t.Helper()
	ln, err := p.Listen(name)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	accepted := make(chan Conn, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		if err != nil {
			accepted <- nil
			return
		}
		accepted <- conn
	}()

	client, err := p.Dial(ctx, name)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	server := <-accepted
	if server == nil {
		t.Fatalf("accept failed")
	}
	defer server.Close()

	go func() {
		_ = client.Write(ctx, []byte("ping"))
	}()
	buf := make([]byte, 16)
	got := 0
	for got < 4 {
		n, err := server.Read(ctx, buf[got:])
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		got += n
	}
	if string(buf[:4]) != "ping" {
		t.Fatalf("unexpected payload %q", buf[:4])
	}

	_ = client.Close()
	if _, err := server.Read(ctx, buf); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after peer close, got %v", err)
	}
}

func TestMemoryProviderRoundTrip(t *testing.T) {
	testlog.Start(t)
	exerciseProvider(t, NewMemoryProvider(), "mem.roundtrip")
}

func TestUnixProviderRoundTrip(t *testing.T) {
	testlog.Start(t)
	exerciseProvider(t, NewUnixProvider(t.TempDir()), "unix.roundtrip")
}

func TestReadHonorsCancellation(t *testing.T) {
	testlog.Start(t)
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	conn := Wrap(server, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := conn.Read(ctx, make([]byte, 8))
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("read not cancelled")
	}
}

func TestWriteHonorsCancellation(t *testing.T) {
	testlog.Start(t)
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	conn := Wrap(client, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		// nobody reads the other end, so this blocks until cancelled
		done <- conn.Write(ctx, []byte("stuck"))
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("write not cancelled")
	}
}

func TestReadAfterLocalCloseIsErrClosed(t *testing.T) {
	testlog.Start(t)
	server, client := net.Pipe()
	defer client.Close()
	conn := Wrap(server, 5*time.Millisecond)
	_ = conn.Close()
	_ = conn.Close()
	if _, err := conn.Read(context.Background(), make([]byte, 1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestDialMissingEndpoint(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	if _, err := NewMemoryProvider().Dial(ctx, "absent"); !errors.Is(err, ErrNoEndpoint) {
		t.Fatalf("memory: expected ErrNoEndpoint, got %v", err)
	}
	if _, err := NewUnixProvider(t.TempDir()).Dial(ctx, "absent"); !errors.Is(err, ErrNoEndpoint) {
		t.Fatalf("unix: expected ErrNoEndpoint, got %v", err)
	}
}

func TestListenRejectsDuplicateEndpoint(t *testing.T) {
	testlog.Start(t)
	mem := NewMemoryProvider()
	ln, err := mem.Listen("dup")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if _, err := mem.Listen("dup"); !errors.Is(err, ErrEndpointInUse) {
		t.Fatalf("memory: expected ErrEndpointInUse, got %v", err)
	}
	_ = ln.Close()
	if mem.Has("dup") {
		t.Fatalf("closed listener should be unregistered")
	}
	ln, err = mem.Listen("dup")
	if err != nil {
		t.Fatalf("re-listen after close: %v", err)
	}
	_ = ln.Close()

	unix := NewUnixProvider(t.TempDir())
	uln, err := unix.Listen("dup")
	if err != nil {
		t.Fatalf("unix listen: %v", err)
	}
	defer uln.Close()
	if _, err := unix.Listen("dup"); !errors.Is(err, ErrEndpointInUse) {
		t.Fatalf("unix: expected ErrEndpointInUse, got %v", err)
	}
}

func TestUnixListenRemovesStaleSocket(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	p := NewUnixProvider(dir)
	path := filepath.Join(dir, "stale.sock")

	raw, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		t.Fatalf("seed stale socket: %v", err)
	}
	raw.SetUnlinkOnClose(false)
	_ = raw.Close()
	if _, err := os.Lstat(path); err != nil {
		t.Fatalf("stale socket should remain on disk: %v", err)
	}

	ln, err := p.Listen("stale")
	if err != nil {
		t.Fatalf("listen over stale socket: %v", err)
	}
	_ = ln.Close()
}

func TestAcceptUnblocksOnClose(t *testing.T) {
	testlog.Start(t)
	for _, p := range []Provider{NewMemoryProvider(), NewUnixProvider(t.TempDir())} {
		ln, err := p.Listen("closing")
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
		done := make(chan error, 1)
		go func() {
			_, err := ln.Accept(context.Background())
			done <- err
		}()
		time.Sleep(20 * time.Millisecond)
		_ = ln.Close()
		select {
		case err := <-done:
			if !errors.Is(err, ErrClosed) {
				t.Fatalf("expected ErrClosed, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatalf("accept not released by Close")
		}
	}
}
