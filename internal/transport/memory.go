package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// MemoryProvider is an in-process registry of named pipes. Dial blocks until
// the named listener accepts or ctx ends.
type MemoryProvider struct {
	PollInterval time.Duration

	mu        sync.Mutex
	listeners map[string]*memoryListener
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		PollInterval: 10 * time.Millisecond,
		listeners:    make(map[string]*memoryListener),
	}
}

func (p *MemoryProvider) Listen(name string) (Listener, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listeners == nil {
		p.listeners = make(map[string]*memoryListener)
	}
	if _, ok := p.listeners[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrEndpointInUse, name)
	}
	l := &memoryListener{
		name:     name,
		provider: p,
		conns:    make(chan net.Conn),
		done:     make(chan struct{}),
	}
	p.listeners[name] = l
	return l, nil
}

func (p *MemoryProvider) Dial(ctx context.Context, name string) (Conn, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	p.mu.Lock()
	l, ok := p.listeners[name]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoEndpoint, name)
	}

	server, client := net.Pipe()
	select {
	case l.conns <- server:
		return Wrap(client, p.poll()), nil
	case <-l.done:
		_ = server.Close()
		_ = client.Close()
		return nil, fmt.Errorf("%w: %s", ErrNoEndpoint, name)
	case <-ctx.Done():
		_ = server.Close()
		_ = client.Close()
		return nil, ctx.Err()
	}
}

// Has reports whether name currently has a listener.
func (p *MemoryProvider) Has(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.listeners[name]
	return ok
}

func (p *MemoryProvider) poll() time.Duration {
	if p.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return p.PollInterval
}

func (p *MemoryProvider) remove(l *memoryListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.listeners[l.name]; ok && cur == l {
		delete(p.listeners, l.name)
	}
}

type memoryListener struct {
	name     string
	provider *MemoryProvider
	conns    chan net.Conn
	done     chan struct{}
	once     sync.Once
}

func (l *memoryListener) Name() string {
	return l.name
}

func (l *memoryListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case conn := <-l.conns:
		return Wrap(conn, l.provider.poll()), nil
	case <-l.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *memoryListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		l.provider.remove(l)
	})
	return nil
}
