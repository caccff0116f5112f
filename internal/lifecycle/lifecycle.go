// Package lifecycle owns process shutdown order.
//
// Components are added explicitly by whoever builds them and stopped in
// reverse order of addition. Nothing registers itself.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrAlreadyShutdown = errors.New("lifecycle: already shut down")

// Stoppable is a component that can be stopped once.
type Stoppable interface {
	Stop(ctx context.Context) error
}

// StopFunc adapts a plain function to Stoppable.
type StopFunc func(ctx context.Context) error

func (f StopFunc) Stop(ctx context.Context) error { return f(ctx) }

type entry struct {
	name string
	comp Stoppable
}

// Shutdown is an ordered list of stoppable components.
type Shutdown struct {
	mu      sync.Mutex
	entries []entry
	done    bool
	// PerComponent bounds each Stop call; zero leaves only the caller's ctx.
	PerComponent time.Duration
}

func New() *Shutdown {
	return &Shutdown{}
}

// Add appends comp. Components added later stop first.
func (s *Shutdown) Add(name string, comp Stoppable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrAlreadyShutdown
	}
	s.entries = append(s.entries, entry{name: name, comp: comp})
	return nil
}

func (s *Shutdown) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Run stops every component in reverse order of addition. A failing
// component does not prevent the rest from stopping; all errors are joined.
// A second call returns ErrAlreadyShutdown.
func (s *Shutdown) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return ErrAlreadyShutdown
	}
	s.done = true
	entries := s.entries
	s.entries = nil
	s.mu.Unlock()

	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		start := time.Now()
		if err := s.stopOne(ctx, e); err != nil {
			log.Warn().Err(err).Str("component", e.name).Msg("lifecycle.Shutdown stop failed")
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
			continue
		}
		log.Debug().Str("component", e.name).Dur("took", time.Since(start)).Msg("lifecycle.Shutdown stopped")
	}
	return errors.Join(errs...)
}

func (s *Shutdown) stopOne(ctx context.Context, e entry) error {
	if s.PerComponent > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.PerComponent)
		defer cancel()
	}
	return e.comp.Stop(ctx)
}
