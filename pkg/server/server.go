// Package server runs the process's HTTP listeners as one unit.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/docmirror/internal/logger"
)

// DefaultStopTimeout bounds the graceful shutdown of each listener.
const DefaultStopTimeout = 30 * time.Second

// Listener is a network server managed by Server. *api.Server and
// *metrics.Server satisfy it.
//
// Thread safety:
// Stop may be called concurrently with Start and more than once.
type Listener interface {
	// Start serves until ctx is cancelled or an unrecoverable error occurs.
	// It returns nil on graceful shutdown.
	Start(ctx context.Context) error

	// Stop initiates graceful shutdown, bounded by ctx.
	Stop(ctx context.Context) error

	// Name identifies the listener in logs.
	Name() string

	// Port is the TCP port the listener binds.
	Port() int
}

// Server manages the lifecycle of several listeners.
//
// Lifecycle:
//  1. Creation: New()
//  2. Registration: Add() for each listener
//  3. Startup: Serve() starts all listeners concurrently
//  4. Shutdown: context cancellation or a listener failure stops all of them
//
// Thread safety:
// Add may be called concurrently until Serve is called. Serve may only be
// called once.
type Server struct {
	listeners   []Listener
	stopTimeout time.Duration

	// mu protects listeners and served
	mu     sync.Mutex
	served bool
}

// New creates a server with no listeners. stopTimeout <= 0 uses
// DefaultStopTimeout.
func New(stopTimeout time.Duration) *Server {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Server{
		listeners:   make([]Listener, 0, 2),
		stopTimeout: stopTimeout,
	}
}

// Add registers a listener. Names and ports must be unique.
func (s *Server) Add(l Listener) error {
	if l == nil {
		return fmt.Errorf("listener cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return fmt.Errorf("cannot add listener %s after Serve has been called", l.Name())
	}

	for _, existing := range s.listeners {
		if existing.Name() == l.Name() {
			return fmt.Errorf("listener %s already registered", l.Name())
		}
		if existing.Port() == l.Port() {
			return fmt.Errorf("port %d already in use by %s", l.Port(), existing.Name())
		}
	}

	s.listeners = append(s.listeners, l)
	logger.Debug("Registered %s listener on port %d", l.Name(), l.Port())
	return nil
}

// Serve starts every listener and blocks until ctx is cancelled or one of
// them fails. Either way all listeners are stopped, in reverse registration
// order, before Serve returns.
//
// Returns:
//   - context.Canceled (or the ctx error) after a requested shutdown
//   - the failing listener's error, wrapped with its name
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return fmt.Errorf("server is already serving")
	}
	s.served = true
	if len(s.listeners) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no listeners registered")
	}
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	// Listeners see a context we cancel on the first failure
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan listenerError, len(listeners))
	var wg sync.WaitGroup

	for _, l := range listeners {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := l.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("%s listener failed: %v", l.Name(), err)
				errChan <- listenerError{name: l.Name(), err: err}
				return
			}
			logger.Debug("%s listener stopped", l.Name())
		}()
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()

	case failed := <-errChan:
		logger.Error("Listener %s failed, stopping all listeners", failed.name)
		shutdownErr = fmt.Errorf("%s listener error: %w", failed.name, failed.err)
	}

	s.stopAll(listeners)
	cancel()
	wg.Wait()

	return shutdownErr
}

type listenerError struct {
	name string
	err  error
}

// stopAll asks every listener to shut down, most recently added first.
func (s *Server) stopAll(listeners []Listener) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	for i := len(listeners) - 1; i >= 0; i-- {
		l := listeners[i]
		if err := l.Stop(ctx); err != nil {
			logger.Error("Error stopping %s listener: %v", l.Name(), err)
		}
	}
}

// Listeners returns a snapshot of the registered listeners.
func (s *Server) Listeners() []Listener {
	s.mu.Lock()
	defer s.mu.Unlock()

	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	return listeners
}
