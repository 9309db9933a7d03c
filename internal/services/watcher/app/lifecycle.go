package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Manager starts a set of loops together and stops them together.
type Manager struct {
	loops []*Loop

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
}

// NewManager composes loops under one lifecycle.
func NewManager(loops ...*Loop) *Manager {
	return &Manager{loops: loops}
}

// Start launches every loop. It fails if the manager was already started.
func (m *Manager) Start(ctx context.Context) error {
	if m == nil {
		return errors.New("lifecycle manager is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("lifecycle manager already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	for _, loop := range m.loops {
		group.Go(func() error {
			if err := loop.Run(groupCtx); err != nil {
				return fmt.Errorf("%s loop: %w", loop.Name(), err)
			}
			return nil
		})
	}
	m.cancel = cancel
	m.group = group
	m.started = true
	return nil
}

// Wait blocks until every loop has returned.
func (m *Manager) Wait() error {
	m.mu.Lock()
	group := m.group
	m.mu.Unlock()
	if group == nil {
		return nil
	}
	return group.Wait()
}

// Stop cancels every loop and waits for them to return.
func (m *Manager) Stop() error {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	return m.Wait()
}
