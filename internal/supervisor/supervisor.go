// Package supervisor hosts the long-lived background loops (heartbeat
// sweeper, job evictor, rebalance loop) behind one graceful shutdown
// boundary (spec §4.10).
package supervisor

import (
	"context"
	"fmt"
	"sync"
)

// Service is a lifecycle-managed background loop.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Supervisor owns the lifecycle of registered services, starting them in
// registration order and stopping them in reverse.
type Supervisor struct {
	mu        sync.Mutex
	services  []Service
	started   bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates an empty Supervisor.
func New() *Supervisor {
	return &Supervisor{}
}

// Register appends svc to the startup queue. Registering after Start
// returns an error.
func (s *Supervisor) Register(svc Service) error {
	if svc == nil {
		return fmt.Errorf("supervisor: cannot register a nil service")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("supervisor: service %q registered after start", svc.Name())
	}
	s.services = append(s.services, svc)
	return nil
}

// Start runs Start on every registered service in order. If one fails,
// already-started services are stopped in reverse order before the
// error is returned.
func (s *Supervisor) Start(ctx context.Context) error {
	var startErr error
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.started = true
		services := append([]Service(nil), s.services...)
		s.mu.Unlock()

		for idx, svc := range services {
			if err := svc.Start(ctx); err != nil {
				startErr = fmt.Errorf("supervisor: start %s: %w", svc.Name(), err)
				for i := idx - 1; i >= 0; i-- {
					_ = services[i].Stop(ctx)
				}
				break
			}
		}
	})
	return startErr
}

// Stop runs Stop on every registered service in reverse order. Idempotent;
// returns the first error encountered.
func (s *Supervisor) Stop(ctx context.Context) error {
	var stopErr error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		services := append([]Service(nil), s.services...)
		s.mu.Unlock()

		for i := len(services) - 1; i >= 0; i-- {
			if err := services[i].Stop(ctx); err != nil && stopErr == nil {
				stopErr = fmt.Errorf("supervisor: stop %s: %w", services[i].Name(), err)
			}
		}
	})
	return stopErr
}
