// Package transport composes the orchestrator's four transports (stdio,
// HTTP, WebSocket, SSE) behind one lifecycle (spec §4.3).
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
)

// Service is the lifecycle contract every transport implements, taken
// directly from the teacher's system.Service shape: deterministic
// start/stop ordering keyed off a stable name.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// PortAllocationError wraps an EADDRINUSE (or other bind) failure from a
// network transport with the transport name and address attempted.
type PortAllocationError struct {
	Transport string
	Addr      string
	Err       error
}

func (e *PortAllocationError) Error() string {
	return fmt.Sprintf("transport %s: cannot bind %s: %v", e.Transport, e.Addr, e.Err)
}

func (e *PortAllocationError) Unwrap() error { return e.Err }

// WrapBindError re-wraps err as a *PortAllocationError when it represents
// an address-in-use condition, otherwise returns err unchanged.
func WrapBindError(transportName, addr string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.EADDRINUSE) {
		return &PortAllocationError{Transport: transportName, Addr: addr, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.EADDRINUSE) {
		return &PortAllocationError{Transport: transportName, Addr: addr, Err: err}
	}
	return err
}

// Manager owns the lifecycle of registered transports: Register before
// Start, Start runs services in order and rolls back in reverse on the
// first failure, Stop runs in reverse order and is idempotent.
type Manager struct {
	mu        sync.Mutex
	services  []Service
	started   bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewManager creates an empty transport Manager.
func NewManager() *Manager {
	return &Manager{services: make([]Service, 0)}
}

// Register appends svc to the startup queue. Registering after Start
// returns an error.
func (m *Manager) Register(svc Service) error {
	if svc == nil {
		return errors.New("transport: cannot register a nil service")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("transport: %q registered after manager start", svc.Name())
	}
	m.services = append(m.services, svc)
	return nil
}

// Start starts every registered transport in registration order. If any
// transport fails to start, previously started transports are stopped in
// reverse order before the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	var startErr error
	m.startOnce.Do(func() {
		m.mu.Lock()
		m.started = true
		services := append([]Service(nil), m.services...)
		m.mu.Unlock()

		for idx, svc := range services {
			if err := svc.Start(ctx); err != nil {
				startErr = fmt.Errorf("start %s: %w", svc.Name(), err)
				for i := idx - 1; i >= 0; i-- {
					_ = services[i].Stop(ctx)
				}
				break
			}
		}
	})
	return startErr
}

// Stop stops every registered transport in reverse order. Idempotent:
// repeated calls after the first are no-ops.
func (m *Manager) Stop(ctx context.Context) error {
	var stopErr error
	m.stopOnce.Do(func() {
		m.mu.Lock()
		services := append([]Service(nil), m.services...)
		m.mu.Unlock()

		for i := len(services) - 1; i >= 0; i-- {
			if err := services[i].Stop(ctx); err != nil && stopErr == nil {
				stopErr = fmt.Errorf("stop %s: %w", services[i].Name(), err)
			}
		}
	})
	return stopErr
}

// Status reports whether the manager has been started.
func (m *Manager) Status() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return "running"
	}
	return "stopped"
}
