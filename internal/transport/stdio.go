package transport

import (
	"context"
	"sync"
)

// Request is one in-process stdio request.
type Request struct {
	Method string
	Body   []byte
}

// Response is the stdio transport's reply to a Request.
type Response struct {
	Status int
	Body   []byte
}

// Handler processes a stdio Request.
type Handler func(ctx context.Context, req Request) Response

// Stdio is an in-process request/response queue for agents embedded in
// the same process (spec §4.3) — used by tests and single-binary demos
// where a network transport would be overkill.
type Stdio struct {
	mu      sync.RWMutex
	handler Handler
	running bool
}

// NewStdio creates a Stdio transport with the given request handler.
func NewStdio(handler Handler) *Stdio {
	return &Stdio{handler: handler}
}

// Name implements Service.
func (s *Stdio) Name() string { return "stdio" }

// Start implements Service.
func (s *Stdio) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	return nil
}

// Stop implements Service.
func (s *Stdio) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

// Send dispatches req synchronously to the registered handler.
func (s *Stdio) Send(ctx context.Context, req Request) Response {
	s.mu.RLock()
	running, handler := s.running, s.handler
	s.mu.RUnlock()
	if !running || handler == nil {
		return Response{Status: 503}
	}
	return handler(ctx, req)
}

// Running reports whether the transport has been started.
func (s *Stdio) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
