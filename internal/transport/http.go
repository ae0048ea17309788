package transport

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/taskforge/orchestrator/internal/logging"
)

// HTTP is the REST surface transport for agent registration, task
// pickup, result submission, heartbeat, and task delivery (spec §4.3).
// It fits the Manager's Service contract the same way the teacher's
// httpapi.Service fits system.Manager.
type HTTP struct {
	addr    string
	handler http.Handler
	logger  *logging.Logger
	server  *http.Server
}

// NewHTTP builds an HTTP transport bound to addr, serving handler (the
// caller is expected to have already applied the httpmw chain).
func NewHTTP(addr string, handler http.Handler, logger *logging.Logger) *HTTP {
	return &HTTP{addr: addr, handler: handler, logger: logger}
}

// Name implements Service.
func (h *HTTP) Name() string { return "http" }

// Start begins serving in a background goroutine and returns once the
// listener is bound, so EADDRINUSE is reported synchronously.
func (h *HTTP) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return WrapBindError(h.Name(), h.addr, err)
	}

	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      h.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			if h.logger != nil {
				h.logger.WithError(err).Error("http transport stopped unexpectedly")
			}
		}
	}()
	return nil
}

// Stop gracefully shuts the HTTP server down.
func (h *HTTP) Stop(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}
