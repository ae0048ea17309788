package transport

import (
	"context"
	"net"
	"net/http"

	"github.com/taskforge/orchestrator/internal/logging"
	"github.com/taskforge/orchestrator/internal/notify"
)

// flusherWriter adapts an http.ResponseWriter+http.Flusher pair to
// notify.Writer, flushing after every frame so the client sees it
// immediately (spec §4.3's one-way server-to-client push).
type flusherWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	done    chan struct{}
}

func (f *flusherWriter) Write(frame notify.Frame) error {
	if _, err := f.w.Write(frame); err != nil {
		return err
	}
	f.flusher.Flush()
	return nil
}

func (f *flusherWriter) Close() error {
	select {
	case <-f.done:
	default:
		close(f.done)
	}
	return nil
}

// SSE is the one-way server-to-client progress/completion notification
// transport, keyed by session id (spec §4.3, §4.5).
type SSE struct {
	addr   string
	path   string
	bus    *notify.Bus
	logger *logging.Logger
	server *http.Server
}

// NewSSE builds an SSE transport serving path on addr, pushing frames
// through bus.
func NewSSE(addr, path string, bus *notify.Bus, logger *logging.Logger) *SSE {
	return &SSE{addr: addr, path: path, bus: bus, logger: logger}
}

// Name implements Service.
func (s *SSE) Name() string { return "sse" }

// Handler returns the streaming endpoint as a standalone http.Handler,
// for embedding in a test server or a shared mux.
func (s *SSE) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleStream)
	return mux
}

// Start binds the listener and begins accepting streaming GET requests.
func (s *SSE) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return WrapBindError(s.Name(), s.addr, err)
	}

	s.server = &http.Server{Addr: s.addr, Handler: s.Handler()}
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.WithError(err).Error("sse transport stopped unexpectedly")
			}
		}
	}()
	return nil
}

// Stop shuts down the listener; open streams unblock via request context
// cancellation.
func (s *SSE) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *SSE) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, `{"error":"session_id is required"}`, http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming unsupported"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	fw := &flusherWriter{w: w, flusher: flusher, done: make(chan struct{})}
	if err := s.bus.Register(sessionID, fw, nil); err != nil {
		return
	}

	select {
	case <-r.Context().Done():
		s.bus.Unregister(sessionID)
	case <-fw.done:
	}
}
