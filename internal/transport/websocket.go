package transport

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/taskforge/orchestrator/internal/logging"
)

// WSMessage is one inbound message from an agent's WebSocket connection,
// using the same JSON schema as the HTTP transport (spec §4.3).
type WSMessage struct {
	Conn *websocket.Conn
	Data []byte
}

// WSHandler processes an inbound WebSocket message.
type WSHandler func(ctx context.Context, msg WSMessage)

// WebSocket is the bidirectional push-oriented agent channel.
type WebSocket struct {
	addr     string
	path     string
	handler  WSHandler
	logger   *logging.Logger
	upgrader websocket.Upgrader
	server   *http.Server

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewWebSocket builds a WebSocket transport serving path on addr.
func NewWebSocket(addr, path string, handler WSHandler, logger *logging.Logger) *WebSocket {
	return &WebSocket{
		addr:    addr,
		path:    path,
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// Name implements Service.
func (w *WebSocket) Name() string { return "websocket" }

// Handler returns the upgrade endpoint as a standalone http.Handler, for
// embedding in a test server or a shared mux.
func (w *WebSocket) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(w.path, w.handleUpgrade)
	return mux
}

// Start binds the listener and begins accepting upgrade requests.
func (w *WebSocket) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", w.addr)
	if err != nil {
		return WrapBindError(w.Name(), w.addr, err)
	}

	w.server = &http.Server{Addr: w.addr, Handler: w.Handler()}
	go func() {
		if err := w.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			if w.logger != nil {
				w.logger.WithError(err).Error("websocket transport stopped unexpectedly")
			}
		}
	}()
	return nil
}

// Stop closes all live connections and shuts down the listener.
func (w *WebSocket) Stop(ctx context.Context) error {
	w.mu.Lock()
	for conn := range w.conns {
		_ = conn.Close()
	}
	w.conns = make(map[*websocket.Conn]struct{})
	w.mu.Unlock()

	if w.server == nil {
		return nil
	}
	return w.server.Shutdown(ctx)
}

func (w *WebSocket) handleUpgrade(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		if w.logger != nil {
			w.logger.WithError(err).Warn("websocket upgrade failed")
		}
		return
	}

	w.mu.Lock()
	w.conns[conn] = struct{}{}
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.conns, conn)
		w.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if w.handler != nil {
			w.handler(r.Context(), WSMessage{Conn: conn, Data: data})
		}
	}
}

// ConnectionCount reports the number of live WebSocket connections.
func (w *WebSocket) ConnectionCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.conns)
}
