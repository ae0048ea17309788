// Package notify implements the session-keyed push Notification Bus
// (spec §4.5): at-most-once delivery, ordered per session via a single
// writer goroutine per connection, framed as SSE events.
package notify

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/taskforge/orchestrator/internal/logging"
)

// Frame is one SSE event ready to be written to a session's stream,
// formatted exactly as "event: <name>\ndata: <json>\n\n" (spec §6.2).
type Frame []byte

// NewFrame serializes payload to JSON and wraps it in the SSE event
// framing. Returns an error rather than panicking on unserializable
// payloads so the caller can log and drop per spec §4.5.
func NewFrame(event string, payload any) (Frame, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("notify: marshal %s payload: %w", event, err)
	}
	return Frame(fmt.Sprintf("event: %s\ndata: %s\n\n", event, body)), nil
}

// Writer is anything a session's frames can be pushed to: an SSE
// http.ResponseWriter wrapper, a WebSocket connection, or a test double.
type Writer interface {
	Write(Frame) error
	Close() error
}

type session struct {
	id     string
	writer Writer
	queue  chan Frame
	done   chan struct{}
	once   sync.Once
}

// Bus is the session-keyed push channel.
type Bus struct {
	mu       sync.Mutex
	sessions map[string]*session
	logger   *logging.Logger
	queueLen int
}

// New creates an empty Bus. queueLen bounds each session's per-writer
// backlog before Send starts dropping frames for that session.
func New(queueLen int, logger *logging.Logger) *Bus {
	if queueLen <= 0 {
		queueLen = 64
	}
	return &Bus{sessions: make(map[string]*session), logger: logger, queueLen: queueLen}
}

// Register opens a session, sends the initial connection:established
// frame, and starts a single writer goroutine that drains the session's
// queue in order. onClose, if non-nil, is invoked once when the session
// is unregistered (by the caller or by a write failure).
func (b *Bus) Register(sessionID string, w Writer, onClose func()) error {
	frame, err := NewFrame("connection", "established")
	if err != nil {
		return err
	}

	s := &session{id: sessionID, writer: w, queue: make(chan Frame, b.queueLen), done: make(chan struct{})}

	b.mu.Lock()
	if existing, ok := b.sessions[sessionID]; ok {
		b.closeSession(existing)
	}
	b.sessions[sessionID] = s
	b.mu.Unlock()

	go b.drain(s, onClose)

	select {
	case s.queue <- frame:
	default:
	}
	return nil
}

func (b *Bus) drain(s *session, onClose func()) {
	defer func() {
		b.mu.Lock()
		if b.sessions[s.id] == s {
			delete(b.sessions, s.id)
		}
		b.mu.Unlock()
		_ = s.writer.Close()
		if onClose != nil {
			onClose()
		}
	}()

	for {
		select {
		case <-s.done:
			return
		case frame := <-s.queue:
			if err := s.writer.Write(frame); err != nil {
				if b.logger != nil {
					b.logger.WithFields(map[string]interface{}{
						"session_id": s.id,
						"error":      err.Error(),
					}).Warn("notification write failed, closing session")
				}
				return
			}
		}
	}
}

func (b *Bus) closeSession(s *session) {
	s.once.Do(func() { close(s.done) })
}

// Unregister closes sessionID's stream, if open.
func (b *Bus) Unregister(sessionID string) {
	b.mu.Lock()
	s, ok := b.sessions[sessionID]
	b.mu.Unlock()
	if ok {
		b.closeSession(s)
	}
}

// Send delivers event/payload to sessionID. If the session is unknown the
// frame is dropped silently; if the queue is full it is dropped and
// logged. Neither is propagated to the caller (spec §4.5: "at-most-once"). A payload that
// fails to serialize is logged and dropped without error.
func (b *Bus) Send(sessionID, event string, payload any) {
	frame, err := NewFrame(event, payload)
	if err != nil {
		if b.logger != nil {
			b.logger.WithFields(map[string]interface{}{
				"session_id": sessionID, "event": event, "error": err.Error(),
			}).Warn("dropping unserializable notification")
		}
		return
	}

	b.mu.Lock()
	s, ok := b.sessions[sessionID]
	b.mu.Unlock()
	if !ok {
		return
	}

	select {
	case s.queue <- frame:
	default:
		if b.logger != nil {
			b.logger.WithFields(map[string]interface{}{
				"session_id": sessionID, "event": event,
			}).Warn("notification queue full, dropping frame")
		}
	}
}

// Broadcast fans event/payload out to every registered session.
// Per-session failures (full queue, closed session) are isolated and do
// not affect delivery to other sessions.
func (b *Bus) Broadcast(event string, payload any) {
	frame, err := NewFrame(event, payload)
	if err != nil {
		return
	}

	b.mu.Lock()
	sessions := make([]*session, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.mu.Unlock()

	for _, s := range sessions {
		select {
		case s.queue <- frame:
		default:
		}
	}
}

// SessionCount reports the number of currently registered sessions.
func (b *Bus) SessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}
