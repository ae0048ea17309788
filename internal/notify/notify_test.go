package notify

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeWriter struct {
	mu      sync.Mutex
	frames  []string
	closed  bool
	failAt  int
	writes  int
}

func (f *fakeWriter) Write(frame Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.failAt > 0 && f.writes >= f.failAt {
		return errors.New("write failed")
	}
	f.frames = append(f.frames, string(frame))
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWriter) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.frames))
	copy(out, f.frames)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRegisterSendsConnectionEstablishedFrame(t *testing.T) {
	bus := New(8, nil)
	w := &fakeWriter{}
	if err := bus.Register("s1", w, nil); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(w.snapshot()) == 1 })
	if !strings.Contains(w.snapshot()[0], "event: connection") {
		t.Fatalf("unexpected first frame: %q", w.snapshot()[0])
	}
}

func TestSendDeliversFramedEvent(t *testing.T) {
	bus := New(8, nil)
	w := &fakeWriter{}
	_ = bus.Register("s1", w, nil)
	waitFor(t, func() bool { return len(w.snapshot()) == 1 })

	bus.Send("s1", "progress", map[string]string{"jobId": "j1", "status": "running"})
	waitFor(t, func() bool { return len(w.snapshot()) == 2 })

	frame := w.snapshot()[1]
	if !strings.HasPrefix(frame, "event: progress\ndata: ") || !strings.HasSuffix(frame, "\n\n") {
		t.Fatalf("unexpected frame format: %q", frame)
	}
}

func TestSendToUnknownSessionIsNoop(t *testing.T) {
	bus := New(8, nil)
	bus.Send("missing", "progress", map[string]string{"x": "y"})
}

func TestBroadcastIsolatesPerSessionFailures(t *testing.T) {
	bus := New(8, nil)
	good := &fakeWriter{}
	bad := &fakeWriter{failAt: 2}
	_ = bus.Register("good", good, nil)
	_ = bus.Register("bad", bad, nil)
	waitFor(t, func() bool { return len(good.snapshot()) == 1 && len(bad.snapshot()) == 1 })

	bus.Broadcast("taskCompleted", map[string]string{"taskId": "t1"})
	waitFor(t, func() bool { return len(good.snapshot()) == 2 })

	if len(good.snapshot()) != 2 {
		t.Fatalf("expected good session to receive the broadcast, got %d frames", len(good.snapshot()))
	}
}

func TestUnregisterClosesSession(t *testing.T) {
	bus := New(8, nil)
	w := &fakeWriter{}
	_ = bus.Register("s1", w, nil)
	waitFor(t, func() bool { return len(w.snapshot()) == 1 })

	bus.Unregister("s1")
	waitFor(t, func() bool { return w.closed })

	if bus.SessionCount() != 0 {
		t.Fatalf("SessionCount() = %d, want 0", bus.SessionCount())
	}
}

func TestOnCloseCalledAfterWriteFailure(t *testing.T) {
	bus := New(8, nil)
	w := &fakeWriter{failAt: 2}
	closed := make(chan struct{})
	_ = bus.Register("s1", w, func() { close(closed) })
	waitFor(t, func() bool { return len(w.snapshot()) == 1 })

	bus.Send("s1", "progress", map[string]string{"x": "y"})

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("expected onClose to fire after write failure")
	}
}
