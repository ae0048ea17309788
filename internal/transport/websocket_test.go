package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWebSocketHandlesUpgradeAndMessages(t *testing.T) {
	received := make(chan string, 1)
	ws := NewWebSocket("", "/agent", func(ctx context.Context, msg WSMessage) {
		received <- string(msg.Data)
	}, nil)

	srv := httptest.NewServer(ws.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/agent"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-received:
		if msg != "hello" {
			t.Fatalf("received = %q, want hello", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}
