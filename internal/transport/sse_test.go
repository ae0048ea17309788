package transport

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/taskforge/orchestrator/internal/notify"
)

func TestSSEStreamDeliversConnectionFrame(t *testing.T) {
	bus := notify.New(8, nil)
	sse := NewSSE("", "/events", bus, nil)

	srv := httptest.NewServer(sse.Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/events?session_id=s1", nil)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(line, "event: connection") {
		t.Fatalf("first line = %q, want event: connection prefix", line)
	}
}

func TestSSEStreamRequiresSessionID(t *testing.T) {
	bus := notify.New(8, nil)
	sse := NewSSE("", "/events", bus, nil)

	srv := httptest.NewServer(sse.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
