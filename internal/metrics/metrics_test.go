package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestInstrumentHandlerRecordsStatus(t *testing.T) {
	handler := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/tasks", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
}

func TestCanonicalPath(t *testing.T) {
	tests := map[string]string{
		"/":                 "/",
		"/tasks":            "/tasks",
		"/tasks/abc-123":    "/tasks/:id",
		"/unknown/resource": "/unknown",
	}
	for in, want := range tests {
		if got := canonicalPath(in); got != want {
			t.Errorf("canonicalPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordHelpersDoNotPanic(t *testing.T) {
	RecordTaskTransition("pending", "in_progress")
	RecordAssignment("intelligent_hybrid", "success")
	RecordDecomposition("success")
	RecordJobPoll("pending")
	SetJobsInFlight(3)
	RecordNotification("taskCompleted", "delivered")
	SetAgentsOnline(2)
	SetCircuitBreakerState("agent-1", 1)
	RecordError("orchestrator", "timeout")
}

func TestRecorderLazyRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)

	rec.Counter("chunk.scored", map[string]string{"outcome": "ok"}, 1)
	rec.Gauge("queue.depth", map[string]string{"agent": "a1"}, 4)
	rec.Histogram("batch.latency", map[string]string{"agent": "a1"}, 0.25)

	// Calling again with the same name reuses the registered collector
	// instead of erroring on duplicate registration.
	rec.Counter("chunk.scored", map[string]string{"outcome": "ok"}, 1)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	if len(families) != 3 {
		t.Fatalf("expected 3 metric families, got %d", len(families))
	}
}
