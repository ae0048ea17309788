// Package metrics exposes the orchestration core's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the orchestrator's Prometheus collectors.
var Registry = prometheus.NewRegistry()

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "path", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orchestrator",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "path"})

	taskTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "tasks",
		Name:      "transitions_total",
		Help:      "Total number of task status transitions.",
	}, []string{"from", "to"})

	assignments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "assignments",
		Name:      "total",
		Help:      "Total number of task assignments made by the orchestrator.",
	}, []string{"strategy", "status"})

	assignmentDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orchestrator",
		Subsystem: "assignments",
		Name:      "duration_seconds",
		Help:      "Duration of task execution from assignment to completion.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
	}, []string{"strategy"})

	decompositions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "decomposition",
		Name:      "runs_total",
		Help:      "Total number of decomposition runs, by outcome.",
	}, []string{"outcome"})

	jobPolls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "jobs",
		Name:      "polls_total",
		Help:      "Total number of job status polls, by outcome.",
	}, []string{"outcome"})

	jobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Subsystem: "jobs",
		Name:      "in_flight",
		Help:      "Current number of jobs awaiting a result.",
	})

	notificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "notify",
		Name:      "events_total",
		Help:      "Total number of SSE events pushed, by event type and outcome.",
	}, []string{"event", "outcome"})

	agentsOnline = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Subsystem: "agents",
		Name:      "online",
		Help:      "Current number of registered agents reporting online.",
	})

	circuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Subsystem: "orchestrator",
		Name:      "circuit_breaker_state",
		Help:      "Per-agent circuit breaker state (0=closed, 1=half-open, 2=open).",
	}, []string{"agent_id"})

	errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "errors",
		Name:      "total",
		Help:      "Total number of errors, by component and kind.",
	}, []string{"component", "kind"})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		taskTransitions,
		assignments,
		assignmentDuration,
		decompositions,
		jobPolls,
		jobsInFlight,
		notificationsSent,
		agentsOnline,
		circuitBreakerState,
		errorsTotal,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps next with HTTP request metrics.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordTaskTransition records a task status change.
func RecordTaskTransition(from, to string) {
	taskTransitions.WithLabelValues(from, to).Inc()
}

// RecordAssignment records an orchestrator assignment decision and its outcome.
func RecordAssignment(strategy, status string) {
	assignments.WithLabelValues(strategy, status).Inc()
}

// ObserveAssignmentDuration records the wall-clock time from assignment to completion.
func ObserveAssignmentDuration(strategy string, d time.Duration) {
	assignmentDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// RecordDecomposition records a decomposition run outcome (success|malformed|cycle).
func RecordDecomposition(outcome string) {
	decompositions.WithLabelValues(outcome).Inc()
}

// RecordJobPoll records a job status poll outcome (pending|complete|not_found).
func RecordJobPoll(outcome string) {
	jobPolls.WithLabelValues(outcome).Inc()
}

// SetJobsInFlight sets the current count of outstanding jobs.
func SetJobsInFlight(n int) {
	jobsInFlight.Set(float64(n))
}

// RecordNotification records an SSE push attempt.
func RecordNotification(event, outcome string) {
	notificationsSent.WithLabelValues(event, outcome).Inc()
}

// SetAgentsOnline sets the current count of online agents.
func SetAgentsOnline(n int) {
	agentsOnline.Set(float64(n))
}

// SetCircuitBreakerState publishes a per-agent circuit breaker state (0/1/2).
func SetCircuitBreakerState(agentID string, state int) {
	circuitBreakerState.WithLabelValues(agentID).Set(float64(state))
}

// RecordError increments the error counter for a component/kind pair.
func RecordError(component, kind string) {
	errorsTotal.WithLabelValues(component, kind).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses path parameters so high-cardinality ids don't blow
// up the requests_total label set.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	knownCollections := map[string]bool{
		"projects": true, "epics": true, "tasks": true, "agents": true,
		"jobs": true, "dependencies": true, "sessions": true,
	}
	if !knownCollections[parts[0]] {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/" + parts[0]
	}
	return "/" + parts[0] + "/:id"
}
