package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/taskforge/orchestrator/internal/logging"
	"github.com/taskforge/orchestrator/internal/model"
	"github.com/taskforge/orchestrator/internal/notify"
	"github.com/taskforge/orchestrator/internal/resilience"
)

// AgentDeliverer implements orchestrator.Deliverer by routing a task to
// whichever channel the agent is actually reachable on: a push frame over
// the notification bus when the agent holds a live session (WebSocket or
// SSE), or an HTTP callback to its registered endpoint otherwise. Stdio
// agents pull work by polling the job registry, so Deliver is a no-op for
// them (spec §4.3's stdio transport has no server-initiated push).
type AgentDeliverer struct {
	bus    *notify.Bus
	client *http.Client
	logger *logging.Logger

	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
}

// NewAgentDeliverer builds an AgentDeliverer.
func NewAgentDeliverer(bus *notify.Bus, logger *logging.Logger) *AgentDeliverer {
	return &AgentDeliverer{
		bus:      bus,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
		breakers: make(map[string]*resilience.CircuitBreaker),
	}
}

func (d *AgentDeliverer) breaker(agentID string) *resilience.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.breakers[agentID]
	if !ok {
		cb = resilience.New(resilience.AgentCBConfig(agentID, d.logger))
		d.breakers[agentID] = cb
	}
	return cb
}

// Deliver pushes task to agent, retrying transient failures under the
// agent's circuit breaker.
func (d *AgentDeliverer) Deliver(ctx context.Context, agent model.Agent, task model.AtomicTask) error {
	return d.send(ctx, agent, "taskAssigned", task)
}

// Cancel best-effort notifies agent that taskID has been cancelled.
func (d *AgentDeliverer) Cancel(ctx context.Context, agent model.Agent, taskID string) error {
	return d.send(ctx, agent, "taskCancelled", map[string]string{"task_id": taskID})
}

func (d *AgentDeliverer) send(ctx context.Context, agent model.Agent, event string, payload any) error {
	if agent.SessionID != "" {
		d.bus.Send(agent.SessionID, event, payload)
		return nil
	}
	if agent.Endpoint == "" {
		return nil
	}

	cb := d.breaker(agent.ID)
	return cb.Execute(ctx, func() error {
		return resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
			return d.postCallback(ctx, agent, event, payload)
		})
	})
}

func (d *AgentDeliverer) postCallback(ctx context.Context, agent model.Agent, event string, payload any) error {
	body, err := json.Marshal(map[string]any{"event": event, "payload": payload})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, agent.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if agent.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+agent.BearerToken)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("transport: agent %s callback returned %s", agent.ID, resp.Status)
	}
	return nil
}
