// Package server wires the domain's HTTP surface (spec §4.3, §6.2):
// agent registration and heartbeat, task lifecycle and execution,
// agent response submission, and job polling. It is the glue between
// the standalone components (storage, agents, orchestrator, responses,
// decomposition) and the transport layer's generic lifecycle.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/orchestrator/internal/agents"
	"github.com/taskforge/orchestrator/internal/apierr"
	"github.com/taskforge/orchestrator/internal/decomposition"
	"github.com/taskforge/orchestrator/internal/external"
	"github.com/taskforge/orchestrator/internal/jobs"
	"github.com/taskforge/orchestrator/internal/logging"
	"github.com/taskforge/orchestrator/internal/model"
	"github.com/taskforge/orchestrator/internal/orchestrator"
	"github.com/taskforge/orchestrator/internal/responses"
	"github.com/taskforge/orchestrator/internal/security/audit"
	"github.com/taskforge/orchestrator/internal/security/auth"
	"github.com/taskforge/orchestrator/internal/security/pathvalidator"
	"github.com/taskforge/orchestrator/internal/security/sanitizer"
	"github.com/taskforge/orchestrator/internal/storage"
)

// Deps is every collaborator the HTTP surface dispatches to.
type Deps struct {
	Storage       storage.Engine
	Agents        *agents.Registry
	Jobs          *jobs.Registry
	Orchestrator  *orchestrator.Orchestrator
	Responses     *responses.Processor
	Decomposition *decomposition.Engine // nil when no Completer is configured
	Logger        *logging.Logger

	// Security Gatekeeper collaborators (spec §4.2). Authenticator is nil
	// for deployments that run open behind an upstream gateway; PathValidator
	// and Audit are always expected once a Deps is wired by cmd/orchestratord.
	Authenticator *auth.Authenticator
	PathValidator *pathvalidator.Validator
	Audit         *audit.Log
}

// NewMux builds the unauthenticated route tree. Callers apply the
// httpmw chain (tracing, recovery, auth, rate limiting) around it.
func NewMux(deps Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/agents", deps.registerAgent)
	mux.HandleFunc("GET /v1/agents", deps.listAgents)
	mux.HandleFunc("GET /v1/agents/{id}", deps.getAgent)
	mux.HandleFunc("POST /v1/agents/{id}/heartbeat", deps.heartbeat)

	mux.HandleFunc("POST /v1/projects", deps.createProject)
	mux.HandleFunc("GET /v1/projects/{id}", deps.getProject)

	mux.HandleFunc("POST /v1/tasks", deps.createTask)
	mux.HandleFunc("GET /v1/tasks/{id}", deps.getTask)
	mux.HandleFunc("POST /v1/tasks/{id}/execute", deps.executeTask)
	mux.HandleFunc("POST /v1/tasks/{id}/cancel", deps.cancelTask)

	mux.HandleFunc("POST /v1/responses", deps.submitResponse)

	mux.HandleFunc("GET /v1/jobs/{id}", deps.getJob)

	if deps.Decomposition != nil {
		mux.HandleFunc("POST /v1/decompose", deps.decompose)
	}

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIErr(w http.ResponseWriter, err *apierr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus())
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"kind": err.Kind, "message": err.Message, "details": err.Details},
	})
}

func decodeJSON(r *http.Request, v any) *apierr.Error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apierr.Validation("malformed request body").WithDetails("cause", err.Error())
	}
	return nil
}

// requireCapability mediates every mutating route through the Security
// Gatekeeper's Auth Integration (spec §2, §4.2): deployments without an
// Authenticator configured run open, otherwise the session attached by
// cmd/orchestratord's bearer middleware must carry capability. A denial
// is audited and answered with 401 before the handler's body runs.
func (d Deps) requireCapability(w http.ResponseWriter, r *http.Request, capability string) (auth.Session, bool) {
	if d.Authenticator == nil {
		return auth.Session{}, true
	}
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeAPIErr(w, apierr.Unauthorized("authentication required"))
		return auth.Session{}, false
	}
	if err := d.Authenticator.Authorise(session, capability); err != nil {
		d.auditEvent(audit.TypeAuthorizationDenied, session.UserID, map[string]interface{}{"capability": capability})
		writeAPIErr(w, apierr.Unauthorized(err.Error()))
		return auth.Session{}, false
	}
	return session, true
}

// auditEvent appends a record to the audit log when one is configured; a
// nil Audit (e.g. in tests that don't exercise security paths) is a no-op.
func (d Deps) auditEvent(eventType, actor string, details map[string]interface{}) {
	if d.Audit == nil {
		return
	}
	severity := audit.SeverityWarning
	if eventType == audit.TypeSecurityViolation {
		severity = audit.SeverityCritical
	}
	d.Audit.Append(audit.Record{Type: eventType, Severity: severity, Actor: actor, Details: details})
}

// validateAndSanitizeTask runs a task's agent-supplied paths and free-text
// fields through the Path Validator and Data Sanitiser before it ever
// reaches storage (spec §4.2). Critical sanitizer violations and any
// rejected path abort the request; non-critical violations are masked
// in place and the task proceeds with the redacted text.
func (d Deps) validateAndSanitizeTask(ctx context.Context, t *model.AtomicTask, actor string) *apierr.Error {
	if d.PathValidator != nil {
		for _, p := range t.FilePaths {
			res := d.PathValidator.Validate(ctx, p, "task:write")
			if !res.Valid {
				d.auditEvent(audit.TypeSecurityViolation, actor, map[string]interface{}{
					"field": "file_paths", "violation": string(res.Violation),
				})
				return apierr.SecurityViolation("file path rejected: " + string(res.Violation))
			}
		}
	}

	fields, violations := sanitizer.Fields(map[string]interface{}{
		"title":       t.Title,
		"description": t.Description,
	})
	if sanitizer.HasCritical(violations) {
		d.auditEvent(audit.TypeSecurityViolation, actor, map[string]interface{}{"field": "title_or_description"})
		return apierr.SecurityViolation("task content failed content safety checks")
	}
	if title, ok := fields["title"].(string); ok {
		t.Title = title
	}
	if description, ok := fields["description"].(string); ok {
		t.Description = description
	}
	return nil
}

// processAgentResponse sanitizes an agent's free-text response body,
// rejecting it outright on a critical violation (script/shell/SQL
// injection attempts) and masking non-critical ones (credentials, path
// fragments) in place.
func (d Deps) processAgentResponse(resp *model.AgentResponse) *apierr.Error {
	scan := sanitizer.Scan(resp.Body)
	if sanitizer.HasCritical(scan.Violations) {
		d.auditEvent(audit.TypeSecurityViolation, resp.AgentID, map[string]interface{}{
			"field": "response.body", "task_id": resp.TaskID,
		})
		return apierr.SecurityViolation("response body failed content safety checks")
	}
	resp.Body = scan.Sanitized
	return nil
}

// --- Agents ---

func (d Deps) registerAgent(w http.ResponseWriter, r *http.Request) {
	if _, ok := d.requireCapability(w, r, "agent:manage"); !ok {
		return
	}
	var agent model.Agent
	if apiErr := decodeJSON(r, &agent); apiErr != nil {
		writeAPIErr(w, apiErr)
		return
	}
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	if agent.Status == "" {
		agent.Status = model.AgentIdle
	}
	agent.LastHeartbeat = time.Now()

	if err := d.Agents.Register(agent, false); err != nil {
		writeAPIErr(w, apierr.Conflict(err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (d Deps) listAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.Agents.List())
}

func (d Deps) getAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := d.Agents.Get(r.PathValue("id"))
	if err != nil {
		writeAPIErr(w, apierr.NotFound("agent", r.PathValue("id")))
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (d Deps) heartbeat(w http.ResponseWriter, r *http.Request) {
	if err := d.Agents.UpdateHeartbeat(r.PathValue("id"), time.Now()); err != nil {
		writeAPIErr(w, apierr.NotFound("agent", r.PathValue("id")))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Projects ---

func (d Deps) createProject(w http.ResponseWriter, r *http.Request) {
	if _, ok := d.requireCapability(w, r, "project:write"); !ok {
		return
	}
	var p model.Project
	if apiErr := decodeJSON(r, &p); apiErr != nil {
		writeAPIErr(w, apiErr)
		return
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now

	created, err := d.Storage.CreateProject(r.Context(), p)
	if err != nil {
		writeStorageErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (d Deps) getProject(w http.ResponseWriter, r *http.Request) {
	if _, ok := d.requireCapability(w, r, "project:read"); !ok {
		return
	}
	p, err := d.Storage.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStorageErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- Tasks ---

func (d Deps) createTask(w http.ResponseWriter, r *http.Request) {
	session, ok := d.requireCapability(w, r, "task:write")
	if !ok {
		return
	}
	var t model.AtomicTask
	if apiErr := decodeJSON(r, &t); apiErr != nil {
		writeAPIErr(w, apiErr)
		return
	}
	if apiErr := d.validateAndSanitizeTask(r.Context(), &t, session.UserID); apiErr != nil {
		writeAPIErr(w, apiErr)
		return
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = model.TaskPending
	}
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now

	created, err := d.Storage.CreateTask(r.Context(), t)
	if err != nil {
		writeStorageErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (d Deps) getTask(w http.ResponseWriter, r *http.Request) {
	if _, ok := d.requireCapability(w, r, "task:read"); !ok {
		return
	}
	t, err := d.Storage.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStorageErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// executeTaskRequest overrides the orchestrator's assignment defaults.
type executeTaskRequest struct {
	Force      bool   `json:"force,omitempty"`
	TimeoutSec int    `json:"timeout_seconds,omitempty"`
	Strategy   string `json:"strategy,omitempty"`
}

// executeTask kicks off orchestrator.ExecuteTask in the background and
// returns immediately with the task id and status "dispatched". The
// response carries no job id: ExecuteTask opens the job itself, and its
// id is only known here once ExecuteTask returns. ExecuteTask blocks
// until the agent responds, times out, or is cancelled.
func (d Deps) executeTask(w http.ResponseWriter, r *http.Request) {
	if _, ok := d.requireCapability(w, r, "task:write"); !ok {
		return
	}
	taskID := r.PathValue("id")
	var req executeTaskRequest
	if r.ContentLength > 0 {
		if apiErr := decodeJSON(r, &req); apiErr != nil {
			writeAPIErr(w, apiErr)
			return
		}
	}

	opts := orchestrator.ExecuteOptions{
		Force:    req.Force,
		Strategy: req.Strategy,
	}
	if req.TimeoutSec > 0 {
		opts.Timeout = time.Duration(req.TimeoutSec) * time.Second
	}

	go func() {
		ctx := context.Background()
		result := d.Orchestrator.ExecuteTask(ctx, taskID, opts)
		if result.JobID != "" {
			d.Responses.RegisterJob(taskID, result.JobID)
		}
		if d.Logger != nil {
			d.Logger.WithFields(map[string]interface{}{
				"task_id": taskID, "status": result.Status, "execution_id": result.ExecutionID,
			}).Info("task execution finished")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID, "status": "dispatched"})
}

func (d Deps) cancelTask(w http.ResponseWriter, r *http.Request) {
	if _, ok := d.requireCapability(w, r, "task:write"); !ok {
		return
	}
	taskID := r.PathValue("id")
	executionID, ok := d.Orchestrator.ExecutionForTask(taskID)
	if !ok {
		writeAPIErr(w, apierr.NotFound("execution", taskID))
		return
	}
	if err := d.Orchestrator.CancelExecution(executionID); err != nil {
		writeAPIErr(w, apierr.Internal("cancel execution", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Responses ---

// submitResponse runs the Response Processor's validation and
// persistence pipeline first, then — if an execution is still waiting
// on this task — hands the same response to the Orchestrator so its
// blocked ExecuteTask call can return.
func (d Deps) submitResponse(w http.ResponseWriter, r *http.Request) {
	if _, ok := d.requireCapability(w, r, "task:write"); !ok {
		return
	}
	var resp model.AgentResponse
	if apiErr := decodeJSON(r, &resp); apiErr != nil {
		writeAPIErr(w, apiErr)
		return
	}
	if resp.SubmittedAt.IsZero() {
		resp.SubmittedAt = time.Now()
	}
	if apiErr := d.processAgentResponse(&resp); apiErr != nil {
		writeAPIErr(w, apiErr)
		return
	}

	result, err := d.Responses.Process(r.Context(), resp)
	if err != nil {
		writeAPIErr(w, apierr.Validation(err.Error()))
		return
	}

	if executionID, ok := d.Orchestrator.ExecutionForTask(resp.TaskID); ok {
		d.Orchestrator.SubmitResponse(executionID, resp)
	}

	writeJSON(w, http.StatusOK, result)
}

// --- Jobs ---

func (d Deps) getJob(w http.ResponseWriter, r *http.Request) {
	poll, err := d.Jobs.GetWithRateLimit(r.PathValue("id"))
	if err != nil {
		writeAPIErr(w, apierr.NotFound("job", r.PathValue("id")))
		return
	}
	writeJSON(w, http.StatusOK, poll)
}

// --- Decomposition ---

type decomposeRequest struct {
	Task    model.AtomicTask          `json:"task"`
	Summary external.CodebaseSummary  `json:"summary"`
}

func (d Deps) decompose(w http.ResponseWriter, r *http.Request) {
	if _, ok := d.requireCapability(w, r, "task:write"); !ok {
		return
	}
	var req decomposeRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		writeAPIErr(w, apiErr)
		return
	}
	children, deps, err := d.Decomposition.Decompose(r.Context(), req.Task, req.Summary)
	if err != nil {
		writeAPIErr(w, apierr.Internal("decompose task", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"children": children, "dependencies": deps})
}

// --- Frame dispatch (stdio / WebSocket) ---

// frameEnvelope is the shared request shape for the stdio and WebSocket
// transports' tool-call surface (spec §6.3): a method name plus its JSON
// body, mirroring the REST operation it maps to.
type frameEnvelope struct {
	Method string          `json:"method"`
	Body   json.RawMessage `json:"body"`
}

// HandleFrame dispatches one RPC-style request from the stdio or
// WebSocket transport through the same sanitization and audit steps as
// the matching HTTP handlers (spec §2: "all boundaries are mediated by"
// the gatekeeper). Capability checks (requireCapability) are not applied
// to frames. raw is the envelope
// bytes read off the wire; the returned status/body mirror the HTTP
// surface's JSON error and success shapes.
func (d Deps) HandleFrame(ctx context.Context, raw []byte) (int, []byte) {
	var env frameEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return encodeFrameErr(apierr.Validation("malformed frame"))
	}
	return d.DispatchFrame(ctx, env.Method, env.Body)
}

// DispatchFrame runs one method/body pair through the same pipeline as
// HandleFrame, for transports (like stdio) that already separate the two.
func (d Deps) DispatchFrame(ctx context.Context, method string, body []byte) (int, []byte) {
	switch method {
	case "submit-task-response":
		var resp model.AgentResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return encodeFrameErr(apierr.Validation("malformed request body"))
		}
		if resp.SubmittedAt.IsZero() {
			resp.SubmittedAt = time.Now()
		}
		if apiErr := d.processAgentResponse(&resp); apiErr != nil {
			return encodeFrameErr(apiErr)
		}
		result, err := d.Responses.Process(ctx, resp)
		if err != nil {
			return encodeFrameErr(apierr.Validation(err.Error()))
		}
		if executionID, ok := d.Orchestrator.ExecutionForTask(resp.TaskID); ok {
			d.Orchestrator.SubmitResponse(executionID, resp)
		}
		return encodeFrameOK(result)
	case "get-job-result":
		var req struct {
			JobID string `json:"jobId"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			return encodeFrameErr(apierr.Validation("malformed request body"))
		}
		poll, err := d.Jobs.GetWithRateLimit(req.JobID)
		if err != nil {
			return encodeFrameErr(apierr.NotFound("job", req.JobID))
		}
		return encodeFrameOK(poll)
	default:
		return encodeFrameErr(apierr.Validation("unknown method " + method))
	}
}

func encodeFrameOK(v any) (int, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		return encodeFrameErr(apierr.Internal("encode frame response", err))
	}
	return http.StatusOK, body
}

func encodeFrameErr(apiErr *apierr.Error) (int, []byte) {
	body, _ := json.Marshal(map[string]any{
		"error": map[string]any{"kind": apiErr.Kind, "message": apiErr.Message, "details": apiErr.Details},
	})
	return apiErr.HTTPStatus(), body
}

func writeStorageErr(w http.ResponseWriter, err error) {
	switch {
	case storage.IsKind(err, storage.KindNotFound):
		writeAPIErr(w, apierr.NotFound("resource", ""))
	case storage.IsKind(err, storage.KindAlreadyExists):
		writeAPIErr(w, apierr.AlreadyExists("resource", ""))
	case storage.IsKind(err, storage.KindConflict):
		writeAPIErr(w, apierr.Conflict(err.Error()))
	case storage.IsKind(err, storage.KindInvalid):
		writeAPIErr(w, apierr.Validation(err.Error()))
	default:
		writeAPIErr(w, apierr.StorageFailure("storage operation failed", err))
	}
}
