package apiserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danshapiro/skillproto/internal/apierr"
	"github.com/danshapiro/skillproto/internal/discovery"
	"github.com/danshapiro/skillproto/internal/model"
	"github.com/danshapiro/skillproto/internal/orchestrator"
	"github.com/danshapiro/skillproto/internal/registry"
	"github.com/danshapiro/skillproto/internal/scheduler"
)

// decodeWorkflowBody decodes a POST /skill/orchestrate(/validate) body as
// YAML when Content-Type says so (SPEC_FULL.md §11 domain stack: "an
// optional YAML workflow-definition format alongside JSON"), JSON
// otherwise, then resolves dot_source into the Workflow model when present.
func decodeWorkflowBody(r *http.Request) (*model.Workflow, error) {
	var body workflowRequestBody
	ct := r.Header.Get("Content-Type")
	if strings.Contains(ct, "yaml") {
		if err := yaml.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, err
		}
	} else {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, err
		}
	}
	if body.DotSource != "" {
		return orchestrator.ParseDotWorkflow(body.DotSource)
	}
	return body.toModel(), nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "success",
		"running_executions": s.sched.RunningCount(),
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body registerRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIErr(w, apierr.RegValidationFailed("invalid JSON body: %v", err))
		return
	}

	sk, err := s.reg.Register(registry.RegisterRequest{
		SkillID:        body.SkillID,
		SkillName:      body.SkillName,
		Description:    body.Description,
		Version:        body.Version,
		Language:       body.Language,
		CodeBase64:     body.Code,
		TimeoutSeconds: body.TimeoutSeconds,
		Dependencies:   body.Dependencies,
		InputSchema:    body.InputSchema,
		OutputSchema:   body.OutputSchema,
		Author:         body.Author,
		License:        body.License,
		Category:       body.Category,
	})
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"status": "success",
		"skill":  toSkillResponse(sk),
	})
}

func (s *Server) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	skillID := r.PathValue("skill_id")
	version := r.URL.Query().Get("version")
	sk, err := s.reg.Get(skillID, version)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"skill":  toSkillResponse(sk),
	})
}

func (s *Server) handleDeleteSkill(w http.ResponseWriter, r *http.Request) {
	skillID := r.PathValue("skill_id")
	if err := s.reg.Delete(skillID); err != nil {
		writeAPIErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var body invokeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIErr(w, apierr.InvalidInputs("invalid JSON body: %v", err))
		return
	}

	result, accepted, err := s.sched.Invoke(r.Context(), scheduler.InvokeRequest{
		SkillID:        body.SkillID,
		Inputs:         body.Inputs,
		TimeoutSeconds: body.TimeoutSeconds,
		Async:          body.Async,
	})
	if err != nil {
		writeAPIErr(w, err)
		return
	}

	if accepted != nil {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":       "success",
			"execution_id": accepted.ExecutionID,
			"state":        "pending",
			"status_url":   accepted.StatusURL,
		})
		return
	}

	status := http.StatusOK
	if result.Err != nil {
		status = result.Err.HTTPStatus()
	}
	resp := map[string]any{
		"status":         "success",
		"execution_id":   result.ExecutionID,
		"state":          string(result.State),
		"result":         result.Result,
		"execution_time": result.ExecutionTime,
	}
	if result.Err != nil {
		resp["status"] = "error"
		resp["message"] = result.Err.Message()
		resp["error"] = errorBody{Code: result.Err.Code(), Details: result.Err.Details()}
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	executionID := r.PathValue("execution_id")
	rec, err := s.sched.Status(executionID)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"execution": toExecutionResponse(rec),
	})
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := discovery.Query{
		Q:        q.Get("q"),
		Category: q.Get("category"),
		Language: q.Get("language"),
		Sort:     discovery.SortKey(q.Get("sort")),
		Page:     atoiOr(q.Get("page"), 0),
		PageSize: atoiOr(q.Get("page_size"), 0),
	}
	result, err := s.disc.Search(query)
	if err != nil {
		writeAPIErr(w, err)
		return
	}
	skills := make([]skillResponse, len(result.Skills))
	for i, sk := range result.Skills {
		skills[i] = toSkillResponse(sk)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "success",
		"skills":      skills,
		"total":       result.Total,
		"total_pages": result.TotalPages,
	})
}

func (s *Server) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	w2, err := decodeWorkflowBody(r)
	if err != nil {
		writeAPIErr(w, apierr.InvalidWorkflow("invalid workflow body: %v", err))
		return
	}

	execID, err := scheduler.NewWorkflowExecutionID()
	if err != nil {
		writeAPIErr(w, apierr.OrcInternal("mint workflow execution id: %v", err))
		return
	}

	result := s.orch.Run(r.Context(), execID, w2)
	if result.Err != nil && len(result.Nodes) == 0 {
		// Validation-stage failure: no node ever ran.
		writeAPIErr(w, result.Err)
		return
	}

	nodes := make(map[string]workflowNodeResultBody, len(result.Nodes))
	for id, oc := range result.Nodes {
		nr := workflowNodeResultBody{NodeID: oc.NodeID, ExecutionID: oc.ExecutionID, State: string(oc.State), Result: oc.Result}
		if oc.Err != nil {
			nr.Error = &executionErrorBody{Code: oc.Err.Code(), Kind: string(oc.Err.Kind()), Message: oc.Err.Message()}
		}
		nodes[id] = nr
	}

	status := "success"
	httpStatus := http.StatusOK
	if result.Err != nil {
		status = "error"
		httpStatus = result.Err.HTTPStatus()
	}
	resp := map[string]any{
		"status":                status,
		"workflow_execution_id": result.WorkflowExecutionID,
		"nodes":                 nodes,
	}
	if result.Err != nil {
		resp["message"] = result.Err.Message()
		resp["error"] = errorBody{Code: result.Err.Code(), Details: result.FailedNodeID}
	}
	writeJSON(w, httpStatus, resp)
}

// handleValidateWorkflow runs orchestrator.Validate without executing
// anything (SPEC_FULL.md §12, supplemented dry-run endpoint).
func (s *Server) handleValidateWorkflow(w http.ResponseWriter, r *http.Request) {
	w2, err := decodeWorkflowBody(r)
	if err != nil {
		writeAPIErr(w, apierr.InvalidWorkflow("invalid workflow body: %v", err))
		return
	}
	diags := orchestrator.Validate(w2)
	out := make([]diagnosticBody, len(diags))
	for i, d := range diags {
		out[i] = diagnosticBody{Rule: d.Rule, Message: d.Message, NodeID: d.NodeID}
	}
	status := "success"
	if len(diags) > 0 {
		status = "error"
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "diagnostics": out})
}

// handleStream serves GET /skill/stream/{execution_id} (SPEC_FULL.md §12,
// supplemented SSE endpoint), polling scheduler status and forwarding
// state transitions to the Broadcaster's subscribers.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	executionID := r.PathValue("execution_id")
	if _, err := s.sched.Status(executionID); err != nil {
		writeAPIErr(w, err)
		return
	}
	b := s.broad.getOrCreate(executionID)
	go s.pollExecution(r.Context(), executionID, b)
	WriteSSE(w, r, b)
}

// pollExecution forwards execution state transitions to b until the
// execution reaches a terminal state, then closes b. The scheduler holds
// no event-subscription hook of its own (spec.md §9 scopes horizontal
// scaling and persistence out), so polling status is the cheapest bridge.
func (s *Server) pollExecution(ctx context.Context, executionID string, b *Broadcaster) {
	defer func() {
		b.Close()
		s.broad.forget(executionID)
	}()
	lastState := ""
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.baseCtx.Done():
			return
		default:
		}
		rec, err := s.sched.Status(executionID)
		if err != nil {
			return
		}
		if string(rec.State) != lastState {
			lastState = string(rec.State)
			b.Send(map[string]any{"execution_id": executionID, "state": lastState})
		}
		if rec.State.Terminal() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeAPIErr(w http.ResponseWriter, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, "SKILL_INV_999", err.Error(), nil)
		return
	}
	writeError(w, apiErr.HTTPStatus(), apiErr.Code(), apiErr.Message(), apiErr.Details())
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, envelope{Status: "error", Message: message, Error: &errorBody{Code: code, Details: details}})
}
