package apiserver

import (
	"time"

	"github.com/danshapiro/skillproto/internal/model"
)

// envelope is the top-level response shape for every endpoint (spec.md
// §6.1: "top-level status is success or error; on error, message plus
// error.{code, details}"). Per §9's open-question resolution, the
// per-endpoint success payload shape (flat vs. nested under a named key)
// is NOT normalized away; each handler embeds whatever fields its own
// table row promises.
type envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Error   *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// registerRequestBody is the POST /skill/register wire body (spec.md §6.1,
// §4.2).
type registerRequestBody struct {
	SkillID        string         `json:"skill_id"`
	SkillName      string         `json:"skill_name"`
	Description    string         `json:"description"`
	Version        string         `json:"version"`
	Language       string         `json:"language"`
	Code           string         `json:"code"` // base64
	TimeoutSeconds int            `json:"timeout_seconds"`
	Dependencies   string         `json:"dependencies,omitempty"`
	InputSchema    map[string]any `json:"input_schema,omitempty"`
	OutputSchema   map[string]any `json:"output_schema,omitempty"`
	Author         string         `json:"author,omitempty"`
	License        string         `json:"license,omitempty"`
	Category       string         `json:"category,omitempty"`
}

type skillResponse struct {
	SkillID        string         `json:"skill_id"`
	SkillName      string         `json:"skill_name"`
	Description    string         `json:"description,omitempty"`
	Version        string         `json:"version"`
	Language       string         `json:"language"`
	TimeoutSeconds int            `json:"timeout_seconds"`
	Dependencies   string         `json:"dependencies,omitempty"`
	InputSchema    map[string]any `json:"input_schema,omitempty"`
	OutputSchema   map[string]any `json:"output_schema,omitempty"`
	Author         string         `json:"author,omitempty"`
	License        string         `json:"license,omitempty"`
	Category       string         `json:"category,omitempty"`
	ContentHash    string         `json:"content_hash"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func toSkillResponse(sk *model.Skill) skillResponse {
	return skillResponse{
		SkillID:        sk.SkillID,
		SkillName:      sk.SkillName,
		Description:    sk.Description,
		Version:        sk.Version,
		Language:       string(sk.Language),
		TimeoutSeconds: sk.TimeoutSeconds,
		Dependencies:   sk.Dependencies,
		InputSchema:    sk.InputSchema,
		OutputSchema:   sk.OutputSchema,
		Author:         sk.Author,
		License:        sk.License,
		Category:       sk.Category,
		ContentHash:    sk.ContentHash,
		CreatedAt:      sk.CreatedAt,
		UpdatedAt:      sk.UpdatedAt,
	}
}

// invokeRequestBody is the POST /skill/invoke wire body (spec.md §4.4).
type invokeRequestBody struct {
	SkillID        string         `json:"skill_id"`
	Version        string         `json:"version,omitempty"`
	Inputs         map[string]any `json:"inputs"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty"`
	Async          bool           `json:"async,omitempty"`
}

type executionResponse struct {
	ExecutionID   string                 `json:"execution_id"`
	SkillID       string                 `json:"skill_id"`
	SkillVersion  string                 `json:"skill_version"`
	State         string                 `json:"state"`
	Result        map[string]any         `json:"result,omitempty"`
	Error         *executionErrorBody    `json:"error,omitempty"`
	StartedAt     *time.Time             `json:"started_at,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	ExecutionTime float64                `json:"execution_time,omitempty"`
}

type executionErrorBody struct {
	Code    string `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func toExecutionResponse(rec *model.ExecutionRecord) executionResponse {
	resp := executionResponse{
		ExecutionID:  rec.ExecutionID,
		SkillID:      rec.SkillID,
		SkillVersion: rec.SkillVersion,
		State:        string(rec.State),
		Result:       rec.Result,
	}
	if !rec.StartedAt.IsZero() {
		resp.StartedAt = &rec.StartedAt
	}
	if !rec.CompletedAt.IsZero() {
		resp.CompletedAt = &rec.CompletedAt
		resp.ExecutionTime = rec.ElapsedSecs
	}
	if rec.Error != nil {
		resp.Error = &executionErrorBody{Code: rec.Error.Code, Kind: rec.Error.Kind, Message: rec.Error.Message}
	}
	return resp
}

// workflowRequestBody is the POST /skill/orchestrate wire body (spec.md
// §3, Workflow; §4.5).
type workflowRequestBody struct {
	WorkflowID     string             `json:"workflow_id,omitempty" yaml:"workflow_id,omitempty"`
	Nodes          []workflowNodeBody `json:"nodes" yaml:"nodes"`
	Edges          []workflowEdgeBody `json:"edges" yaml:"edges"`
	GlobalInputs   map[string]any     `json:"global_inputs,omitempty" yaml:"global_inputs,omitempty"`
	TimeoutSeconds int                `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	// DotSource is an alternate authoring surface (SPEC_FULL.md §12): when
	// set, it is parsed into the Workflow instead of Nodes/Edges.
	DotSource string `json:"dot_source,omitempty" yaml:"dot_source,omitempty"`
}

type workflowNodeBody struct {
	NodeID         string         `json:"node_id" yaml:"node_id"`
	SkillID        string         `json:"skill_id" yaml:"skill_id"`
	InputsTemplate map[string]any `json:"inputs_template" yaml:"inputs_template"`
}

type workflowEdgeBody struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

func (w workflowRequestBody) toModel() *model.Workflow {
	nodes := make([]model.Node, len(w.Nodes))
	for i, n := range w.Nodes {
		nodes[i] = model.Node{NodeID: n.NodeID, SkillID: n.SkillID, InputsTemplate: n.InputsTemplate}
	}
	edges := make([]model.Edge, len(w.Edges))
	for i, e := range w.Edges {
		edges[i] = model.Edge{From: e.From, To: e.To}
	}
	return &model.Workflow{
		WorkflowID:     w.WorkflowID,
		Nodes:          nodes,
		Edges:          edges,
		GlobalInputs:   w.GlobalInputs,
		TimeoutSeconds: w.TimeoutSeconds,
	}
}

type workflowNodeResultBody struct {
	NodeID      string              `json:"node_id"`
	ExecutionID string              `json:"execution_id,omitempty"`
	State       string              `json:"state"`
	Result      map[string]any      `json:"result,omitempty"`
	Error       *executionErrorBody `json:"error,omitempty"`
}

type diagnosticBody struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
	NodeID  string `json:"node_id,omitempty"`
}
