package apiserver

import (
	"net/http/httptest"
	"strings"
	"testing"

	"encoding/json"
)

func TestHandleOrchestrateJSONBody(t *testing.T) {
	s := newTestServer(t)
	registerTestSkill(t, s)

	body := map[string]any{
		"nodes": []map[string]any{
			{"node_id": "n1", "skill_id": "skill_echo", "inputs_template": map[string]any{"value": 4}},
		},
		"edges": []map[string]any{},
	}
	code, out := doJSON(t, s, "POST", "/api/v1/skill/orchestrate", body)
	if code != 200 {
		t.Fatalf("status = %d, body = %+v", code, out)
	}
	nodes := out["nodes"].(map[string]any)
	n1 := nodes["n1"].(map[string]any)
	if n1["state"] != "completed" {
		t.Fatalf("n1 state = %v, body = %+v", n1["state"], out)
	}
}

func TestHandleOrchestrateDotSource(t *testing.T) {
	s := newTestServer(t)
	registerTestSkill(t, s)

	dotSrc := `digraph wf { n1 [skill="skill_echo", inputs="{\"value\": 7}"]; }`
	code, out := doJSON(t, s, "POST", "/api/v1/skill/orchestrate", map[string]any{"dot_source": dotSrc})
	if code != 200 {
		t.Fatalf("status = %d, body = %+v", code, out)
	}
	nodes := out["nodes"].(map[string]any)
	n1 := nodes["n1"].(map[string]any)
	if n1["state"] != "completed" {
		t.Fatalf("n1 state = %v, body = %+v", n1["state"], out)
	}
}

func TestHandleValidateWorkflowYAMLBody(t *testing.T) {
	s := newTestServer(t)

	yamlBody := "nodes:\n  - node_id: a\n    skill_id: skill_x\nedges:\n  - from: a\n    to: ghost\n"
	req := httptest.NewRequest("POST", "/api/v1/skill/orchestrate/validate", strings.NewReader(yamlBody))
	req.Header.Set("Content-Type", "application/yaml")
	rr := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rr, req)

	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rr.Body.String())
	}
	if out["status"] != "error" {
		t.Fatalf("expected validation error for edge to unknown node, got %+v", out)
	}
}
