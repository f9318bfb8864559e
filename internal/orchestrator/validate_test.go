package orchestrator

import (
	"testing"

	"github.com/danshapiro/skillproto/internal/model"
)

func hasDiagRule(diags []Diagnostic, rule string) bool {
	for _, d := range diags {
		if d.Rule == rule {
			return true
		}
	}
	return false
}

func TestValidateAcceptsCleanWorkflow(t *testing.T) {
	w := &model.Workflow{
		Nodes: []model.Node{
			{NodeID: "a", SkillID: "skill_a"},
			{NodeID: "b", SkillID: "skill_b", InputsTemplate: map[string]any{"x": "${a.result}"}},
		},
		Edges: []model.Edge{{From: "a", To: "b"}},
	}
	if diags := Validate(w); len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %+v", diags)
	}
}

func TestValidateRejectsUnknownEdgeTarget(t *testing.T) {
	w := &model.Workflow{
		Nodes: []model.Node{{NodeID: "a", SkillID: "skill_a"}},
		Edges: []model.Edge{{From: "a", To: "ghost"}},
	}
	diags := Validate(w)
	if !hasDiagRule(diags, "edge_targets_exist") {
		t.Fatalf("expected edge_targets_exist diagnostic, got %+v", diags)
	}
}

func TestValidateRejectsCycle(t *testing.T) {
	w := &model.Workflow{
		Nodes: []model.Node{{NodeID: "a", SkillID: "s"}, {NodeID: "b", SkillID: "s"}},
		Edges: []model.Edge{{From: "a", To: "b"}, {From: "b", To: "a"}},
	}
	diags := Validate(w)
	if !hasDiagRule(diags, "acyclic") {
		t.Fatalf("expected acyclic diagnostic, got %+v", diags)
	}
}

func TestValidateRejectsSelfReference(t *testing.T) {
	w := &model.Workflow{
		Nodes: []model.Node{{NodeID: "a", SkillID: "s", InputsTemplate: map[string]any{"x": "${a.result}"}}},
	}
	diags := Validate(w)
	if !hasDiagRule(diags, "placeholder_references") {
		t.Fatalf("expected placeholder_references diagnostic, got %+v", diags)
	}
}

func TestValidateRejectsForwardReference(t *testing.T) {
	w := &model.Workflow{
		Nodes: []model.Node{
			{NodeID: "a", SkillID: "s", InputsTemplate: map[string]any{"x": "${b.result}"}},
			{NodeID: "b", SkillID: "s"},
		},
		Edges: []model.Edge{{From: "b", To: "a"}},
	}
	// a depends on b via placeholder but the edge runs b -> a, so a comes
	// after b: this should actually be valid. Build a genuine forward ref
	// instead: a references b, with no edge making b an ancestor of a.
	diags := Validate(w)
	if hasDiagRule(diags, "placeholder_references") {
		t.Fatalf("b is upstream of a via the declared edge; did not expect a violation, got %+v", diags)
	}

	w2 := &model.Workflow{
		Nodes: []model.Node{
			{NodeID: "a", SkillID: "s", InputsTemplate: map[string]any{"x": "${b.result}"}},
			{NodeID: "b", SkillID: "s"},
		},
	}
	diags2 := Validate(w2)
	if !hasDiagRule(diags2, "placeholder_references") {
		t.Fatalf("expected placeholder_references diagnostic for unrelated node reference, got %+v", diags2)
	}
}

func TestValidateRejectsDuplicateNodeIDs(t *testing.T) {
	w := &model.Workflow{
		Nodes: []model.Node{{NodeID: "a", SkillID: "s"}, {NodeID: "a", SkillID: "s"}},
	}
	diags := Validate(w)
	if !hasDiagRule(diags, "unique_node_ids") {
		t.Fatalf("expected unique_node_ids diagnostic, got %+v", diags)
	}
}
