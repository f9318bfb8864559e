// Package orchestrator implements the DAG orchestrator (spec.md §4.5, DAG
// Orchestrator / C5): workflow graph validation, topological scheduling,
// and "${node.field}" reference resolution.
//
// The validation architecture (a Diagnostic slice built by a sequence of
// independent lint passes, with an extensibility hook for caller-supplied
// rules) is adapted from the teacher's internal/attractor/validate
// package. Most of that package's ~20 lint rules are specific to the
// attractor DAG's AI-coding-agent node types (goal gates, LLM fidelity,
// codergen prompts) and have no analogue here; what's kept is the rule
// shape, the three checks spec.md §4.5 requires (edge target existence,
// acyclicity, and placeholder-reference validity), and a unique-node-id
// check.
package orchestrator

import (
	"fmt"

	"github.com/danshapiro/skillproto/internal/model"
)

// Severity mirrors the teacher's validate.Severity vocabulary.
type Severity string

const (
	SeverityError Severity = "ERROR"
)

// Diagnostic is a single validation finding.
type Diagnostic struct {
	Rule    string
	Message string
	NodeID  string
	EdgeFrom string
	EdgeTo   string
}

// LintRule lets callers extend validation with workflow-specific checks,
// the same extensibility point the teacher's validate package exposes.
type LintRule interface {
	Name() string
	Apply(w *model.Workflow) []Diagnostic
}

// Validate runs the spec.md §4.5 input-validation phase against a
// workflow, before any execution begins. It returns all diagnostics found
// (possibly from more than one check at once) so a caller
// can report everything wrong with one request instead of one error at a
// time.
func Validate(w *model.Workflow, extraRules ...LintRule) []Diagnostic {
	var diags []Diagnostic
	if w == nil {
		return []Diagnostic{{Rule: "workflow_nil", Message: "workflow is nil"}}
	}

	diags = append(diags, lintUniqueNodeIDs(w)...)
	diags = append(diags, lintEdgeTargetsExist(w)...)
	diags = append(diags, lintAcyclic(w)...)
	// Placeholder validation depends on the graph already being acyclic
	// (it needs "is X a predecessor of the referring node" to be
	// well-founded), so it only runs when the edge-target and acyclicity
	// passes are clean.
	if !hasRule(diags, "edge_targets_exist") && !hasRule(diags, "acyclic") {
		diags = append(diags, lintPlaceholderReferences(w)...)
	}

	for _, rule := range extraRules {
		if rule != nil {
			diags = append(diags, rule.Apply(w)...)
		}
	}
	return diags
}

func hasRule(diags []Diagnostic, rule string) bool {
	for _, d := range diags {
		if d.Rule == rule {
			return true
		}
	}
	return false
}

// lintUniqueNodeIDs enforces spec.md §3: "all node ids are unique within
// the workflow."
func lintUniqueNodeIDs(w *model.Workflow) []Diagnostic {
	seen := map[string]bool{}
	var diags []Diagnostic
	for _, n := range w.Nodes {
		if seen[n.NodeID] {
			diags = append(diags, Diagnostic{Rule: "unique_node_ids", NodeID: n.NodeID,
				Message: fmt.Sprintf("duplicate node id %q", n.NodeID)})
		}
		seen[n.NodeID] = true
	}
	return diags
}

// lintEdgeTargetsExist enforces spec.md §3/§4.5 rule 1: "every edge
// endpoint references a declared node."
func lintEdgeTargetsExist(w *model.Workflow) []Diagnostic {
	ids := nodeIDSet(w)
	var diags []Diagnostic
	for _, e := range w.Edges {
		if !ids[e.From] {
			diags = append(diags, Diagnostic{Rule: "edge_targets_exist", EdgeFrom: e.From, EdgeTo: e.To,
				Message: fmt.Sprintf("edge references unknown node %q", e.From)})
		}
		if !ids[e.To] {
			diags = append(diags, Diagnostic{Rule: "edge_targets_exist", EdgeFrom: e.From, EdgeTo: e.To,
				Message: fmt.Sprintf("edge references unknown node %q", e.To)})
		}
	}
	return diags
}

// lintAcyclic enforces spec.md §4.5 rule 2 via DFS grey/black coloring, as
// specified: "Cycles detected by DFS with grey/black coloring."
func lintAcyclic(w *model.Workflow) []Diagnostic {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := map[string]int{}
	for _, n := range w.Nodes {
		color[n.NodeID] = white
	}

	var diags []Diagnostic
	var cyclePath []string
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		cyclePath = append(cyclePath, id)
		for _, next := range w.Successors(id) {
			switch color[next] {
			case grey:
				diags = append(diags, Diagnostic{Rule: "acyclic", NodeID: next,
					Message: fmt.Sprintf("cycle detected: %v -> %s", cyclePath, next)})
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		cyclePath = cyclePath[:len(cyclePath)-1]
		color[id] = black
		return false
	}

	for _, n := range w.Nodes {
		if color[n.NodeID] == white {
			cyclePath = cyclePath[:0]
			if visit(n.NodeID) {
				break
			}
		}
	}
	return diags
}

// lintPlaceholderReferences enforces spec.md §3/§4.5 rule 3: "every
// placeholder ${X.field} in an inputs_template references a node X that is
// transitively upstream of the referring node," rejecting forward and
// self references.
func lintPlaceholderReferences(w *model.Workflow) []Diagnostic {
	ancestors := computeAncestors(w)
	var diags []Diagnostic
	for _, n := range w.Nodes {
		refs := placeholderRefs(n.InputsTemplate)
		for _, ref := range refs {
			if ref == n.NodeID {
				diags = append(diags, Diagnostic{Rule: "placeholder_references", NodeID: n.NodeID,
					Message: fmt.Sprintf("placeholder references own node %q", ref)})
				continue
			}
			if !ancestors[n.NodeID][ref] {
				diags = append(diags, Diagnostic{Rule: "placeholder_references", NodeID: n.NodeID,
					Message: fmt.Sprintf("placeholder references %q, which is not upstream of %q", ref, n.NodeID)})
			}
		}
	}
	return diags
}

func nodeIDSet(w *model.Workflow) map[string]bool {
	ids := map[string]bool{}
	for _, n := range w.Nodes {
		ids[n.NodeID] = true
	}
	return ids
}

// computeAncestors returns, for each node, the set of node ids that are
// transitively upstream of it.
func computeAncestors(w *model.Workflow) map[string]map[string]bool {
	memo := map[string]map[string]bool{}
	var resolve func(id string, visiting map[string]bool) map[string]bool
	resolve = func(id string, visiting map[string]bool) map[string]bool {
		if v, ok := memo[id]; ok {
			return v
		}
		if visiting[id] {
			return map[string]bool{} // cycle guard; lintAcyclic reports this separately
		}
		visiting[id] = true
		out := map[string]bool{}
		for _, p := range w.Predecessors(id) {
			out[p] = true
			for a := range resolve(p, visiting) {
				out[a] = true
			}
		}
		delete(visiting, id)
		memo[id] = out
		return out
	}
	result := map[string]map[string]bool{}
	for _, n := range w.Nodes {
		result[n.NodeID] = resolve(n.NodeID, map[string]bool{})
	}
	return result
}
