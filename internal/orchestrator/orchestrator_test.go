package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/danshapiro/skillproto/internal/apierr"
	"github.com/danshapiro/skillproto/internal/model"
	"github.com/danshapiro/skillproto/internal/scheduler"
)

// fakeInvoker is a stub scheduler.Invoker driven by a per-skill function, so
// orchestrator tests don't need a real sandbox/registry wired up.
type fakeInvoker struct {
	mu       sync.Mutex
	calls    []scheduler.InvokeRequest
	handlers map[string]func(scheduler.InvokeRequest) (*scheduler.InvokeResult, error)
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{handlers: map[string]func(scheduler.InvokeRequest) (*scheduler.InvokeResult, error){}}
}

func (f *fakeInvoker) on(skillID string, fn func(scheduler.InvokeRequest) (*scheduler.InvokeResult, error)) {
	f.handlers[skillID] = fn
}

func (f *fakeInvoker) Invoke(_ context.Context, req scheduler.InvokeRequest) (*scheduler.InvokeResult, *scheduler.AsyncAccepted, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	h, ok := f.handlers[req.SkillID]
	if !ok {
		return &scheduler.InvokeResult{State: model.StateCompleted, Result: map[string]any{}}, nil, nil
	}
	res, err := h(req)
	if err != nil {
		return nil, nil, err
	}
	return res, nil, nil
}

func echoResult(fields map[string]any) func(scheduler.InvokeRequest) (*scheduler.InvokeResult, error) {
	return func(req scheduler.InvokeRequest) (*scheduler.InvokeResult, error) {
		out := map[string]any{}
		for k, v := range fields {
			out[k] = v
		}
		return &scheduler.InvokeResult{State: model.StateCompleted, Result: out}, nil
	}
}

func TestRunJoinWorkflowSubstitutesUpstreamResults(t *testing.T) {
	inv := newFakeInvoker()
	inv.on("skill_a", echoResult(map[string]any{"result": 2}))
	inv.on("skill_b", echoResult(map[string]any{"result": 3}))
	var joinInputs map[string]any
	inv.on("skill_join", func(req scheduler.InvokeRequest) (*scheduler.InvokeResult, error) {
		joinInputs = req.Inputs
		return &scheduler.InvokeResult{State: model.StateCompleted, Result: map[string]any{"sum": 5}}, nil
	})

	w := &model.Workflow{
		Nodes: []model.Node{
			{NodeID: "node1", SkillID: "skill_a"},
			{NodeID: "node2", SkillID: "skill_b"},
			{NodeID: "node3", SkillID: "skill_join", InputsTemplate: map[string]any{
				"a": "${node1.result}",
				"b": "${node2.result}",
			}},
		},
		Edges: []model.Edge{{From: "node1", To: "node3"}, {From: "node2", To: "node3"}},
	}

	o := New(inv, nil)
	result := o.Run(context.Background(), "wfexec_1", w)
	if result.Err != nil {
		t.Fatalf("Run failed: %v", result.Err)
	}
	if result.Nodes["node3"].State != model.StateCompleted {
		t.Fatalf("node3 state = %s", result.Nodes["node3"].State)
	}
	if joinInputs["a"] != 2 || joinInputs["b"] != 3 {
		t.Fatalf("join inputs = %+v, want a=2 b=3", joinInputs)
	}
}

func TestRunRejectsCyclicWorkflow(t *testing.T) {
	inv := newFakeInvoker()
	w := &model.Workflow{
		Nodes: []model.Node{{NodeID: "a", SkillID: "s"}, {NodeID: "b", SkillID: "s"}},
		Edges: []model.Edge{{From: "a", To: "b"}, {From: "b", To: "a"}},
	}
	o := New(inv, nil)
	result := o.Run(context.Background(), "wfexec_2", w)
	if result.Err == nil {
		t.Fatalf("expected validation error for cyclic workflow")
	}
	apiErr, ok := apierr.As(result.Err)
	if !ok || apiErr.Code() != "SKILL_ORC_002" {
		t.Fatalf("expected SKILL_ORC_002, got %v", result.Err)
	}
}

func TestRunCascadesFailureAsSkipped(t *testing.T) {
	inv := newFakeInvoker()
	inv.on("skill_fail", func(req scheduler.InvokeRequest) (*scheduler.InvokeResult, error) {
		return &scheduler.InvokeResult{State: model.StateFailed, Err: apierr.ExecutionFailed("boom")}, nil
	})

	w := &model.Workflow{
		Nodes: []model.Node{
			{NodeID: "a", SkillID: "skill_fail"},
			{NodeID: "b", SkillID: "skill_a"},
		},
		Edges: []model.Edge{{From: "a", To: "b"}},
	}
	o := New(inv, nil)
	result := o.Run(context.Background(), "wfexec_3", w)
	if result.FailedNodeID != "a" {
		t.Fatalf("FailedNodeID = %q, want a", result.FailedNodeID)
	}
	if result.Nodes["b"].State != model.StateCancelled {
		t.Fatalf("expected downstream node b to be cancelled/skipped, got %s", result.Nodes["b"].State)
	}
}

func TestRunCascadesFailureThroughMultiHopChain(t *testing.T) {
	inv := newFakeInvoker()
	inv.on("skill_fail", func(req scheduler.InvokeRequest) (*scheduler.InvokeResult, error) {
		return &scheduler.InvokeResult{State: model.StateFailed, Err: apierr.ExecutionFailed("boom")}, nil
	})

	w := &model.Workflow{
		Nodes: []model.Node{
			{NodeID: "a", SkillID: "skill_fail"},
			{NodeID: "b", SkillID: "skill_a"},
			{NodeID: "c", SkillID: "skill_a"},
		},
		Edges: []model.Edge{{From: "a", To: "b"}, {From: "b", To: "c"}},
	}
	o := New(inv, nil)

	done := make(chan *RunResult, 1)
	go func() { done <- o.Run(context.Background(), "wfexec_4", w) }()

	select {
	case result := <-done:
		if result.FailedNodeID != "a" {
			t.Fatalf("FailedNodeID = %q, want a", result.FailedNodeID)
		}
		if result.Nodes["b"].State != model.StateCancelled {
			t.Fatalf("expected node b to be cancelled/skipped, got %s", result.Nodes["b"].State)
		}
		if result.Nodes["c"].State != model.StateCancelled {
			t.Fatalf("expected node c (two hops downstream of the failure) to be cancelled/skipped, got %s", result.Nodes["c"].State)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return: a multi-hop skip cascade failed to propagate to the end of the chain")
	}
}
