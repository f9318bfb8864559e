package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/danshapiro/skillproto/internal/apierr"
	"github.com/danshapiro/skillproto/internal/model"
	"github.com/danshapiro/skillproto/internal/scheduler"
)

// Invoker is the subset of *scheduler.Scheduler the orchestrator depends
// on, narrowed to ease substitution in tests.
type Invoker interface {
	Invoke(ctx context.Context, req scheduler.InvokeRequest) (*scheduler.InvokeResult, *scheduler.AsyncAccepted, error)
}

// Orchestrator runs workflow DAGs against a Scheduler (spec.md §4.5, DAG
// Orchestrator / C5). Node scheduling follows the teacher's
// attractor/engine's in-degree/worker-dispatch shape
// (internal/attractor/engine/engine.go): compute in-degrees, enqueue
// zero-in-degree nodes, dispatch to a bounded worker pool, and on each
// node's completion decrement its successors' in-degrees and enqueue any
// that reach zero.
type Orchestrator struct {
	sched  Invoker
	logger *log.Logger
}

// New builds an Orchestrator bound to a Scheduler.
func New(sched Invoker, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{sched: sched, logger: logger}
}

// NodeOutcome is one node's contribution to a workflow run's result.
type NodeOutcome struct {
	NodeID      string
	ExecutionID string
	State       model.ExecutionState
	Result      map[string]any
	Err         *apierr.Error
}

// RunResult is the outcome of one workflow execution (spec.md §4.5:
// "returns partial results plus the failing node's error").
type RunResult struct {
	WorkflowExecutionID string
	Nodes               map[string]*NodeOutcome
	FailedNodeID        string
	Err                 *apierr.Error
}

// Run validates the workflow, then executes it to completion or to the
// first node failure, whichever comes first (spec.md §4.5: "on any node
// failure, cancel in-flight nodes best-effort, skip not-yet-started nodes,
// and return partial results plus the failing node's error").
//
// ctx's deadline, if any, bounds the whole run; workflow.TimeoutSeconds
// (spec.md §3) additionally bounds it when set and tighter.
func (o *Orchestrator) Run(ctx context.Context, workflowExecID string, w *model.Workflow) *RunResult {
	if diags := Validate(w); len(diags) > 0 {
		err := apierr.InvalidWorkflow("workflow validation failed: %s", diags[0].Message)
		for _, d := range diags {
			if d.Rule == "acyclic" {
				err = apierr.CyclicWorkflow("workflow validation failed: %s", d.Message)
				break
			}
		}
		return &RunResult{
			WorkflowExecutionID: workflowExecID,
			Nodes:               map[string]*NodeOutcome{},
			Err:                 err,
		}
	}

	if w.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(w.TimeoutSeconds)*time.Second)
		defer cancel()
	}
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	r := &run{
		o:         o,
		w:         w,
		ctx:       runCtx,
		cancel:    cancelRun,
		results:   map[string]map[string]any{},
		outcomes:  map[string]*NodeOutcome{},
		inDegree:  map[string]int{},
		done:      make(chan *NodeOutcome),
	}
	return r.execute(workflowExecID)
}

// run holds the mutable state of a single in-flight workflow execution.
type run struct {
	o      *Orchestrator
	w      *model.Workflow
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	results  map[string]map[string]any
	outcomes map[string]*NodeOutcome
	inDegree map[string]int

	done chan *NodeOutcome
}

func (r *run) execute(workflowExecID string) *RunResult {
	for _, n := range r.w.Nodes {
		r.inDegree[n.NodeID] = len(r.w.Predecessors(n.NodeID))
	}

	pending := len(r.w.Nodes)
	var failed *NodeOutcome

	launch := func(n model.Node) {
		go r.runNode(n)
	}
	for _, n := range r.w.Nodes {
		if r.inDegree[n.NodeID] == 0 {
			launch(n)
		}
	}

	// settle processes one node's outcome, whether it actually ran (oc
	// arrived via r.done) or was synthetically skipped (oc was
	// fabricated below, never launched, so it will never arrive on
	// r.done on its own). It decrements pending and walks the node's
	// successors, launching any that become ready or, once a failure has
	// occurred, cascading the skip to them instead — recursively, via a
	// worklist rather than a single successor hop, so a skip propagates
	// all the way to the end of its reachable subgraph instead of
	// stalling pending at a node that will never be launched or reported.
	var settle func(oc *NodeOutcome)
	settle = func(oc *NodeOutcome) {
		pending--
		for _, succID := range r.w.Successors(oc.NodeID) {
			r.mu.Lock()
			r.inDegree[succID]--
			ready := r.inDegree[succID] == 0
			r.mu.Unlock()
			if !ready {
				continue
			}
			if failed != nil {
				skippedOC := &NodeOutcome{NodeID: succID, State: model.StateCancelled}
				r.mu.Lock()
				r.outcomes[succID] = skippedOC
				r.mu.Unlock()
				settle(skippedOC)
				continue
			}
			n, _ := r.w.NodeByID(succID)
			launch(n)
		}
	}

	for pending > 0 {
		oc := <-r.done
		r.mu.Lock()
		r.outcomes[oc.NodeID] = oc
		if oc.Err == nil {
			r.results[oc.NodeID] = oc.Result
		}
		r.mu.Unlock()

		if oc.Err != nil && failed == nil {
			failed = oc
			r.cancel() // best-effort cancellation of in-flight nodes
		}
		settle(oc)
	}

	result := &RunResult{WorkflowExecutionID: workflowExecID, Nodes: r.outcomes}
	if failed != nil {
		result.FailedNodeID = failed.NodeID
		result.Err = failed.Err
	}
	return result
}

// runNode resolves a node's templated inputs against already-completed
// upstream results, invokes it synchronously via the scheduler, and
// reports its outcome on r.done.
func (r *run) runNode(n model.Node) {
	oc := &NodeOutcome{NodeID: n.NodeID}
	defer func() { r.done <- oc }()

	select {
	case <-r.ctx.Done():
		oc.State = model.StateCancelled
		return
	default:
	}

	r.mu.Lock()
	snapshot := make(map[string]map[string]any, len(r.results))
	for k, v := range r.results {
		snapshot[k] = v
	}
	r.mu.Unlock()

	inputs, err := resolveTemplate(n.InputsTemplate, snapshot)
	if err != nil {
		oc.State = model.StateFailed
		oc.Err = apierr.InvalidWorkflow("node %q: resolve inputs: %v", n.NodeID, err)
		return
	}

	res, _, err := r.o.sched.Invoke(r.ctx, scheduler.InvokeRequest{SkillID: n.SkillID, Inputs: inputs})
	if err != nil {
		if apiErr, ok := apierr.As(err); ok {
			oc.Err = apiErr
		} else {
			oc.Err = apierr.OrcInternal("node %q: %v", n.NodeID, err)
		}
		oc.State = model.StateFailed
		return
	}

	oc.ExecutionID = res.ExecutionID
	oc.State = res.State
	oc.Result = res.Result
	oc.Err = res.Err
}
