// Package scheduler implements the invocation scheduler (spec.md §4.4,
// Invocation Scheduler / C4): synchronous and asynchronous dispatch,
// execution records, concurrency caps, and status lookup.
//
// The worker-pool/cancellation shape is grounded on the teacher's
// attractor engine (internal/attractor/engine/engine.go), which drives a
// run through a context carrying a cancel-cause, dispatches work to a
// bounded pool, and tracks warnings/results behind a mutex rather than
// letting goroutines race on shared fields.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/danshapiro/skillproto/internal/apierr"
	"github.com/danshapiro/skillproto/internal/model"
	"github.com/danshapiro/skillproto/internal/registry"
	"github.com/danshapiro/skillproto/internal/sandbox"
)

// DefaultMaxConcurrent is the spec.md §4.4 default admission cap.
const DefaultMaxConcurrent = 100

// DefaultAsyncQueueSize is the default depth of the async FIFO queue.
// Spec.md §5 allows ("a bounded queue variant is acceptable and SHOULD be
// configurable") — Config.AsyncQueueSize controls this.
const DefaultAsyncQueueSize = 10000

// Config configures a Scheduler.
type Config struct {
	MaxConcurrent   int
	AsyncQueueSize  int
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.AsyncQueueSize <= 0 {
		c.AsyncQueueSize = DefaultAsyncQueueSize
	}
}

// Scheduler binds invocation requests to skill versions and drives them
// through the sandbox runtime.
type Scheduler struct {
	cfg     Config
	reg     *registry.Registry
	rt      *sandbox.Runtime
	table   *executionTable
	sem     chan struct{}
	jobs    chan *job
	logger  *log.Logger
	baseCtx context.Context

	wg sync.WaitGroup
}

type job struct {
	ctx          context.Context
	cancel       context.CancelFunc
	rec          *model.ExecutionRecord
	skill        *model.Skill
	deadline     time.Duration
	done         chan struct{}
}

// New builds a Scheduler and starts its worker pool. ctx governs the
// lifetime of the whole scheduler; cancelling it drains in-flight work.
func New(ctx context.Context, cfg Config, reg *registry.Registry, rt *sandbox.Runtime, logger *log.Logger) *Scheduler {
	cfg.applyDefaults()
	if logger == nil {
		logger = log.Default()
	}
	s := &Scheduler{
		cfg:     cfg,
		reg:     reg,
		rt:      rt,
		table:   newExecutionTable(),
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		jobs:    make(chan *job, cfg.AsyncQueueSize),
		logger:  logger,
		baseCtx: ctx,
	}
	for i := 0; i < cfg.MaxConcurrent; i++ {
		s.wg.Add(1)
		go s.workerLoop()
	}
	return s
}

func (s *Scheduler) workerLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.baseCtx.Done():
			return
		case j, ok := <-s.jobs:
			if !ok {
				return
			}
			s.runJob(j)
		}
	}
}

// InvokeRequest is a POST /skill/invoke body (spec.md §6.1).
type InvokeRequest struct {
	SkillID        string
	Inputs         map[string]any
	TimeoutSeconds int // 0 means "not specified"
	Async          bool
}

// InvokeResult is returned by a synchronous invoke.
type InvokeResult struct {
	ExecutionID    string
	Result         map[string]any
	State          model.ExecutionState
	ExecutionTime  float64
	Err            *apierr.Error
}

// AsyncAccepted is returned by an asynchronous invoke.
type AsyncAccepted struct {
	ExecutionID string
	StatusURL   string
}

// Invoke resolves the skill, validates inputs, admits or queues the
// execution, and either blocks to completion (sync) or returns
// immediately (async). (spec.md §4.4)
func (s *Scheduler) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, *AsyncAccepted, error) {
	skill, err := s.reg.Get(req.SkillID, "")
	if err != nil {
		return nil, nil, err
	}

	inputSchema, err := s.reg.SchemaFor(skill, false)
	if err != nil {
		return nil, nil, apierr.InvInternal("compile input schema: %v", err)
	}
	if violations := inputSchema.Validate(req.Inputs); len(violations) > 0 {
		return nil, nil, apierr.InvalidInputs("inputs failed schema validation: %+v", violations)
	}

	deadline := effectiveDeadline(req.TimeoutSeconds, skill.TimeoutSeconds)

	execID, err := NewExecutionID()
	if err != nil {
		return nil, nil, apierr.InvInternal("mint execution id: %v", err)
	}

	inputsCopy := cloneInputs(req.Inputs)
	rec := &model.ExecutionRecord{
		ExecutionID:  execID,
		SkillID:      skill.SkillID,
		SkillVersion: skill.Version,
		State:        model.StatePending,
		Inputs:       inputsCopy,
	}

	jobCtx, cancel := context.WithCancel(s.baseCtx)
	s.table.create(rec, cancel)
	j := &job{ctx: jobCtx, cancel: cancel, rec: rec, skill: skill, deadline: deadline, done: make(chan struct{})}

	if req.Async {
		select {
		case s.jobs <- j:
		default:
			// AsyncQueueSize exhausted: still "unbounded" semantically, so
			// block rather than reject, matching spec.md §5's FIFO model.
			go func() { s.jobs <- j }()
		}
		return nil, &AsyncAccepted{ExecutionID: execID, StatusURL: "/api/v1/skill/status/" + execID}, nil
	}

	// Synchronous: admission control rejects immediately when saturated
	// (spec.md §4.4: "synchronous requests fail with SKILL_INV_004 /
	// overloaded").
	select {
	case s.sem <- struct{}{}:
	default:
		return nil, nil, apierr.Overloaded()
	}
	go func() {
		defer func() { <-s.sem }()
		s.executeJob(j)
		close(j.done)
	}()

	select {
	case <-j.done:
	case <-ctx.Done():
		s.table.cancel(execID)
		<-j.done
	}

	final, _ := s.table.get(execID)
	return toInvokeResult(final), nil, nil
}

// runJob is the worker-pool entry point for queued async jobs: it
// acquires a concurrency permit (blocking until one is free, realizing the
// FIFO backpressure semantics) then executes.
func (s *Scheduler) runJob(j *job) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()
	s.executeJob(j)
	close(j.done)
}

func toInvokeResult(rec *model.ExecutionRecord) *InvokeResult {
	res := &InvokeResult{
		ExecutionID:   rec.ExecutionID,
		Result:        rec.Result,
		State:         rec.State,
		ExecutionTime: rec.ElapsedSecs,
	}
	if rec.Error != nil {
		switch rec.State {
		case model.StateTimedOut:
			res.Err = apierr.ExecutionTimeout(rec.ExecutionID)
		default:
			res.Err = apierr.ExecutionFailed("%s", rec.Error.Message)
		}
	}
	return res
}

// Status returns the current snapshot of an execution record (spec.md
// §4.4: status(execution_id) -> ExecutionRecord).
func (s *Scheduler) Status(executionID string) (*model.ExecutionRecord, error) {
	rec, ok := s.table.get(executionID)
	if !ok {
		return nil, apierr.ExecutionNotFound(executionID)
	}
	return rec, nil
}

// Cancel requests cancellation of an in-flight execution (spec.md §5:
// cancellation can be caller-initiated or deadline-expiry driven).
func (s *Scheduler) Cancel(executionID string) bool {
	return s.table.cancel(executionID)
}

// RunningCount reports the number of non-terminal executions, used for
// admission control and /health reporting.
func (s *Scheduler) RunningCount() int {
	return s.table.runningCount()
}

// Snapshot returns every execution record, for internal/runstate
// diagnostics.
func (s *Scheduler) Snapshot() []*model.ExecutionRecord {
	return s.table.snapshot()
}

func effectiveDeadline(callerTimeout, skillTimeout int) time.Duration {
	if callerTimeout > 0 && skillTimeout > 0 {
		if callerTimeout < skillTimeout {
			return time.Duration(callerTimeout) * time.Second
		}
		return time.Duration(skillTimeout) * time.Second
	}
	if callerTimeout > 0 {
		return time.Duration(callerTimeout) * time.Second
	}
	return time.Duration(skillTimeout) * time.Second
}

func cloneInputs(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
