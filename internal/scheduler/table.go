package scheduler

import (
	"sync"

	"github.com/danshapiro/skillproto/internal/model"
)

// executionTable is the one shared mutable structure in the scheduler
// (spec.md §5: "The execution records table is the one shared mutable
// structure; mutation is limited to: the scheduler (creation), the owning
// worker (state/result updates), the orchestrator (cascading
// cancellation)"). Every record is guarded so at most one writer touches it
// at a time, mirroring the teacher's PipelineState (internal/server/
// registry.go), which wraps a single pipeline's mutable fields behind one
// mutex and exposes Set* methods rather than letting callers reach in.
type executionTable struct {
	mu      sync.RWMutex
	records map[string]*entry
}

type entry struct {
	mu     sync.Mutex
	record *model.ExecutionRecord
	cancel func()
}

func newExecutionTable() *executionTable {
	return &executionTable{records: map[string]*entry{}}
}

func (t *executionTable) create(rec *model.ExecutionRecord, cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[rec.ExecutionID] = &entry{record: rec, cancel: cancel}
}

func (t *executionTable) get(id string) (*model.ExecutionRecord, bool) {
	t.mu.RLock()
	e, ok := t.records[id]
	t.mu.RUnlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record.Clone(), true
}

// mutate is the sole write path: it holds the per-record lock for the
// duration of fn, enforcing the single-writer-at-a-time discipline
// regardless of which component (worker or orchestrator) is calling.
func (t *executionTable) mutate(id string, fn func(*model.ExecutionRecord)) bool {
	t.mu.RLock()
	e, ok := t.records[id]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.record.State.Terminal() {
		return false // terminal states are sticky (spec.md §4.4)
	}
	fn(e.record)
	return true
}

// cancel invokes the record's cancellation function, if any, without
// itself changing state — the owning worker observes ctx.Done() and
// performs the actual transition to cancelled/timed_out.
func (t *executionTable) cancel(id string) bool {
	t.mu.RLock()
	e, ok := t.records[id]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	terminal := e.record.State.Terminal()
	cancel := e.cancel
	e.mu.Unlock()
	if terminal || cancel == nil {
		return false
	}
	cancel()
	return true
}

func (t *executionTable) runningCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, e := range t.records {
		e.mu.Lock()
		if e.record.State == model.StatePending || e.record.State == model.StateRunning {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// snapshot returns a point-in-time copy of every record, used by
// internal/runstate for diagnostics (spec.md §9: "encapsulate each behind a
// single owner and mediate access").
func (t *executionTable) snapshot() []*model.ExecutionRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*model.ExecutionRecord, 0, len(t.records))
	for _, e := range t.records {
		e.mu.Lock()
		out = append(out, e.record.Clone())
		e.mu.Unlock()
	}
	return out
}
