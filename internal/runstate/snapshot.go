// Package runstate writes periodic diagnostic snapshots of the scheduler's
// in-memory execution table to disk. This is explicitly NOT a
// crash-recovery mechanism (spec.md §9: "Async execution state is
// process-local; if horizontal scaling is ever required, execution
// records must migrate to the persistent store") — snapshots exist purely
// so an operator can inspect recent execution history after the fact,
// the same way the teacher's internal/attractor/runstate package wrote a
// JSON run-state file for post-hoc inspection of a pipeline run. Here the
// encoding is MessagePack rather than JSON: msgpack is a real dependency
// the teacher's go.mod carries and nothing else in this codebase exercises
// it, and a compact binary snapshot suits a file that may be written every
// few seconds under load.
package runstate

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/danshapiro/skillproto/internal/model"
)

// Snapshot is the on-disk diagnostic document.
type Snapshot struct {
	TakenAt    time.Time               `msgpack:"taken_at"`
	Executions []*model.ExecutionRecord `msgpack:"executions"`
}

// Source supplies the records to snapshot; *scheduler.Scheduler satisfies
// this via its Snapshot method.
type Source interface {
	Snapshot() []*model.ExecutionRecord
}

// Writer periodically serializes a Source's execution table to a file.
type Writer struct {
	src      Source
	path     string
	interval time.Duration

	mu sync.Mutex
}

// NewWriter builds a Writer that snapshots src to path every interval.
func NewWriter(src Source, path string, interval time.Duration) *Writer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Writer{src: src, path: path, interval: interval}
}

// Run blocks, writing a snapshot on every tick, until stop is closed.
// Intended to run in its own goroutine.
func (w *Writer) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_ = w.WriteOnce()
		}
	}
}

// WriteOnce takes and persists one snapshot immediately.
func (w *Writer) WriteOnce() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := Snapshot{TakenAt: time.Now().UTC(), Executions: w.src.Snapshot()}
	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("marshal run-state snapshot: %w", err)
	}

	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create run-state directory: %w", err)
		}
	}

	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write run-state snapshot: %w", err)
	}
	return os.Rename(tmp, w.path)
}

// ReadSnapshot loads a previously written snapshot file, for diagnostic
// tooling or tests.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run-state snapshot: %w", err)
	}
	var snap Snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal run-state snapshot: %w", err)
	}
	return &snap, nil
}
