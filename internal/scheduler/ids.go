package scheduler

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewExecutionID mints an opaque execution identifier matching
// ^exec_[A-Za-z0-9_]+$ (spec.md §6.1) from a ULID built with ulid.New over
// the current time and crypto/rand.
func NewExecutionID() (string, error) {
	id, err := newULID()
	if err != nil {
		return "", err
	}
	return "exec_" + id, nil
}

// NewWorkflowExecutionID mints a workflow-run execution id, prefixed
// exec_wf_ per spec.md §6.1.
func NewWorkflowExecutionID() (string, error) {
	id, err := newULID()
	if err != nil {
		return "", err
	}
	return "exec_wf_" + id, nil
}

func newULID() (string, error) {
	ms := ulid.Timestamp(time.Now())
	id, err := ulid.New(ms, rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate ulid: %w", err)
	}
	return id.String(), nil
}
