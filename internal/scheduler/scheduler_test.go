package scheduler

import (
	"context"
	"encoding/base64"
	"log"
	"testing"
	"time"

	"github.com/danshapiro/skillproto/internal/model"
	"github.com/danshapiro/skillproto/internal/registry"
	"github.com/danshapiro/skillproto/internal/sandbox"
)

func newTestScheduler(t *testing.T, launchers map[string]sandbox.Launcher) (*Scheduler, *registry.Registry) {
	t.Helper()
	reg := registry.New(registry.NewInMemoryMetadataStore(), registry.NewInMemoryBlobStore(), nil)
	rt := sandbox.New(nil, launchers, func(language string, code []byte) (string, func(), error) {
		return "unused", func() {}, nil
	})
	sched := New(context.Background(), Config{MaxConcurrent: 4}, reg, rt, log.Default())
	return sched, reg
}

func registerEchoSkill(t *testing.T, reg *registry.Registry, timeout int) {
	t.Helper()
	_, err := reg.Register(registry.RegisterRequest{
		SkillID:        "skill_echo",
		SkillName:      "Echo",
		Version:        "1.0.0",
		Language:       "python",
		CodeBase64:     base64.StdEncoding.EncodeToString([]byte("noop")),
		TimeoutSeconds: timeout,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
}

func TestInvokeSyncSuccess(t *testing.T) {
	launchers := map[string]sandbox.Launcher{
		"python": func(codePath string) ([]string, error) { return []string{"/bin/sh", "-c", "cat"}, nil },
	}
	sched, reg := newTestScheduler(t, launchers)
	registerEchoSkill(t, reg, 5)

	result, accepted, err := sched.Invoke(context.Background(), InvokeRequest{SkillID: "skill_echo", Inputs: map[string]any{"value": 5}})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if accepted != nil {
		t.Fatalf("expected synchronous result, got async acceptance")
	}
	if result.State != model.StateCompleted {
		t.Fatalf("state = %s, want completed", result.State)
	}
	if result.Result["value"].(float64) != 5 {
		t.Fatalf("result = %+v", result.Result)
	}
}

func TestInvokeUnknownSkill(t *testing.T) {
	sched, _ := newTestScheduler(t, map[string]sandbox.Launcher{})
	_, _, err := sched.Invoke(context.Background(), InvokeRequest{SkillID: "nope"})
	if err == nil {
		t.Fatalf("expected error for unknown skill")
	}
}

func TestInvokeSyncTimeout(t *testing.T) {
	launchers := map[string]sandbox.Launcher{
		"python": func(codePath string) ([]string, error) { return []string{"/bin/sh", "-c", "sleep 5"}, nil },
	}
	sched, reg := newTestScheduler(t, launchers)
	registerEchoSkill(t, reg, 1)

	start := time.Now()
	result, _, err := sched.Invoke(context.Background(), InvokeRequest{SkillID: "skill_echo", TimeoutSeconds: 1})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.State != model.StateTimedOut {
		t.Fatalf("state = %s, want timed_out", result.State)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("timeout took too long: %s", elapsed)
	}
}

func TestInvokeAsyncReturnsImmediately(t *testing.T) {
	launchers := map[string]sandbox.Launcher{
		"python": func(codePath string) ([]string, error) { return []string{"/bin/sh", "-c", "cat"}, nil },
	}
	sched, reg := newTestScheduler(t, launchers)
	registerEchoSkill(t, reg, 5)

	result, accepted, err := sched.Invoke(context.Background(), InvokeRequest{SkillID: "skill_echo", Inputs: map[string]any{"value": 1}, Async: true})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result != nil || accepted == nil {
		t.Fatalf("expected async acceptance")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := sched.Status(accepted.ExecutionID)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if rec.State.Terminal() {
			if rec.State != model.StateCompleted {
				t.Fatalf("state = %s, want completed", rec.State)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("async execution did not complete in time")
}
