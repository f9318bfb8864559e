package sandbox

import (
	"context"
	"testing"
	"time"
)

func noopMaterialize(language string, code []byte) (string, func(), error) {
	return "unused", func() {}, nil
}

func shLauncher(script string) map[string]Launcher {
	return map[string]Launcher{
		"shell": func(codePath string) ([]string, error) {
			return []string{"/bin/sh", "-c", script}, nil
		},
	}
}

func TestRunEchoesStdin(t *testing.T) {
	rt := New(nil, shLauncher("cat"), noopMaterialize)
	out := rt.Run(context.Background(), "shell", nil, map[string]any{"value": 5}, 5*time.Second, DefaultCaps())
	if !out.OK {
		t.Fatalf("expected success, got kind=%s detail=%s", out.Kind, out.Detail)
	}
	if out.Value["value"].(float64) != 5 {
		t.Fatalf("expected value=5, got %v", out.Value["value"])
	}
}

func TestRunTimesOut(t *testing.T) {
	rt := New(nil, shLauncher("sleep 5"), noopMaterialize)
	start := time.Now()
	out := rt.Run(context.Background(), "shell", nil, nil, 100*time.Millisecond, DefaultCaps())
	if out.Kind != FailureTimedOut {
		t.Fatalf("expected timed_out, got %s", out.Kind)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout handling took too long: %s", elapsed)
	}
}

func TestRunEscalatesToSIGKILLAfterGraceWindow(t *testing.T) {
	rt := New(nil, shLauncher("trap '' TERM; sleep 5"), noopMaterialize)
	start := time.Now()
	out := rt.Run(context.Background(), "shell", nil, nil, 100*time.Millisecond, DefaultCaps())
	if out.Kind != FailureTimedOut {
		t.Fatalf("expected timed_out, got %s", out.Kind)
	}
	// A guest that ignores SIGTERM must still be gone well before its own
	// sleep 5 would finish: cmd.WaitDelay's 1s grace window caps how long
	// cmd.Run can block after cctx fires before forcing a SIGKILL.
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("SIGTERM-ignoring guest was not force-killed in time: %s", elapsed)
	}
}

func TestRunOversizeOutputIsDiscarded(t *testing.T) {
	rt := New(nil, shLauncher("head -c 100000 /dev/zero"), noopMaterialize)
	caps := DefaultCaps()
	caps.MaxOutputBytes = 10
	out := rt.Run(context.Background(), "shell", nil, nil, 5*time.Second, caps)
	if out.Kind != FailureOversizeOutput {
		t.Fatalf("expected oversize_output, got %s (%s)", out.Kind, out.Detail)
	}
}

func TestRunUnknownLanguage(t *testing.T) {
	rt := New(nil, map[string]Launcher{}, noopMaterialize)
	out := rt.Run(context.Background(), "cobol", nil, nil, time.Second, DefaultCaps())
	if out.Kind != FailureSandboxUnavail {
		t.Fatalf("expected sandbox_unavailable, got %s", out.Kind)
	}
}

func TestRunNonJSONOutputFails(t *testing.T) {
	rt := New(nil, shLauncher("echo not-json"), noopMaterialize)
	out := rt.Run(context.Background(), "shell", nil, nil, 5*time.Second, DefaultCaps())
	if out.Kind != FailureMarshalling {
		t.Fatalf("expected marshalling_failed, got %s", out.Kind)
	}
}
