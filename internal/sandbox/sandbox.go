// Package sandbox implements the one-shot, time-bounded, resource-capped
// execution of a single skill artifact against a single inputs payload
// (spec.md §4.1, Sandbox Runtime / C1).
//
// The host/guest contract is a subprocess speaking JSON over stdio: the
// guest's entry point reads one line of JSON on stdin and writes one line of
// JSON on stdout. This mirrors the teacher's tool_command handler
// (engine/handlers.go), which shells out via exec.CommandContext with a
// deadline, captures stdout/stderr to files, and classifies the outcome by
// exit code and context deadline — generalized here from a single hardcoded
// "bash -c" tool command to a per-language runtime launcher.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/exec"
	"syscall"
	"time"
)

// FailureKind enumerates the sandbox failure taxonomy (spec.md §4.1).
type FailureKind string

const (
	FailureNone            FailureKind = ""
	FailureTimedOut        FailureKind = "timed_out"
	FailureOversizeOutput  FailureKind = "oversize_output"
	FailureExecutionFailed FailureKind = "execution_failed"
	FailureMarshalling     FailureKind = "marshalling_failed"
	FailureSandboxUnavail  FailureKind = "sandbox_unavailable"
)

// Caps bound one sandbox execution (spec.md §4.1).
type Caps struct {
	MaxWallSeconds  int
	MaxOutputBytes  int64 // default 10 MiB
	MaxMemoryBytes  int64 // advisory; enforced by the launcher when supported
	DenyNetEgress   bool  // default true
}

// DefaultMaxOutputBytes is the spec.md default output cap (10 MiB).
const DefaultMaxOutputBytes = 10 << 20

// DefaultCaps returns the spec.md default resource caps.
func DefaultCaps() Caps {
	return Caps{MaxOutputBytes: DefaultMaxOutputBytes, DenyNetEgress: true}
}

// Outcome is the result of one sandbox run: exactly one of Value or
// (Kind, Detail) is populated.
type Outcome struct {
	OK    bool
	Value map[string]any

	Kind      FailureKind
	Detail    string
	Traceback string
}

// Launcher maps a Language to the argv that runs a skill blob as a
// subprocess. Each launcher receives the path to the materialized code
// file and must read one JSON line on stdin, write one JSON line on
// stdout.
type Launcher func(codePath string) (argv []string, err error)

// Runtime executes skills inside subprocess sandboxes.
type Runtime struct {
	logger    *log.Logger
	launchers map[string]Launcher
	materialize func(language string, code []byte) (path string, cleanup func(), err error)
}

// New builds a Runtime with the given per-language launchers and code
// materialization strategy (how a code blob becomes a file on disk that the
// launcher's argv can reference).
func New(logger *log.Logger, launchers map[string]Launcher, materialize func(language string, code []byte) (string, func(), error)) *Runtime {
	if logger == nil {
		logger = log.Default()
	}
	return &Runtime{logger: logger, launchers: launchers, materialize: materialize}
}

// Run executes one skill invocation. (spec.md §4.1: run(skill_blob,
// language, input_json, deadline, caps) -> outcome)
func (rt *Runtime) Run(ctx context.Context, language string, code []byte, input map[string]any, deadline time.Duration, caps Caps) Outcome {
	launcher, ok := rt.launchers[language]
	if !ok {
		return Outcome{Kind: FailureSandboxUnavail, Detail: fmt.Sprintf("no sandbox launcher for language %q", language)}
	}

	codePath, cleanup, err := rt.materialize(language, code)
	if err != nil {
		return Outcome{Kind: FailureSandboxUnavail, Detail: fmt.Sprintf("materialize code: %v", err)}
	}
	defer cleanup()

	argv, err := launcher(codePath)
	if err != nil {
		return Outcome{Kind: FailureSandboxUnavail, Detail: fmt.Sprintf("build launch argv: %v", err)}
	}
	if len(argv) == 0 {
		return Outcome{Kind: FailureSandboxUnavail, Detail: "launcher produced empty argv"}
	}

	if input == nil {
		input = map[string]any{}
	}
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return Outcome{Kind: FailureMarshalling, Detail: fmt.Sprintf("marshal input: %v", err)}
	}

	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	cmd := exec.CommandContext(cctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(inputJSON)
	// cctx firing (deadline or caller cancellation) must produce SIGTERM,
	// then SIGKILL only if the guest ignores it (spec.md §5: "SIGKILL after
	// a brief SIGTERM grace window of 1s"). Without these, exec.CommandContext
	// would SIGKILL the moment cctx is done, with no grace window at all.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 1 * time.Second

	var stdout, stderr bytes.Buffer
	limitedStdout := &limitedWriter{buf: &stdout, limit: effectiveOutputCap(caps), cancel: cancel}
	cmd.Stdout = limitedStdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if limitedStdout.exceeded {
		rt.warnIfStillAlive(cmd)
		return Outcome{Kind: FailureOversizeOutput, Detail: fmt.Sprintf("output exceeded %d bytes", limitedStdout.limit)}
	}
	if cctx.Err() == context.DeadlineExceeded {
		rt.warnIfStillAlive(cmd)
		return Outcome{Kind: FailureTimedOut, Detail: fmt.Sprintf("deadline of %s exceeded after %s", deadline, elapsed)}
	}
	if runErr != nil {
		return Outcome{Kind: FailureExecutionFailed, Detail: runErr.Error(), Traceback: stderr.String()}
	}

	var value map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &value); err != nil {
		return Outcome{Kind: FailureMarshalling, Detail: fmt.Sprintf("guest stdout is not a JSON object: %v", err)}
	}
	return Outcome{OK: true, Value: value}
}

// warnIfStillAlive logs if a guest process outlives cmd.Run(), which should
// be impossible: cmd.Cancel (SIGTERM) plus cmd.WaitDelay (1s grace before a
// forced SIGKILL) means Run only returns once the process is confirmed gone.
// Kept as a belt-and-suspenders check since PID reuse races are the one way
// this assumption could be wrong in practice; mirrors the teacher's procutil
// PID-liveness check used the same way in attractor_stop.go.
func (rt *Runtime) warnIfStillAlive(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if PIDAlive(cmd.Process.Pid) {
		rt.logger.Printf("sandbox: pid %d reported alive after cmd.Run returned", cmd.Process.Pid)
	}
}

func effectiveOutputCap(caps Caps) int64 {
	if caps.MaxOutputBytes > 0 {
		return caps.MaxOutputBytes
	}
	return DefaultMaxOutputBytes
}

// limitedWriter caps the number of bytes buffered before flagging the
// output as oversize, avoiding unbounded memory growth from a runaway guest.
// Exceeding the cap also cancels the run's context, so cmd.Cancel/WaitDelay
// actually tear the guest down instead of letting it run to completion with
// its output silently discarded.
type limitedWriter struct {
	buf      *bytes.Buffer
	limit    int64
	cancel   context.CancelFunc
	exceeded bool
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if w.exceeded {
		return len(p), nil // discard further output, per spec.md "result discarded"
	}
	if int64(w.buf.Len())+int64(len(p)) > w.limit {
		w.exceeded = true
		w.cancel()
		return len(p), nil
	}
	return w.buf.Write(p)
}
