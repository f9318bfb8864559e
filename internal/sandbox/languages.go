package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
)

// pythonBridge wraps a user skill module, exposing its top-level "execute"
// function over a single line of stdin/stdout JSON (spec.md §4.1, "The
// skill exposes a single entry point named execute").
const pythonBridge = `
import json, sys, traceback
ns = {}
with open(sys.argv[1]) as f:
    src = f.read()
try:
    exec(compile(src, sys.argv[1], "exec"), ns)
    fn = ns.get("execute")
    if fn is None:
        raise RuntimeError("skill module does not define execute()")
    payload = json.loads(sys.stdin.read() or "{}")
    result = fn(payload)
    sys.stdout.write(json.dumps(result))
except Exception:
    sys.stderr.write(traceback.format_exc())
    sys.exit(1)
`

// nodeBridge is the TypeScript/JavaScript analogue, run under plain node
// against the transpiled or already-JS skill source.
const nodeBridge = `
const fs = require("fs");
const path = process.argv[1];
const src = fs.readFileSync(path, "utf8");
const mod = { exports: {} };
try {
  const wrapped = new Function("module", "exports", "require", src);
  wrapped(mod, mod.exports, require);
  const fn = mod.exports.execute || mod.exports.default;
  if (typeof fn !== "function") {
    throw new Error("skill module does not define execute()");
  }
  let raw = fs.readFileSync(0, "utf8");
  const input = raw ? JSON.parse(raw) : {};
  Promise.resolve(fn(input)).then((result) => {
    process.stdout.write(JSON.stringify(result));
  }).catch((err) => {
    process.stderr.write(String(err && err.stack || err));
    process.exit(1);
  });
} catch (err) {
  process.stderr.write(String(err && err.stack || err));
  process.exit(1);
}
`

// DefaultLaunchers returns the built-in python/typescript/go launchers
// (spec.md §3, "language (one of the sandbox-supported set, initially
// {python, typescript, go})").
//
// The teacher's modeldb package indexed a catalog of externally-fetched
// model metadata by provider; the skill protocol server has no analogous
// need for an external catalog because the supported-language set is fixed
// and small, so it is a plain map literal here rather than a loaded catalog.
func DefaultLaunchers(pythonExe, nodeExe, goExe string) map[string]Launcher {
	if pythonExe == "" {
		pythonExe = "python3"
	}
	if nodeExe == "" {
		nodeExe = "node"
	}
	if goExe == "" {
		goExe = "go"
	}
	return map[string]Launcher{
		"python": func(codePath string) ([]string, error) {
			return []string{pythonExe, "-c", pythonBridge, codePath}, nil
		},
		"typescript": func(codePath string) ([]string, error) {
			return []string{nodeExe, "-e", nodeBridge, "--", codePath}, nil
		},
		// Go skills are self-contained programs that perform their own
		// stdin/stdout JSON handling; "go run" compiles and executes the
		// materialized file directly.
		"go": func(codePath string) ([]string, error) {
			return []string{goExe, "run", codePath}, nil
		},
	}
}

// codeExtension maps a language to the file extension its materialized
// code blob should carry.
func codeExtension(language string) string {
	switch language {
	case "python":
		return ".py"
	case "typescript":
		return ".js"
	case "go":
		return ".go"
	default:
		return ".bin"
	}
}

// DefaultMaterialize writes a code blob to a fresh temp file per
// invocation and returns a cleanup that removes it. One file per
// invocation keeps concurrent executions of the same skill from racing on
// the same path.
func DefaultMaterialize(language string, code []byte) (string, func(), error) {
	dir, err := os.MkdirTemp("", "skillproto-sandbox-*")
	if err != nil {
		return "", func() {}, fmt.Errorf("create sandbox tempdir: %w", err)
	}
	path := filepath.Join(dir, "skill"+codeExtension(language))
	if err := os.WriteFile(path, code, 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return "", func() {}, fmt.Errorf("write skill code: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	return path, cleanup, nil
}
