package gpu

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultToolName is the inventory command looked up on PATH.
const DefaultToolName = "nvidia-smi"

// waitDelay bounds how long Run waits for output pipes after the process is killed.
const waitDelay = 500 * time.Millisecond

// maxStderr caps how much stderr is carried into an error message.
const maxStderr = 512

// Tool is the inventory command resolved once at startup.
// A zero Path means the tool is not installed.
type Tool struct {
	Name string
	Path string
}

// DetectTool resolves name on PATH (or as a path) and records the result.
func DetectTool(name string) Tool {
	if name == "" {
		name = DefaultToolName
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return Tool{Name: name}
	}
	return Tool{Name: name, Path: path}
}

// Available reports whether the tool was found.
func (t Tool) Available() bool {
	return t.Path != ""
}

// QueryArgs returns the fixed argument set requesting the inventory columns.
func QueryArgs() []string {
	return []string{
		"--query-gpu=" + strings.Join(queryFields, ","),
		"--format=csv,noheader,nounits",
	}
}

// Runner executes a command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, path string, args ...string) ([]byte, error)
}

// ExecRunner runs commands as child processes. The process is killed when
// ctx is done.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, path string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[:maxStderr]
		}
		if msg != "" {
			return stdout.Bytes(), fmt.Errorf("%w: %s", err, msg)
		}
		return stdout.Bytes(), err
	}
	return stdout.Bytes(), nil
}

// FailureKind classifies a failed invocation.
type FailureKind string

const (
	FailureExit    FailureKind = "exit"
	FailureTimeout FailureKind = "timeout"
	FailureSpawn   FailureKind = "spawn"
	FailurePanic   FailureKind = "panic"
)

// FailureKinds lists every kind in a stable order.
var FailureKinds = [...]FailureKind{FailureExit, FailureTimeout, FailureSpawn, FailurePanic}

func classifyFailure(ctx context.Context, err error) FailureKind {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return FailureExit
	}
	return FailureSpawn
}
