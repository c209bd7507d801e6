// Package runner executes external commands under an explicit allowlist and
// timeout. Commands are passed to the operating system as discrete argument
// vectors; no shell is ever involved, so no argument can be reinterpreted as
// additional commands or shell metacharacters.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/acolita/secure-automation-mcp/internal/security"
)

// DefaultTimeout bounds commands whose Spec does not set one.
const DefaultTimeout = 5 * time.Minute

// Spec describes one command invocation. It is constructed per call and not
// retained.
type Spec struct {
	// Argv is the program name followed by its arguments. Must be non-empty.
	Argv []string

	// Timeout bounds the external process. Non-positive means DefaultTimeout.
	Timeout time.Duration

	// Allowlist is the set of permitted program names. A nil slice disables
	// the check; a non-nil empty slice denies everything. There is no
	// denylist mode.
	Allowlist []string

	// Dir is the working directory; empty inherits the caller's.
	Dir string

	// Env is the process environment; nil inherits the caller's.
	Env []string
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	ExitCode  int    `json:"exit_code"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	Succeeded bool   `json:"succeeded"`
}

// Runner executes commands synchronously.
type Runner struct {
	logger *slog.Logger
}

// New creates a Runner. A nil logger means slog.Default().
func New(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// Execute runs spec.Argv, capturing stdout and stderr separately, and
// returns the exit status. A non-zero exit is not an error: the Result
// reports it and Succeeded is false. Errors are reserved for rejections
// (empty argv, allowlist miss; the process is never spawned), timeouts
// (the process is killed and reaped before returning), and spawn failures.
// The process runs with the caller's privileges; nothing is escalated.
func (r *Runner) Execute(ctx context.Context, spec Spec) (Result, error) {
	if len(spec.Argv) == 0 {
		return Result{}, fmt.Errorf("%w: empty argv", security.ErrInvalidCommand)
	}
	program := spec.Argv[0]

	if spec.Allowlist != nil && !allowed(program, spec.Allowlist) {
		return Result{}, fmt.Errorf("%w: %q", security.ErrCommandNotAllowed, program)
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, program, spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Info("executing command",
		slog.String("program", program),
		slog.Int("argc", len(spec.Argv)),
		slog.Duration("timeout", timeout),
	)

	runErr := cmd.Run()
	return interpretRun(program, timeout, runErr, ctx.Err(), stdout.String(), stderr.String())
}

// interpretRun maps the outcome of cmd.Run onto a Result or an error. Run
// has waited on the process, so on a deadline the child is already killed
// and reaped. An expired deadline counts as a timeout only when Run itself
// failed: a process that exits cleanly just as the deadline fires keeps its
// result.
func interpretRun(program string, timeout time.Duration, runErr, ctxErr error, stdout, stderr string) (Result, error) {
	if runErr == nil {
		return Result{
			ExitCode:  0,
			Stdout:    stdout,
			Stderr:    stderr,
			Succeeded: true,
		}, nil
	}

	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return Result{}, fmt.Errorf("%w: %q after %s", security.ErrCommandTimeout, program, timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return Result{
			ExitCode: exitErr.ExitCode(),
			Stdout:   stdout,
			Stderr:   stderr,
		}, nil
	}
	return Result{}, fmt.Errorf("run %q: %w", program, runErr)
}

func allowed(program string, allowlist []string) bool {
	for _, name := range allowlist {
		if program == name {
			return true
		}
	}
	return false
}
