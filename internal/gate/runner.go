// Package gate runs test commands as isolated child processes.
package gate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// waitDelay bounds how long Run waits for output pipes after a kill. The whole
// process group is killed, so in practice the pipes close right away.
const waitDelay = 5 * time.Second

// Command describes one process invocation.
type Command struct {
	Shell   string        // Command line executed via sh -c.
	Dir     string        // Working directory.
	Timeout time.Duration // Zero disables the per-invocation timeout.
	Env     []string      // Extra KEY=VALUE pairs appended to the parent environment.
}

// Result holds the raw outcome of a process invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
	Err      error // Spawn failure, timeout or cancellation; nil for a normal exit.
}

// ErrTimeout indicates the process exceeded its time limit and was killed.
var ErrTimeout = errors.New("gate: process timed out")

// Runner executes shell commands.
type Runner struct{}

// NewRunner creates a Runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Run executes c.Shell in c.Dir via sh -c. Process failures never surface as a
// Go error: a non-zero exit is reported through ExitCode, and spawn errors,
// timeouts and cancellation through Err with ExitCode -1.
func (r *Runner) Run(ctx context.Context, c Command) Result {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "sh", "-c", c.Shell)
	cmd.Dir = c.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	killProcessGroup(cmd)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.ExitCode = -1
		res.TimedOut = true
		res.Err = fmt.Errorf("%w after %s", ErrTimeout, c.Timeout)
	case ctx.Err() != nil:
		res.ExitCode = -1
		res.Err = fmt.Errorf("gate: %w", ctx.Err())
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			res.Err = fmt.Errorf("gate: starting %q: %w", c.Shell, err)
		}
	}
	return res
}

// Output returns stdout followed by stderr.
func (r Result) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}
