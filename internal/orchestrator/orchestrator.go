// Package orchestrator runs package test commands in dependency-ordered
// batches and whole-repository test stages in a fail-fast pipeline.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smileynet/testorch/internal/gate"
	"github.com/smileynet/testorch/internal/graph"
	"github.com/smileynet/testorch/internal/outcome"
	"github.com/smileynet/testorch/internal/report"
)

// ProcessRunner runs one command as a child process.
// Defined here (the consumer) per Go convention: accept interfaces, return structs.
type ProcessRunner interface {
	Run(ctx context.Context, c gate.Command) gate.Result
}

// Logger receives run diagnostics. *logging.Logger satisfies it.
type Logger interface {
	Printf(format string, args ...any)
}

// Status is the display state of a package or stage.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// StatusUpdate carries progress for one package or stage.
type StatusUpdate struct {
	Target   string        // Package ID or stage name.
	Status   Status        // Current status.
	Progress string        // Human-readable progress (e.g. "3/12").
	Batch    int           // 1-based batch number; 0 for stages.
	Duration time.Duration // Set once the target finished.
	Passed   int
	Failed   int
	Error    string
}

// StatusCallback receives progress updates. Updates for members of one batch
// arrive from concurrent tasks but are delivered one at a time.
type StatusCallback func(StatusUpdate)

// Orchestrator runs test commands through a ProcessRunner.
type Orchestrator struct {
	runner         ProcessRunner
	statusCallback StatusCallback
	log            Logger
	timeout        time.Duration
	workDir        string
	env            []string

	notifyMu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// New creates an Orchestrator with the given runner and options.
func New(r ProcessRunner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner:         r,
		statusCallback: func(StatusUpdate) {},
		timeout:        5 * time.Minute,
		workDir:        ".",
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithStatusCallback sets the callback for progress updates.
func WithStatusCallback(cb StatusCallback) Option {
	return func(o *Orchestrator) { o.statusCallback = cb }
}

// WithLogger sets the run log.
func WithLogger(l Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithTimeout sets the per-process timeout for packages, and for stages that
// do not define their own.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithWorkDir sets the directory stage commands run in.
func WithWorkDir(dir string) Option {
	return func(o *Orchestrator) { o.workDir = dir }
}

// WithEnv adds KEY=VALUE pairs to every child process environment.
func WithEnv(env ...string) Option {
	return func(o *Orchestrator) { o.env = append(o.env, env...) }
}

// Execute runs the packages of each batch concurrently, one batch at a time.
// A batch starts only after every process of the previous batch exited.
//
// Failures are recorded on the package's result and never stop the run.
// Results are returned in batch order, one per package ID.
func (o *Orchestrator) Execute(ctx context.Context, g *graph.Graph, batches [][]string) []report.PackageResult {
	total := 0
	for _, b := range batches {
		total += len(b)
	}
	results := make([]report.PackageResult, total)

	offset := 0
	for bi, batch := range batches {
		o.logf("batch %d/%d: %s", bi+1, len(batches), strings.Join(batch, ", "))

		var eg errgroup.Group
		for i, id := range batch {
			idx := offset + i
			progress := fmt.Sprintf("%d/%d", idx+1, total)
			eg.Go(func() error {
				// Each task owns results[idx]; no other task writes it.
				results[idx] = o.runPackage(ctx, g, id, bi+1, progress)
				return nil
			})
		}
		_ = eg.Wait() // tasks never return errors

		offset += len(batch)
	}
	return results
}

// runPackage runs one package's test command and classifies the outcome.
func (o *Orchestrator) runPackage(ctx context.Context, g *graph.Graph, id string, batch int, progress string) report.PackageResult {
	pkg, ok := g.Package(id)
	if !ok {
		pr := report.PackageResult{ID: id, Batch: batch, ExitCode: -1, Error: "package not in graph"}
		o.finish(pr, progress)
		return pr
	}

	if strings.TrimSpace(pkg.TestCommand) == "" {
		pr := report.PackageResult{ID: id, Name: pkg.Name, Success: true, Skipped: true, Batch: batch, Error: "no test script"}
		o.finish(pr, progress)
		return pr
	}

	o.notify(StatusUpdate{Target: id, Status: StatusRunning, Progress: progress, Batch: batch})
	res := o.runner.Run(ctx, gate.Command{
		Shell:   pkg.TestCommand,
		Dir:     pkg.Dir,
		Timeout: o.timeout,
		Env:     o.env,
	})

	pr := classifyPackage(pkg, batch, res)
	o.finish(pr, progress)
	return pr
}

// classifyPackage turns raw process output into a PackageResult.
func classifyPackage(pkg graph.PackageDescriptor, batch int, res gate.Result) report.PackageResult {
	c := outcome.Parse(res.Output())
	pr := report.PackageResult{
		ID:         pkg.ID,
		Name:       pkg.Name,
		Total:      c.Total,
		Passed:     c.Passed,
		Failed:     c.Failed,
		DurationMs: res.Duration.Milliseconds(),
		Batch:      batch,
		ExitCode:   res.ExitCode,
		Parser:     string(c.Source),
	}

	switch {
	case res.Err != nil:
		pr.Error = res.Err.Error()
	case res.ExitCode != 0:
		pr.Error = fmt.Sprintf("exit code %d", res.ExitCode)
	case !c.Found():
		pr.Success = true
		pr.Skipped = true
		pr.Error = "no tests found"
	default:
		pr.Success = c.Failed == 0
		if !pr.Success {
			pr.Error = fmt.Sprintf("%d tests failed", c.Failed)
		}
	}
	return pr
}

func (o *Orchestrator) finish(pr report.PackageResult, progress string) {
	status := StatusPassed
	switch {
	case pr.Skipped:
		status = StatusSkipped
	case !pr.Success:
		status = StatusFailed
	}
	o.logf("package %s %s (%d passed, %d failed, %dms)%s", pr.ID, status, pr.Passed, pr.Failed, pr.DurationMs, suffix(pr.Error))
	o.notify(StatusUpdate{
		Target:   pr.ID,
		Status:   status,
		Progress: progress,
		Batch:    pr.Batch,
		Duration: time.Duration(pr.DurationMs) * time.Millisecond,
		Passed:   pr.Passed,
		Failed:   pr.Failed,
		Error:    pr.Error,
	})
}

// notify serializes callback delivery across concurrent package tasks.
func (o *Orchestrator) notify(su StatusUpdate) {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()
	o.statusCallback(su)
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.log != nil {
		o.log.Printf(format, args...)
	}
}

func suffix(msg string) string {
	if msg == "" {
		return ""
	}
	return ": " + msg
}
