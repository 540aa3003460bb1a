package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/smileynet/testorch"
	"github.com/smileynet/testorch/internal/config"
	"github.com/smileynet/testorch/internal/gate"
	"github.com/smileynet/testorch/internal/graph"
	"github.com/smileynet/testorch/internal/logging"
	"github.com/smileynet/testorch/internal/orchestrator"
	"github.com/smileynet/testorch/internal/report"
	"github.com/smileynet/testorch/internal/tui"
	"github.com/smileynet/testorch/internal/vcs"
	"github.com/smileynet/testorch/internal/workspace"
)

// packageLister abstracts workspace.Reader for testing.
type packageLister interface {
	List() ([]graph.PackageDescriptor, error)
}

// changeSource abstracts vcs.Git for testing.
type changeSource interface {
	ChangedFiles(ctx context.Context, base string) []string
}

// reportStore abstracts report.FileStore for testing.
type reportStore interface {
	Save(r report.RunReport) error
	Path() string
}

// displayFactory builds the display once the run's targets are known.
type displayFactory func(title string, targets []string, cancel context.CancelFunc) tui.Display

// app holds the collaborators of one run.
type app struct {
	cfg        *config.Config
	out        io.Writer
	packages   packageLister
	changes    changeSource
	runner     orchestrator.ProcessRunner
	store      reportStore
	log        *logging.Logger
	templates  fs.FS
	newDisplay displayFactory
	now        func() time.Time
}

// newApp wires production collaborators from cfg.
func newApp(cfg *config.Config, out io.Writer) *app {
	log, err := logging.New(cfg.Report.LogDir)
	if err != nil {
		// The run log is diagnostic only; a read-only checkout still runs tests.
		_, _ = fmt.Fprintf(out, "warning: %v\n", err)
		log = nil
	}

	reader := workspace.NewReader(workspace.Options{
		Root:         cfg.Workspace.Root,
		Manifest:     cfg.Workspace.Manifest,
		Scope:        cfg.Workspace.Scope,
		Script:       cfg.Runner.Script,
		Command:      cfg.Runner.Command,
		TestPatterns: cfg.Workspace.TestPatterns,
	})

	return &app{
		cfg:        cfg,
		out:        out,
		packages:   reader,
		changes:    vcs.NewGit(cfg.Workspace.Root, log),
		runner:     gate.NewRunner(),
		store:      report.NewFileStore(cfg.Report.Path),
		log:        log,
		templates:  testorch.OverlayFS(".testorch/templates", testorch.Templates),
		newDisplay: terminalDisplay(out, cfg.Display.Plain),
		now:        time.Now,
	}
}

// terminalDisplay picks the TUI or plain display for out.
func terminalDisplay(out io.Writer, plain bool) displayFactory {
	return func(title string, targets []string, cancel context.CancelFunc) tui.Display {
		return tui.NewDisplay(tui.DisplayOptions{
			Writer:     out,
			ForcePlain: plain,
			Title:      title,
			Targets:    targets,
			CancelFunc: cancel,
		})
	}
}

func (a *app) close() {
	_ = a.log.Close()
}

// run executes mode and returns the exit code. Errors are fatal conditions
// (setup, duplicate package, cycle) for which no report is written.
func (a *app) run(ctx context.Context, mode Mode, stagesFile string, dryRun bool) (int, error) {
	start := a.now()
	a.log.Printf("run started: mode=%s concurrency=%d batching=%s", mode, a.cfg.Scheduler.Concurrency, a.cfg.Scheduler.Batching)

	var rep report.RunReport
	switch mode {
	case ModeAll, ModeAffected:
		g, batches, err := a.plan(ctx, mode)
		if err != nil {
			a.log.Printf("run aborted: %v", err)
			return exitFailure, err
		}
		if dryRun {
			a.printPlan(batches)
			return exitSuccess, nil
		}
		results := a.execute(ctx, mode, func(ctx context.Context, o *orchestrator.Orchestrator) []report.PackageResult {
			return o.Execute(ctx, g, batches)
		}, flatten(batches))
		rep = report.Aggregate(report.Mode(mode), start, results)

	case ModeUnit, ModeIntegration, ModeE2E, ModeProgressive:
		stages, err := a.stages(mode, stagesFile)
		if err != nil {
			return exitFailure, err
		}
		if dryRun {
			for i, s := range stages {
				_, _ = fmt.Fprintf(a.out, "stage %d: %s: %s\n", i+1, s.Name(), s.Command)
			}
			return exitSuccess, nil
		}
		var pipeline report.PipelineResult
		a.execute(ctx, mode, func(ctx context.Context, o *orchestrator.Orchestrator) []report.PackageResult {
			pipeline = o.RunProgressive(ctx, stages)
			return nil
		}, orchestrator.StageNames(stages))
		rep = report.AggregatePipeline(report.Mode(mode), start, pipeline)

	default:
		return exitFailure, fmt.Errorf("unknown mode %q", mode)
	}

	if err := a.store.Save(rep); err != nil {
		return exitFailure, err
	}
	a.writeSummaries(rep)
	a.printSummary(rep)

	code := report.ExitCode(rep)
	a.log.Printf("run finished: exit=%d total=%d passed=%d failed=%d", code, rep.Summary.Total, rep.Summary.Passed, rep.Summary.Failed)
	return code, nil
}

// plan builds the graph, selects targets for mode and batches them.
func (a *app) plan(ctx context.Context, mode Mode) (*graph.Graph, [][]string, error) {
	descs, err := a.packages.List()
	if err != nil {
		return nil, nil, err
	}
	g, err := graph.Build(descs)
	if err != nil {
		return nil, nil, err
	}

	targets := g.All()
	if mode == ModeAffected {
		changed := a.changes.ChangedFiles(ctx, a.cfg.VCS.BaseRef)
		targets = graph.Affected(g, changed)
		a.log.Printf("affected: %d changed files -> %d of %d packages", len(changed), len(targets), g.Len())
		if len(targets) == 0 {
			_, _ = fmt.Fprintln(a.out, "no affected packages; nothing to test")
		}
	}

	order, err := graph.Order(g, targets)
	if err != nil {
		return nil, nil, err
	}

	size := a.cfg.Scheduler.Concurrency
	if a.cfg.Scheduler.Batching == config.BatchingWave {
		return g, graph.Waves(g, order, size), nil
	}
	return g, graph.Chunk(order, size), nil
}

// stages resolves the stage list for a stage mode.
func (a *app) stages(mode Mode, stagesFile string) ([]orchestrator.StageDefinition, error) {
	var stages []orchestrator.StageDefinition
	switch {
	case mode != ModeProgressive:
		stages = []orchestrator.StageDefinition{orchestrator.DefaultStage(modeStages[mode])}
	case stagesFile != "":
		loaded, err := orchestrator.LoadStagesFile(stagesFile)
		if err != nil {
			return nil, err
		}
		// Commands set in the stage file win over config overrides.
		return a.forceTimeout(loaded), nil
	default:
		stages = orchestrator.ProgressiveStages()
	}

	overrides := make(map[string]orchestrator.StageOverride, len(a.cfg.Stages))
	for name, sc := range a.cfg.Stages {
		overrides[name] = orchestrator.StageOverride{Command: sc.Command, Timeout: sc.Timeout}
	}
	stages, err := orchestrator.OverrideStages(stages, overrides)
	if err != nil {
		return nil, err
	}
	return a.forceTimeout(stages), nil
}

// forceTimeout applies an explicit runner timeout to every stage.
func (a *app) forceTimeout(stages []orchestrator.StageDefinition) []orchestrator.StageDefinition {
	if !a.cfg.Runner.ForceTimeout {
		return stages
	}
	for i := range stages {
		stages[i].Timeout = a.cfg.Runner.Timeout
	}
	return stages
}

// execute runs fn under a display, following the bridge lifecycle: the display
// consumes status updates until the run signals completion.
func (a *app) execute(ctx context.Context, mode Mode, fn func(context.Context, *orchestrator.Orchestrator) []report.PackageResult, targets []string) []report.PackageResult {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	bridge := tui.NewBridge()
	display := a.newDisplay("testorch "+string(mode), targets, cancel)

	displayDone := make(chan error, 1)
	go func() {
		displayDone <- display.Run(context.Background(), bridge.Events())
	}()

	o := orchestrator.New(a.runner,
		orchestrator.WithStatusCallback(bridgeStatusCallback(bridge)),
		orchestrator.WithLogger(a.log),
		orchestrator.WithTimeout(a.cfg.Runner.Timeout),
		orchestrator.WithWorkDir(a.cfg.Workspace.Root),
		orchestrator.WithEnv("FORCE_COLOR=0"),
	)
	results := fn(runCtx, o)

	// An interrupted run still yields results (the cancelled processes count
	// as failures), but the display reports the abort instead of completion.
	if err := runCtx.Err(); err != nil {
		bridge.Error(fmt.Errorf("run interrupted: %w", err))
	} else {
		bridge.Done()
	}
	// Wait for display to finish (so it releases the terminal).
	if err := <-displayDone; err != nil {
		a.log.Printf("display: %v", err)
		_, _ = fmt.Fprintf(a.out, "%v\n", err)
	}
	return results
}

// bridgeStatusCallback converts orchestrator StatusUpdates to
// tui.StatusUpdateMsg and sends them through the bridge.
func bridgeStatusCallback(bridge *tui.Bridge) orchestrator.StatusCallback {
	return func(su orchestrator.StatusUpdate) {
		bridge.Send(tui.StatusUpdateMsg{
			Target:   su.Target,
			Status:   tui.TargetStatus(su.Status),
			Progress: su.Progress,
			Batch:    su.Batch,
			Passed:   su.Passed,
			Failed:   su.Failed,
			Duration: su.Duration,
			Error:    su.Error,
		})
	}
}

// writeSummaries renders the Markdown summary to the CI step summary and the
// configured summary path. Failures are warnings: the JSON report is already
// persisted.
func (a *app) writeSummaries(rep report.RunReport) {
	if p := os.Getenv("GITHUB_STEP_SUMMARY"); p != "" {
		if err := report.AppendSummary(p, a.templates, rep); err != nil {
			_, _ = fmt.Fprintf(a.out, "warning: %v\n", err)
		}
	}
	if p := a.cfg.Report.SummaryPath; p != "" {
		if err := writeSummaryFile(p, a.templates, rep); err != nil {
			_, _ = fmt.Fprintf(a.out, "warning: %v\n", err)
		}
	}
}

// writeSummaryFile replaces the file at path with a fresh summary.
func writeSummaryFile(path string, templates fs.FS, rep report.RunReport) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("report: clearing summary %s: %w", path, err)
	}
	return report.AppendSummary(path, templates, rep)
}

// printSummary prints the closing lines of a run.
func (a *app) printSummary(rep report.RunReport) {
	s := rep.Summary
	if rep.Pipeline != nil {
		p := rep.Pipeline
		_, _ = fmt.Fprintf(a.out, "\n%d/%d stages completed", p.Completed, len(p.Stages))
		if p.FailedStage != "" {
			_, _ = fmt.Fprintf(a.out, ", stopped at %s", p.FailedStage)
		}
		_, _ = fmt.Fprintln(a.out)
	} else {
		_, _ = fmt.Fprintf(a.out, "\n%d packages: %d failed, %d skipped\n", s.Packages, s.FailedPackages, s.SkippedPackages)
		for _, pr := range rep.FailedResults() {
			_, _ = fmt.Fprintf(a.out, "  ✗ %s: %s\n", pr.ID, pr.Error)
		}
	}
	_, _ = fmt.Fprintf(a.out, "tests: %d passed, %d failed, %d total in %.1fs\n",
		s.Passed, s.Failed, s.Total, float64(rep.DurationMs)/1000)
	_, _ = fmt.Fprintf(a.out, "report: %s\n", a.store.Path())
}

// printPlan prints batches without running them.
func (a *app) printPlan(batches [][]string) {
	if len(batches) == 0 {
		_, _ = fmt.Fprintln(a.out, "plan: no packages")
		return
	}
	for i, b := range batches {
		_, _ = fmt.Fprintf(a.out, "batch %d: %s\n", i+1, strings.Join(b, " "))
	}
}

func flatten(batches [][]string) []string {
	var out []string
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}
