package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"

	"github.com/smileynet/testorch/internal/config"
	"github.com/smileynet/testorch/internal/graph"
	"github.com/smileynet/testorch/internal/orchestrator"
	"github.com/smileynet/testorch/internal/report"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Mode selects what a run tests.
type Mode string

const (
	ModeAll         Mode = "all"
	ModeAffected    Mode = "affected"
	ModeUnit        Mode = "unit"
	ModeIntegration Mode = "integration"
	ModeE2E         Mode = "e2e"
	ModeProgressive Mode = "progressive"
)

// modeStages maps single-stage modes to their stage kind.
var modeStages = map[Mode]orchestrator.StageKind{
	ModeUnit:        orchestrator.Unit,
	ModeIntegration: orchestrator.Integration,
	ModeE2E:         orchestrator.E2E,
}

// CLI is the top-level command structure for testorch.
type CLI struct {
	Version     kong.VersionFlag `help:"Show version." short:"V"`
	Mode        Mode             `arg:"" enum:"all,affected,unit,integration,e2e,progressive" help:"Run mode: ${enum}."`
	Concurrency int              `help:"Packages per batch (overrides TEST_CONCURRENCY)." short:"j"`
	Base        string           `help:"Git ref to diff against in affected mode."`
	Batching    string           `help:"Batch planner: chunk or wave."`
	Report      string           `help:"Report file path."`
	Timeout     time.Duration    `help:"Per-process timeout for packages and stages."`
	Config      string           `help:"Extra config file, highest priority." type:"path"`
	Stages      string           `help:"Stage file for progressive mode." type:"path"`
	DryRun      bool             `help:"Print the execution plan without running tests." name:"dry-run"`
	NoTUI       bool             `help:"Force plain text output even if stdout is a TTY." name:"no-tui"`
}

// Run executes the selected mode and returns the process exit code.
func (c *CLI) Run(ctx context.Context, stdout io.Writer) (int, error) {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return exitFailure, err
	}
	c.applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return exitFailure, err
	}

	a := newApp(cfg, stdout)
	defer a.close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	return a.run(ctx, c.Mode, c.Stages, c.DryRun)
}

// applyFlags overlays explicitly set flags onto the loaded config.
func (c *CLI) applyFlags(cfg *config.Config) {
	if c.Concurrency > 0 {
		cfg.Scheduler.Concurrency = c.Concurrency
	}
	if c.Base != "" {
		cfg.VCS.BaseRef = c.Base
	}
	if c.Batching != "" {
		cfg.Scheduler.Batching = c.Batching
	}
	if c.Report != "" {
		cfg.Report.Path = c.Report
	}
	if c.Timeout > 0 {
		cfg.Runner.Timeout = c.Timeout
		cfg.Runner.ForceTimeout = true
	}
	if c.NoTUI {
		cfg.Display.Plain = true
	}
}

// loadConfig loads layered config from user and project paths with env overrides.
func loadConfig(extra string) (*config.Config, error) {
	cfg, err := config.LoadLayered(
		os.ExpandEnv("$HOME/.config/testorch/config.yaml"),
		".testorch/config.yaml",
		extra,
	)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const (
	exitSuccess = report.ExitSuccess
	exitFailure = report.ExitFailure
)

// exitCode maps an error to the appropriate exit code. Every error is a
// failure; structural graph errors and setup errors abort before a report
// is written.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	return exitFailure
}

// describeError adds guidance to structural graph errors.
func describeError(err error) string {
	var ce *graph.CycleError
	if errors.As(err, &ce) {
		return fmt.Sprintf("%s\nno execution order exists; break the cycle in the packages' dependencies", err)
	}
	var de *graph.DuplicatePackageError
	if errors.As(err, &de) {
		return fmt.Sprintf("%s\ntwo workspace entries resolve to the same directory", err)
	}
	return err.Error()
}

// run parses args and executes the CLI, returning the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, opts ...kong.Option) int {
	var cli CLI
	opts = append([]kong.Option{
		kong.Name("testorch"),
		kong.Description("Dependency-aware monorepo test orchestrator."),
		kong.Vars{"version": version + " " + commit + " " + date},
		kong.Writers(stdout, stderr),
	}, opts...)

	k, err := kong.New(&cli, opts...)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %s\n", err)
		return exitFailure
	}

	if _, err := k.Parse(args); err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %s\n", err)
		var pe *kong.ParseError
		if errors.As(err, &pe) && pe.Context != nil {
			_ = pe.Context.PrintUsage(true)
		}
		return exitFailure
	}

	code, err := cli.Run(ctx, stdout)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %s\n", describeError(err))
		return exitCode(err)
	}
	return code
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
