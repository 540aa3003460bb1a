// Package report aggregates package and stage results into a run report and
// decides the process exit code.
package report

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Mode names the CLI mode a report was produced by.
type Mode string

// PackageResult is the outcome of one package's test command.
// It is written once by the task that ran the package.
type PackageResult struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Success    bool   `json:"success"`
	Total      int    `json:"total"`
	Passed     int    `json:"passed"`
	Failed     int    `json:"failed"`
	DurationMs int64  `json:"durationMs"`
	Skipped    bool   `json:"skipped"`
	Batch      int    `json:"batch"`
	ExitCode   int    `json:"exitCode"`
	Parser     string `json:"parser,omitempty"`
	Error      string `json:"error,omitempty"`
}

// StageResult is the outcome of one progressive pipeline stage.
type StageResult struct {
	Stage      string `json:"stage"`
	Success    bool   `json:"success"`
	Total      int    `json:"total"`
	Passed     int    `json:"passed"`
	Failed     int    `json:"failed"`
	DurationMs int64  `json:"durationMs"`
	ExitCode   int    `json:"exitCode"`
	Parser     string `json:"parser,omitempty"`
	Error      string `json:"error,omitempty"`
}

// PipelineResult is the outcome of a stage pipeline. Stages holds only the
// stages that were started.
type PipelineResult struct {
	Stages      []StageResult `json:"stages"`
	Completed   int           `json:"completed"`
	FailedStage string        `json:"failedStage,omitempty"`
	Success     bool          `json:"success"`
}

// Summary totals a run. Passed + Failed always equals Total.
type Summary struct {
	Total           int `json:"total"`
	Passed          int `json:"passed"`
	Failed          int `json:"failed"`
	Packages        int `json:"packages"`
	FailedPackages  int `json:"failedPackages"`
	SkippedPackages int `json:"skippedPackages"`
}

// Environment records where the run happened.
type Environment struct {
	RuntimeVersion string `json:"runtimeVersion"`
	Platform       string `json:"platform"`
	IsCI           bool   `json:"isCI"`
}

// RunReport is the persisted artifact of a run. It is immutable once built.
type RunReport struct {
	RunID       string          `json:"runId"`
	Timestamp   time.Time       `json:"timestamp"`
	DurationMs  int64           `json:"durationMs"`
	Mode        Mode            `json:"mode"`
	Results     []PackageResult `json:"results"`
	Pipeline    *PipelineResult `json:"pipeline,omitempty"`
	Summary     Summary         `json:"summary"`
	Environment Environment     `json:"environment"`
}

// Exit codes decided by a report.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// now is replaced in tests.
var now = time.Now

// Aggregate sums package results into a report. start is when the run began.
func Aggregate(mode Mode, start time.Time, results []PackageResult) RunReport {
	r := newReport(mode, start)
	r.Results = append([]PackageResult{}, results...)
	for _, pr := range results {
		r.Summary.Total += pr.Total
		r.Summary.Passed += pr.Passed
		r.Summary.Failed += pr.Failed
		r.Summary.Packages++
		if !pr.Success {
			r.Summary.FailedPackages++
		}
		if pr.Skipped {
			r.Summary.SkippedPackages++
		}
	}
	return r
}

// AggregatePipeline sums the started stages of a pipeline into a report.
func AggregatePipeline(mode Mode, start time.Time, p PipelineResult) RunReport {
	r := newReport(mode, start)
	r.Results = []PackageResult{}
	r.Pipeline = &p
	for _, sr := range p.Stages {
		r.Summary.Total += sr.Total
		r.Summary.Passed += sr.Passed
		r.Summary.Failed += sr.Failed
	}
	return r
}

// Success reports whether every package result, or the pipeline, succeeded.
func (r RunReport) Success() bool {
	if r.Pipeline != nil {
		return r.Pipeline.Success
	}
	for _, pr := range r.Results {
		if !pr.Success {
			return false
		}
	}
	return true
}

// ExitCode returns ExitSuccess iff the report succeeded.
func ExitCode(r RunReport) int {
	if r.Success() {
		return ExitSuccess
	}
	return ExitFailure
}

// FailedResults returns the package results that did not succeed.
func (r RunReport) FailedResults() []PackageResult {
	var out []PackageResult
	for _, pr := range r.Results {
		if !pr.Success {
			out = append(out, pr)
		}
	}
	return out
}

func newReport(mode Mode, start time.Time) RunReport {
	end := now()
	return RunReport{
		RunID:       uuid.NewString(),
		Timestamp:   end.UTC(),
		DurationMs:  end.Sub(start).Milliseconds(),
		Mode:        mode,
		Environment: CurrentEnvironment(),
	}
}

// CurrentEnvironment describes the running process.
func CurrentEnvironment() Environment {
	return Environment{
		RuntimeVersion: runtime.Version(),
		Platform:       runtime.GOOS + "/" + runtime.GOARCH,
		IsCI:           isCI(),
	}
}

// isCI follows the common convention: CI set to anything but false/0.
func isCI() bool {
	v, ok := os.LookupEnv("CI")
	if !ok || v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err != nil || b
}
