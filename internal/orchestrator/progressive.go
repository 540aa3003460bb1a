package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/smileynet/testorch/internal/gate"
	"github.com/smileynet/testorch/internal/outcome"
	"github.com/smileynet/testorch/internal/report"
)

// RunProgressive runs stages in order and stops at the first failing stage;
// no process of a later stage is started. The dependency graph is not used:
// stage commands are already scoped by test type.
func (o *Orchestrator) RunProgressive(ctx context.Context, stages []StageDefinition) report.PipelineResult {
	result := report.PipelineResult{Stages: make([]report.StageResult, 0, len(stages))}

	for i, stage := range stages {
		progress := fmt.Sprintf("%d/%d", i+1, len(stages))
		o.notify(StatusUpdate{Target: stage.Name(), Status: StatusRunning, Progress: progress})
		o.logf("stage %s started: %s", stage.Name(), stage.Command)

		timeout := stage.Timeout
		if timeout <= 0 {
			timeout = o.timeout
		}
		res := o.runner.Run(ctx, gate.Command{
			Shell:   stage.Command,
			Dir:     o.workDir,
			Timeout: timeout,
			Env:     o.env,
		})

		sr := classifyStage(stage, res)
		result.Stages = append(result.Stages, sr)

		status := StatusPassed
		if !sr.Success {
			status = StatusFailed
		}
		o.logf("stage %s %s (%d passed, %d failed, %dms)%s", sr.Stage, status, sr.Passed, sr.Failed, sr.DurationMs, suffix(sr.Error))
		o.notify(StatusUpdate{
			Target:   sr.Stage,
			Status:   status,
			Progress: progress,
			Duration: time.Duration(sr.DurationMs) * time.Millisecond,
			Passed:   sr.Passed,
			Failed:   sr.Failed,
			Error:    sr.Error,
		})

		if !sr.Success {
			result.FailedStage = sr.Stage
			for _, rest := range stages[i+1:] {
				o.notify(StatusUpdate{Target: rest.Name(), Status: StatusSkipped})
			}
			return result
		}
		result.Completed++
	}

	result.Success = true
	return result
}

// classifyStage turns raw process output into a StageResult. A stage that
// exits zero without reporting any tests is a success.
func classifyStage(stage StageDefinition, res gate.Result) report.StageResult {
	c := outcome.Parse(res.Output())
	sr := report.StageResult{
		Stage:      stage.Name(),
		Total:      c.Total,
		Passed:     c.Passed,
		Failed:     c.Failed,
		DurationMs: res.Duration.Milliseconds(),
		ExitCode:   res.ExitCode,
		Parser:     string(c.Source),
	}

	switch {
	case res.Err != nil:
		sr.Error = res.Err.Error()
	case res.ExitCode != 0:
		sr.Error = fmt.Sprintf("exit code %d", res.ExitCode)
	default:
		sr.Success = c.Failed == 0
		if !sr.Success {
			sr.Error = fmt.Sprintf("%d tests failed", c.Failed)
		}
	}
	return sr
}
