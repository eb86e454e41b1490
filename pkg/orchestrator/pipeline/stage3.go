package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/codycjy/freqsearch-orchestrator/pkg/eventbus"
	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/model"
)

type stage3Result struct {
	terminated bool
	reason     model.TerminationReason
	err        error
	iteration  model.Iteration
}

// stage3WaitForResult implements spec.md §4.4 Stage 3: polls get_backtest_job
// until the job reaches a terminal status or MAX_WAIT is exhausted.
func stage3WaitForResult(ctx context.Context, deps Deps, in model.Iteration) stage3Result {
	pollInterval := deps.Pipeline.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	maxWait := deps.Pipeline.MaxWait
	if maxWait <= 0 {
		maxWait = 600 * time.Second
	}

	deadline := time.Now().Add(maxWait)

	for {
		job, err := deps.RPC.GetBacktestJob(ctx, in.BacktestJobID)
		if err != nil {
			// transient RPC errors during polling are logged, not terminal;
			// elapsed time still counts toward MAX_WAIT.
			slog.Warn("get_backtest_job failed, will retry", "job_id", in.BacktestJobID, "error", err)
		} else {
			switch job.Job.Status {
			case model.JobStatusCompleted:
				resResp, err := deps.RPC.GetBacktestResult(ctx, in.BacktestJobID)
				if err != nil {
					slog.Warn("get_backtest_result failed after job completed, will retry", "job_id", in.BacktestJobID, "error", err)
				} else {
					result := resResp.Result
					in.BacktestResult = &result
					if deps.Bus != nil {
						_ = deps.Bus.Publish(ctx, eventbus.BacktestCompleted, map[string]any{
							"optimization_run_id": deps.RunID,
							"iteration":           in.IterationIndex,
							"job_id":              in.BacktestJobID,
							"sharpe_ratio":        result.SharpeRatio,
						})
					}
					return stage3Result{iteration: in}
				}
			case model.JobStatusFailed:
				in.BacktestResult = &model.BacktestResult{
					JobID:        in.BacktestJobID,
					Status:       "failed",
					ErrorMessage: job.Job.ErrorMessage,
					Logs:         job.Job.Logs,
					Synthetic:    true,
				}
				return stage3Result{iteration: in}
			case model.JobStatusCancelled:
				return stage3Result{terminated: true, reason: model.ReasonBacktestCancelled, iteration: in}
			}
		}

		if time.Now().Add(pollInterval).After(deadline) {
			return stage3Result{terminated: true, reason: model.ReasonBacktestTimeout, iteration: in}
		}

		if werr := waitWithBackoff(ctx, pollInterval); werr != nil {
			return stage3Result{terminated: true, reason: model.ReasonBacktestTimeout, err: werr, iteration: in}
		}
	}
}
