package pipeline

import (
	"context"
	"fmt"

	"github.com/codycjy/freqsearch-orchestrator/pkg/eventbus"
	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/model"
	"github.com/codycjy/freqsearch-orchestrator/pkg/rpcclient"
)

type stage2Result struct {
	terminated bool
	reason     model.TerminationReason
	err        error
	iteration  model.Iteration
}

// stage2SubmitBacktest implements spec.md §4.4 Stage 2.
func stage2SubmitBacktest(ctx context.Context, deps Deps, in model.Iteration) stage2Result {
	name := fmt.Sprintf("%s_opt_%s_iter_%d", deps.BaseStrategyID, deps.RunID, in.IterationIndex)

	created, err := deps.RPC.CreateStrategy(ctx, rpcclient.CreateStrategyRequest{
		Name:     name,
		Code:     in.InputCode,
		ParentID: deps.ParentStrategyID,
	})
	if err != nil {
		return stage2Result{terminated: true, reason: model.ReasonStrategyCreationFailed, err: err, iteration: in}
	}
	in.GeneratedStrategyID = created.Strategy.StrategyID

	job, err := deps.RPC.SubmitBacktest(ctx, rpcclient.SubmitBacktestRequest{
		StrategyID: in.GeneratedStrategyID,
		Config:     deps.Backtest,
		RunID:      deps.RunID,
	})
	if err != nil {
		return stage2Result{terminated: true, reason: model.ReasonBacktestSubmissionFailed, err: err, iteration: in}
	}
	in.BacktestJobID = job.Job.JobID

	if deps.Bus != nil {
		_ = deps.Bus.Publish(ctx, eventbus.BacktestSubmitted, map[string]any{
			"optimization_run_id": deps.RunID,
			"iteration":           in.IterationIndex,
			"strategy_id":         in.GeneratedStrategyID,
			"job_id":              in.BacktestJobID,
		})
	}

	return stage2Result{iteration: in}
}
