package pipeline

import (
	"context"

	"github.com/codycjy/freqsearch-orchestrator/pkg/eventbus"
	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/model"
)

// stage5DecideNext implements spec.md §4.4 Stage 5. The tie-break is strict
// ">" — a draw never updates best — and NaN/unset Sharpe (SharpeOrMinusInf)
// compares as less than any finite value. A missing result and a synthetic
// failed result both carry no Sharpe and count as unset.
func stage5DecideNext(ctx context.Context, deps Deps, in model.Iteration) Result {
	result := Result{Iteration: in}

	current := float64(model.NegInfSharpe) // unset Sharpe, compares below any finite value
	if in.BacktestResult != nil && !in.BacktestResult.Synthetic {
		current = in.BacktestResult.SharpeOrMinusInf()
	}

	if current > deps.BestSharpe {
		result.IsNewBest = true
		result.NewBestSharpe = current
		if deps.Bus != nil {
			_ = deps.Bus.Publish(ctx, eventbus.OptimizationNewBest, map[string]any{
				"optimization_run_id": deps.RunID,
				"iteration":           in.IterationIndex,
				"sharpe_ratio":        current,
				"strategy_id":         in.GeneratedStrategyID,
			})
		}
	}

	switch in.Decision {
	case model.DecisionReadyForLive:
		result.ShouldTerminate = true
		result.TerminationReason = model.ReasonApproved
	case model.DecisionArchive:
		result.ShouldTerminate = true
		result.TerminationReason = model.ReasonArchived
	case model.DecisionNeedsModification:
		// the Runner's outer iteration bound decides, not this stage.
	}

	return result
}
