// Package runner implements spec.md §4.5: the Runner is the external loop
// controller that drives one OptimizationRun to completion by repeatedly
// invoking the Iteration Pipeline and persisting its result. Grounded on the
// poll-and-process shape of the teacher's pkg/queue.Worker, adapted from a
// goroutine-forever worker into a single bounded run invoked synchronously
// by the CLI.
package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codycjy/freqsearch-orchestrator/pkg/config"
	"github.com/codycjy/freqsearch-orchestrator/pkg/eventbus"
	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/adapters"
	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/model"
	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/pipeline"
	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/runcontext"
	"github.com/codycjy/freqsearch-orchestrator/pkg/rpcclient"
)

// Deps bundles the collaborators a run needs. Engineer/Analyst are the thin
// Stage Adapters invoked once per iteration by the pipeline.
type Deps struct {
	RPC      *rpcclient.Client
	Bus      eventbus.Bus
	Engineer adapters.Engineer
	Analyst  adapters.Analyst
	Pipeline config.PipelineConfig
	Backtest config.BacktestDefaults
}

// RunOptimization drives runID from its current state to a terminal
// decision or max_iterations, per spec.md §4.5's algorithm. It does not open
// or close the RPC channel — callers scope that around the whole call
// (spec.md §5: "the RPC channel is opened in a scoped block around the
// entire run_optimization call").
func RunOptimization(ctx context.Context, deps Deps, runID string) (model.ResultEnvelope, error) {
	log := slog.With("run_id", runID)

	rc, err := runcontext.Load(ctx, deps.RPC, runID, deps.Backtest)
	if err != nil {
		return model.ResultEnvelope{}, fmt.Errorf("loading run %s: %w", runID, err)
	}
	if rc.Status.IsTerminal() {
		log.Info("run already terminal, nothing to do", "status", rc.Status)
		return buildResult(rc, "", nil), nil
	}

	if _, err := deps.RPC.ControlOptimization(ctx, rpcclient.ControlOptimizationRequest{
		RunID:  runID,
		Action: model.ActionResume,
	}); err != nil {
		return model.ResultEnvelope{}, fmt.Errorf("resuming run %s: %w", runID, err)
	}

	for rc.CurrentIteration < rc.MaxIterations {
		if err := ctx.Err(); err != nil {
			return failRun(ctx, deps, rc, fmt.Errorf("run %s cancelled: %w", runID, err)), nil
		}

		if deps.Bus != nil {
			_ = deps.Bus.Publish(ctx, eventbus.OptimizationIterationStarted, map[string]any{
				"optimization_run_id": runID,
				"iteration":           rc.CurrentIteration,
				"max_iterations":      rc.MaxIterations,
			})
		}

		pipelineDeps := pipeline.Deps{
			RPC:              deps.RPC,
			Bus:              deps.Bus,
			Engineer:         deps.Engineer,
			Analyst:          deps.Analyst,
			RunID:            runID,
			BaseStrategyID:   rc.BaseStrategyID,
			ParentStrategyID: rc.CurrentStrategyID,
			MaxIterations:    rc.MaxIterations,
			BestSharpe:       rc.BestSharpe,
			Backtest:         rc.BacktestConfig,
			Pipeline:         deps.Pipeline,
		}

		result := func() (res pipeline.Result) {
			defer func() {
				if r := recover(); r != nil {
					res = pipeline.Result{
						Iteration:         rc.ToIterationState(),
						ShouldTerminate:   true,
						TerminationReason: model.ReasonIterationException,
						Err:               fmt.Errorf("panic during iteration: %v", r),
					}
				}
			}()
			return pipeline.Run(ctx, pipelineDeps, rc.ToIterationState())
		}()

		if err := rc.Save(ctx, deps.RPC, result); err != nil {
			return failRun(ctx, deps, rc, fmt.Errorf("iteration_exception: %w", err)), nil
		}

		if deps.Bus != nil {
			_ = deps.Bus.Publish(ctx, eventbus.OptimizationIterationCompleted, map[string]any{
				"optimization_run_id": runID,
				"iteration":           result.Iteration.IterationIndex,
				"decision":            result.Iteration.Decision,
				"sharpe_ratio":        sharpeOf(result.Iteration.BacktestResult),
				"is_best":             result.IsNewBest,
			})
		}

		if result.Err != nil {
			log.Error("iteration raised an error", "reason", result.TerminationReason, "error", result.Err)
			return terminateRun(ctx, deps, rc, result.TerminationReason, result.Err), nil
		}

		if result.ShouldTerminate {
			return terminateRun(ctx, deps, rc, result.TerminationReason, nil), nil
		}

		if err := rc.Refresh(ctx, deps.RPC); err != nil {
			return failRun(ctx, deps, rc, fmt.Errorf("refreshing run %s: %w", runID, err)), nil
		}
		if rc.Status.IsTerminal() {
			log.Info("run became terminal in the backend, stopping", "status", rc.Status)
			return buildResult(rc, "", nil), nil
		}
	}

	return terminateRun(ctx, deps, rc, model.ReasonMaxIterations, nil), nil
}

// terminateRun persists the outcome via control_optimization and emits
// exactly one of optimization.completed/optimization.failed, per spec.md §7:
// "every terminal path emits exactly one of optimization.completed or
// optimization.failed". approved/archived/max_iterations are successes;
// every other reason is a failure.
func terminateRun(ctx context.Context, deps Deps, rc *runcontext.RunContext, reason model.TerminationReason, iterErr error) model.ResultEnvelope {
	log := slog.With("run_id", rc.RunID)
	succeeded := iterErr == nil && (reason == model.ReasonApproved || reason == model.ReasonArchived || reason == model.ReasonMaxIterations)

	action := model.ActionFail
	if succeeded {
		action = model.ActionComplete
	}
	if _, cerr := deps.RPC.ControlOptimization(ctx, rpcclient.ControlOptimizationRequest{
		RunID:             rc.RunID,
		Action:            action,
		TerminationReason: string(reason),
		BestStrategyID:    rc.BestStrategyID,
	}); cerr != nil {
		log.Error("control_optimization at termination failed", "error", cerr)
	}

	if deps.Bus != nil {
		if succeeded {
			_ = deps.Bus.Publish(ctx, eventbus.OptimizationCompleted, map[string]any{
				"optimization_run_id": rc.RunID,
				"base_strategy_id":    rc.BaseStrategyID,
				"total_iterations":    rc.CurrentIteration,
				"termination_reason":  reason,
				"best_strategy_id":    rc.BestStrategyID,
				"best_sharpe":         rc.BestSharpe,
			})
		} else {
			errs := []string{}
			if iterErr != nil {
				errs = []string{iterErr.Error()}
			}
			_ = deps.Bus.Publish(ctx, eventbus.OptimizationFailed, map[string]any{
				"optimization_run_id": rc.RunID,
				"base_strategy_id":    rc.BaseStrategyID,
				"iteration":           rc.CurrentIteration,
				"reason":              reason,
				"errors":              errs,
			})
		}
	}

	return buildResult(rc, reason, iterErr)
}

// failRun is terminateRun's entry point for conditions discovered outside a
// completed pipeline invocation (cancellation, reload failure) — always a
// failure, never a success reason.
func failRun(ctx context.Context, deps Deps, rc *runcontext.RunContext, err error) model.ResultEnvelope {
	return terminateRun(ctx, deps, rc, model.ReasonIterationException, err)
}

// ResumeOptimization is exactly RunOptimization for an existing run (spec.md
// §4.5: "resume_optimization(run_id) is exactly run_optimization(run_id,
// loaded.base_strategy_id, loaded.max_iterations)"); the loaded base_strategy_id
// and max_iterations are already embedded in the backend's run record, so
// there is nothing extra to pass.
func ResumeOptimization(ctx context.Context, deps Deps, runID string) (model.ResultEnvelope, error) {
	return RunOptimization(ctx, deps, runID)
}

func sharpeOf(res *model.BacktestResult) float64 {
	if res == nil {
		return 0
	}
	return res.SharpeRatio
}

func buildResult(rc *runcontext.RunContext, reason model.TerminationReason, err error) model.ResultEnvelope {
	status := "completed"
	var errMsg string
	if err != nil {
		errMsg = err.Error()
	}
	if err != nil || (reason != "" && reason != model.ReasonApproved && reason != model.ReasonArchived && reason != model.ReasonMaxIterations) {
		status = "failed"
	}
	return model.ResultEnvelope{
		RunID:               rc.RunID,
		BaseStrategyID:      rc.BaseStrategyID,
		IterationsCompleted: rc.CurrentIteration,
		MaxIterations:       rc.MaxIterations,
		BestStrategyID:      rc.BestStrategyID,
		BestSharpe:          rc.BestSharpe,
		TerminationReason:   reason,
		Status:              status,
		Error:               errMsg,
	}
}
