// Package pipeline implements spec.md §4.4: the Iteration Pipeline, a
// linear, loop-free 5-stage state machine over a single IterationState. The
// graph has no internal iteration loop — validation retries happen inside
// Stage 1 alone, so they never consume the Runner's outer iteration counter
// (spec.md §9: "prefer the external-loop runner; keep the pipeline graph
// linear, let a plain loop drive iterations").
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codycjy/freqsearch-orchestrator/pkg/config"
	"github.com/codycjy/freqsearch-orchestrator/pkg/eventbus"
	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/adapters"
	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/model"
	"github.com/codycjy/freqsearch-orchestrator/pkg/rpcclient"
)

// Result is what one pipeline invocation returns to the Runner.
type Result struct {
	Iteration         model.Iteration
	ValidationRetryCount int
	IsNewBest         bool
	NewBestSharpe     float64
	ShouldTerminate   bool
	TerminationReason model.TerminationReason
	Err               error
}

// Deps bundles everything a stage needs: the RPC client for backend calls,
// the event bus for lifecycle events, the Engineer/Analyst stage adapters,
// and the run-level identifiers/config a single iteration cannot derive on
// its own.
type Deps struct {
	RPC      *rpcclient.Client
	Bus      eventbus.Bus
	Engineer adapters.Engineer
	Analyst  adapters.Analyst

	RunID             string
	BaseStrategyID    string
	ParentStrategyID  string // current_strategy_id carried in from RunContext before this iteration
	MaxIterations     int
	BestSharpe        float64
	Backtest          model.BacktestConfig
	Pipeline          config.PipelineConfig
}

// Run executes the 5 stages in sequence over in, returning as soon as any
// stage sets a termination condition or the final stage completes. Each
// invocation is a fresh instance — no state is retained across calls
// (spec.md §9: "each pipeline invocation is a fresh instance").
func Run(ctx context.Context, deps Deps, in model.Iteration) Result {
	log := slog.With("run_id", deps.RunID, "iteration", in.IterationIndex)

	s1 := stage1ValidateAndEngineer(ctx, deps, in)
	if s1.terminated {
		log.Info("iteration terminated in stage 1", "reason", s1.reason)
		return terminal(in, s1.reason, s1.err)
	}
	in = s1.iteration

	s2 := stage2SubmitBacktest(ctx, deps, in)
	if s2.terminated {
		log.Info("iteration terminated in stage 2", "reason", s2.reason)
		return terminal(in, s2.reason, s2.err)
	}
	in = s2.iteration

	s3 := stage3WaitForResult(ctx, deps, in)
	if s3.terminated {
		log.Info("iteration terminated in stage 3", "reason", s3.reason)
		return terminal(in, s3.reason, s3.err)
	}
	in = s3.iteration

	in = stage4InvokeAnalyst(ctx, deps, in)

	result := stage5DecideNext(ctx, deps, in)
	result.ValidationRetryCount = s1.validationRetryCount
	return result
}

func terminal(in model.Iteration, reason model.TerminationReason, err error) Result {
	return Result{
		Iteration:         in,
		ShouldTerminate:   true,
		TerminationReason: reason,
		Err:               err,
	}
}

// waitWithBackoff is shared by Stage 3's polling loop; kept here so it can
// be unit-tested independent of the stage's RPC calls.
func waitWithBackoff(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait cancelled: %w", ctx.Err())
	}
}
