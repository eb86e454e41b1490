// Package runcontext implements spec.md §4.3: the Run Context is an
// explicit value rebuilt from the RPC backend on every Load, never a
// process-wide singleton (spec.md §9 re-architecture guidance).
package runcontext

import (
	"context"
	"fmt"

	"github.com/codycjy/freqsearch-orchestrator/pkg/config"
	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/model"
	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/pipeline"
	"github.com/codycjy/freqsearch-orchestrator/pkg/rpcclient"
)

// RunContext is the Runner's read-cache of backend state for a single run.
// The Runner exclusively owns mutation of it during a run (spec.md §3).
type RunContext struct {
	RunID              string
	BaseStrategyID     string
	MaxIterations      int
	CurrentIteration   int
	Status             model.RunStatus
	CurrentStrategyID  string
	CurrentCode        string
	PreviousFeedback   string
	BestStrategyID     string
	BestSharpe         float64
	BacktestConfig     model.BacktestConfig
}

// Load fetches the run and its iteration history via RPC and derives the
// fields Stage 1 needs (spec.md §4.3).
func Load(ctx context.Context, client *rpcclient.Client, runID string, defaults config.BacktestDefaults) (*RunContext, error) {
	resp, err := client.GetOptimizationRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}
	run := resp.Run

	currentStrategyID := run.BestStrategyID
	if currentStrategyID == "" {
		currentStrategyID = run.BaseStrategyID
	}

	stratResp, err := client.GetStrategy(ctx, currentStrategyID)
	if err != nil {
		return nil, fmt.Errorf("loading current strategy %s: %w", currentStrategyID, err)
	}

	var previousFeedback string
	if n := len(resp.Iterations); n > 0 {
		previousFeedback = resp.Iterations[n-1].Feedback
	}

	// A run with no recorded best yet has an initial best_sharpe of −∞
	// (spec.md §3), not whatever zero value the wire happened to carry —
	// otherwise a first iteration with a negative Sharpe would never be
	// recorded as the best.
	bestSharpe := run.BestSharpe
	if run.BestStrategyID == "" {
		bestSharpe = model.NegInfSharpe
	}

	return &RunContext{
		RunID:             run.RunID,
		BaseStrategyID:    run.BaseStrategyID,
		MaxIterations:     run.MaxIterations,
		CurrentIteration:  run.CurrentIteration,
		Status:            run.Status,
		CurrentStrategyID: currentStrategyID,
		CurrentCode:       stratResp.Strategy.Code,
		PreviousFeedback:  previousFeedback,
		BestStrategyID:    run.BestStrategyID,
		BestSharpe:        bestSharpe,
		BacktestConfig:    applyBacktestDefaults(run.Config, defaults),
	}, nil
}

// Refresh re-reads backend-owned fields that can change out from under a
// running loop without the Runner's own doing — status (another actor may
// pause/cancel the run) and the code behind the current strategy (the one
// Save just advanced rc.CurrentStrategyID to) — and merges them into rc.
//
// It deliberately does NOT replace rc wholesale the way Load does: spec.md
// §3's ownership rule is "the Runner exclusively owns mutation of RunContext
// during a run", so current_iteration, current_strategy_id, best tracking,
// and previous_feedback stay whatever Save last computed. A real backend has
// no write path for those fields between iterations (spec.md §4.1's RPC
// surface has no such method); re-deriving them from a backend snapshot on
// every turn would discard the very progress Save just made and spin the
// Runner's loop forever.
func (rc *RunContext) Refresh(ctx context.Context, client *rpcclient.Client) error {
	resp, err := client.GetOptimizationRun(ctx, rc.RunID)
	if err != nil {
		return fmt.Errorf("refreshing run %s: %w", rc.RunID, err)
	}
	rc.Status = resp.Run.Status

	stratResp, err := client.GetStrategy(ctx, rc.CurrentStrategyID)
	if err != nil {
		return fmt.Errorf("refreshing current strategy %s: %w", rc.CurrentStrategyID, err)
	}
	rc.CurrentCode = stratResp.Strategy.Code
	return nil
}

// applyBacktestDefaults fills any zero-valued field of cfg from defaults
// (spec.md §6's "bit-exact defaults when absent").
func applyBacktestDefaults(cfg model.BacktestConfig, defaults config.BacktestDefaults) model.BacktestConfig {
	if cfg.Exchange == "" {
		cfg.Exchange = defaults.Exchange
	}
	if len(cfg.Pairs) == 0 {
		cfg.Pairs = defaults.Pairs
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = defaults.Timeframe
	}
	if cfg.TimerangeStart == "" {
		cfg.TimerangeStart = defaults.TimerangeStart
	}
	if cfg.TimerangeEnd == "" {
		cfg.TimerangeEnd = defaults.TimerangeEnd
	}
	if cfg.DryRunWallet == 0 {
		cfg.DryRunWallet = defaults.DryRunWallet
	}
	if cfg.MaxOpenTrades == 0 {
		cfg.MaxOpenTrades = defaults.MaxOpenTrades
	}
	if cfg.StakeAmount == "" {
		cfg.StakeAmount = defaults.StakeAmount
	}
	return cfg
}

// Mode derives the Iteration mode per spec.md §4.3: "new" iff
// current_iteration == 0, else "evolve".
func (rc *RunContext) Mode() model.IterationMode {
	if rc.CurrentIteration == 0 {
		return model.ModeNew
	}
	return model.ModeEvolve
}

// ToIterationState builds the single IterationState record the pipeline
// consumes for this turn.
func (rc *RunContext) ToIterationState() model.Iteration {
	return model.Iteration{
		IterationIndex: rc.CurrentIteration,
		InputCode:      rc.CurrentCode,
		InputFeedback:  rc.PreviousFeedback,
		Mode:           rc.Mode(),
	}
}

// Save applies the pipeline's result to rc: it advances current_iteration
// by 1, replaces current_strategy_id with the newly generated one (if any),
// replaces previous_feedback, and, if is_new_best, updates
// best_strategy_id/best_sharpe. These updates live in rc only; Save writes
// nothing to the backend except a control_optimization call for the terminal
// reasons terminalAction maps. A later Load therefore sees the backend's own
// current_iteration and best fields, not the progress recorded here.
func (rc *RunContext) Save(ctx context.Context, client *rpcclient.Client, result pipeline.Result) error {
	rc.CurrentIteration++
	if result.Iteration.GeneratedStrategyID != "" {
		rc.CurrentStrategyID = result.Iteration.GeneratedStrategyID
	}
	rc.PreviousFeedback = result.Iteration.Feedback

	if result.IsNewBest {
		rc.BestSharpe = result.NewBestSharpe
		if result.Iteration.GeneratedStrategyID != "" {
			rc.BestStrategyID = result.Iteration.GeneratedStrategyID
		}
	}

	if result.ShouldTerminate {
		action, ok := terminalAction(result.TerminationReason)
		if ok {
			if _, err := client.ControlOptimization(ctx, rpcclient.ControlOptimizationRequest{
				RunID:             rc.RunID,
				Action:            action,
				TerminationReason: string(result.TerminationReason),
				BestStrategyID:    rc.BestStrategyID,
			}); err != nil {
				return fmt.Errorf("control_optimization for run %s: %w", rc.RunID, err)
			}
		}
	}

	return nil
}

// terminalAction maps the terminal decisions handled at Save-time (approved/
// archived/validation_max_retries) onto their control_optimization action
// per spec.md §4.3. Other termination reasons (timeout/cancelled/exception)
// are handled by the Runner itself, not here.
func terminalAction(reason model.TerminationReason) (model.OptimizationAction, bool) {
	switch reason {
	case model.ReasonApproved:
		return model.ActionComplete, true
	case model.ReasonArchived:
		return model.ActionComplete, true
	case model.ReasonValidationMaxRetries:
		return model.ActionFail, true
	default:
		return "", false
	}
}
