package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/adapters"
	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/model"
	"github.com/codycjy/freqsearch-orchestrator/pkg/rpcclient"
)

type stage1Result struct {
	terminated           bool
	reason               model.TerminationReason
	err                  error
	iteration            model.Iteration
	validationRetryCount int
}

// stage1ValidateAndEngineer implements spec.md §4.4 Stage 1. Validation
// retries loop entirely inside this function — none of them touch the
// Runner's outer iteration counter.
func stage1ValidateAndEngineer(ctx context.Context, deps Deps, in model.Iteration) stage1Result {
	maxRetries := deps.Pipeline.MaxValidationRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	engineerMode := adapters.EngineerModeEvolve
	if in.Mode == model.ModeNew {
		engineerMode = adapters.EngineerModeNew
	}

	name := fmt.Sprintf("strategy_%s_iter_%d", deps.BaseStrategyID, in.IterationIndex)
	diagnosis := in.InputFeedback

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			// only the first call of an iteration can be "new"; retries evolve.
			engineerMode = adapters.EngineerModeEvolve
		}
		out, err := deps.Engineer.Generate(ctx, adapters.EngineerInput{
			ID:         fmt.Sprintf("%s-iter-%d-try-%d", deps.RunID, in.IterationIndex, attempt),
			Name:       name,
			Code:       in.InputCode,
			Diagnosis:  diagnosis,
			ParentID:   deps.BaseStrategyID,
			Mode:       engineerMode,
			MaxRetries: maxRetries,
		})
		if err != nil {
			return stage1Result{terminated: true, reason: model.ReasonEngineerException, err: err, iteration: in}
		}

		if !out.ValidationPassed {
			diagnosis = appendErrors(diagnosis, out.ValidationErrors)
			slog.Debug("engineer self-validation failed, retrying", "attempt", attempt)
			continue
		}

		if out.GeneratedCode == "" {
			return stage1Result{terminated: true, reason: model.ReasonEngineerNoCode, iteration: in}
		}

		valResp, valErr := deps.RPC.ValidateStrategy(ctx, rpcclient.ValidateStrategyRequest{
			Code: out.GeneratedCode,
			Name: name,
		})
		if valErr != nil {
			// transport failure: trust the Engineer's own validation (spec.md §4.4).
			slog.Warn("validate_strategy transport failure, trusting engineer", "error", valErr)
			return stage1Result{iteration: withEngineerOutput(in, out), validationRetryCount: attempt}
		}

		if !valResp.Valid {
			diagnosis = appendErrors(diagnosis, valResp.Errors)
			slog.Debug("backend validation failed, retrying", "attempt", attempt)
			continue
		}

		return stage1Result{iteration: withEngineerOutput(in, out), validationRetryCount: attempt}
	}

	return stage1Result{terminated: true, reason: model.ReasonValidationMaxRetries, iteration: in}
}

func withEngineerOutput(in model.Iteration, out adapters.EngineerOutput) model.Iteration {
	in.InputCode = out.GeneratedCode
	return in
}

func appendErrors(diagnosis string, errs []string) string {
	for _, e := range errs {
		if diagnosis != "" {
			diagnosis += "; "
		}
		diagnosis += e
	}
	return diagnosis
}
