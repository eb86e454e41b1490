package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/adapters"
	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/model"
)

// stage4InvokeAnalyst implements spec.md §4.4 Stage 4. A synthetic-failed
// backtest result short-circuits straight to NEEDS_MODIFICATION without
// invoking the Analyst at all.
func stage4InvokeAnalyst(ctx context.Context, deps Deps, in model.Iteration) model.Iteration {
	res := in.BacktestResult
	if res != nil && res.Synthetic {
		in.Decision = model.DecisionNeedsModification
		in.Feedback = fmt.Sprintf("fix code error: %s; last logs %s", res.ErrorMessage, lastLines(res.Logs))
		return in
	}

	out, err := deps.Analyst.Diagnose(ctx, adapters.AnalystInput{
		BacktestResult:    resultAsMap(res),
		StrategyCode:      in.InputCode,
		OptimizationRunID: deps.RunID,
		CurrentIteration:  in.IterationIndex,
		MaxIterations:     deps.MaxIterations,
	})
	if err != nil {
		in.Decision = model.DecisionNeedsModification
		in.Feedback = fmt.Sprintf("analyst unavailable: %s", err)
		return in
	}

	decision, ok := model.ParseDecision(out.Decision)
	if !ok {
		decision = model.DecisionNeedsModification
	}
	in.Decision = decision
	in.Feedback = concatFeedback(out.SuggestionDescription, out.Issues, out.RootCauses)
	return in
}

func concatFeedback(suggestion string, issues, rootCauses []string) string {
	parts := make([]string, 0, 1+len(issues)+len(rootCauses))
	if suggestion != "" {
		parts = append(parts, suggestion)
	}
	parts = append(parts, issues...)
	parts = append(parts, rootCauses...)
	return strings.Join(parts, "; ")
}

func resultAsMap(res *model.BacktestResult) map[string]any {
	if res == nil {
		return nil
	}
	return map[string]any{
		"job_id":        res.JobID,
		"status":        res.Status,
		"sharpe_ratio":  res.SharpeRatio,
		"profit_pct":    res.ProfitPct,
		"win_rate":      res.WinRate,
		"max_drawdown":  res.MaxDrawdown,
		"metrics":       res.Metrics,
		"error_message": res.ErrorMessage,
	}
}

// lastLines keeps log tails short in synthesized feedback.
func lastLines(logs string) string {
	const maxLen = 2000
	if len(logs) <= maxLen {
		return logs
	}
	return logs[len(logs)-maxLen:]
}
