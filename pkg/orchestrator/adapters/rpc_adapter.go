package adapters

import (
	"context"

	"github.com/codycjy/freqsearch-orchestrator/pkg/rpcclient"
)

// RPCEngineer and RPCAnalyst reach the Engineer/Analyst services as two more
// unary methods on the same backend the RPC Client already speaks to (see
// DESIGN.md's pkg/orchestrator/adapters entry for why: the spec leaves their
// transport unspecified, and nothing else in the pack offers a distinct
// protocol for "call an AI service").

type RPCEngineer struct {
	RPC *rpcclient.Client
}

func (e *RPCEngineer) Generate(ctx context.Context, in EngineerInput) (EngineerOutput, error) {
	resp, err := e.RPC.EngineerGenerate(ctx, rpcclient.EngineerGenerateRequest{
		ID:         in.ID,
		Name:       in.Name,
		Code:       in.Code,
		Diagnosis:  in.Diagnosis,
		ParentID:   in.ParentID,
		Mode:       string(in.Mode),
		MaxRetries: in.MaxRetries,
	})
	if err != nil {
		return EngineerOutput{}, err
	}
	return EngineerOutput{
		GeneratedCode:    resp.GeneratedCode,
		ValidationPassed: resp.ValidationPassed,
		ValidationErrors: resp.ValidationErrors,
		RetryCount:       resp.RetryCount,
		StrategyName:     resp.StrategyName,
		Description:      resp.Description,
		Tags:             resp.Tags,
		HyperoptConfig:   resp.HyperoptConfig,
	}, nil
}

type RPCAnalyst struct {
	RPC *rpcclient.Client
}

func (a *RPCAnalyst) Diagnose(ctx context.Context, in AnalystInput) (AnalystOutput, error) {
	resp, err := a.RPC.AnalystDiagnose(ctx, rpcclient.AnalystDiagnoseRequest{
		BacktestResult:    in.BacktestResult,
		StrategyCode:      in.StrategyCode,
		OptimizationRunID: in.OptimizationRunID,
		CurrentIteration:  in.CurrentIteration,
		MaxIterations:     in.MaxIterations,
	})
	if err != nil {
		return AnalystOutput{}, err
	}
	return AnalystOutput{
		Decision:              resp.Decision,
		Confidence:            resp.Confidence,
		Issues:                resp.Issues,
		RootCauses:            resp.RootCauses,
		SuggestionType:        resp.SuggestionType,
		SuggestionDescription: resp.SuggestionDescription,
		TargetMetrics:         resp.TargetMetrics,
		Metrics:               resp.Metrics,
	}, nil
}
