package fakebackend

import (
	"context"
	"testing"

	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/model"
	"github.com/codycjy/freqsearch-orchestrator/pkg/orcherrors"
	"github.com/codycjy/freqsearch-orchestrator/pkg/rpcclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T) (*rpcclient.Client, *Backend) {
	t.Helper()
	backend := New()
	client, closeAll, err := backend.DialClient()
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeAll() })
	return client, backend
}

func TestCreateAndGetStrategyRoundTrip(t *testing.T) {
	client, _ := dial(t)
	ctx := context.Background()

	created, err := client.CreateStrategy(ctx, rpcclient.CreateStrategyRequest{Name: "s1", Code: "class S1: pass"})
	require.NoError(t, err)
	require.NotEmpty(t, created.Strategy.StrategyID)
	assert.Equal(t, 0, created.Strategy.Generation)

	got, err := client.GetStrategy(ctx, created.Strategy.StrategyID)
	require.NoError(t, err)
	assert.Equal(t, "s1", got.Strategy.Name)
}

func TestCreateStrategyDerivesGenerationFromParent(t *testing.T) {
	client, _ := dial(t)
	ctx := context.Background()

	parent, err := client.CreateStrategy(ctx, rpcclient.CreateStrategyRequest{Name: "parent", Code: "..."})
	require.NoError(t, err)

	child, err := client.CreateStrategy(ctx, rpcclient.CreateStrategyRequest{Name: "child", Code: "...", ParentID: parent.Strategy.StrategyID})
	require.NoError(t, err)
	assert.Equal(t, 1, child.Strategy.Generation)
}

func TestGetStrategyNotFoundMapsToNotFoundError(t *testing.T) {
	client, _ := dial(t)
	_, err := client.GetStrategy(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.True(t, orcherrors.IsNotFound(err))
}

func TestSubmitBacktestUnknownStrategyIsNotFound(t *testing.T) {
	client, _ := dial(t)
	_, err := client.SubmitBacktest(context.Background(), rpcclient.SubmitBacktestRequest{StrategyID: "ghost"})
	require.Error(t, err)
	assert.True(t, orcherrors.IsNotFound(err))
}

func TestGetBacktestResultBeforeCompletionIsValidationError(t *testing.T) {
	client, backend := dial(t)
	ctx := context.Background()

	strat, err := client.CreateStrategy(ctx, rpcclient.CreateStrategyRequest{Name: "s", Code: "c"})
	require.NoError(t, err)
	job, err := client.SubmitBacktest(ctx, rpcclient.SubmitBacktestRequest{StrategyID: strat.Strategy.StrategyID})
	require.NoError(t, err)

	_, err = client.GetBacktestResult(ctx, job.Job.JobID)
	require.Error(t, err)
	assert.True(t, orcherrors.IsValidationError(err))

	backend.CompleteJob(job.Job.JobID, model.BacktestResult{JobID: job.Job.JobID, SharpeRatio: 1.5})
	resp, err := client.GetBacktestResult(ctx, job.Job.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1.5, resp.Result.SharpeRatio)
}

func TestControlOptimizationTransitionsStatus(t *testing.T) {
	client, backend := dial(t)
	ctx := context.Background()
	backend.SeedRun(model.OptimizationRun{RunID: "r1", Status: model.RunStatusPending})

	resp, err := client.ControlOptimization(ctx, rpcclient.ControlOptimizationRequest{RunID: "r1", Action: model.ActionResume})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, resp.Run.Status)

	resp, err = client.ControlOptimization(ctx, rpcclient.ControlOptimizationRequest{RunID: "r1", Action: model.ActionComplete, BestStrategyID: "best-1"})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, resp.Run.Status)
	assert.Equal(t, "best-1", resp.Run.BestStrategyID)
}

func TestControlOptimizationUnknownActionIsValidationError(t *testing.T) {
	client, backend := dial(t)
	backend.SeedRun(model.OptimizationRun{RunID: "r1"})
	_, err := client.ControlOptimization(context.Background(), rpcclient.ControlOptimizationRequest{RunID: "r1", Action: "bogus"})
	require.Error(t, err)
	assert.True(t, orcherrors.IsValidationError(err))
}

func TestListOptimizationRunsFiltersAndPaginates(t *testing.T) {
	client, backend := dial(t)
	backend.SeedRun(model.OptimizationRun{RunID: "r1", Status: model.RunStatusRunning})
	backend.SeedRun(model.OptimizationRun{RunID: "r2", Status: model.RunStatusCompleted})
	backend.SeedRun(model.OptimizationRun{RunID: "r3", Status: model.RunStatusRunning})

	resp, err := client.ListOptimizationRuns(context.Background(), rpcclient.ListOptimizationRunsRequest{Status: "running", Page: 1, PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Pagination.TotalCount)
	assert.Len(t, resp.Runs, 1)
}

func TestEngineerGenerateDefaultHook(t *testing.T) {
	client, _ := dial(t)
	resp, err := client.EngineerGenerate(context.Background(), rpcclient.EngineerGenerateRequest{Name: "s", Code: "orig", Mode: "new"})
	require.NoError(t, err)
	assert.True(t, resp.ValidationPassed)
	assert.Contains(t, resp.GeneratedCode, "orig")
}

func TestAnalystDiagnoseCoercesArchiveAtIterationBound(t *testing.T) {
	client, _ := dial(t)
	resp, err := client.AnalystDiagnose(context.Background(), rpcclient.AnalystDiagnoseRequest{CurrentIteration: 3, MaxIterations: 3})
	require.NoError(t, err)
	assert.Equal(t, "archive", resp.Decision)

	resp, err = client.AnalystDiagnose(context.Background(), rpcclient.AnalystDiagnoseRequest{CurrentIteration: 0, MaxIterations: 3})
	require.NoError(t, err)
	assert.Equal(t, "modify", resp.Decision)
}

func TestValidateStrategyHookOverride(t *testing.T) {
	client, backend := dial(t)
	backend.ValidateFunc = func(code, name string) rpcclient.ValidateStrategyResponse {
		return rpcclient.ValidateStrategyResponse{Valid: false, Errors: []string{"syntax error"}}
	}
	resp, err := client.ValidateStrategy(context.Background(), rpcclient.ValidateStrategyRequest{Code: "bad", Name: "n"})
	require.NoError(t, err)
	assert.False(t, resp.Valid)
	assert.Equal(t, []string{"syntax error"}, resp.Errors)
}
