package runcontext

import (
	"context"
	"testing"

	"github.com/codycjy/freqsearch-orchestrator/pkg/config"
	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/model"
	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/pipeline"
	"github.com/codycjy/freqsearch-orchestrator/pkg/rpcclient/fakebackend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededBackend(t *testing.T) (*fakebackend.Backend, string, string) {
	t.Helper()
	backend := fakebackend.New()
	base := model.Strategy{StrategyID: "base-1", Code: "class Base: pass"}
	backend.SeedStrategy(base)
	backend.SeedRun(model.OptimizationRun{
		RunID:          "run-1",
		BaseStrategyID: base.StrategyID,
		MaxIterations:  5,
		Status:         model.RunStatusPending,
	})
	return backend, "run-1", base.StrategyID
}

func TestLoadAppliesBacktestDefaultsWhenConfigEmpty(t *testing.T) {
	backend, runID, _ := seededBackend(t)
	client, closeAll, err := backend.DialClient()
	require.NoError(t, err)
	defer closeAll()

	defaults := config.BacktestDefaults{
		Exchange:  "binance",
		Pairs:     []string{"BTC/USDT"},
		Timeframe: "1h",
	}
	rc, err := Load(context.Background(), client, runID, defaults)
	require.NoError(t, err)
	assert.Equal(t, "binance", rc.BacktestConfig.Exchange)
	assert.Equal(t, []string{"BTC/USDT"}, rc.BacktestConfig.Pairs)
}

func TestLoadDerivesCurrentStrategyFromBestOrBase(t *testing.T) {
	backend, runID, baseID := seededBackend(t)
	client, closeAll, err := backend.DialClient()
	require.NoError(t, err)
	defer closeAll()

	rc, err := Load(context.Background(), client, runID, config.BacktestDefaults{})
	require.NoError(t, err)
	assert.Equal(t, baseID, rc.CurrentStrategyID)
	assert.Equal(t, model.ModeNew, rc.Mode())

	evolved := model.Strategy{StrategyID: "evolved-1", Code: "class Evolved: pass"}
	backend.SeedStrategy(evolved)
	backend.UpdateRun(model.OptimizationRun{
		RunID:            runID,
		BaseStrategyID:   baseID,
		MaxIterations:    5,
		CurrentIteration: 1,
		BestStrategyID:   evolved.StrategyID,
	})

	rc2, err := Load(context.Background(), client, runID, config.BacktestDefaults{})
	require.NoError(t, err)
	assert.Equal(t, evolved.StrategyID, rc2.CurrentStrategyID)
	assert.Equal(t, "class Evolved: pass", rc2.CurrentCode)
	assert.Equal(t, model.ModeEvolve, rc2.Mode())
}

func TestSaveAdvancesIterationAndTracksBest(t *testing.T) {
	backend, runID, baseID := seededBackend(t)
	client, closeAll, err := backend.DialClient()
	require.NoError(t, err)
	defer closeAll()

	rc, err := Load(context.Background(), client, runID, config.BacktestDefaults{})
	require.NoError(t, err)
	require.Equal(t, 0, rc.CurrentIteration)

	result := pipeline.Result{
		Iteration: model.Iteration{
			IterationIndex:      0,
			GeneratedStrategyID: "gen-1",
			Feedback:            "try again",
		},
		IsNewBest:     true,
		NewBestSharpe: 1.5,
	}
	require.NoError(t, rc.Save(context.Background(), client, result))

	assert.Equal(t, 1, rc.CurrentIteration)
	assert.Equal(t, "gen-1", rc.CurrentStrategyID)
	assert.Equal(t, "try again", rc.PreviousFeedback)
	assert.Equal(t, 1.5, rc.BestSharpe)
	assert.Equal(t, "gen-1", rc.BestStrategyID)
	assert.Equal(t, baseID, rc.BaseStrategyID)
}

func TestSaveTerminalApprovedCallsControlOptimizationComplete(t *testing.T) {
	backend, runID, _ := seededBackend(t)
	client, closeAll, err := backend.DialClient()
	require.NoError(t, err)
	defer closeAll()

	rc, err := Load(context.Background(), client, runID, config.BacktestDefaults{})
	require.NoError(t, err)

	result := pipeline.Result{
		Iteration:         model.Iteration{IterationIndex: 0, GeneratedStrategyID: "gen-1"},
		ShouldTerminate:   true,
		TerminationReason: model.ReasonApproved,
	}
	require.NoError(t, rc.Save(context.Background(), client, result))

	got, err := client.GetOptimizationRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Run.Status)
}
