package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codycjy/freqsearch-orchestrator/pkg/config"
	"github.com/codycjy/freqsearch-orchestrator/pkg/eventbus"
	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/adapters"
	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/model"
	"github.com/codycjy/freqsearch-orchestrator/pkg/rpcclient"
	"github.com/codycjy/freqsearch-orchestrator/pkg/rpcclient/fakebackend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoEngineer always succeeds, returning the input code verbatim plus a
// per-iteration marker so each generated strategy has distinct code.
type echoEngineer struct{ calls int }

func (e *echoEngineer) Generate(_ context.Context, in adapters.EngineerInput) (adapters.EngineerOutput, error) {
	e.calls++
	return adapters.EngineerOutput{
		GeneratedCode:    fmt.Sprintf("%s\n# iter %d\n", in.Code, e.calls),
		ValidationPassed: true,
		StrategyName:     in.Name,
	}, nil
}

// scriptedAnalyst returns decisions[i] for the i-th call, repeating the last
// entry once the script is exhausted.
type scriptedAnalyst struct {
	mu        sync.Mutex
	decisions []string
	calls     int
}

func (a *scriptedAnalyst) Diagnose(_ context.Context, _ adapters.AnalystInput) (adapters.AnalystOutput, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := a.calls
	if idx >= len(a.decisions) {
		idx = len(a.decisions) - 1
	}
	a.calls++
	return adapters.AnalystOutput{Decision: a.decisions[idx], SuggestionDescription: "feedback"}, nil
}

// jobAction scripts how the backend driver resolves the Nth submitted job.
type jobAction struct {
	sharpe    float64
	failed    bool
	errMsg    string
	logs      string
}

// driveJobs completes/fails backtest jobs in submission order as they appear,
// relying on fakebackend's "job-1", "job-2", ... sequential naming. Returns a
// stop func to call once the run under test has finished.
func driveJobs(t *testing.T, backend *fakebackend.Backend, actions []jobAction) func() {
	t.Helper()
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				for i, action := range actions {
					jobID := fmt.Sprintf("job-%d", i+1)
					jobs := backend.Jobs()
					job, ok := jobs[jobID]
					if !ok || job.Status != model.JobStatusQueued {
						continue
					}
					if action.failed {
						backend.FailJob(jobID, action.errMsg, action.logs)
					} else {
						backend.CompleteJob(jobID, model.BacktestResult{JobID: jobID, SharpeRatio: action.sharpe})
					}
				}
			}
		}
	}()
	return func() { close(done) }
}

func testDeps(backend *fakebackend.Backend, engineer adapters.Engineer, analyst adapters.Analyst, bus eventbus.Bus) (Deps, *rpcclient.Client, func() error) {
	client, closeAll, err := backend.DialClient()
	if err != nil {
		panic(err)
	}
	deps := Deps{
		RPC:      client,
		Bus:      bus,
		Engineer: engineer,
		Analyst:  analyst,
		Pipeline: config.PipelineConfig{
			MaxValidationRetries: 5,
			PollInterval:         2 * time.Millisecond,
			MaxWait:              200 * time.Millisecond,
		},
		Backtest: config.BacktestDefaults{Exchange: "binance", Pairs: []string{"BTC/USDT"}},
	}
	return deps, client, closeAll
}

func seedRun(backend *fakebackend.Backend, runID string, maxIterations int) string {
	baseID := runID + "-base"
	backend.SeedStrategy(model.Strategy{StrategyID: baseID, Code: "class Base: pass"})
	backend.SeedRun(model.OptimizationRun{
		RunID:          runID,
		BaseStrategyID: baseID,
		MaxIterations:  maxIterations,
		Status:         model.RunStatusPending,
	})
	return baseID
}

func routingKeys(bus *eventbus.MemoryBus) []string {
	keys := make([]string, len(bus.Published))
	for i, env := range bus.Published {
		keys[i] = env.RoutingKey
	}
	return keys
}

func countKey(bus *eventbus.MemoryBus, key string) int {
	n := 0
	for _, env := range bus.Published {
		if env.RoutingKey == key {
			n++
		}
	}
	return n
}

// S1 — Approval on iteration 2.
func TestScenarioS1ApprovalOnSecondIteration(t *testing.T) {
	backend := fakebackend.New()
	seedRun(backend, "R1", 5)
	stop := driveJobs(t, backend, []jobAction{{sharpe: 1.2}, {sharpe: 2.5}})
	defer stop()

	bus := eventbus.NewMemoryBus("test")
	analyst := &scriptedAnalyst{decisions: []string{"modify", "approve"}}
	deps, _, closeAll := testDeps(backend, &echoEngineer{}, analyst, bus)
	defer closeAll()

	result, err := RunOptimization(context.Background(), deps, "R1")
	require.NoError(t, err)

	assert.Equal(t, 2, result.IterationsCompleted)
	assert.Equal(t, model.ReasonApproved, result.TerminationReason)
	assert.Equal(t, 2.5, result.BestSharpe)
	assert.Equal(t, "completed", result.Status)

	assert.Equal(t, 2, countKey(bus, eventbus.OptimizationIterationStarted))
	assert.Equal(t, 1, countKey(bus, eventbus.OptimizationNewBest))
	assert.Equal(t, 1, countKey(bus, eventbus.OptimizationCompleted))
	assert.Equal(t, 0, countKey(bus, eventbus.OptimizationFailed))
}

// S2 — Max iterations without approval.
func TestScenarioS2MaxIterationsWithoutApproval(t *testing.T) {
	backend := fakebackend.New()
	seedRun(backend, "R2", 3)
	stop := driveJobs(t, backend, []jobAction{{sharpe: 0.9}, {sharpe: 1.0}, {sharpe: 0.95}})
	defer stop()

	bus := eventbus.NewMemoryBus("test")
	analyst := &scriptedAnalyst{decisions: []string{"modify"}}
	deps, _, closeAll := testDeps(backend, &echoEngineer{}, analyst, bus)
	defer closeAll()

	result, err := RunOptimization(context.Background(), deps, "R2")
	require.NoError(t, err)

	assert.Equal(t, 3, result.IterationsCompleted)
	assert.Equal(t, model.ReasonMaxIterations, result.TerminationReason)
	assert.Equal(t, 1.0, result.BestSharpe)
	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, 1, countKey(bus, eventbus.OptimizationCompleted))
}

// S3 — Validation loop absorbed.
func TestScenarioS3ValidationLoopAbsorbed(t *testing.T) {
	backend := fakebackend.New()
	seedRun(backend, "R3", 2)
	stop := driveJobs(t, backend, []jobAction{{sharpe: 1.1}, {sharpe: 1.2}})
	defer stop()

	var validateCalls int
	backend.ValidateFunc = func(code, name string) rpcclient.ValidateStrategyResponse {
		validateCalls++
		if validateCalls <= 3 {
			return rpcclient.ValidateStrategyResponse{Valid: false, Errors: []string{"lint error"}}
		}
		return rpcclient.ValidateStrategyResponse{Valid: true}
	}

	bus := eventbus.NewMemoryBus("test")
	analyst := &scriptedAnalyst{decisions: []string{"modify"}}
	deps, _, closeAll := testDeps(backend, &echoEngineer{}, analyst, bus)
	defer closeAll()

	result, err := RunOptimization(context.Background(), deps, "R3")
	require.NoError(t, err)

	assert.Equal(t, 2, result.IterationsCompleted)
	assert.Equal(t, model.ReasonMaxIterations, result.TerminationReason)
	assert.Equal(t, 0, countKey(bus, eventbus.OptimizationFailed))
}

// S4 — Code crash then fix.
func TestScenarioS4CodeCrashThenFix(t *testing.T) {
	backend := fakebackend.New()
	seedRun(backend, "R4", 2)
	stop := driveJobs(t, backend, []jobAction{
		{failed: true, errMsg: "NameError: x", logs: "Traceback ..."},
		{sharpe: 1.8},
	})
	defer stop()

	bus := eventbus.NewMemoryBus("test")
	analyst := &scriptedAnalyst{decisions: []string{"approve"}} // only consulted on iteration 1 (iteration 0 is synthetic)
	deps, _, closeAll := testDeps(backend, &echoEngineer{}, analyst, bus)
	defer closeAll()

	result, err := RunOptimization(context.Background(), deps, "R4")
	require.NoError(t, err)

	assert.Equal(t, model.ReasonApproved, result.TerminationReason)
	assert.Equal(t, 1.8, result.BestSharpe)
	assert.Equal(t, 0, analyst.calls-1) // analyst invoked exactly once (iteration 0 bypassed it)
	assert.Equal(t, 1, countKey(bus, eventbus.OptimizationNewBest))
}

// S5 — Backtest timeout.
func TestScenarioS5BacktestTimeout(t *testing.T) {
	backend := fakebackend.New()
	seedRun(backend, "R5", 3)
	// no driveJobs: the single submitted job is left queued/"running" forever.

	bus := eventbus.NewMemoryBus("test")
	deps, _, closeAll := testDeps(backend, &echoEngineer{}, &scriptedAnalyst{decisions: []string{"modify"}}, bus)
	deps.Pipeline.MaxWait = 15 * time.Millisecond
	deps.Pipeline.PollInterval = 2 * time.Millisecond
	defer closeAll()

	result, err := RunOptimization(context.Background(), deps, "R5")
	require.NoError(t, err)

	assert.Equal(t, model.ReasonBacktestTimeout, result.TerminationReason)
	assert.Equal(t, "failed", result.Status)
	assert.Equal(t, 1, countKey(bus, eventbus.OptimizationFailed))
	assert.Equal(t, 0, countKey(bus, eventbus.OptimizationCompleted))

	// the job itself is left untouched (still queued, never cancelled).
	jobs := backend.Jobs()
	require.Len(t, jobs, 1)
	for _, j := range jobs {
		assert.Equal(t, model.JobStatusQueued, j.Status)
	}
}

// S6 — Resume.
func TestScenarioS6Resume(t *testing.T) {
	backend := fakebackend.New()
	baseID := seedRun(backend, "R6", 5)
	best := model.Strategy{StrategyID: "R6-iter2", Code: "class Best: pass"}
	backend.SeedStrategy(best)
	backend.UpdateRun(model.OptimizationRun{
		RunID:            "R6",
		BaseStrategyID:   baseID,
		MaxIterations:    5,
		CurrentIteration: 3,
		Status:           model.RunStatusPaused,
		BestStrategyID:   best.StrategyID,
		BestSharpe:       1.4,
	})
	backend.RecordIteration("R6", model.Iteration{IterationIndex: 2, Feedback: "feedback from iteration 2"})

	stop := driveJobs(t, backend, []jobAction{{sharpe: 1.0}, {sharpe: 1.0}})
	defer stop()

	bus := eventbus.NewMemoryBus("test")
	analyst := &scriptedAnalyst{decisions: []string{"modify"}}
	deps, _, closeAll := testDeps(backend, &echoEngineer{}, analyst, bus)
	defer closeAll()

	result, err := ResumeOptimization(context.Background(), deps, "R6")
	require.NoError(t, err)

	assert.Equal(t, 5, result.IterationsCompleted)
	assert.Equal(t, 1.4, result.BestSharpe) // retained: no iteration beat it
	assert.Equal(t, model.ReasonMaxIterations, result.TerminationReason)

	started := 0
	for _, env := range bus.Published {
		if env.RoutingKey == eventbus.OptimizationIterationStarted {
			assert.GreaterOrEqual(t, int(env.Payload["iteration"].(int)), 3)
			started++
		}
	}
	assert.Equal(t, 2, started) // iterations 3 and 4
}

// Invariant 1: best_sharpe is monotonically non-decreasing across iterations.
func TestInvariantBestSharpeMonotonicallyNonDecreasing(t *testing.T) {
	backend := fakebackend.New()
	seedRun(backend, "RI1", 4)
	stop := driveJobs(t, backend, []jobAction{{sharpe: 1.0}, {sharpe: 0.5}, {sharpe: 2.0}, {sharpe: 1.8}})
	defer stop()

	bus := eventbus.NewMemoryBus("test")
	analyst := &scriptedAnalyst{decisions: []string{"modify"}}
	deps, _, closeAll := testDeps(backend, &echoEngineer{}, analyst, bus)
	defer closeAll()

	var lastBest float64 = -1e308
	_, err := bus.Subscribe(context.Background(), eventbus.OptimizationIterationCompleted, func(_ context.Context, env eventbus.Envelope) error {
		if isBest, _ := env.Payload["is_best"].(bool); isBest {
			sharpe := env.Payload["sharpe_ratio"].(float64)
			assert.GreaterOrEqual(t, sharpe, lastBest)
			lastBest = sharpe
		}
		return nil
	})
	require.NoError(t, err)

	result, err := RunOptimization(context.Background(), deps, "RI1")
	require.NoError(t, err)
	assert.Equal(t, 2.0, result.BestSharpe)
}

// Invariant 3: validation retries never change current_iteration.
func TestInvariantValidationRetriesDoNotAdvanceIteration(t *testing.T) {
	backend := fakebackend.New()
	seedRun(backend, "RI3", 1)
	stop := driveJobs(t, backend, []jobAction{{sharpe: 1.0}})
	defer stop()

	var validateCalls int
	backend.ValidateFunc = func(code, name string) rpcclient.ValidateStrategyResponse {
		validateCalls++
		if validateCalls <= 4 {
			return rpcclient.ValidateStrategyResponse{Valid: false, Errors: []string{"nope"}}
		}
		return rpcclient.ValidateStrategyResponse{Valid: true}
	}

	bus := eventbus.NewMemoryBus("test")
	deps, _, closeAll := testDeps(backend, &echoEngineer{}, &scriptedAnalyst{decisions: []string{"modify"}}, bus)
	defer closeAll()

	result, err := RunOptimization(context.Background(), deps, "RI3")
	require.NoError(t, err)
	// exactly one outer iteration persisted despite 4 internal validation retries.
	assert.Equal(t, 1, result.IterationsCompleted)
}

// Invariant 4: runs ending in max_iterations never emit an approved iteration.
func TestInvariantMaxIterationsNeverApproved(t *testing.T) {
	backend := fakebackend.New()
	seedRun(backend, "RI4", 2)
	stop := driveJobs(t, backend, []jobAction{{sharpe: 1.0}, {sharpe: 1.0}})
	defer stop()

	bus := eventbus.NewMemoryBus("test")
	deps, _, closeAll := testDeps(backend, &echoEngineer{}, &scriptedAnalyst{decisions: []string{"modify"}}, bus)
	defer closeAll()

	result, err := RunOptimization(context.Background(), deps, "RI4")
	require.NoError(t, err)
	assert.Equal(t, model.ReasonMaxIterations, result.TerminationReason)
	for _, env := range bus.Published {
		if env.RoutingKey == eventbus.OptimizationIterationCompleted {
			decision, _ := env.Payload["decision"].(model.Decision)
			assert.NotEqual(t, model.DecisionReadyForLive, decision)
		}
	}
}

// Invariant 6: every iteration emits iteration.started before any backtest.*
// event for that iteration, and exactly one iteration.completed follows.
func TestInvariantEventOrderingPerIteration(t *testing.T) {
	backend := fakebackend.New()
	seedRun(backend, "RI6", 2)
	stop := driveJobs(t, backend, []jobAction{{sharpe: 1.0}, {sharpe: 1.0}})
	defer stop()

	bus := eventbus.NewMemoryBus("test")
	deps, _, closeAll := testDeps(backend, &echoEngineer{}, &scriptedAnalyst{decisions: []string{"modify"}}, bus)
	defer closeAll()

	_, err := RunOptimization(context.Background(), deps, "RI6")
	require.NoError(t, err)

	keys := routingKeys(bus)
	var sawStarted, sawCompleted int
	for _, k := range keys {
		switch {
		case k == eventbus.OptimizationIterationStarted:
			sawStarted++
		case strings.HasPrefix(k, "backtest."):
			assert.GreaterOrEqual(t, sawStarted, 1, "backtest event before any iteration.started: %v", keys)
		case k == eventbus.OptimizationIterationCompleted:
			sawCompleted++
			assert.Equal(t, sawStarted, sawCompleted, "completed without matching started: %v", keys)
		}
	}
	assert.Equal(t, 2, sawStarted)
	assert.Equal(t, 2, sawCompleted)
}
