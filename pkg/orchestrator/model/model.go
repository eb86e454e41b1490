// Package model defines the wire-level data types shared by the RPC Client,
// Run Context, Iteration Pipeline, and Stage Adapters. These are plain
// structs, not ORM rows — the orchestrator persists nothing itself; the
// backend reachable through pkg/rpcclient owns the records these types
// describe.
package model

import "time"

// RunStatus is the lifecycle status of an OptimizationRun.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether the status is one of the three final states.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// OptimizationRun is the persisted run record, read/written via RPC.
type OptimizationRun struct {
	RunID            string         `json:"run_id"`
	BaseStrategyID   string         `json:"base_strategy_id"`
	MaxIterations    int            `json:"max_iterations"`
	CurrentIteration int            `json:"current_iteration"`
	Status           RunStatus      `json:"status"`
	BestStrategyID   string         `json:"best_strategy_id,omitempty"`
	BestSharpe       float64        `json:"best_sharpe"`
	Config           BacktestConfig `json:"config"`
}

// IterationMode selects whether Stage 1 builds a "new" or "evolve" Engineer
// request. Mode is "new" only for iteration 0 of a run; every subsequent
// iteration (including validation retries past the first) evolves.
type IterationMode string

const (
	ModeNew    IterationMode = "new"
	ModeEvolve IterationMode = "evolve"
)

// Decision is the Analyst's verdict on a completed iteration.
type Decision string

const (
	DecisionReadyForLive     Decision = "READY_FOR_LIVE"
	DecisionNeedsModification Decision = "NEEDS_MODIFICATION"
	DecisionArchive          Decision = "ARCHIVE"
)

// ParseDecision maps the Analyst's case-insensitive wire strings
// ("approve"/"modify"/"archive") onto the canonical Decision enum.
// Unknown values are rejected at the boundary per spec.md §9.
func ParseDecision(wire string) (Decision, bool) {
	switch toLower(wire) {
	case "approve", "ready_for_live":
		return DecisionReadyForLive, true
	case "modify", "needs_modification":
		return DecisionNeedsModification, true
	case "archive":
		return DecisionArchive, true
	default:
		return "", false
	}
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// TerminationReason names why a run's current iteration, and potentially the
// run itself, stopped.
type TerminationReason string

const (
	ReasonApproved                TerminationReason = "approved"
	ReasonArchived                TerminationReason = "archived"
	ReasonMaxIterations           TerminationReason = "max_iterations"
	ReasonValidationMaxRetries    TerminationReason = "validation_max_retries"
	ReasonBacktestTimeout         TerminationReason = "backtest_timeout"
	ReasonBacktestCancelled       TerminationReason = "backtest_cancelled"
	ReasonEngineerException       TerminationReason = "engineer_exception"
	ReasonEngineerNoCode          TerminationReason = "engineer_no_code"
	ReasonBacktestSubmissionFailed TerminationReason = "backtest_submission_failed"
	ReasonStrategyCreationFailed  TerminationReason = "strategy_creation_failed"
	ReasonIterationException      TerminationReason = "iteration_exception"
)

// Strategy is a versioned piece of strategy code, created via RPC whenever
// engineering succeeds.
type Strategy struct {
	StrategyID string `json:"strategy_id"`
	Name       string `json:"name"`
	Code       string `json:"code"`
	ParentID   string `json:"parent_id,omitempty"`
	Generation int    `json:"generation"`
}

// BacktestConfig is the run's stored backtest parameterization. Zero-valued
// fields are filled in by config.BacktestDefaults when a run's config omits
// them (see pkg/config).
type BacktestConfig struct {
	Exchange       string   `json:"exchange,omitempty"`
	Pairs          []string `json:"pairs,omitempty"`
	Timeframe      string   `json:"timeframe,omitempty"`
	TimerangeStart string   `json:"timerange_start,omitempty"`
	TimerangeEnd   string   `json:"timerange_end,omitempty"`
	DryRunWallet   float64  `json:"dry_run_wallet,omitempty"`
	MaxOpenTrades  int      `json:"max_open_trades,omitempty"`
	StakeAmount    string   `json:"stake_amount,omitempty"`
}

// BacktestJobStatus is the lifecycle status of a BacktestJob.
type BacktestJobStatus string

const (
	JobStatusQueued    BacktestJobStatus = "queued"
	JobStatusRunning   BacktestJobStatus = "running"
	JobStatusCompleted BacktestJobStatus = "completed"
	JobStatusFailed    BacktestJobStatus = "failed"
	JobStatusCancelled BacktestJobStatus = "cancelled"
)

// BacktestJob is the backend-owned job record polled by Stage 3.
type BacktestJob struct {
	JobID        string            `json:"job_id"`
	StrategyID   string            `json:"strategy_id"`
	Status       BacktestJobStatus `json:"status"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Logs         string            `json:"logs,omitempty"`
}

// BacktestResult is the outcome of a completed backtest. Synthetic results
// (constructed locally by Stage 3 on job failure, never returned by the
// backend) set Synthetic=true.
type BacktestResult struct {
	JobID        string         `json:"job_id"`
	Status       string         `json:"status"`
	SharpeRatio  float64        `json:"sharpe_ratio"`
	ProfitPct    *float64       `json:"profit_pct,omitempty"`
	WinRate      *float64       `json:"win_rate,omitempty"`
	MaxDrawdown  *float64       `json:"max_drawdown,omitempty"`
	Metrics      map[string]any `json:"metrics,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Logs         string         `json:"logs,omitempty"`
	Synthetic    bool           `json:"-"`
}

// SharpeOrMinusInf returns the Sharpe ratio, treating NaN/unset as an
// arbitrarily small value for tie-break comparisons (spec.md §4.4 Stage 5:
// "NaN/unset Sharpe compares as less than any finite value").
func (r BacktestResult) SharpeOrMinusInf() float64 {
	s := r.SharpeRatio
	if s != s { // NaN
		return NegInfSharpe
	}
	return s
}

// NegInfSharpe is the sentinel "no best recorded yet" Sharpe value (spec.md
// §3: "best_sharpe (initially −∞)"). Also used as OptimizationRun.BestSharpe's
// logical initial value before any iteration has produced a best strategy.
const NegInfSharpe = -1e308

// Iteration is one loop turn's record, created by the Runner from RunContext
// and mutated only by the Iteration Pipeline.
type Iteration struct {
	IterationIndex     int             `json:"iteration_index"`
	InputCode          string          `json:"input_code"`
	InputFeedback      string          `json:"input_feedback,omitempty"`
	Mode               IterationMode   `json:"mode"`
	GeneratedStrategyID string         `json:"generated_strategy_id,omitempty"`
	BacktestJobID      string          `json:"backtest_job_id,omitempty"`
	BacktestResult     *BacktestResult `json:"backtest_result,omitempty"`
	Decision           Decision        `json:"decision,omitempty"`
	Feedback           string          `json:"feedback,omitempty"`
}

// ResultEnvelope is returned by the Runner's RunOptimization/ResumeOptimization.
type ResultEnvelope struct {
	RunID             string             `json:"run_id"`
	BaseStrategyID    string             `json:"base_strategy_id"`
	IterationsCompleted int              `json:"iterations_completed"`
	MaxIterations     int                `json:"max_iterations"`
	BestStrategyID    string             `json:"best_strategy_id,omitempty"`
	BestSharpe        float64            `json:"best_sharpe"`
	TerminationReason TerminationReason  `json:"termination_reason"`
	Status            string             `json:"status"` // "completed" or "failed"
	Error             string             `json:"error,omitempty"`
}

// OptimizationAction is a control_optimization RPC action.
type OptimizationAction string

const (
	ActionPause    OptimizationAction = "pause"
	ActionResume   OptimizationAction = "resume"
	ActionCancel   OptimizationAction = "cancel"
	ActionComplete OptimizationAction = "complete"
	ActionFail     OptimizationAction = "fail"
)

// Pagination mirrors list_optimization_runs's pagination envelope.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// Snapshot timestamps are always recorded in UTC.
func NowUTC() time.Time { return time.Now().UTC() }
