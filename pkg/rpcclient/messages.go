package rpcclient

import "github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/model"

// Request/response shapes for the 9 RPC methods in spec.md §4.1. These are
// the JSON wire types carried by the jsonCodec — plain structs, not
// generated protobuf messages (see DESIGN.md's pkg/rpcclient entry).

type CreateStrategyRequest struct {
	Name        string   `json:"name"`
	Code        string   `json:"code"`
	Description string   `json:"description,omitempty"`
	ParentID    string   `json:"parent_id,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type CreateStrategyResponse struct {
	Strategy model.Strategy `json:"strategy"`
}

type GetStrategyRequest struct {
	StrategyID string `json:"strategy_id"`
}

type GetStrategyResponse struct {
	Strategy model.Strategy `json:"strategy"`
}

type ValidateStrategyRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type ValidateStrategyResponse struct {
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	ClassName string   `json:"class_name,omitempty"`
}

type SubmitBacktestRequest struct {
	StrategyID string               `json:"strategy_id"`
	Config     model.BacktestConfig `json:"config"`
	RunID      string               `json:"run_id,omitempty"`
	Priority   int                  `json:"priority,omitempty"`
}

type SubmitBacktestResponse struct {
	Job model.BacktestJob `json:"job"`
}

type GetBacktestJobRequest struct {
	JobID string `json:"job_id"`
}

type GetBacktestJobResponse struct {
	Job model.BacktestJob `json:"job"`
}

type GetBacktestResultRequest struct {
	JobID string `json:"job_id"`
}

type GetBacktestResultResponse struct {
	Result model.BacktestResult `json:"result"`
}

type ControlOptimizationRequest struct {
	RunID             string                   `json:"run_id"`
	Action            model.OptimizationAction `json:"action"`
	TerminationReason string                   `json:"termination_reason,omitempty"`
	BestStrategyID    string                   `json:"best_strategy_id,omitempty"`
}

type ControlOptimizationResponse struct {
	Success bool                  `json:"success"`
	Run     model.OptimizationRun `json:"run"`
}

type GetOptimizationRunRequest struct {
	RunID string `json:"run_id"`
}

type GetOptimizationRunResponse struct {
	Run        model.OptimizationRun `json:"run"`
	Iterations []model.Iteration     `json:"iterations"`
}

type ListOptimizationRunsRequest struct {
	Status   string `json:"status,omitempty"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
}

type ListOptimizationRunsResponse struct {
	Runs       []model.OptimizationRun `json:"runs"`
	Pagination model.Pagination        `json:"pagination"`
}

// EngineerGenerate / AnalystDiagnose are not part of spec.md §4.1's
// enumerated 9 methods — the spec treats the Engineer/Analyst services as
// reachable black boxes without specifying their transport. This
// implementation reaches them as two more unary methods on the same backend
// (see DESIGN.md's pkg/orchestrator/adapters entry), carried over the same
// JSON-over-grpc channel as everything else.

type EngineerGenerateRequest struct {
	ID         string         `json:"id,omitempty"`
	Name       string         `json:"name"`
	Code       string         `json:"code"`
	Diagnosis  string         `json:"diagnosis,omitempty"`
	ParentID   string         `json:"parent_id,omitempty"`
	Mode       string         `json:"mode"`
	MaxRetries int            `json:"max_retries"`
}

type EngineerGenerateResponse struct {
	GeneratedCode    string         `json:"generated_code"`
	ValidationPassed bool           `json:"validation_passed"`
	ValidationErrors []string       `json:"validation_errors,omitempty"`
	RetryCount       int            `json:"retry_count"`
	StrategyName     string         `json:"strategy_name,omitempty"`
	Description      string         `json:"description,omitempty"`
	Tags             []string       `json:"tags,omitempty"`
	HyperoptConfig   map[string]any `json:"hyperopt_config,omitempty"`
}

type AnalystDiagnoseRequest struct {
	BacktestResult    map[string]any `json:"backtest_result"`
	StrategyCode      string         `json:"strategy_code,omitempty"`
	OptimizationRunID string         `json:"optimization_run_id"`
	CurrentIteration  int            `json:"current_iteration"`
	MaxIterations     int            `json:"max_iterations"`
}

type AnalystDiagnoseResponse struct {
	Decision              string         `json:"decision"`
	Confidence            float64        `json:"confidence"`
	Issues                []string       `json:"issues,omitempty"`
	RootCauses            []string       `json:"root_causes,omitempty"`
	SuggestionType        string         `json:"suggestion_type,omitempty"`
	SuggestionDescription string         `json:"suggestion_description,omitempty"`
	TargetMetrics         []string       `json:"target_metrics,omitempty"`
	Metrics               map[string]any `json:"metrics,omitempty"`
}
