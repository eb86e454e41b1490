// Package adapters defines the thin contracts spec.md §4.6 uses to invoke
// the Engineer and Analyst AI services as external callables. Neither
// service's internal algorithm is specified — the spec treats them as
// black boxes — so these adapters only marshal requests, invoke, and
// unmarshal responses into pipeline-facing shapes.
package adapters

import "context"

// EngineerMode is the mode sent to the Engineer, a superset of
// model.IterationMode: "fix" is available to the Engineer contract even
// though the orchestrator itself only ever requests "new"/"evolve"
// (spec.md §4.6 lists {new,evolve,fix} as the full contract).
type EngineerMode string

const (
	EngineerModeNew    EngineerMode = "new"
	EngineerModeEvolve EngineerMode = "evolve"
	EngineerModeFix    EngineerMode = "fix"
)

// EngineerInput is the {input_data, mode, max_retries} request shape from
// spec.md §4.6.
type EngineerInput struct {
	ID        string
	Name      string
	Code      string
	Diagnosis string
	ParentID  string
	Mode      EngineerMode
	MaxRetries int
}

// EngineerOutput is the Engineer's response shape from spec.md §4.6.
type EngineerOutput struct {
	GeneratedCode     string
	ValidationPassed  bool
	ValidationErrors  []string
	RetryCount        int
	StrategyName      string
	Description       string
	Tags              []string
	HyperoptConfig    map[string]any // opaque metadata, never interpreted (spec.md §9 Open Question 2)
}

// Engineer generates or evolves strategy code. Implementations fail over
// within themselves on code-validity failures up to MaxRetries — that is
// orthogonal to, and independent of, the orchestrator's own Stage-1
// validation-retry loop (spec.md §4.6).
type Engineer interface {
	Generate(ctx context.Context, in EngineerInput) (EngineerOutput, error)
}

// AnalystInput is the request shape from spec.md §4.6.
type AnalystInput struct {
	BacktestResult    map[string]any
	StrategyCode      string
	OptimizationRunID string
	CurrentIteration  int
	MaxIterations     int
}

// AnalystOutput is the Analyst's response shape from spec.md §4.6.
// Decision is the raw wire string ("approve"/"modify"/"archive"); callers
// use model.ParseDecision to map it onto the canonical enum.
type AnalystOutput struct {
	Decision             string
	Confidence           float64
	Issues               []string
	RootCauses           []string
	SuggestionType       string
	SuggestionDescription string
	TargetMetrics        []string
	Metrics              map[string]any
}

// Analyst diagnoses a completed backtest result and recommends a decision.
// Required behavior (spec.md §4.6): when CurrentIteration >= MaxIterations,
// a would-be NEEDS_MODIFICATION must be coerced to ARCHIVE by the Analyst
// itself; the orchestrator separately enforces the outer iteration bound as
// defence-in-depth (see the loop condition in runner.RunOptimization).
type Analyst interface {
	Diagnose(ctx context.Context, in AnalystInput) (AnalystOutput, error)
}
