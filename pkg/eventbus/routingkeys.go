package eventbus

// Routing keys required by spec.md §4.2, bit-exact, lowercase, dotted. The
// original system (original_source/python-agents/.../core/messaging.py)
// defines a superset including scout.* keys; those belong to the
// out-of-scope Scout component (spec.md §1) and are intentionally omitted.
const (
	OptimizationStarted           = "optimization.started"
	OptimizationIterationStarted  = "optimization.iteration.started"
	OptimizationIterationCompleted = "optimization.iteration.completed"
	OptimizationNewBest           = "optimization.new_best"
	OptimizationCompleted         = "optimization.completed"
	OptimizationFailed            = "optimization.failed"

	BacktestSubmitted = "backtest.submitted"
	BacktestCompleted = "backtest.completed"
	BacktestFailed    = "backtest.failed"

	StrategyApproved        = "strategy.approved"
	StrategyEvolve          = "strategy.evolve"
	StrategyArchived        = "strategy.archived"
	StrategyReadyForBacktest = "strategy.ready_for_backtest"

	AgentHeartbeat = "agent.heartbeat"
)
