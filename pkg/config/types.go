package config

import "time"

// BacktestDefaults holds the bit-exact defaults applied to a backtest config
// whenever a run's stored config omits a field.
type BacktestDefaults struct {
	Exchange       string   `yaml:"exchange,omitempty"`
	Pairs          []string `yaml:"pairs,omitempty"`
	Timeframe      string   `yaml:"timeframe,omitempty"`
	TimerangeStart string   `yaml:"timerange_start,omitempty"`
	TimerangeEnd   string   `yaml:"timerange_end,omitempty"`
	DryRunWallet   float64  `yaml:"dry_run_wallet,omitempty"`
	MaxOpenTrades  int      `yaml:"max_open_trades,omitempty"`
	StakeAmount    string   `yaml:"stake_amount,omitempty"`
}

// RPCConfig holds RPC Client connection and deadline settings.
type RPCConfig struct {
	Address            string        `yaml:"address,omitempty"`
	Insecure           *bool         `yaml:"insecure,omitempty"`
	DefaultDeadline    time.Duration `yaml:"default_deadline,omitempty"`
	ValidateDeadline   time.Duration `yaml:"validate_deadline,omitempty"`
}

// EventBusConfig holds Event Bus (NATS JetStream) connection settings.
type EventBusConfig struct {
	URL            string `yaml:"url,omitempty"`
	Source         string `yaml:"source,omitempty"`
	StreamName     string `yaml:"stream_name,omitempty"`
	DurableName    string `yaml:"durable_name,omitempty"`
	MaxAckPending  int    `yaml:"max_ack_pending,omitempty"`
}

// PipelineConfig holds the retry/polling tunables for the Iteration Pipeline.
type PipelineConfig struct {
	MaxValidationRetries int           `yaml:"max_validation_retries,omitempty"`
	PollInterval         time.Duration `yaml:"poll_interval,omitempty"`
	MaxWait              time.Duration `yaml:"max_wait,omitempty"`
}

// OrchestratorYAMLConfig represents the complete orchestrator.yaml file structure.
type OrchestratorYAMLConfig struct {
	RPC       *RPCConfig        `yaml:"rpc"`
	EventBus  *EventBusConfig   `yaml:"event_bus"`
	Pipeline  *PipelineConfig   `yaml:"pipeline"`
	Backtest  *BacktestDefaults `yaml:"backtest_defaults"`
}

// Config is the fully-resolved, validated configuration used by the rest of
// the orchestrator. Unlike OrchestratorYAMLConfig its pointer/optional fields
// have all been resolved against DefaultConfig.
type Config struct {
	RPC      RPCConfig
	EventBus EventBusConfig
	Pipeline PipelineConfig
	Backtest BacktestDefaults
}
