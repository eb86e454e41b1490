package config

import "time"

// DefaultConfig returns the system-wide defaults. These are used to fill in
// any field left unset in the user's orchestrator.yaml, via mergeOnto.
func DefaultConfig() *Config {
	return &Config{
		RPC: RPCConfig{
			Address:          "localhost:50051",
			Insecure:         boolPtr(true),
			DefaultDeadline:  30 * time.Second,
			ValidateDeadline: 60 * time.Second,
		},
		EventBus: EventBusConfig{
			URL:           "nats://localhost:4222",
			Source:        "optimization-orchestrator",
			StreamName:    "OPTIMIZATION",
			DurableName:   "optimization-orchestrator",
			MaxAckPending: 64,
		},
		Pipeline: PipelineConfig{
			MaxValidationRetries: 5,
			PollInterval:         5 * time.Second,
			MaxWait:              600 * time.Second,
		},
		Backtest: BacktestDefaults{
			Exchange:       "binance",
			Pairs:          []string{"BTC/USDT"},
			Timeframe:      "1h",
			TimerangeStart: "20230101",
			TimerangeEnd:   "20230131",
			DryRunWallet:   1000.0,
			MaxOpenTrades:  3,
			StakeAmount:    "unlimited",
		},
	}
}

func boolPtr(b bool) *bool { return &b }
