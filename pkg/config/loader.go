package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load orchestrator.yaml from configDir (missing file is not an error — defaults apply)
//  2. Expand environment variables
//  3. Parse YAML into OrchestratorYAMLConfig
//  4. Merge user config onto DefaultConfig (user values override, unset fields keep defaults)
//  5. Validate all configuration
//  6. Return Config ready for use
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing orchestrator configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration initialized",
		"rpc_address", cfg.RPC.Address,
		"event_bus_url", cfg.EventBus.URL,
		"max_validation_retries", cfg.Pipeline.MaxValidationRetries)

	return cfg, nil
}

func load(configDir string) (*Config, error) {
	path := filepath.Join(configDir, "orchestrator.yaml")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Info("no orchestrator.yaml found, using defaults", "path", path)
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, NewLoadError(path, err)
	}

	data = ExpandEnv(data)

	var yamlCfg OrchestratorYAMLConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %w", ErrInvalidYAML, err))
	}

	cfg := DefaultConfig()
	if err := mergeOnto(cfg, &yamlCfg); err != nil {
		return nil, NewLoadError(path, err)
	}
	return cfg, nil
}

// mergeOnto merges the user-supplied YAML config onto the resolved defaults,
// in place. User-set fields override defaults; zero-valued fields keep the
// default (mergo.WithOverride, non-zero-only semantics).
func mergeOnto(cfg *Config, yamlCfg *OrchestratorYAMLConfig) error {
	if yamlCfg.RPC != nil {
		if err := mergo.Merge(&cfg.RPC, yamlCfg.RPC, mergo.WithOverride); err != nil {
			return fmt.Errorf("merging rpc config: %w", err)
		}
	}
	if yamlCfg.EventBus != nil {
		if err := mergo.Merge(&cfg.EventBus, yamlCfg.EventBus, mergo.WithOverride); err != nil {
			return fmt.Errorf("merging event_bus config: %w", err)
		}
	}
	if yamlCfg.Pipeline != nil {
		if err := mergo.Merge(&cfg.Pipeline, yamlCfg.Pipeline, mergo.WithOverride); err != nil {
			return fmt.Errorf("merging pipeline config: %w", err)
		}
	}
	if yamlCfg.Backtest != nil {
		if err := mergo.Merge(&cfg.Backtest, yamlCfg.Backtest, mergo.WithOverride); err != nil {
			return fmt.Errorf("merging backtest_defaults config: %w", err)
		}
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.RPC.Address == "" {
		return NewValidationError("rpc", "", "address", ErrMissingRequiredField)
	}
	if cfg.RPC.DefaultDeadline <= 0 {
		return NewValidationError("rpc", "", "default_deadline", ErrInvalidValue)
	}
	if cfg.RPC.ValidateDeadline <= 0 {
		return NewValidationError("rpc", "", "validate_deadline", ErrInvalidValue)
	}
	if cfg.EventBus.URL == "" {
		return NewValidationError("event_bus", "", "url", ErrMissingRequiredField)
	}
	if cfg.EventBus.MaxAckPending <= 0 {
		return NewValidationError("event_bus", "", "max_ack_pending", ErrInvalidValue)
	}
	if cfg.Pipeline.MaxValidationRetries < 1 {
		return NewValidationError("pipeline", "", "max_validation_retries", ErrInvalidValue)
	}
	if cfg.Pipeline.PollInterval <= 0 {
		return NewValidationError("pipeline", "", "poll_interval", ErrInvalidValue)
	}
	if cfg.Pipeline.MaxWait <= 0 {
		return NewValidationError("pipeline", "", "max_wait", ErrInvalidValue)
	}
	if len(cfg.Backtest.Pairs) == 0 {
		return NewValidationError("backtest_defaults", "", "pairs", ErrMissingRequiredField)
	}
	return nil
}
