package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/adapters"
	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/runner"
	"github.com/codycjy/freqsearch-orchestrator/pkg/rpcclient"
	"github.com/spf13/cobra"
)

func optimizeCmd() *cobra.Command {
	var (
		runID          string
		baseStrategyID string
		maxIterations  int
		showJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run a single optimization run to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID == "" {
				return fmt.Errorf("--run-id is required")
			}
			if baseStrategyID == "" {
				return fmt.Errorf("--base-strategy-id is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			rpc, closeRPC, err := rpcclient.Open(rpcclient.Config{
				Address:          cfg.RPC.Address,
				Insecure:         boolVal(cfg.RPC.Insecure),
				DefaultDeadline:  cfg.RPC.DefaultDeadline,
				ValidateDeadline: cfg.RPC.ValidateDeadline,
			})
			if err != nil {
				return fmt.Errorf("opening rpc client: %w", err)
			}
			defer closeRPC()

			deps := runner.Deps{
				RPC:      rpc,
				Engineer: &adapters.RPCEngineer{RPC: rpc},
				Analyst:  &adapters.RPCAnalyst{RPC: rpc},
				Pipeline: cfg.Pipeline,
				Backtest: cfg.Backtest,
			}

			result, err := runner.RunOptimization(cmd.Context(), deps, runID)
			if err != nil {
				return fmt.Errorf("run_optimization: %w", err)
			}

			if showJSON {
				data, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
			} else {
				fmt.Printf("Run:                %s\n", result.RunID)
				fmt.Printf("Base strategy:      %s\n", result.BaseStrategyID)
				fmt.Printf("Iterations:         %d / %d\n", result.IterationsCompleted, result.MaxIterations)
				fmt.Printf("Best strategy:      %s\n", result.BestStrategyID)
				fmt.Printf("Best Sharpe:        %.4f\n", result.BestSharpe)
				fmt.Printf("Termination reason: %s\n", result.TerminationReason)
				fmt.Printf("Status:             %s\n", result.Status)
				if result.Error != "" {
					fmt.Printf("Error:              %s\n", result.Error)
				}
			}

			if result.Status == "failed" {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "optimization run id (required)")
	cmd.Flags().StringVar(&baseStrategyID, "base-strategy-id", "", "base strategy id (required)")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "max iterations (informational; the backend's stored run record is authoritative)")
	cmd.Flags().BoolVar(&showJSON, "json", false, "output the result envelope as JSON")

	return cmd
}
