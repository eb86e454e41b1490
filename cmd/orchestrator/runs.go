package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/codycjy/freqsearch-orchestrator/pkg/rpcclient"
	"github.com/spf13/cobra"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect optimization runs",
	}
	cmd.AddCommand(runsListCmd(), runsShowCmd())
	return cmd
}

func openRPC() (*rpcclient.Client, func() error, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return rpcclient.Open(rpcclient.Config{
		Address:          cfg.RPC.Address,
		Insecure:         boolVal(cfg.RPC.Insecure),
		DefaultDeadline:  cfg.RPC.DefaultDeadline,
		ValidateDeadline: cfg.RPC.ValidateDeadline,
	})
}

func runsListCmd() *cobra.Command {
	var (
		status   string
		page     int
		pageSize int
		showJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List optimization runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			rpc, closeRPC, err := openRPC()
			if err != nil {
				return err
			}
			defer closeRPC()

			resp, err := rpc.ListOptimizationRuns(cmd.Context(), rpcclient.ListOptimizationRunsRequest{
				Status:   status,
				Page:     page,
				PageSize: pageSize,
			})
			if err != nil {
				return fmt.Errorf("list_optimization_runs: %w", err)
			}

			if showJSON {
				data, err := json.MarshalIndent(resp, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			if len(resp.Runs) == 0 {
				fmt.Println("No optimization runs found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tSTATUS\tITERATIONS\tBEST SHARPE")
			for _, r := range resp.Runs {
				fmt.Fprintf(w, "%s\t%s\t%d/%d\t%.4f\n", r.RunID, r.Status, r.CurrentIteration, r.MaxIterations, r.BestSharpe)
			}
			w.Flush()
			totalPages := (resp.Pagination.TotalCount + resp.Pagination.PageSize - 1) / max1(resp.Pagination.PageSize)
			fmt.Printf("page %d/%d (total %d)\n", resp.Pagination.Page, totalPages, resp.Pagination.TotalCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "page size")
	cmd.Flags().BoolVar(&showJSON, "json", false, "output as JSON")

	return cmd
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func runsShowCmd() *cobra.Command {
	var showJSON bool

	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show a single optimization run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rpc, closeRPC, err := openRPC()
			if err != nil {
				return err
			}
			defer closeRPC()

			resp, err := rpc.GetOptimizationRun(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get_optimization_run: %w", err)
			}

			if showJSON {
				data, err := json.MarshalIndent(resp, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			run := resp.Run
			fmt.Printf("Run:           %s\n", run.RunID)
			fmt.Printf("Base strategy: %s\n", run.BaseStrategyID)
			fmt.Printf("Status:        %s\n", run.Status)
			fmt.Printf("Iterations:    %d / %d\n", run.CurrentIteration, run.MaxIterations)
			fmt.Printf("Best strategy: %s\n", run.BestStrategyID)
			fmt.Printf("Best Sharpe:   %.4f\n", run.BestSharpe)
			fmt.Printf("History:       %d iterations recorded\n", len(resp.Iterations))
			return nil
		},
	}

	cmd.Flags().BoolVar(&showJSON, "json", false, "output as JSON")
	return cmd
}
