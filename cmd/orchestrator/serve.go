package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/codycjy/freqsearch-orchestrator/pkg/eventbus"
	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/adapters"
	"github.com/codycjy/freqsearch-orchestrator/pkg/orchestrator/runner"
	"github.com/codycjy/freqsearch-orchestrator/pkg/rpcclient"
	"github.com/spf13/cobra"
)

const shutdownGrace = 30 * time.Second

func serveCmd() *cobra.Command {
	var inMemory bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Subscribe to optimization.started and drive runs as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), inMemory)
		},
	}

	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "use an in-process event bus instead of NATS JetStream (testing/demo only)")
	return cmd
}

func runServe(ctx context.Context, inMemory bool) error {
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

	var bus eventbus.Bus
	if inMemory {
		bus = eventbus.NewMemoryBus(cfg.EventBus.Source)
	} else {
		nb, err := eventbus.DialNATSBus(ctx, eventbus.Config{
			URL:           cfg.EventBus.URL,
			Source:        cfg.EventBus.Source,
			StreamName:    cfg.EventBus.StreamName,
			DurableName:   cfg.EventBus.DurableName,
			MaxAckPending: cfg.EventBus.MaxAckPending,
		})
		if err != nil {
			return fmt.Errorf("dialing event bus: %w", err)
		}
		defer nb.Close()
		bus = nb
	}

	deps := runner.Deps{
		RPC:      rpc,
		Bus:      bus,
		Engineer: &adapters.RPCEngineer{RPC: rpc},
		Analyst:  &adapters.RPCAnalyst{RPC: rpc},
		Pipeline: cfg.Pipeline,
		Backtest: cfg.Backtest,
	}

	serverCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	unsubscribe, err := bus.Subscribe(serverCtx, eventbus.OptimizationStarted, func(handlerCtx context.Context, env eventbus.Envelope) error {
		runID, _ := env.Payload["optimization_run_id"].(string)
		if runID == "" {
			slog.Warn("optimization.started envelope missing optimization_run_id", "event_id", env.EventID)
			return nil
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := runner.RunOptimization(serverCtx, deps, runID)
			if err != nil {
				slog.Error("run_optimization failed", "run_id", runID, "error", err)
				return
			}
			slog.Info("run_optimization finished", "run_id", runID, "status", result.Status, "termination_reason", result.TerminationReason)
		}()
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", eventbus.OptimizationStarted, err)
	}
	defer unsubscribe()

	slog.Info("orchestrator serving", "rpc_address", cfg.RPC.Address, "in_memory_bus", inMemory)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
		slog.Info("parent context cancelled, shutting down")
	}

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("all in-flight runs drained")
	case <-time.After(shutdownGrace):
		slog.Warn("shutdown grace period elapsed with runs still in flight")
	}

	return nil
}

func boolVal(p *bool) bool {
	return p != nil && *p
}
