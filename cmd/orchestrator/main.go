// Command orchestrator drives the optimization orchestrator: the runner
// loop, event subscriptions, and one-shot/introspection CLI surfaces.
// Grounded on longregen-alicia/cmd/alicia's cobra command-tree layout.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/codycjy/freqsearch-orchestrator/pkg/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configDir string

func main() {
	rootCmd := &cobra.Command{
		Use:   "orchestrator",
		Short: "Optimization Orchestrator - automated trading strategy search",
	}

	rootCmd.PersistentFlags().StringVar(&configDir, "config", "./config", "path to the orchestrator config directory")

	rootCmd.AddCommand(
		serveCmd(),
		optimizeCmd(),
		runsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", envPath, err)
	}
	return config.Initialize(context.Background(), configDir)
}
