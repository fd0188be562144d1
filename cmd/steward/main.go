package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stewardbot/steward/internal/config"
	"github.com/stewardbot/steward/internal/logging"
	"github.com/stewardbot/steward/internal/state"
)

var rootCmd = &cobra.Command{
	Use:   "steward",
	Short: "Automated issue triage agent",
	Long: `Steward watches a GitHub repository and triages its issues: it
classifies them, flags likely duplicates, asks reporters for missing
information, and adds implementation context - while remembering what it
already did so it never repeats or contradicts itself across runs.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads and validates configuration for commands that talk to
// the tracker.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openStore loads the persisted state with a logger wired from config.
func openStore(cfg *config.Config) *state.Store {
	logger := logging.NewLogger(os.Stderr, logging.ParseLevel(cfg.LogLevel))
	return state.NewStore(cfg.StatePath, logger)
}
