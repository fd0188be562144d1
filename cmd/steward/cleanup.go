package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stewardbot/steward/internal/logging"
	"github.com/stewardbot/steward/internal/tracker"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove state records for issues that are no longer open",
	Long: `Fetch the authoritative set of open issue numbers and drop every
stored record that is not in it. The run command does this on its own
schedule; cleanup forces a sweep immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := logging.NewLogger(os.Stderr, logging.ParseLevel(cfg.LogLevel))
		store := openStore(cfg)

		gh, err := tracker.NewClient(cfg.GitHubToken, cfg.GitHubRepo, logger)
		if err != nil {
			return fmt.Errorf("tracker: %w", err)
		}

		open, err := gh.ListOpenIssueNumbers(context.Background())
		if err != nil {
			return fmt.Errorf("list open issues: %w", err)
		}

		removed := store.Cleanup(open)
		if err := store.Save(); err != nil {
			return fmt.Errorf("persist state: %w", err)
		}

		fmt.Printf("Removed %d record(s); %d issue(s) still tracked\n", removed, store.IssueCount())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}
