package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stewardbot/steward/internal/agent"
	"github.com/stewardbot/steward/internal/classifier"
	"github.com/stewardbot/steward/internal/logging"
	"github.com/stewardbot/steward/internal/similarity"
	"github.com/stewardbot/steward/internal/tracker"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one triage pass",
	Long: `Fetch recently updated open issues, decide which ones warrant
(re-)analysis, classify them, and apply the resulting actions.

Dry-run mode is the default: actions are printed, not executed. Pass
--dry-run=false (or set STEWARD_DRY_RUN=false) to mutate the tracker.

Examples:
  steward run                     # dry run against the configured repo
  steward run --dry-run=false     # live run
  steward run --max-issues 5      # small batch`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("dry-run") {
			cfg.DryRun, _ = cmd.Flags().GetBool("dry-run")
		}
		if cmd.Flags().Changed("max-issues") {
			cfg.MaxIssuesPerRun, _ = cmd.Flags().GetInt("max-issues")
		}
		if cmd.Flags().Changed("repo") {
			cfg.GitHubRepo, _ = cmd.Flags().GetString("repo")
		}

		logger := logging.NewLogger(os.Stderr, logging.ParseLevel(cfg.LogLevel))
		store := openStore(cfg)

		gh, err := tracker.NewClient(cfg.GitHubToken, cfg.GitHubRepo, logger)
		if err != nil {
			return fmt.Errorf("tracker: %w", err)
		}

		cls, err := classifier.New(classifier.Config{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.Model,
			Labels: cfg.Labels,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("classifier: %w", err)
		}

		index, err := similarity.Open(cfg.SimilarityDBPath)
		if err != nil {
			return fmt.Errorf("similarity index: %w", err)
		}
		defer index.Close()

		a, err := agent.New(agent.Config{
			Tracker:         gh,
			Classifier:      cls,
			Index:           index,
			Store:           store,
			Policy:          cfg.Policy(),
			DryRun:          cfg.DryRun,
			MaxIssues:       cfg.MaxIssuesPerRun,
			CleanupInterval: cfg.CleanupInterval(),
			Logger:          logger,
		})
		if err != nil {
			return err
		}

		_, err = a.Run(context.Background())
		return err
	},
}

func init() {
	runCmd.Flags().Bool("dry-run", true, "print actions instead of executing them")
	runCmd.Flags().Int("max-issues", 20, "maximum issues to fetch this run")
	runCmd.Flags().String("repo", "", "target repository (owner/repo), overrides GITHUB_REPO")
	rootCmd.AddCommand(runCmd)
}
