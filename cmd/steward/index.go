package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stewardbot/steward/internal/logging"
	"github.com/stewardbot/steward/internal/similarity"
	"github.com/stewardbot/steward/internal/tracker"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Backfill the similarity index from issue history",
	Long: `Page through the repository's issue history, open and closed, and
add every issue to the similarity index. Without a backfill the index only
knows issues the steward has already processed, so duplicate detection is
blind on the first runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		maxIssues, _ := cmd.Flags().GetInt("max-issues")

		logger := logging.NewLogger(os.Stderr, logging.ParseLevel(cfg.LogLevel))

		gh, err := tracker.NewClient(cfg.GitHubToken, cfg.GitHubRepo, logger)
		if err != nil {
			return fmt.Errorf("tracker: %w", err)
		}

		index, err := similarity.Open(cfg.SimilarityDBPath)
		if err != nil {
			return fmt.Errorf("similarity index: %w", err)
		}
		defer index.Close()

		ctx := context.Background()
		snapshots, err := gh.ListAllIssues(ctx, maxIssues)
		if err != nil {
			return fmt.Errorf("list issues: %w", err)
		}

		indexed := 0
		for _, snap := range snapshots {
			if err := index.Add(ctx, snap); err != nil {
				logger.Warn("failed to index issue", "issue", snap.Number, "error", err)
				continue
			}
			indexed++
		}

		fmt.Printf("Indexed %d of %d issue(s)\n", indexed, len(snapshots))
		return nil
	},
}

func init() {
	indexCmd.Flags().Int("max-issues", 0, "cap on issues to index (0 = all)")
	rootCmd.AddCommand(indexCmd)
}
