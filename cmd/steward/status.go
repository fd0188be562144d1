package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stewardbot/steward/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent run history and cumulative stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Status only reads local state; tracker credentials not required.
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store := openStore(cfg)

		n, _ := cmd.Flags().GetInt("runs")

		bold := color.New(color.Bold)
		bold.Println("Steward Status")

		if last := store.LastRun(); last != nil {
			fmt.Printf("  Last run:       %s (%s ago)\n", last.Format(time.RFC3339), time.Since(*last).Round(time.Minute))
		} else {
			fmt.Println("  Last run:       never")
		}
		fmt.Printf("  Tracked issues: %d\n", store.IssueCount())
		fmt.Printf("  Total actions:  %d\n", store.TotalActions())

		runs := store.RecentRuns(n)
		if len(runs) == 0 {
			return nil
		}

		fmt.Println()
		bold.Println("Recent Runs")
		for i := len(runs) - 1; i >= 0; i-- {
			r := runs[i]
			line := fmt.Sprintf("  %s  issues=%d actions=%d errors=%d (%.1fs)",
				r.StartedAt.Format("2006-01-02 15:04"), r.IssuesProcessed, r.ActionsTaken, len(r.Errors), r.DurationSeconds)
			if len(r.Errors) > 0 {
				fmt.Println(color.RedString(line))
			} else {
				fmt.Println(line)
			}
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().Int("runs", 10, "number of recent runs to show")
	rootCmd.AddCommand(statusCmd)
}
