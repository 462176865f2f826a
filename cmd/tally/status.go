package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tallysync/tally/internal/beeminder"
	"github.com/tallysync/tally/internal/config"
	"github.com/tallysync/tally/internal/jobs"
	"github.com/tallysync/tally/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show each goal's newest datapoint and sync cursor",
	Long: `Display, for every configured job, the goal's most recent datapoint
and the cursor the next sync run would start from.

A goal whose newest datapoint has value zero rescans from the beginning:
a zero-value marker is not evidence of prior activity.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		goals := jobs.Goals(cfg)
		if len(goals) == 0 {
			fmt.Printf("%s No jobs configured in %s\n", ui.RenderWarn("⚠"), configPath)
			return
		}

		token, err := cfg.BeeminderKey.Resolve()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error resolving Beeminder key: %v\n", err)
			os.Exit(1)
		}
		store := beeminder.New(token, cfg.BeeminderUsername)

		failed := false
		for _, g := range goals {
			dps, err := store.Datapoints(cmd.Context(), g.Goal, "timestamp", 1)
			if err != nil {
				fmt.Printf("%s %s (goal %s): %v\n", ui.RenderFail("✗"), g.Job, g.Goal, err)
				failed = true
				continue
			}
			if len(dps) == 0 {
				fmt.Printf("%s %s (goal %s): no datapoints yet, next sync scans everything\n",
					ui.RenderAccent("•"), g.Job, g.Goal)
				continue
			}

			newest := dps[0]
			cursor := "full rescan (newest value is 0)"
			if newest.Value != 0 {
				cursor = newest.Time().Format(time.RFC3339)
			}
			fmt.Printf("%s %s (goal %s): newest %s value=%g %s\n",
				ui.RenderPass("✓"), g.Job, g.Goal, newest.Daystamp, newest.Value,
				ui.RenderDim("cursor: "+cursor))
			if newest.Comment != "" {
				fmt.Printf("    %s\n", ui.RenderDim(newest.Comment))
			}
		}
		if failed {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
