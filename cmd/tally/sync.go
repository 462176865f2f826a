package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tallysync/tally/internal/beeminder"
	"github.com/tallysync/tally/internal/config"
	"github.com/tallysync/tally/internal/engine"
	"github.com/tallysync/tally/internal/jobs"
	"github.com/tallysync/tally/internal/ui"
)

var (
	syncOnly   string
	syncSince  string
	syncFormat string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run all configured sync jobs once",
	Long: `Run every job the config file enables, in order.

Each job resolves its own cursor from the goal's most recent datapoint,
fetches new source activity, and creates the missing datapoints. One
job's failure is reported but does not stop the others.

The --since flag accepts natural language ("2 weeks ago", "last monday")
and overrides the watermark of every append-only job for this run.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		var since time.Time
		if syncSince != "" {
			since, err = parseSince(syncSince)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		jobList, err := jobs.Build(cfg, jobs.Options{Since: since, Only: syncOnly})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(jobList) == 0 {
			fmt.Fprintf(os.Stderr, "No jobs configured in %s\n", configPath)
			os.Exit(1)
		}

		token, err := cfg.BeeminderKey.Resolve()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error resolving Beeminder key: %v\n", err)
			os.Exit(1)
		}
		store := beeminder.New(token, cfg.BeeminderUsername)
		runner := engine.NewRunner(store, nil)

		reports := runner.RunAll(cmd.Context(), jobList)
		if err := printReports(reports, syncFormat); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		for _, r := range reports {
			if !r.OK() {
				os.Exit(1)
			}
		}
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncOnly, "only", "", "run a single job by name")
	syncCmd.Flags().StringVar(&syncSince, "since", "", "override the watermark (natural language)")
	syncCmd.Flags().StringVar(&syncFormat, "format", "text", "report format: text, json, or yaml")
	rootCmd.AddCommand(syncCmd)
}

// parseSince turns a natural-language phrase into an instant.
func parseSince(phrase string) (time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(phrase, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing --since %q: %w", phrase, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand --since %q", phrase)
	}
	return r.Time, nil
}

func printReports(reports []*engine.Report, format string) error {
	switch format {
	case "text":
		for _, r := range reports {
			mark := ui.RenderPass("✓")
			if !r.OK() {
				mark = ui.RenderFail("✗")
			}
			fmt.Printf("%s %s (goal %s): created=%d skipped=%d", mark, r.Job, r.Goal, r.Created, r.Skipped)
			if r.Unmapped > 0 {
				fmt.Printf(" unmapped=%d", r.Unmapped)
			}
			if r.Deleted > 0 {
				fmt.Printf(" deleted=%d", r.Deleted)
			}
			if r.Failed > 0 {
				fmt.Printf(" failed=%d", r.Failed)
			}
			fmt.Printf(" %s\n", ui.RenderDim(r.Duration.Round(time.Millisecond).String()))
			for _, e := range r.Errors {
				fmt.Printf("  %s %s\n", ui.RenderFail("!"), e)
			}
		}
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case "yaml":
		return yaml.NewEncoder(os.Stdout).Encode(reports)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	return nil
}
