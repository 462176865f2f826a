// Command tally mirrors activity from external services into Beeminder
// goals as datapoints.
//
// Each configured job reconciles one source (Amazing Marvin, Focusmate,
// Fatebook, ActivityWatch, GitHub) against one goal, idempotently: runs
// can be repeated and interleaved freely without duplicating datapoints.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tallysync/tally/internal/config"
)

var version = "0.4.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:     "tally",
	Short:   "Mirror activity from external services into Beeminder",
	Version: version,
	Long: `tally keeps Beeminder goals in sync with what you actually did.

It pulls activity from task managers, coworking sessions, forecasting
platforms, window trackers, and code hosts, and creates the missing
datapoints on the matching goals. Every job is idempotent: re-running
never duplicates a datapoint, and an interrupted run is picked up
cleanly by the next one.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultFile, "path to the config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
