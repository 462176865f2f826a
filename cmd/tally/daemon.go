package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tallysync/tally/internal/beeminder"
	"github.com/tallysync/tally/internal/config"
	"github.com/tallysync/tally/internal/daemon"
	"github.com/tallysync/tally/internal/engine"
	"github.com/tallysync/tally/internal/jobs"
	"github.com/tallysync/tally/internal/ui"
)

var (
	daemonInterval time.Duration
	daemonLogFile  string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the sync batch on an interval",
	Long: `Keep running the sync batch until interrupted.

The batch runs immediately, then every --interval. Edits to the config
file take effect on the next pass; saving the file also triggers an
immediate pass. With --log-file, output goes to a rotating log file as
well as stderr.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := io.Writer(os.Stderr)
		if daemonLogFile != "" {
			out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
				Filename:   daemonLogFile,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     30, // days
			})
		}
		logger := log.New(out, "[daemon] ", log.LstdFlags)

		cfg := daemon.DefaultConfig()
		cfg.Interval = daemonInterval
		cfg.Logger = logger

		d, err := daemon.NewWithConfig(configPath, runBatch(logger), cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := d.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Daemon running, interval %s (ctrl-c to stop)\n", ui.RenderAccent("⏱"), daemonInterval)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		d.Wait(ctx)

		if err := d.Stop(); err != nil {
			logger.Printf("shutdown: %v", err)
		}
	},
}

func init() {
	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 30*time.Minute, "how often to re-run the batch")
	daemonCmd.Flags().StringVar(&daemonLogFile, "log-file", "", "rotating log file path")
	rootCmd.AddCommand(daemonCmd)
}

// runBatch builds the daemon's per-pass work: reload config, rebuild
// jobs, run them all.
func runBatch(logger *log.Logger) daemon.RunFunc {
	return func(ctx context.Context, path string) error {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		jobList, err := jobs.Build(cfg, jobs.Options{})
		if err != nil {
			return err
		}
		if len(jobList) == 0 {
			return fmt.Errorf("no jobs configured in %s", path)
		}

		token, err := cfg.BeeminderKey.Resolve()
		if err != nil {
			return fmt.Errorf("resolving Beeminder key: %w", err)
		}
		store := beeminder.New(token, cfg.BeeminderUsername)
		runner := engine.NewRunner(store, logger)

		var errs []error
		for _, r := range runner.RunAll(ctx, jobList) {
			for _, e := range r.Errors {
				errs = append(errs, fmt.Errorf("%s: %s", r.Job, e))
			}
		}
		return errors.Join(errs...)
	}
}
