package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/sqlbench/internal/domain"
)

var (
	nightlyCron   string
	nightlyListen string
)

func init() {
	nightlyCmd := &cobra.Command{
		Use:   "nightly",
		Short: "Repeat the full run on a cron schedule",
		RunE:  runNightly,
	}
	nightlyCmd.Flags().StringVar(&nightlyCron, "cron", "0 2 * * *", "cron expression (minute hour dom month dow)")
	nightlyCmd.Flags().StringVar(&nightlyListen, "listen", "", "serve the monitoring API during each run")
	rootCmd.AddCommand(nightlyCmd)
}

// ParseCron parses a five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// runDir is the timestamped results subdirectory of a scheduled run
func runDir(base string, at time.Time) string {
	return filepath.Join(base, at.Format("20060102-150405"))
}

func runNightly(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sched, err := ParseCron(nightlyCron)
	if err != nil {
		return domain.NewError(domain.KindConfiguration, "parse cron", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return nightlyLoop(ctx, sched, time.Now, func(ctx context.Context, at time.Time) error {
		dir := runDir(cfg.ResultsDir, at)
		fmt.Printf("Starting scheduled run into %s\n", dir)
		sum, err := runBenchmark(ctx, cfg, runOptions{
			ConfigPath: configPath,
			ResultsDir: dir,
			Listen:     nightlyListen,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Scheduled run finished in %s: %d finished, %d failed\n",
			sum.Elapsed.Round(time.Second), sum.Finished, sum.Failed)
		return nil
	})
}

// nightlyLoop waits for each activation of sched and runs one benchmark.
// A failed run is reported and the loop carries on; it ends with ctx.
func nightlyLoop(ctx context.Context, sched cron.Schedule, now func() time.Time, run func(ctx context.Context, at time.Time) error) error {
	for {
		current := now()
		next := sched.Next(current)
		fmt.Printf("Next run at %s\n", next.Format(time.RFC3339))

		timer := time.NewTimer(next.Sub(current))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return nil
		}

		if err := run(ctx, next); err != nil {
			if ctx.Err() != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "scheduled run failed: %v\n", err)
		}
	}
}
