package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/sqlbench/internal/domain"
	"github.com/hochfrequenz/sqlbench/internal/report"
	"github.com/hochfrequenz/sqlbench/internal/runstore"
)

var (
	statusFilter string
	statusEngine string
	reportDir    string
)

func init() {
	// plan command
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the batch plan",
		RunE:  runPlan,
	}
	rootCmd.AddCommand(planCmd)

	// status command
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the batches of the latest run",
		RunE:  runStatus,
	}
	statusCmd.Flags().StringVar(&statusFilter, "status", "", "filter by status")
	statusCmd.Flags().StringVar(&statusEngine, "engine", "", "filter by engine")
	rootCmd.AddCommand(statusCmd)

	// report command
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate result files into per-query statistics",
		RunE:  runReport,
	}
	reportCmd.Flags().StringVar(&reportDir, "results", "", "results directory (defaults to results_dir)")
	rootCmd.AddCommand(reportCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	batches, err := planBatches(cfg, cfg.ResultsDir)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBENCHMARK\tENGINE\tQUERIES\tREPEAT\tRESULT")
	for _, b := range batches {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
			b.ID, b.Benchmark, b.Engine, b.Range, b.RepeatCount, b.ResultPath)
	}
	w.Flush()

	fmt.Printf("\n%d batches, %d at a time, coverage ok\n", len(batches), cfg.MaxParallel)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.LatestRun()
	if errors.Is(err, runstore.ErrNoRuns) {
		fmt.Println("No runs recorded")
		return nil
	}
	if err != nil {
		return err
	}

	counts, err := store.CountByStatus(run.ID)
	if err != nil {
		return err
	}

	state := "running"
	if run.FinishedAt != nil {
		state = "finished " + humanize.Time(*run.FinishedAt)
	}
	fmt.Printf("Run %s (started %s, %s)\n", run.ID, humanize.Time(run.StartedAt), state)
	fmt.Printf("Batches: %d queued | %d running | %d finished | %d failed\n\n",
		counts[domain.BatchQueued], counts[domain.BatchRunning],
		counts[domain.BatchFinished], counts[domain.BatchFailed])
	if run.Error != "" {
		fmt.Printf("Error: %s\n\n", run.Error)
	}

	batches, err := store.ListBatches(run.ID, runstore.ListOptions{
		Status: domain.BatchStatus(statusFilter),
		Engine: statusEngine,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBENCHMARK\tENGINE\tQUERIES\tSTATUS\tLAUNCHED\tDURATION\tERROR")
	for _, b := range batches {
		launched, duration := "-", "-"
		if b.LaunchedAt != nil {
			launched = humanize.Time(*b.LaunchedAt)
			end := time.Now()
			if b.FinishedAt != nil {
				end = *b.FinishedAt
			}
			duration = end.Sub(*b.LaunchedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			b.ID, b.Benchmark, b.Engine, b.Range, b.Status, launched, duration, b.Error)
	}
	w.Flush()

	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	dir := reportDir
	if dir == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir = cfg.ResultsDir
	}

	coll, err := report.Load(dir)
	if err != nil {
		return err
	}
	skipped := make([]string, 0, len(coll.Skipped))
	for path := range coll.Skipped {
		skipped = append(skipped, path)
	}
	sort.Strings(skipped)
	for _, path := range skipped {
		fmt.Fprintf(os.Stderr, "skipping %s: %v\n", path, coll.Skipped[path])
	}
	if len(coll.Files) == 0 {
		return fmt.Errorf("no readable result files in %s", dir)
	}

	fmt.Printf("%d result files, %s rows\n\n", len(coll.Files), humanize.Comma(int64(len(coll.Rows))))
	return report.Write(os.Stdout, report.Aggregate(coll.Rows))
}
