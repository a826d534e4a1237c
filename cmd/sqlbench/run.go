package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/sqlbench/internal/completion"
	"github.com/hochfrequenz/sqlbench/internal/config"
	"github.com/hochfrequenz/sqlbench/internal/domain"
	"github.com/hochfrequenz/sqlbench/internal/execenv"
	"github.com/hochfrequenz/sqlbench/internal/logging"
	"github.com/hochfrequenz/sqlbench/internal/notify"
	"github.com/hochfrequenz/sqlbench/internal/observer"
	"github.com/hochfrequenz/sqlbench/internal/planner"
	"github.com/hochfrequenz/sqlbench/internal/runstore"
	"github.com/hochfrequenz/sqlbench/internal/scheduler"
	"github.com/hochfrequenz/sqlbench/tui"
	"github.com/hochfrequenz/sqlbench/web/api"
)

var (
	runTUI       bool
	runSnapshots bool
	runListen    string
	runParallel  int
)

func init() {
	rootCmd.Flags().BoolVar(&runTUI, "tui", false, "show the live dashboard")
	rootCmd.Flags().BoolVar(&runSnapshots, "snapshots", false, "print a status snapshot every cycle")
	rootCmd.Flags().StringVar(&runListen, "listen", "", "serve the monitoring API on this address")
	rootCmd.Flags().IntVar(&runParallel, "parallel", 0, "override max_parallel")
}

// runOptions are the per-invocation knobs of a benchmark run
type runOptions struct {
	ConfigPath string
	ResultsDir string
	TUI        bool
	Snapshots  bool
	Listen     string
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func runBenchmarkCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runParallel > 0 {
		cfg.MaxParallel = runParallel
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := runBenchmark(ctx, cfg, runOptions{
		ConfigPath: configPath,
		ResultsDir: cfg.ResultsDir,
		TUI:        runTUI,
		Snapshots:  runSnapshots,
		Listen:     runListen,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Run finished in %s: %d finished, %d failed\n",
		sum.Elapsed.Round(time.Second), sum.Finished, sum.Failed)
	return nil
}

// runBenchmark plans, schedules and drives one complete run
func runBenchmark(ctx context.Context, cfg *config.Config, opts runOptions) (scheduler.Summary, error) {
	var console io.Writer = os.Stderr
	if opts.TUI {
		console = io.Discard
	}
	log, closeLog, err := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Console: console,
	})
	if err != nil {
		return scheduler.Summary{}, domain.NewError(domain.KindConfiguration, "logging", err)
	}
	defer closeLog()

	if err := os.MkdirAll(opts.ResultsDir, 0755); err != nil {
		return scheduler.Summary{}, fmt.Errorf("creating results directory: %w", err)
	}

	batches, err := planBatches(cfg, opts.ResultsDir)
	if err != nil {
		return scheduler.Summary{}, err
	}
	log.Infow("batches planned", "count", len(batches), "max_parallel", cfg.MaxParallel, "results", opts.ResultsDir)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	env, detector, stopDetector, err := buildEnvironment(ctx, cfg, opts.ResultsDir, log)
	if err != nil {
		return scheduler.Summary{}, err
	}
	defer stopDetector()

	sched, err := scheduler.New(scheduler.Config{
		MaxParallel:  cfg.MaxParallel,
		PollInterval: cfg.PollInterval.Duration,
	}, batches, env, detector, log)
	if err != nil {
		return scheduler.Summary{}, err
	}

	obs := observer.New(cfg.StuckAfter.Duration)
	sched.SetObserver(obs)
	sched.SetNotifier(buildNotifier(cfg, log))

	var store *runstore.Store
	var run *runstore.Run
	if cfg.LedgerPath != "" {
		store, err = runstore.New(cfg.LedgerPath)
		if err != nil {
			return scheduler.Summary{}, fmt.Errorf("opening ledger: %w", err)
		}
		defer store.Close()
		run, err = store.StartRun(opts.ConfigPath, opts.ResultsDir)
		if err != nil {
			return scheduler.Summary{}, fmt.Errorf("starting run: %w", err)
		}
		for _, b := range batches {
			if err := store.UpsertBatch(run.ID, b); err != nil {
				return scheduler.Summary{}, fmt.Errorf("recording batch %d: %w", b.ID, err)
			}
		}
		sched.SetRecorder(store.Recorder(run.ID))
		sched.SetRunID(run.ID)
		log.Infow("run started", "run", run.ID)
	}

	var reporters fanout
	var server *api.Server
	if opts.Listen != "" {
		var ledger api.Store
		if store != nil {
			ledger = store
		}
		server = api.NewServer(ledger, opts.Listen)
		reporters = append(reporters, server)
		log.Infow("monitoring API listening", "addr", opts.Listen)
	}
	if opts.Snapshots {
		reporters = append(reporters, &tui.Printer{W: os.Stdout, MaxParallel: cfg.MaxParallel})
	}
	var program *tea.Program
	if opts.TUI {
		program = tea.NewProgram(tui.NewModel(tui.ModelConfig{
			MaxParallel: cfg.MaxParallel,
			Total:       len(batches),
			StartedAt:   time.Now(),
			Cancel:      cancel,
		}), tea.WithAltScreen())
		reporters = append(reporters, tui.ProgramReporter{Program: program})
	}
	if len(reporters) > 0 {
		sched.SetReporter(reporters)
	}

	var (
		sum    scheduler.Summary
		runErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sum, runErr = sched.Run(gctx)
		if program != nil {
			program.Send(tui.DoneMsg{Summary: sum, Err: runErr})
		}
		// Release the API server and any other helper
		cancel()
		return nil
	})
	if server != nil {
		g.Go(func() error {
			return server.Start(gctx)
		})
	}
	if program != nil {
		g.Go(func() error {
			if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				cancel()
				return fmt.Errorf("dashboard: %w", err)
			}
			return nil
		})
	}
	groupErr := g.Wait()

	if store != nil {
		if err := store.FinishRun(run.ID, sum.Finished, sum.Failed, runErr); err != nil {
			log.Errorw("failed to close run in ledger", "run", run.ID, "error", err)
		}
	}
	logEngineMetrics(log, obs)

	if groupErr != nil {
		return sum, groupErr
	}
	if runErr != nil {
		return sum, fmt.Errorf("run interrupted: %w", runErr)
	}
	return sum, nil
}

func planBatches(cfg *config.Config, resultsDir string) ([]*domain.Batch, error) {
	benchmarks := cfg.BenchmarkList()
	batches, err := planner.Plan(planner.Input{
		BatchSize:   cfg.BatchSize,
		RepeatCount: cfg.RepeatCount,
		Benchmarks:  benchmarks,
		Engines:     cfg.EngineNames(),
		ResultsDir:  resultsDir,
	})
	if err != nil {
		return nil, err
	}
	if err := planner.Coverage(benchmarks, batches); err != nil {
		return nil, domain.NewError(domain.KindConfiguration, "plan", err)
	}
	return batches, nil
}

// buildEnvironment picks the execution environment and completion detector.
// The returned stop function releases the detector's watcher.
func buildEnvironment(ctx context.Context, cfg *config.Config, resultsDir string, log *zap.SugaredLogger) (execenv.Environment, completion.Detector, func(), error) {
	targets, err := buildTargets(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	opts := workerOptions(cfg)

	var env execenv.Environment
	var process *execenv.ProcessEnvironment
	switch cfg.Environment {
	case config.EnvironmentProcess:
		process = execenv.NewProcessEnvironment(execenv.ProcessConfig{
			SpecsDir: cfg.SpecsDir,
			Targets:  targets,
			Worker:   opts,
		}, log)
		env = process
	default:
		env = execenv.NewComposeEnvironment(execenv.ComposeConfig{
			SpecsDir:   cfg.SpecsDir,
			ResultsDir: resultsDir,
			Targets:    targets,
			Worker:     opts,
		}, log)
	}

	noop := func() {}
	switch cfg.Completion {
	case config.CompletionArtifact:
		return env, completion.ArtifactDetector{}, noop, nil
	case config.CompletionExit:
		if process == nil {
			return nil, nil, nil, domain.Errorf(domain.KindConfiguration, "completion", "exit detection needs the process environment")
		}
		return env, completion.ExitDetector{Reporter: process}, noop, nil
	default:
		detector := completion.NewMarkerDetector(log)
		if err := detector.Watch(ctx, resultsDir); err != nil {
			// Polling the marker files still works without events
			log.Warnw("results watcher unavailable", "error", err)
			return env, detector, noop, nil
		}
		return env, detector, detector.Stop, nil
	}
}

func buildTargets(cfg *config.Config) (map[string]execenv.Target, error) {
	targets := make(map[string]execenv.Target, len(cfg.DBMSList))
	for _, d := range cfg.DBMSList {
		engine, err := d.Resolve()
		if err != nil {
			return nil, domain.NewError(domain.KindConfiguration, "resolve dbms", err)
		}
		targets[engine.Name] = execenv.Target{Engine: engine, Host: d.Host}
	}
	return targets, nil
}

func workerOptions(cfg *config.Config) execenv.WorkerOptions {
	return execenv.WorkerOptions{
		Image:            cfg.Worker.Image,
		Binary:           cfg.Worker.Binary,
		QueryRoot:        cfg.Worker.QueryRoot,
		ReadinessTimeout: cfg.Worker.ReadinessTimeout.Duration,
		Retries:          cfg.Worker.Retries,
		RetryDelay:       cfg.Worker.RetryDelay.Duration,
	}
}

func buildNotifier(cfg *config.Config, log *zap.SugaredLogger) notify.Notifier {
	notifiers := []notify.Notifier{notify.LogNotifier{Log: log}}
	if cfg.Notifications.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	}
	return notify.NewMultiNotifier(notifiers...)
}

func logEngineMetrics(log *zap.SugaredLogger, obs *observer.Observer) {
	m := obs.GetMetrics()
	for engine, em := range m.ByEngine {
		log.Infow("engine summary",
			"engine", engine,
			"batches", em.Batches,
			"failed", em.Failed,
			"avg_duration", em.AvgDuration.Round(time.Second),
		)
	}
}

// fanout delivers each snapshot to several reporters
type fanout []scheduler.StatusReporter

func (f fanout) ReportStatus(st scheduler.Status) {
	for _, r := range f {
		r.ReportStatus(st)
	}
}
