package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/sqlbench/internal/domain"
	"github.com/hochfrequenz/sqlbench/internal/logging"
	"github.com/hochfrequenz/sqlbench/internal/worker"
)

// Exit codes
const (
	exitOK            = 0
	exitFailure       = 1
	exitConfiguration = 2
	exitNotReady      = 3
)

var envFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "sqlbench-worker",
		Short:         "Run one benchmark batch against one database",
		Long:          "sqlbench-worker reads its batch from the environment, waits for the database, runs every query and writes the result CSV.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	rootCmd.Flags().StringVar(&envFile, "env-file", "", "dotenv file merged into the environment")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a failure onto the process exit status
func exitCode(err error) int {
	switch domain.KindOf(err) {
	case domain.KindConfiguration:
		return exitConfiguration
	case domain.KindReadinessTimeout:
		return exitNotReady
	default:
		if err == nil {
			return exitOK
		}
		return exitFailure
	}
}

func run(cmd *cobra.Command, args []string) error {
	if err := worker.LoadEnvFile(envFile); err != nil {
		return err
	}
	settings, err := worker.LoadSettings(os.LookupEnv)
	if err != nil {
		return err
	}

	log, closeLog, err := logging.New(logging.Options{File: settings.ResultLog})
	if err != nil {
		return domain.NewError(domain.KindConfiguration, "logging", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := worker.New(settings, log)
	if err != nil {
		log.Errorw("cannot open database handle", "error", err)
		return domain.NewError(domain.KindConfiguration, "open handle", err)
	}
	if err := w.Run(ctx); err != nil {
		log.Errorw("worker failed", "kind", domain.KindOf(err), "error", err)
		return err
	}
	return nil
}
