package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "sqlbench",
		Short: "sqlbench - parallel SQL benchmark scheduler",
		Long: `sqlbench partitions benchmark query suites into batches and runs each batch
in an isolated execution unit (a compose project or a local worker process),
keeping a bounded number of units alive until every batch has completed.`,
		SilenceUsage: true,
		RunE:         runBenchmarkCmd,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
