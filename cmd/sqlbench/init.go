package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/sqlbench/internal/templates"
)

var (
	initFormat string
	initForce  bool
)

func init() {
	initCmd := &cobra.Command{
		Use:   "init [DIR]",
		Short: "Write a starter config file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInit,
	}
	initCmd.Flags().StringVar(&initFormat, "format", "yaml", "config format (yaml or toml)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	loader := templates.DefaultLoader(dir)
	body, ext, err := loader.RenderConfig(strings.ToLower(initFormat), templates.DefaultConfigData())
	if err != nil {
		return err
	}

	path := filepath.Join(dir, "config."+ext)
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", path)
	return nil
}
