package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"taxlab-hq/ledger/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Ledger - policy analysis API for tax-benefit models",
	Long: `Ledger serves reform analysis for country tax-benefit models.

For each configured country it exposes the lever catalog, variable and entity
metadata, household and population reform impacts, per-provision breakdowns
and a revenue-neutral basic income estimate. Expensive population endpoints
are computed asynchronously and cached.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (built-in defaults when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
