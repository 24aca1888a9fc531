package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"taxlab-hq/ledger/pkg/cli"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the result cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete cache entries of other versions",
	Long: `Delete every cache entry whose key was built with a version other than
the current one (cache.version, or the build version when unset). The server
does the same on cache.prune_schedule.

Examples:
  ledger cache prune
  LEDGER_CACHE_VERSION=2024.1 ledger cache prune`,
	Args: cobra.NoArgs,
	RunE: pruneCache,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cachePruneCmd)
}

func pruneCache(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := setupLogging(cfg, os.Stderr)
	if err != nil {
		return err
	}
	if !cfg.Cache.Enabled {
		return cli.NewConfigError("cache.enabled", "the cache is disabled")
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return cli.NewCommandError("cache prune", err)
	}
	defer a.close()

	ctx := cmd.Context()
	if err := a.openCache(ctx); err != nil {
		return cli.NewCommandError("cache prune", err)
	}

	deleted, err := a.runner.Prune(ctx)
	if err != nil {
		return cli.NewCommandError("cache prune", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Pruned %d entries (kept version %s)\n", deleted, a.runner.Version())
	return nil
}
