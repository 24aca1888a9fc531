package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"taxlab-hq/ledger/pkg/cli"
	"taxlab-hq/ledger/pkg/telemetry/health"
)

var validateFlags struct {
	check bool
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load and validate the configuration, including LEDGER_* environment
overrides, and print a summary.

With --check every country, dataset store and the cache backend are also
opened and the readiness checks the server exposes on /ready are run.

Examples:
  ledger validate --config config.yaml
  ledger validate --check`,
	Args: cobra.NoArgs,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateFlags.check, "check", false, "open every component and run readiness checks")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "✓ Configuration valid")
	fmt.Fprintf(out, "  Listen address: %s\n", cfg.Server.ListenAddress)
	for _, c := range cfg.Countries {
		fmt.Fprintf(out, "  Country: %s\n", c.Name)
	}
	if cfg.Cache.Enabled {
		fmt.Fprintf(out, "  Cache: %s (version %s, %d workers)\n", cfg.Cache.Backend, cacheVersion(cfg), cfg.Cache.Workers)
	} else {
		fmt.Fprintln(out, "  Cache: disabled")
	}

	if !validateFlags.check {
		return nil
	}

	logger, err := setupLogging(cfg, os.Stderr)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		return cli.NewCommandError("validate", err)
	}
	defer a.close()

	ctx := context.Background()
	if err := a.openCountries(); err != nil {
		return cli.NewCommandError("validate", err)
	}
	if cfg.Cache.Enabled {
		if err := a.openCache(ctx); err != nil {
			return cli.NewCommandError("validate", err)
		}
	}

	report := a.health.Readiness(ctx)
	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(out)
	for _, name := range names {
		result := report.Checks[name]
		mark := "✓"
		if result.Status != health.StatusOK {
			mark = "✗"
		}
		fmt.Fprintf(out, "%s %s %s\n", mark, name, result.Message)
	}
	if report.Status != health.StatusReady {
		return cli.NewCommandError("validate", fmt.Errorf("readiness checks failed"))
	}
	return nil
}
