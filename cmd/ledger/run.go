package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"taxlab-hq/ledger/pkg/cli"
	"taxlab-hq/ledger/pkg/config"
	"taxlab-hq/ledger/pkg/server"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	warm          bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Ledger API server",
	Long: `Start the Ledger API server with the specified configuration.

The server builds each configured country's lever catalog, opens its dataset
store and the cache backend, and serves the policy endpoints under
/<country>/api/.

Examples:
  # Start with default config
  ledger run

  # Start with custom config
  ledger run --config /etc/ledger/config.yaml

  # Override listen address
  ledger run --listen 0.0.0.0:8080

  # Build baseline simulations before accepting requests
  ledger run --warm

  # Validate config without starting server
  ledger run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
	runCmd.Flags().BoolVar(&runFlags.warm, "warm", false, "build each country's baseline simulation before serving")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	logger, err := setupLogging(cfg, os.Stdout)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	printBanner(out, cfg)
	go watchHangup(cmd.Context(), logLevel)

	a, err := newApp(cfg, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	ctx := cmd.Context()

	if err := a.openCountries(); err != nil {
		_ = a.close()
		return cli.NewCommandError("run", err)
	}
	fmt.Fprintf(out, "✓ Countries loaded (%s)\n", strings.Join(a.countryNames(), ", "))

	if cfg.Cache.Enabled {
		if err := a.openCache(ctx); err != nil {
			_ = a.close()
			return cli.NewCommandError("run", err)
		}
		fmt.Fprintf(out, "✓ Cache opened (%s, version %s)\n", cfg.Cache.Backend, a.runner.Version())
	}

	if runFlags.warm {
		for _, rt := range a.runtimes {
			if err := rt.Warm(ctx); err != nil {
				_ = a.close()
				return cli.NewCommandError("run", fmt.Errorf("failed to warm %s: %w", rt.Name(), err))
			}
		}
		fmt.Fprintln(out, "✓ Baseline simulations built")
	}

	srv := server.NewServer(&cfg.Server, a.serverOptions())

	fmt.Fprintln(out)
	fmt.Fprintf(out, "✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Fprintf(out, "✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Fprintf(out, "✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		slog.Error("server stopped with error", "error", err)
		return cli.NewCommandError("run", err)
	}
	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

func printBanner(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "Ledger v%s\n", Version)
	if cfgFile != "" {
		fmt.Fprintf(w, "Loading configuration from: %s\n", cfgFile)
	}
	fmt.Fprintln(w, "✓ Configuration loaded")

	slog.Debug("countries configured", "count", len(cfg.Countries))
	if cfg.Cache.Enabled {
		slog.Debug("cache enabled", "backend", cfg.Cache.Backend, "workers", cfg.Cache.Workers)
	}
	if cfg.Telemetry.Tracing.Enabled {
		slog.Debug("tracing enabled", "endpoint", cfg.Telemetry.Tracing.Endpoint)
	}
}
