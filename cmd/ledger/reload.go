package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"taxlab-hq/ledger/pkg/config"
	"taxlab-hq/ledger/pkg/telemetry/logging"
)

// reloadConfig re-reads --config into the process configuration and applies
// its log level. Other settings take effect on the next start. Command-line
// level overrides still win.
func reloadConfig(level *slog.LevelVar) error {
	if err := config.ReloadConfig(cfgFile); err != nil {
		return err
	}
	cfg := config.MustGetConfig()

	name := cfg.Telemetry.Logging.Level
	if verbose {
		name = "debug"
	}
	if runFlags.logLevel != "" {
		name = runFlags.logLevel
	}
	parsed, err := logging.ParseLevel(name)
	if err != nil {
		return err
	}
	level.Set(parsed)
	slog.Info("configuration reloaded", "log_level", parsed.String())
	return nil
}

// watchHangup reloads the configuration on SIGHUP until ctx is done.
func watchHangup(ctx context.Context, level *slog.LevelVar) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := reloadConfig(level); err != nil {
				slog.Error("failed to reload configuration", "error", err)
			}
		}
	}
}
