package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"taxlab-hq/ledger/pkg/api"
	"taxlab-hq/ledger/pkg/cli"
	"taxlab-hq/ledger/pkg/config"
	"taxlab-hq/ledger/pkg/country"
	"taxlab-hq/ledger/pkg/countryfactory"
	"taxlab-hq/ledger/pkg/dataset"
	"taxlab-hq/ledger/pkg/server"
	"taxlab-hq/ledger/pkg/tasks"
	"taxlab-hq/ledger/pkg/tasks/store"
	"taxlab-hq/ledger/pkg/telemetry/health"
	"taxlab-hq/ledger/pkg/telemetry/logging"
	"taxlab-hq/ledger/pkg/telemetry/metrics"
	"taxlab-hq/ledger/pkg/telemetry/tracing"
)

// cacheProbeKey is read by the cache readiness check. It never exists.
const cacheProbeKey = "readiness-probe"

// loadConfig loads the file named by --config with LEDGER_* overrides and
// installs it as the process configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	config.SetConfig(cfg)
	return cfg, nil
}

// logLevel is the level of the process logger, adjusted on reload.
var logLevel *slog.LevelVar

// setupLogging builds the process logger and makes it the slog default.
func setupLogging(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	logger, level, err := logging.NewLeveled(cfg.Telemetry.Logging, w)
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	logLevel = level
	slog.SetDefault(logger)
	return logger, nil
}

// app holds the components built from configuration. Commands open the
// parts they need and close the app when done.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Collector
	tracer   *tracing.Tracer
	health   *health.Checker
	runtimes []*api.Runtime
	runner   *tasks.Runner
	sweeper  *tasks.Sweeper

	// closers release stores, in the order they were opened.
	closers []func() error
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewCollector(&cfg.Telemetry.Metrics, nil),
		tracer:  tracer,
		health:  health.New(0),
	}, nil
}

// openCountries builds every configured country with its dataset store and
// runtime.
func (a *app) openCountries() error {
	manager := countryfactory.NewManager()
	for _, cc := range a.cfg.Countries {
		if err := manager.AddCountry(country.Config{
			Name:          cc.Name,
			DatasetYear:   cc.DatasetYear,
			Households:    cc.Households,
			Seed:          cc.Seed,
			ParametersDir: cc.ParametersDir,
		}); err != nil {
			return err
		}
	}

	for _, cc := range a.cfg.Countries {
		c, err := manager.GetCountry(cc.Name)
		if err != nil {
			return err
		}

		path := countryPath(a.cfg.Dataset.Path, c.Name())
		if err := ensureDir(path); err != nil {
			return err
		}
		datasets, err := dataset.NewSQLiteStore(&dataset.SQLiteConfig{
			Path:         path,
			MaxOpenConns: a.cfg.Dataset.MaxOpenConns,
			WALMode:      a.cfg.Dataset.WALMode,
			BusyTimeout:  a.cfg.Dataset.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to open dataset store for %q: %w", c.Name(), err)
		}
		a.closers = append(a.closers, datasets.Close)
		a.health.Register("dataset_"+c.Name(), datasets.Ping)

		var watchDir string
		if cc.Watch {
			watchDir = cc.ParametersDir
		}
		rt, err := api.NewRuntime(api.RuntimeConfig{
			Country:     c,
			Store:       datasets,
			Parallelism: a.cfg.Decomposition.Parallelism,
			WatchDir:    watchDir,
			Logger:      a.logger,
			Tracer:      a.tracer.Tracer(),
			Observer:    a.metrics,
		})
		if err != nil {
			return err
		}
		a.runtimes = append(a.runtimes, rt)
		a.health.Register("catalog_"+c.Name(), catalogCheck(rt))
	}
	return nil
}

// openCache opens the configured cache backend with its runner and sweeper.
func (a *app) openCache(ctx context.Context) error {
	if a.cfg.Cache.Backend == store.BackendSQLite {
		if err := ensureDir(a.cfg.Cache.SQLite.Path); err != nil {
			return err
		}
	}
	backend, err := store.Open(ctx, cacheStoreConfig(&a.cfg.Cache, a.logger))
	if err != nil {
		return fmt.Errorf("failed to open %s cache: %w", a.cfg.Cache.Backend, err)
	}
	a.closers = append(a.closers, backend.Close)

	a.runner, err = tasks.NewRunner(backend, tasks.Config{
		Version:  cacheVersion(a.cfg),
		Workers:  a.cfg.Cache.Workers,
		Logger:   a.logger,
		Tracer:   a.tracer.Tracer(),
		Observer: a.metrics,
	})
	if err != nil {
		return err
	}
	a.sweeper = tasks.NewSweeper(a.runner, a.cfg.Cache.PruneSchedule, a.logger)
	a.sweeper.OnPrune = a.metrics.RecordCachePruned

	a.health.Register("cache", func(ctx context.Context) error {
		_, err := backend.Get(ctx, cacheProbeKey)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	})
	return nil
}

// runtime returns the runtime of the named country. An empty name selects
// the only configured country.
func (a *app) runtime(name string) (*api.Runtime, error) {
	if name == "" {
		if len(a.runtimes) == 1 {
			return a.runtimes[0], nil
		}
		return nil, fmt.Errorf("several countries are configured (%s): choose one with --country", strings.Join(a.countryNames(), ", "))
	}
	for _, rt := range a.runtimes {
		if rt.Name() == name {
			return rt, nil
		}
	}
	return nil, fmt.Errorf("country %q is not configured (configured: %s)", name, strings.Join(a.countryNames(), ", "))
}

func (a *app) countryNames() []string {
	names := make([]string, 0, len(a.runtimes))
	for _, rt := range a.runtimes {
		names = append(names, rt.Name())
	}
	return names
}

// serverOptions hands every opened component to the server, which then
// owns their shutdown.
func (a *app) serverOptions() server.Options {
	return server.Options{
		Runtimes: a.runtimes,
		Runner:   a.runner,
		Sweeper:  a.sweeper,
		Metrics:  a.metrics,
		Tracer:   a.tracer,
		Health:   a.health,
		Version:  versionInfo(cacheVersion(a.cfg)),
		Closers:  a.closers,
	}
}

// close releases everything opened, for commands that do not start the
// server.
func (a *app) close() error {
	var errs []error
	if a.runner != nil {
		errs = append(errs, a.runner.Close(context.Background()))
	}
	for _, closeFn := range slices.Backward(a.closers) {
		errs = append(errs, closeFn())
	}
	errs = append(errs, a.tracer.Shutdown(context.Background()))
	return errors.Join(errs...)
}

func catalogCheck(rt *api.Runtime) health.CheckFunc {
	return func(context.Context) error {
		if rt.Catalog().Catalog().Len() == 0 {
			return fmt.Errorf("%s lever catalog is empty", rt.Name())
		}
		return nil
	}
}

func cacheStoreConfig(cfg *config.CacheConfig, logger *slog.Logger) store.Config {
	return store.Config{
		Backend: cfg.Backend,
		SQLite: store.SQLiteConfig{
			Path:               cfg.SQLite.Path,
			CheckpointInterval: cfg.SQLite.CheckpointInterval,
			BusyTimeout:        cfg.SQLite.BusyTimeout,
		},
		Badger: store.BadgerConfig{
			Path:       cfg.Badger.Path,
			InMemory:   cfg.Badger.InMemory,
			SyncWrites: cfg.Badger.SyncWrites,
			Logger:     logger,
		},
		Redis: store.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TLS:      cfg.Redis.TLS,
		},
		GCS: store.GCSConfig{
			Bucket:          cfg.GCS.Bucket,
			Prefix:          cfg.GCS.Prefix,
			CredentialsFile: cfg.GCS.CredentialsFile,
			Endpoint:        cfg.GCS.Endpoint,
		},
	}
}

// cacheVersion is the configured cache version, or the build version.
func cacheVersion(cfg *config.Config) string {
	if cfg.Cache.Version != "" {
		return cfg.Cache.Version
	}
	return Version
}

// countryPath derives a per-country file from path by suffixing the base
// name: data/datasets.db becomes data/datasets-uk.db.
func countryPath(path, name string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + name + ext
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}
