package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"taxlab-hq/ledger/pkg/catalog"
	"taxlab-hq/ledger/pkg/country"
	"taxlab-hq/ledger/pkg/dataset"
	"taxlab-hq/ledger/pkg/decompose"
	"taxlab-hq/ledger/pkg/engine"
	"taxlab-hq/ledger/pkg/patch"
	"taxlab-hq/ledger/pkg/reform"
	"taxlab-hq/ledger/pkg/telemetry/tracing"
)

// Observer receives model events. The metrics collector implements it.
type Observer interface {
	RecordCatalogBuild(country string, levers int, elapsed time.Duration)
	RecordDecompositionStep(country string, elapsed time.Duration)
	RecordDatasetRefetch(country, reason string)
}

// RuntimeConfig configures a Runtime.
type RuntimeConfig struct {
	Country country.Country

	// Store holds the country's microdata. Missing years are fetched from
	// the country and saved.
	Store dataset.Store

	// Parallelism bounds the decomposition steps simulated at once.
	Parallelism int

	// WatchDir, if set, rebuilds the catalog when parameter files in it
	// change.
	WatchDir string

	Logger   *slog.Logger
	Tracer   trace.Tracer
	Observer Observer

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Runtime serves the endpoints of one country: it owns the country's lever
// catalog, dataset loader and decomposer, and memoises the default baseline
// simulation. It is safe for concurrent use.
type Runtime struct {
	country    country.Country
	results    country.Results
	catalog    *catalog.Adapter
	loader     *dataset.Loader
	decomposer *decompose.Decomposer
	watcher    *catalog.Watcher
	period     engine.Period

	// inputs holds the variables a household description may set.
	inputs map[string]*engine.Variable

	logger   *slog.Logger
	tracer   trace.Tracer
	observer Observer
	now      func() time.Time

	// baseline is the default baseline frozen at baselineDate.
	mu           sync.Mutex
	baseline     *engine.Simulation
	baselineDate string
	group        singleflight.Group
}

// NewRuntime builds the country's live catalog and prepares its endpoints.
func NewRuntime(config RuntimeConfig) (*Runtime, error) {
	if config.Country == nil {
		return nil, errors.New("api: country is required")
	}
	if config.Store == nil {
		return nil, errors.New("api: dataset store is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := config.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(tracing.InstrumentationName)
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	c := config.Country
	r := &Runtime{
		country:  c,
		results:  c.Results(),
		period:   engine.Year(c.DatasetYear()),
		logger:   logger.With("component", "api", "country", c.Name()),
		tracer:   tracer,
		observer: config.Observer,
		now:      now,
	}

	system, err := c.NewSystem()
	if err != nil {
		return nil, fmt.Errorf("failed to build system for %q: %w", c.Name(), err)
	}
	r.inputs = make(map[string]*engine.Variable)
	for _, v := range system.Variables() {
		if v.IsInput() {
			r.inputs[v.Name] = v
		}
	}

	adapter, err := catalog.NewAdapter(catalog.AdapterConfig{
		Country:  c.Name(),
		Factory:  c.NewSystem,
		Defaults: c.DefaultPatches(),
		Now:      now,
		OnBuild:  r.onCatalogBuild,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog for %q: %w", c.Name(), err)
	}
	r.catalog = adapter

	r.loader = dataset.NewLoader(config.Store, c)
	r.loader.OnRefetch = r.onRefetch

	res := r.results
	r.decomposer, err = decompose.New(decompose.Config{
		Variables: decompose.Variables{
			NetIncome:         res.HouseholdNetIncome,
			EquivalisedIncome: res.EquivHouseholdNetIncome,
			Weight:            res.HouseholdWeight,
			Person:            res.Person,
			Household:         res.Household,
		},
		Period:      r.period,
		Parallelism: config.Parallelism,
		OnStep:      r.onStep,
	}, r.Simulate)
	if err != nil {
		return nil, err
	}

	if config.WatchDir != "" {
		r.watcher, err = catalog.NewWatcher(catalog.WatcherConfig{Dir: config.WatchDir}, logger)
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Name returns the country name.
func (r *Runtime) Name() string {
	return r.country.Name()
}

// Country returns the country model.
func (r *Runtime) Country() country.Country {
	return r.country
}

// Catalog returns the country's catalog adapter.
func (r *Runtime) Catalog() *catalog.Adapter {
	return r.catalog
}

// Start watches the parameter directory, if one is configured, until ctx
// is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	if r.watcher == nil {
		return nil
	}
	return r.watcher.Watch(ctx, r.Reload)
}

// Stop stops the parameter watcher.
func (r *Runtime) Stop() error {
	if r.watcher == nil {
		return nil
	}
	return r.watcher.Stop()
}

// Reload rebuilds the live catalog and drops the memoised baseline.
func (r *Runtime) Reload() error {
	if err := r.catalog.Rebuild(); err != nil {
		return err
	}
	r.mu.Lock()
	r.baseline, r.baselineDate = nil, ""
	r.mu.Unlock()
	return nil
}

// Warm builds the default baseline simulation ahead of the first request.
func (r *Runtime) Warm(ctx context.Context) error {
	_, err := r.defaultBaseline(ctx, r.now())
	return err
}

// Compile translates the payload's levers against the live catalog.
func (r *Runtime) Compile(ctx context.Context, p *Payload) (*reform.Bundle, error) {
	_, span := r.tracer.Start(ctx, "reform.compile")
	defer span.End()

	bundle, err := reform.Compile(p.Levers(), r.catalog.Catalog(), r.country.DefaultPatches(), r.now())
	if err != nil {
		tracing.SetError(span, err)
		return nil, err
	}
	tracing.SetReformAttributes(span, p.Len(), len(bundle.Provisions), len(bundle.ReformPatches))
	span.SetAttributes(attribute.String(tracing.AttrPolicyDate, bundle.PolicyDate.Format(engine.DateLayout)))
	return bundle, nil
}

// NewSystem builds a fresh system of the country with patches applied.
func (r *Runtime) NewSystem(patches []patch.Patch) (*engine.System, error) {
	system, err := r.country.NewSystem()
	if err != nil {
		return nil, err
	}
	if err := patch.Apply(patches, system); err != nil {
		return nil, err
	}
	return system, nil
}

// Simulate builds a population simulation of a fresh system with patches
// applied.
func (r *Runtime) Simulate(ctx context.Context, patches []patch.Patch) (*engine.Simulation, error) {
	ctx, span := r.tracer.Start(ctx, "simulation.build", trace.WithAttributes(
		attribute.Int(tracing.AttrPatches, len(patches)),
		attribute.Int(tracing.AttrYear, r.country.DatasetYear()),
	))
	defer span.End()

	system, err := r.NewSystem(patches)
	if err != nil {
		tracing.SetError(span, err)
		return nil, err
	}
	data, err := r.loader.Load(ctx, r.country.DatasetYear())
	if err != nil {
		tracing.SetError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int(tracing.AttrHouseholds, data.Households))

	sim, err := engine.NewSimulation(system, data)
	if err != nil {
		tracing.SetError(span, err)
		return nil, err
	}
	return sim, nil
}

// Simulations returns the baseline and reform simulations of a bundle. A
// baseline that does not diverge from the default is shared between
// requests.
func (r *Runtime) Simulations(ctx context.Context, bundle *reform.Bundle) (baseline, reformed *engine.Simulation, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if bundle.BaselineDivergesFromDefault {
			baseline, err = r.Simulate(gctx, bundle.BaselinePatches)
		} else {
			baseline, err = r.defaultBaseline(gctx, bundle.PolicyDate)
		}
		return err
	})
	g.Go(func() error {
		var err error
		reformed, err = r.Simulate(gctx, bundle.ReformPatches)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return baseline, reformed, nil
}

// Decompose attributes a bundle's impact to its provisions.
func (r *Runtime) Decompose(ctx context.Context, bundle *reform.Bundle, baseline, reformed *engine.Simulation) (*decompose.Result, error) {
	ctx, span := r.tracer.Start(ctx, "decompose", trace.WithAttributes(
		attribute.Int(tracing.AttrProvisions, len(bundle.Provisions)),
	))
	defer span.End()

	result, err := r.decomposer.Decompose(ctx, bundle.Provisions, bundle.BaselinePatches, baseline, reformed)
	if err != nil {
		tracing.SetError(span, err)
		return nil, err
	}
	return result, nil
}

// defaultBaseline returns the simulation of the default baseline with
// parameters frozen on the day of at. The most recent day's simulation is
// memoised; a request on a later day builds and keeps a new one. Concurrent
// callers share one build.
func (r *Runtime) defaultBaseline(ctx context.Context, at time.Time) (*engine.Simulation, error) {
	day := at.Format(engine.DateLayout)
	r.mu.Lock()
	sim := r.baseline
	cached := r.baselineDate == day
	r.mu.Unlock()
	if sim != nil && cached {
		return sim, nil
	}

	v, err, _ := r.group.Do("baseline-"+day, func() (any, error) {
		patches := patch.Concat(r.country.DefaultPatches(), []patch.Patch{patch.FreezeParameters{Date: at}})
		sim, err := r.Simulate(context.WithoutCancel(ctx), patches)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		if r.baseline == nil || day >= r.baselineDate {
			r.baseline, r.baselineDate = sim, day
		}
		r.mu.Unlock()
		r.logger.Info("default baseline built", "as_of", day, "households", sim.Data().Households)
		return sim, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*engine.Simulation), nil
}

func (r *Runtime) onCatalogBuild(country string, levers int, elapsed time.Duration) {
	if r.observer != nil {
		r.observer.RecordCatalogBuild(country, levers, elapsed)
	}
}

func (r *Runtime) onStep(elapsed time.Duration) {
	if r.observer != nil {
		r.observer.RecordDecompositionStep(r.country.Name(), elapsed)
	}
}

func (r *Runtime) onRefetch(year int, cause error) {
	reason := "error"
	switch {
	case errors.Is(cause, dataset.ErrNotFound):
		reason = "missing"
	case errors.Is(cause, dataset.ErrCorrupt):
		reason = "corrupt"
	}
	r.logger.Warn("dataset re-fetch", "year", year, "reason", reason)
	if r.observer != nil {
		r.observer.RecordDatasetRefetch(r.country.Name(), reason)
	}
}
