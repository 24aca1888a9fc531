package catalog

import (
	"container/list"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"taxlab-hq/ledger/pkg/engine"
	"taxlab-hq/ledger/pkg/patch"
)

// ErrUnknownLever is returned by Lookup for a name not in the catalog.
var ErrUnknownLever = errors.New("unknown lever")

// SystemFactory builds a fresh, unpatched rule system.
type SystemFactory func() (*engine.System, error)

// AdapterConfig configures an Adapter.
type AdapterConfig struct {
	// Country labels log lines and build observations.
	Country string

	// Factory builds the systems catalogs are read from.
	Factory SystemFactory

	// Defaults are applied to every system before it is read.
	Defaults []patch.Patch

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// MaxDated bounds the catalogs kept for dates other than today; the
	// least recently used is evicted first.
	// Default: 32
	MaxDated int

	// OnBuild, if set, is called after every catalog build.
	OnBuild func(country string, levers int, elapsed time.Duration)

	Logger *slog.Logger
}

// Adapter owns the live catalog of one country and builds catalogs for
// other dates on demand. It is safe for concurrent use.
type Adapter struct {
	config AdapterConfig
	logger *slog.Logger

	live atomic.Pointer[Catalog]

	mu    sync.Mutex
	dated map[string]*list.Element
	order *list.List // front is most recently used
}

type datedEntry struct {
	key     string
	catalog *Catalog
}

// NewAdapter builds the live catalog and returns an adapter serving it.
func NewAdapter(config AdapterConfig) (*Adapter, error) {
	if config.Factory == nil {
		return nil, errors.New("catalog: system factory is required")
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.MaxDated <= 0 {
		config.MaxDated = 32
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Adapter{
		config: config,
		logger: logger.With("component", "catalog", "country", config.Country),
		dated:  make(map[string]*list.Element),
		order:  list.New(),
	}
	if err := a.Rebuild(); err != nil {
		return nil, err
	}
	return a, nil
}

// Catalog returns the live catalog.
func (a *Adapter) Catalog() *Catalog {
	return a.live.Load()
}

// Rebuild replaces the live catalog with one read from a fresh system and
// discards catalogs memoised for other dates.
func (a *Adapter) Rebuild() error {
	now := a.config.Now()
	c, err := a.build(a.config.Defaults, now)
	if err != nil {
		return err
	}
	a.live.Store(c)

	a.mu.Lock()
	a.dated = make(map[string]*list.Element)
	a.order.Init()
	a.mu.Unlock()

	a.logger.Info("catalog built", "levers", c.Len(), "as_of", now.Format(engine.DateLayout))
	return nil
}

// AsOf returns the catalog evaluated at date, building it from a freshly
// frozen system on first use. At most MaxDated such catalogs are kept. The
// live catalog is not modified.
func (a *Adapter) AsOf(date time.Time) (*Catalog, error) {
	key := date.Format(engine.DateLayout)

	a.mu.Lock()
	defer a.mu.Unlock()

	if el, ok := a.dated[key]; ok {
		a.order.MoveToFront(el)
		return el.Value.(*datedEntry).catalog, nil
	}
	patches := patch.Concat(a.config.Defaults, []patch.Patch{patch.FreezeParameters{Date: date}})
	c, err := a.build(patches, date)
	if err != nil {
		return nil, err
	}
	a.dated[key] = a.order.PushFront(&datedEntry{key: key, catalog: c})
	if a.order.Len() > a.config.MaxDated {
		oldest := a.order.Back()
		a.order.Remove(oldest)
		delete(a.dated, oldest.Value.(*datedEntry).key)
	}
	a.logger.Debug("dated catalog built", "as_of", key, "levers", c.Len())
	return c, nil
}

// Lookup returns the named lever. A zero asOf reads the live catalog.
func (a *Adapter) Lookup(name string, asOf time.Time) (*Lever, error) {
	c := a.Catalog()
	if !asOf.IsZero() {
		var err error
		if c, err = a.AsOf(asOf); err != nil {
			return nil, err
		}
	}
	l, ok := c.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLever, name)
	}
	return l, nil
}

func (a *Adapter) build(patches []patch.Patch, asOf time.Time) (*Catalog, error) {
	start := time.Now()
	system, err := a.config.Factory()
	if err != nil {
		return nil, fmt.Errorf("catalog: build system: %w", err)
	}
	if err := patch.Apply(patches, system); err != nil {
		return nil, fmt.Errorf("catalog: apply default patches: %w", err)
	}
	c := Build(system, asOf)
	if a.config.OnBuild != nil {
		a.config.OnBuild(a.config.Country, c.Len(), time.Since(start))
	}
	return c, nil
}
