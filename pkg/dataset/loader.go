package dataset

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"taxlab-hq/ledger/pkg/engine"
)

// Fetcher produces a fresh copy of a dataset, e.g. by downloading or
// generating it.
type Fetcher interface {
	Fetch(ctx context.Context, year int) (*engine.Data, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, year int) (*engine.Data, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, year int) (*engine.Data, error) {
	return f(ctx, year)
}

// Loader serves datasets from memory, then the store, then the fetcher.
type Loader struct {
	store   Store
	fetcher Fetcher
	logger  *slog.Logger

	mu     sync.RWMutex
	loaded map[int]*engine.Data
	group  singleflight.Group

	// OnRefetch, if set, is called whenever a dataset is re-fetched.
	OnRefetch func(year int, cause error)
}

// NewLoader creates a loader over store that re-fetches through fetcher.
func NewLoader(store Store, fetcher Fetcher) *Loader {
	return &Loader{
		store:   store,
		fetcher: fetcher,
		logger:  slog.Default().With("component", "dataset.loader"),
		loaded:  make(map[int]*engine.Data),
	}
}

// Load returns the dataset for year. A missing or corrupt stored copy is
// replaced by one re-fetch; if that also fails the error is returned as a
// *LoadError. Returned data is shared and must not be modified.
func (l *Loader) Load(ctx context.Context, year int) (*engine.Data, error) {
	l.mu.RLock()
	data, ok := l.loaded[year]
	l.mu.RUnlock()
	if ok {
		return data, nil
	}

	v, err, _ := l.group.Do(strconv.Itoa(year), func() (any, error) {
		data, err := l.load(ctx, year)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.loaded[year] = data
		l.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*engine.Data), nil
}

func (l *Loader) load(ctx context.Context, year int) (*engine.Data, error) {
	data, err := l.store.Load(ctx, year)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrCorrupt) {
		return nil, &LoadError{Year: year, Cause: err}
	}

	l.logger.Warn("dataset unavailable, re-fetching", "year", year, "error", err)
	if l.OnRefetch != nil {
		l.OnRefetch(year, err)
	}

	fresh, err := l.fetcher.Fetch(ctx, year)
	if err != nil {
		return nil, &LoadError{Year: year, Cause: err}
	}
	if err := l.store.Save(ctx, fresh); err != nil {
		return nil, &LoadError{Year: year, Cause: err}
	}
	data, err = l.store.Load(ctx, year)
	if err != nil {
		return nil, &LoadError{Year: year, Cause: err}
	}
	l.logger.Info("dataset re-fetched", "year", year, "households", data.Households, "people", data.People())
	return data, nil
}

// Forget drops the in-memory copy of year so the next Load reads the store.
func (l *Loader) Forget(year int) {
	l.mu.Lock()
	delete(l.loaded, year)
	l.mu.Unlock()
}
