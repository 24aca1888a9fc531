package tasks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/semaphore"

	"taxlab-hq/ledger/pkg/tasks/store"
)

// ErrClosed is returned by Handle after Close has been called.
var ErrClosed = errors.New("task runner closed")

// Writes that leave a key in a terminal or absent state are retried this many
// times, doubling the delay from writeBackoff between attempts.
const (
	writeAttempts = 4
	writeBackoff  = 50 * time.Millisecond
)

// Handler computes an endpoint's result. The returned value must be
// JSON-serialisable.
type Handler func(ctx context.Context) (any, error)

// Response is what a caller sees for one request.
type Response struct {
	Status store.Status    `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Observer receives runner events. The metrics collector implements it.
type Observer interface {
	RecordCacheHit(endpoint string)
	RecordCacheMiss(endpoint string)
	TaskStarted(endpoint string)
	TaskFinished(endpoint string, status string, elapsed time.Duration)
}

// Config configures a Runner.
type Config struct {
	// Version is appended to every key. Bumping it invalidates all entries.
	Version string

	// Workers bounds the number of computations running at once.
	Workers int

	Logger   *slog.Logger
	Tracer   trace.Tracer
	Observer Observer
}

// Runner serves endpoint requests from a Backend, starting one worker per
// newly seen key. It is safe for concurrent use.
type Runner struct {
	config  Config
	backend store.Backend
	logger  *slog.Logger
	tracer  trace.Tracer
	slots   *semaphore.Weighted

	wg     sync.WaitGroup
	closed atomic.Bool
	now    func() time.Time
	delay  time.Duration

	// inflight holds the keys of unfinished workers. abandoned is set once
	// Close gives up on them; mu orders it against in-progress writes.
	mu        sync.Mutex
	inflight  map[string]struct{}
	abandoned bool
}

// NewRunner creates a runner over backend.
func NewRunner(backend store.Backend, config Config) (*Runner, error) {
	if backend == nil {
		return nil, errors.New("tasks: backend is required")
	}
	if config.Version == "" {
		return nil, errors.New("tasks: version is required")
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := config.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("ledger/tasks")
	}
	return &Runner{
		config:  config,
		backend: backend,
		logger:  logger.With("component", "tasks"),
		tracer:  tracer,
		slots:   semaphore.NewWeighted(int64(config.Workers)),
		now:      time.Now,
		delay:    writeBackoff,
		inflight: make(map[string]struct{}),
	}, nil
}

// Version returns the version keys are built with.
func (r *Runner) Version() string {
	return r.config.Version
}

// Backend returns the runner's store.
func (r *Runner) Backend() store.Backend {
	return r.backend
}

// Key returns the cache key of a request. Maps are encoded with sorted
// keys, so two payloads holding the same fields in a different order share
// a key.
func Key(endpoint string, payload any, version string) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("tasks: encode payload: %w", err)
	}
	sum := sha256.Sum256(data)
	return endpoint + "-" + hex.EncodeToString(sum[:]) + "-" + version, nil
}

// Handle returns the state of the request identified by endpoint and
// payload. An unseen request is queued, a worker is started for it and the
// queued status is returned without waiting. A request already queued or
// running returns that status without starting more work. A finished
// request returns its stored result or error.
func (r *Runner) Handle(ctx context.Context, endpoint string, payload any, fn Handler) (*Response, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	key, err := Key(endpoint, payload, r.config.Version)
	if err != nil {
		return nil, err
	}
	logger := r.logger.With("endpoint", endpoint, "cache_key", key)

	existing, err := r.backend.Get(ctx, key)
	switch {
	case err == nil:
		r.observeHit(endpoint)
		return responseOf(existing), nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("tasks: read %s: %w", key, err)
	}

	now := r.now().UTC()
	entry := &store.Entry{
		Key:       key,
		Endpoint:  endpoint,
		Version:   r.config.Version,
		Status:    store.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, existing, err := r.backend.CreateIfAbsent(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("tasks: create %s: %w", key, err)
	}
	if !created {
		r.observeHit(endpoint)
		return responseOf(existing), nil
	}

	if r.config.Observer != nil {
		r.config.Observer.RecordCacheMiss(endpoint)
	}
	logger.Info("task queued")

	r.mu.Lock()
	r.inflight[key] = struct{}{}
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(context.WithoutCancel(ctx), entry, fn, logger)

	return &Response{Status: store.StatusQueued}, nil
}

// Lookup returns the stored response for a request without starting work.
func (r *Runner) Lookup(ctx context.Context, endpoint string, payload any) (*Response, error) {
	key, err := Key(endpoint, payload, r.config.Version)
	if err != nil {
		return nil, err
	}
	entry, err := r.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return responseOf(entry), nil
}

// Prune deletes entries written by other versions.
func (r *Runner) Prune(ctx context.Context) (int, error) {
	return r.backend.Prune(ctx, r.config.Version)
}

// Close stops accepting requests and waits for running workers until ctx
// is done. If ctx expires first, the keys of unfinished workers are deleted
// so that a persistent store never keeps them in progress; a later request
// for the same payload starts over.
func (r *Runner) Close(ctx context.Context) error {
	r.closed.Store(true)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.abandon(context.WithoutCancel(ctx))
		return fmt.Errorf("tasks: waiting for workers: %w", ctx.Err())
	}
}

func (r *Runner) abandon(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.abandoned = true
	for key := range r.inflight {
		if err := r.retry(ctx, func(ctx context.Context) error { return r.backend.Delete(ctx, key) }); err != nil {
			r.logger.Error("failed to release unfinished task", "cache_key", key, "error", err)
			continue
		}
		r.logger.Warn("released unfinished task", "cache_key", key)
	}
}

func (r *Runner) done(key string) {
	r.mu.Lock()
	delete(r.inflight, key)
	r.mu.Unlock()
}

func (r *Runner) run(ctx context.Context, entry *store.Entry, fn Handler, logger *slog.Logger) {
	defer r.wg.Done()
	defer r.done(entry.Key)

	// The context is detached, so Acquire only returns once a slot frees.
	if err := r.slots.Acquire(ctx, 1); err != nil {
		r.finish(ctx, entry, nil, err, "", logger)
		return
	}
	defer r.slots.Release(1)

	ctx, span := r.tracer.Start(ctx, "tasks.run", trace.WithAttributes(
		attribute.String("ledger.endpoint", entry.Endpoint),
		attribute.String("ledger.cache_key", entry.Key),
	))
	defer span.End()

	running := *entry
	running.Status = store.StatusInProgress
	running.UpdatedAt = r.now().UTC()
	r.mu.Lock()
	if r.abandoned {
		r.mu.Unlock()
		logger.Warn("task dropped after shutdown")
		return
	}
	if err := r.backend.Put(ctx, &running); err != nil {
		logger.Warn("failed to mark task in progress", "error", err)
	}
	r.mu.Unlock()
	if r.config.Observer != nil {
		r.config.Observer.TaskStarted(entry.Endpoint)
	}

	start := time.Now()
	result, stack, err := invoke(ctx, fn)
	elapsed := time.Since(start)

	final := r.finish(ctx, entry, result, err, stack, logger.With("duration_ms", elapsed.Milliseconds()))
	if final.Status == store.StatusError {
		span.RecordError(errors.New(final.Error))
		span.SetStatus(codes.Error, final.Error)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	if r.config.Observer != nil {
		r.config.Observer.TaskFinished(entry.Endpoint, string(final.Status), elapsed)
	}
}

// finish writes and returns the terminal entry.
func (r *Runner) finish(ctx context.Context, entry *store.Entry, result any, err error, stack string, logger *slog.Logger) *store.Entry {
	final := *entry
	final.UpdatedAt = r.now().UTC()

	if err == nil {
		data, merr := json.Marshal(result)
		if merr != nil {
			err = fmt.Errorf("encode result: %w", merr)
		} else {
			final.Status = store.StatusCompleted
			final.Result = data
		}
	}
	if err != nil {
		final.Status = store.StatusError
		final.Error = err.Error()
		final.Trace = stack
		if final.Trace == "" {
			final.Trace = errorTrace(err)
		}
	}

	if perr := r.retry(ctx, func(ctx context.Context) error { return r.backend.Put(ctx, &final) }); perr != nil {
		logger.Error("failed to store task result", "status", final.Status, "error", perr)
		if derr := r.retry(ctx, func(ctx context.Context) error { return r.backend.Delete(ctx, entry.Key) }); derr != nil {
			logger.Error("failed to release task", "error", derr)
		}
		return &final
	}
	if final.Status == store.StatusError {
		logger.Error("task failed", "error", err)
	} else {
		logger.Info("task completed", "bytes", len(final.Result))
	}
	return &final
}

// retry calls op until it succeeds or writeAttempts calls have failed.
func (r *Runner) retry(ctx context.Context, op func(context.Context) error) error {
	delay := r.delay
	var err error
	for attempt := 1; ; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt == writeAttempts {
			return err
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return err
		}
		delay *= 2
	}
}

// invoke runs fn, converting a panic into an error with its stack.
func invoke(ctx context.Context, fn Handler) (result any, stack string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("panic: %v", rec)
			stack = string(debug.Stack())
		}
	}()
	result, err = fn(ctx)
	return result, "", err
}

// errorTrace lists err and every error it wraps, outermost first.
func errorTrace(err error) string {
	var lines []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		lines = append(lines, fmt.Sprintf("%T: %v", e, e))
	}
	return strings.Join(lines, "\n")
}

func (r *Runner) observeHit(endpoint string) {
	if r.config.Observer != nil {
		r.config.Observer.RecordCacheHit(endpoint)
	}
}

func responseOf(e *store.Entry) *Response {
	resp := &Response{Status: e.Status}
	switch e.Status {
	case store.StatusCompleted:
		resp.Result = e.Result
	case store.StatusError:
		resp.Error = e.Error
	}
	return resp
}
