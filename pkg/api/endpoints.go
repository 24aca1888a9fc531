package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"taxlab-hq/ledger/pkg/tasks"
	"taxlab-hq/ledger/pkg/tasks/store"
	"taxlab-hq/ledger/pkg/telemetry/logging"
	"taxlab-hq/ledger/pkg/telemetry/tracing"
)

// HandlerFunc computes an endpoint's result from a request payload. The
// result must be JSON-serialisable.
type HandlerFunc func(ctx context.Context, p *Payload, logger *slog.Logger) (any, error)

// Endpoint is one entry of a country's endpoint table.
type Endpoint struct {
	Handler HandlerFunc

	// Validate, if set, runs before the handler is queued so that invalid
	// requests fail synchronously instead of caching an error.
	Validate func(ctx context.Context, p *Payload) error

	// Cached endpoints run through the task runner when one is configured.
	Cached bool
}

// Endpoints returns the endpoint table of the runtime's country.
func (r *Runtime) Endpoints() map[string]Endpoint {
	return map[string]Endpoint{
		"parameters":           {Handler: r.Parameters, Validate: r.validateParameters},
		"variables":            {Handler: r.Variables},
		"entities":             {Handler: r.Entities},
		"household_reform":     {Handler: r.HouseholdReform, Validate: r.validateHousehold},
		"population_reform":    {Handler: r.PopulationReform, Validate: r.validateReform, Cached: true},
		"population_breakdown": {Handler: r.PopulationBreakdown, Validate: r.validateReform, Cached: true},
		"ubi":                  {Handler: r.UBI, Validate: r.validateReform, Cached: true},
	}
}

// Path returns the URL path an endpoint is served at.
func Path(country, endpoint string) string {
	return "/" + country + "/api/" + strings.ReplaceAll(endpoint, "_", "-")
}

// RequestRecorder observes served requests. The metrics collector
// implements it.
type RequestRecorder interface {
	RecordRequest(country, endpoint, status string, duration time.Duration)
}

// MountConfig configures Mount.
type MountConfig struct {
	// Runner serves cached endpoints. Nil computes them inline.
	Runner *tasks.Runner

	// MaxBodyBytes limits request bodies. Zero disables the limit.
	MaxBodyBytes int64

	Recorder RequestRecorder
}

// Mount registers every endpoint of rt on mux and returns the paths
// registered, sorted.
func Mount(mux *http.ServeMux, rt *Runtime, config MountConfig) []string {
	var paths []string
	for name, ep := range rt.Endpoints() {
		path := Path(rt.Name(), name)
		mux.Handle(path, &endpointHandler{
			runtime:  rt,
			name:     name,
			endpoint: ep,
			config:   config,
		})
		paths = append(paths, path)
	}
	sort.Strings(paths)
	rt.logger.Info("endpoints mounted", "count", len(paths))
	return paths
}

type endpointHandler struct {
	runtime  *Runtime
	name     string
	endpoint Endpoint
	config   MountConfig
}

// cacheEndpoint names the endpoint in cache keys.
func (h *endpointHandler) cacheEndpoint() string {
	return h.runtime.Name() + "_" + h.name
}

func (h *endpointHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := logging.WithCountry(r.Context(), h.runtime.Name())
	ctx = logging.WithEndpoint(ctx, h.name)
	tracing.SetRequestAttributes(trace.SpanFromContext(ctx), h.runtime.Name(), h.name)
	logger := h.runtime.logger.With("endpoint", h.name)

	status := h.serve(ctx, w, r.WithContext(ctx), logger)
	if h.config.Recorder != nil {
		h.config.Recorder.RecordRequest(h.runtime.Name(), h.name, strconv.Itoa(status), time.Since(start))
	}
}

// serve handles one request and returns the status code written.
func (h *endpointHandler) serve(ctx context.Context, w http.ResponseWriter, r *http.Request, logger *slog.Logger) int {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		return h.fail(ctx, w, logger, nil, NewErrorResponse(
			fmt.Sprintf("Method %s not allowed. Use GET or POST.", r.Method),
			ErrorTypeMethodNotAllowed, "method", "method_not_allowed",
		))
	}

	p, err := ParseRequest(r, h.config.MaxBodyBytes)
	if err != nil {
		return h.fail(ctx, w, logger, err, HandleError(err))
	}
	if h.endpoint.Validate != nil {
		if err := h.endpoint.Validate(ctx, p); err != nil {
			return h.fail(ctx, w, logger, err, HandleError(err))
		}
	}

	if !h.endpoint.Cached {
		result, err := h.endpoint.Handler(ctx, p, logger)
		if err != nil {
			return h.fail(ctx, w, logger, err, HandleError(err))
		}
		return h.write(ctx, w, logger, http.StatusOK, result)
	}

	var resp *tasks.Response
	if runner := h.config.Runner; runner != nil {
		if key, err := tasks.Key(h.cacheEndpoint(), p, runner.Version()); err == nil {
			ctx = logging.WithCacheKey(ctx, key)
		}
		resp, err = runner.Handle(ctx, h.cacheEndpoint(), p, func(ctx context.Context) (any, error) {
			return h.endpoint.Handler(ctx, p, logger)
		})
	} else {
		resp, err = h.inline(ctx, p, logger)
	}
	if err != nil {
		return h.fail(ctx, w, logger, err, HandleError(err))
	}
	return h.writeTask(ctx, w, logger, resp)
}

// inline computes a cached endpoint in the request, producing the response
// the runner would have stored.
func (h *endpointHandler) inline(ctx context.Context, p *Payload, logger *slog.Logger) (*tasks.Response, error) {
	result, err := h.endpoint.Handler(ctx, p, logger)
	if err != nil {
		if IsClientError(err) {
			return nil, err
		}
		logger.ErrorContext(ctx, "computation failed", "error", err)
		return &tasks.Response{Status: store.StatusError, Error: err.Error()}, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &tasks.Response{Status: store.StatusCompleted, Result: data}, nil
}

// writeTask writes a runner response. Completed results are flattened into
// one object carrying a status field; unfinished tasks answer 202.
func (h *endpointHandler) writeTask(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, resp *tasks.Response) int {
	body := map[string]any{"status": resp.Status}
	code := http.StatusOK

	switch resp.Status {
	case store.StatusCompleted:
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(resp.Result, &fields); err != nil {
			body["result"] = resp.Result
			break
		}
		for k, v := range fields {
			if k != "status" {
				body[k] = v
			}
		}
	case store.StatusError:
		body["error"] = resp.Error
	default:
		code = http.StatusAccepted
	}
	return h.write(ctx, w, logger, code, body)
}

func (h *endpointHandler) write(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, code int, body any) int {
	if err := WriteJSONResponse(w, code, body); err != nil {
		logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
	return code
}

func (h *endpointHandler) fail(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error, errResp *ErrorResponse) int {
	code := errResp.Error.HTTPStatusCode()
	switch {
	case err == nil:
	case code >= http.StatusInternalServerError:
		logger.ErrorContext(ctx, "request failed", "error", err)
	default:
		logger.InfoContext(ctx, "request rejected", "error", err, "param", errResp.Error.Param)
	}
	if err := WriteErrorResponse(w, errResp); err != nil {
		logger.ErrorContext(ctx, "failed to write error response", "error", err)
	}
	return code
}
