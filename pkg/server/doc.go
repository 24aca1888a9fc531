// Package server provides the Ledger HTTP API server.
//
// The server mounts every country runtime's endpoints, the health and
// metrics endpoints, and the middleware chain, and manages the lifecycle of
// the background components: parameter watchers, the cache sweeper and the
// cache workers.
//
// # Basic Usage
//
//	rt, err := api.NewRuntime(api.RuntimeConfig{Country: uk, Store: datasets})
//	if err != nil {
//	    return err
//	}
//	srv := server.NewServer(&cfg.Server, server.Options{
//	    Runtimes: []*api.Runtime{rt},
//	    Runner:   runner,
//	    Metrics:  collector,
//	})
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//
// # Routes
//
//   - GET|POST /<country>/api/<endpoint> - Policy endpoints (see package api)
//   - GET /health - Liveness probe (always returns 200)
//   - GET /ready - Readiness probe (catalogs, cache store, dataset store)
//   - GET /version - Build and cache version
//   - GET /metrics - Prometheus metrics, when enabled
//
// # Graceful Shutdown
//
// Start returns after SIGTERM, SIGINT, cancellation of its context or Stop.
// The shutdown process:
//  1. Stops accepting new connections and drains active ones
//  2. Waits for running cache workers
//  3. Stops the cache sweeper and the parameter watchers
//  4. Flushes traces and runs the registered closers
//
// Everything is bounded by server.shutdown_timeout.
package server
