// Package health serves Ledger's liveness, readiness and version probes.
//
//	GET /health    200 while the process runs
//	GET /ready     200 when every registered check passes, else 503
//	GET /version   build information
//
// The server registers a readiness check per country catalog, one for the
// dataset store and one for the cache backend. Checks run concurrently,
// each bounded by the checker timeout.
package health
