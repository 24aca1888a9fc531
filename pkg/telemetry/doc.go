// Package telemetry groups Ledger's observability packages.
//
//   - logging: slog logger carrying request fields from the context
//   - metrics: Prometheus collector for requests, cache, tasks and model work
//   - tracing: OpenTelemetry tracer exporting over OTLP gRPC
//   - health: liveness, readiness and version probes
//
// Each is configured from the telemetry section of the configuration file
// and wired together by the server.
package telemetry
