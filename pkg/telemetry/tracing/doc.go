// Package tracing provides OpenTelemetry tracing for Ledger.
//
// When enabled, spans are batched to an OTLP gRPC collector. Incoming
// requests continue any W3C trace context (traceparent) sent by the
// caller. The server wraps every request in a span; cached computations
// and decomposition steps open child spans of their own, tagged with the
// ledger.* attributes in attributes.go.
//
// Sampling is one of
//
//	always   every trace
//	never    none, unless the caller's traceparent is sampled
//	ratio    a fraction of traces chosen by trace ID (sample_ratio)
//
// A disabled tracer hands out no-op spans, so callers never check whether
// tracing is on.
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//		return err
//	}
//	defer tracer.Shutdown(context.Background())
//	handler = tracer.HTTPMiddleware(handler)
package tracing
