package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys. Ledger-specific keys live under "ledger.".
const (
	AttrCountry    = "ledger.country"
	AttrEndpoint   = "ledger.endpoint"
	AttrCacheKey   = "ledger.cache_key"
	AttrCacheHit   = "ledger.cache.hit"
	AttrStatus     = "ledger.task.status"
	AttrLevers     = "ledger.reform.levers"
	AttrProvisions = "ledger.reform.provisions"
	AttrPatches    = "ledger.reform.patches"
	AttrPolicyDate = "ledger.reform.policy_date"
	AttrStep       = "ledger.decomposition.step"
	AttrHouseholds = "ledger.dataset.households"
	AttrYear       = "ledger.dataset.year"

	AttrErrorType = "error.type"
)

// SetRequestAttributes tags span with the country and endpoint served.
func SetRequestAttributes(span trace.Span, country, endpoint string) {
	span.SetAttributes(
		attribute.String(AttrCountry, country),
		attribute.String(AttrEndpoint, endpoint),
	)
}

// SetCacheAttributes tags span with a cache lookup outcome.
func SetCacheAttributes(span trace.Span, key string, hit bool) {
	span.SetAttributes(
		attribute.String(AttrCacheKey, key),
		attribute.Bool(AttrCacheHit, hit),
	)
}

// SetReformAttributes tags span with the size of a compiled reform.
func SetReformAttributes(span trace.Span, levers, provisions, patches int) {
	span.SetAttributes(
		attribute.Int(AttrLevers, levers),
		attribute.Int(AttrProvisions, provisions),
		attribute.Int(AttrPatches, patches),
	)
}
