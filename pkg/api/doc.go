// Package api serves the policy endpoints of each country.
//
// A Runtime owns one country's lever catalog, dataset loader and
// decomposer. Its endpoint table maps names to handlers:
//
//	parameters            lever catalog, optionally as of policy_date
//	variables             variable metadata
//	entities              entity metadata
//	household_reform      one household, baseline against reform
//	population_reform     headline population impacts (cached)
//	population_breakdown  per-provision decomposition (cached)
//	ubi                   revenue-neutral basic income (cached)
//
// Mount registers the table on a mux at /<country>/api/<endpoint>, with
// underscores in endpoint names replaced by hyphens. Requests may be GET or
// POST; query arguments and the JSON object body merge into one ordered
// Payload, body values winning.
//
// Cached endpoints run through a tasks.Runner. The first request for a
// payload answers 202 with status "queued"; later requests answer the
// current status until the result is stored, then 200 with the result
// fields and status "completed". Requests that fail validation answer 400
// immediately and are never cached.
package api
