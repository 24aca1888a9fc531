// Ledger serves policy analysis for country tax-benefit models over HTTP.
//
// It exposes, per country:
//   - The lever catalog of reformable parameters
//   - Variable and entity metadata
//   - Household and population reform impacts
//   - Per-provision decomposition of a reform
//   - A revenue-neutral basic income estimate
//
// Usage:
//
//	# Start server with default configuration
//	ledger run
//
//	# Start with custom configuration file
//	ledger run --config /path/to/config.yaml
//
//	# Show version information
//	ledger version
//
//	# List the lever catalog as of a date
//	ledger parameters --country uk --date 2021-04-06
//
//	# Build and store microdata ahead of the first request
//	ledger dataset warm
//
//	# Delete cache entries of other versions
//	ledger cache prune
package main

func main() {
	Execute()
}
