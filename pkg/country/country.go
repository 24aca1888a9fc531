// Package country defines the rule catalog a Ledger deployment serves.
//
// A Country supplies a fresh engine system on demand, the patches that turn
// the bare system into the default baseline, the names of the variables
// impact calculations read, and a way to produce its microdata.
package country

import (
	"context"
	"fmt"

	"taxlab-hq/ledger/pkg/engine"
	"taxlab-hq/ledger/pkg/patch"
)

// Country is one country's tax-benefit model.
type Country interface {
	// Name is the short identifier used in URLs, e.g. "uk".
	Name() string

	// Version identifies the rule catalog. It is part of every cache key.
	Version() string

	// NewSystem builds an unpatched system. Every call returns an
	// independent tree that may be mutated freely.
	NewSystem() (*engine.System, error)

	// DefaultPatches turn a bare system into the default baseline.
	DefaultPatches() []patch.Patch

	// Results names the variables impact calculations read.
	Results() Results

	// DatasetYear is the year of the microdata simulations run over.
	DatasetYear() int

	// Fetch produces a fresh copy of the microdata for year.
	Fetch(ctx context.Context, year int) (*engine.Data, error)
}

// Results names the variables used to summarise a simulation.
type Results struct {
	Person    string
	Household string

	NetIncome               string
	HouseholdNetIncome      string
	EquivHouseholdNetIncome string
	InPoverty               string
	InDeepPoverty           string

	HouseholdWeight string
	People          string
	Earnings        string

	Child      string
	WorkingAge string
	Senior     string

	Tax      string
	Benefits string

	// Currency is the display symbol for money, e.g. "£".
	Currency string
}

// Config selects and sizes a country.
type Config struct {
	// Name selects the country implementation.
	Name string

	// DatasetYear overrides the country's default microdata year.
	DatasetYear int

	// Households is the number of synthetic households generated.
	Households int

	// Seed makes synthetic microdata reproducible.
	Seed uint64

	// ParametersDir, if set, loads parameter YAML from disk instead of the
	// embedded copy.
	ParametersDir string
}

// ConfigError reports an unusable country configuration.
type ConfigError struct {
	Country string
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("country %q: %s: %s", e.Country, e.Field, e.Message)
}
