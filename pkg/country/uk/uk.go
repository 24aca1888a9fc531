// Package uk is a compact UK tax-benefit model: income tax with a tapered
// personal allowance, employee National Insurance, Child Benefit, the State
// Pension, and the reform-only basic income and land value tax.
package uk

import (
	"context"
	"embed"
	"io/fs"
	"os"

	"taxlab-hq/ledger/pkg/country"
	"taxlab-hq/ledger/pkg/engine"
	"taxlab-hq/ledger/pkg/patch"
)

// Name is the country identifier.
const Name = "uk"

// Version identifies the rule catalog.
const Version = "0.4.0"

// DefaultDatasetYear is the microdata year used when none is configured.
const DefaultDatasetYear = 2022

// DefaultHouseholds is the synthetic sample size used when none is configured.
const DefaultHouseholds = 2000

//go:embed parameters/*.yaml
var embedded embed.FS

// reformVariables exist only once the default patches reinstate them.
var reformVariables = []string{"UBI", "LVT"}

// UK implements country.Country.
type UK struct {
	config country.Config
	params fs.FS
	dir    string
}

// New creates the UK model.
func New(config country.Config) (*UK, error) {
	if config.DatasetYear == 0 {
		config.DatasetYear = DefaultDatasetYear
	}
	if config.Households == 0 {
		config.Households = DefaultHouseholds
	}
	if config.Households < 0 {
		return nil, &country.ConfigError{Country: Name, Field: "households", Message: "must be positive"}
	}

	u := &UK{config: config, params: embedded, dir: "parameters"}
	if config.ParametersDir != "" {
		info, err := os.Stat(config.ParametersDir)
		if err != nil || !info.IsDir() {
			return nil, &country.ConfigError{Country: Name, Field: "parameters_dir", Message: "not a readable directory: " + config.ParametersDir}
		}
		u.params, u.dir = os.DirFS(config.ParametersDir), "."
	}

	// Parse once so a broken parameter directory fails at startup.
	if _, err := u.NewSystem(); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *UK) Name() string    { return Name }
func (u *UK) Version() string { return Version }

func (u *UK) DatasetYear() int { return u.config.DatasetYear }

// NewSystem loads the parameter tree and builds the variables. The reform-only
// variables start neutralized.
func (u *UK) NewSystem() (*engine.System, error) {
	root, err := engine.LoadParameterDir(u.params, u.dir)
	if err != nil {
		return nil, err
	}
	system := engine.NewSystem(root, entities(), variables()...)
	for _, name := range reformVariables {
		if err := system.Neutralize(name); err != nil {
			return nil, err
		}
	}
	return system, nil
}

// DefaultPatches reinstate the basic income and land value tax so that their
// parameters take effect.
func (u *UK) DefaultPatches() []patch.Patch {
	return []patch.Patch{
		patch.AbolitionToggle{Variables: reformVariables, Enabled: false},
	}
}

func (u *UK) Results() country.Results {
	return country.Results{
		Person:                  "person",
		Household:               "household",
		NetIncome:               "net_income",
		HouseholdNetIncome:      "household_net_income",
		EquivHouseholdNetIncome: "equiv_household_net_income",
		InPoverty:               "in_poverty",
		InDeepPoverty:           "in_deep_poverty",
		HouseholdWeight:         "household_weight",
		People:                  "people",
		Earnings:                "employment_income",
		Child:                   "is_child",
		WorkingAge:              "is_WA_adult",
		Senior:                  "is_SP_age",
		Tax:                     "household_tax",
		Benefits:                "household_benefits",
		Currency:                "£",
	}
}

// Fetch generates the synthetic microdata for year.
func (u *UK) Fetch(ctx context.Context, year int) (*engine.Data, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Synthesize(year, u.config.Households, u.config.Seed), nil
}

// ParametersDir returns the on-disk parameter directory, or "" when the
// embedded parameters are used.
func (u *UK) ParametersDir() string {
	return u.config.ParametersDir
}

func entities() []*engine.Entity {
	return []*engine.Entity{
		{
			Key:         "person",
			Plural:      "people",
			Label:       "Person",
			Description: "An individual",
			IsPerson:    true,
		},
		{
			Key:         "household",
			Plural:      "households",
			Label:       "Household",
			Description: "People living at the same address",
		},
	}
}
