// Package countryfactory creates country models from configuration and keeps
// the set a server instance serves.
package countryfactory

import (
	"fmt"
	"log/slog"

	"taxlab-hq/ledger/pkg/country"
	"taxlab-hq/ledger/pkg/country/uk"
)

// Supported lists the country names NewCountry accepts.
var Supported = []string{uk.Name}

// NewCountry creates a country model from config.
//
// Example:
//
//	c, err := NewCountry(country.Config{Name: "uk", Households: 5000, Seed: 1})
//	if err != nil {
//	    return err
//	}
func NewCountry(config country.Config) (country.Country, error) {
	slog.Debug("creating country", "name", config.Name, "households", config.Households)

	var c country.Country
	var err error

	switch config.Name {
	case uk.Name:
		c, err = uk.New(config)
	default:
		return nil, &country.ConfigError{
			Country: config.Name,
			Field:   "name",
			Message: fmt.Sprintf("unsupported country (supported: %v)", Supported),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create country %q: %w", config.Name, err)
	}

	slog.Info("country created", "name", c.Name(), "version", c.Version(), "dataset_year", c.DatasetYear())
	return c, nil
}
