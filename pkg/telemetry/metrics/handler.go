package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taxlab-hq/ledger/pkg/config"
)

// Handler returns the Prometheus scrape endpoint for the collector's
// registry, mounted at MetricsConfig.Path.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(
		c.registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics:   true,
			Timeout:             10 * time.Second,
			MaxRequestsInFlight: 4,
			ErrorHandling:       promhttp.ContinueOnError,
			Registry:            c.registry,
		},
	)
}

// HandlerWithOptions returns a scrape handler with custom options.
func (c *Collector) HandlerWithOptions(opts promhttp.HandlerOpts) http.Handler {
	return promhttp.HandlerFor(c.registry, opts)
}

// Path returns the path the scrape endpoint is served at.
func (c *Collector) Path() string {
	if c.config.Path == "" {
		return config.DefaultMetricsPath
	}
	return c.config.Path
}
