package countryfactory

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"taxlab-hq/ledger/pkg/country"
)

// Manager holds the countries a server instance serves. It is safe for
// concurrent use.
type Manager struct {
	countries map[string]country.Country
	mu        sync.RWMutex
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{countries: make(map[string]country.Country)}
}

// AddCountry creates a country from config and adds it, replacing any
// country of the same name.
func (m *Manager) AddCountry(config country.Config) error {
	c, err := NewCountry(config)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.countries[c.Name()]; ok {
		slog.Warn("replacing existing country", "name", c.Name())
	}
	m.countries[c.Name()] = c
	return nil
}

// GetCountry returns a country by name.
func (m *Manager) GetCountry(name string) (country.Country, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.countries[name]
	if !ok {
		return nil, fmt.Errorf("country %q not found", name)
	}
	return c, nil
}

// Names returns the served country names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.countries))
	for name := range m.countries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFromConfig adds every configured country. Failures are logged and
// reported together.
func (m *Manager) LoadFromConfig(configs []country.Config) error {
	var failed int
	for _, config := range configs {
		if err := m.AddCountry(config); err != nil {
			failed++
			slog.Error("failed to load country", "name", config.Name, "error", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to load %d country(s)", failed)
	}
	return nil
}
