package api

import (
	"context"
	"fmt"
	"log/slog"

	"taxlab-hq/ledger/pkg/catalog"
	"taxlab-hq/ledger/pkg/engine"
	"taxlab-hq/ledger/pkg/reform"
)

// VariableInfo describes one variable of the rule system.
type VariableInfo struct {
	Name             string  `json:"name"`
	Label            string  `json:"label"`
	Description      string  `json:"description"`
	Entity           string  `json:"entity"`
	ValueType        string  `json:"valueType"`
	Unit             string  `json:"unit,omitempty"`
	DefaultValue     float64 `json:"defaultValue"`
	DefinitionPeriod string  `json:"definitionPeriod"`
	Input            bool    `json:"input"`
}

// EntityInfo describes one entity of the rule system.
type EntityInfo struct {
	Key           string `json:"key"`
	Label         string `json:"label"`
	Plural        string `json:"plural"`
	Description   string `json:"description"`
	IsGroup       bool   `json:"is_group"`
	Documentation string `json:"documentation"`
}

func (r *Runtime) validateParameters(_ context.Context, p *Payload) error {
	raw, ok := p.Get(reform.PolicyDate)
	if !ok {
		return nil
	}
	_, err := reform.ParseDate(raw)
	return err
}

// Parameters returns the lever catalog keyed by lever name. With a
// policy_date the catalog is rebuilt with parameters frozen at that date.
func (r *Runtime) Parameters(_ context.Context, p *Payload, logger *slog.Logger) (any, error) {
	cat := r.catalog.Catalog()
	if raw, ok := p.Get(reform.PolicyDate); ok {
		date, err := reform.ParseDate(raw)
		if err != nil {
			return nil, err
		}
		if cat, err = r.catalog.AsOf(date); err != nil {
			return nil, fmt.Errorf("failed to build catalog as of %s: %w", date.Format(engine.DateLayout), err)
		}
		logger.Debug("catalog built for policy date", "date", date.Format(engine.DateLayout), "levers", cat.Len())
	}

	out := make(map[string]*catalog.Lever, cat.Len())
	for _, l := range cat.Levers() {
		out[l.Name] = l
	}
	return out, nil
}

// Variables returns the metadata of every variable of the default system.
func (r *Runtime) Variables(_ context.Context, _ *Payload, _ *slog.Logger) (any, error) {
	system, err := r.NewSystem(r.country.DefaultPatches())
	if err != nil {
		return nil, err
	}
	vars := system.Variables()
	out := make(map[string]VariableInfo, len(vars))
	for _, v := range vars {
		out[v.Name] = VariableInfo{
			Name:             v.Name,
			Label:            v.Label,
			Description:      v.Description,
			Entity:           v.Entity,
			ValueType:        string(v.ValueType),
			Unit:             v.Unit,
			DefaultValue:     v.Default,
			DefinitionPeriod: "year",
			Input:            v.IsInput(),
		}
	}
	return out, nil
}

// Entities returns the entities of the rule system keyed by entity key.
func (r *Runtime) Entities(_ context.Context, _ *Payload, _ *slog.Logger) (any, error) {
	system, err := r.country.NewSystem()
	if err != nil {
		return nil, err
	}
	entities := system.Entities()
	out := make(map[string]EntityInfo, len(entities))
	for _, e := range entities {
		out[e.Key] = EntityInfo{
			Key:           e.Key,
			Label:         e.Label,
			Plural:        e.Plural,
			Description:   e.Description,
			IsGroup:       !e.IsPerson,
			Documentation: e.Description,
		}
	}
	return out, nil
}
