package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"

	"taxlab-hq/ledger/pkg/engine"
	"taxlab-hq/ledger/pkg/patch"
)

// earningsStep is the earnings increase marginal tax rates are measured over.
const earningsStep = 100

// Change compares one quantity before and after a reform.
type Change struct {
	Old        float64 `json:"old"`
	New        float64 `json:"new"`
	Difference float64 `json:"difference"`
}

// MarginalRate is the first earner's effective marginal tax rate.
type MarginalRate struct {
	Old float64 `json:"old"`
	New float64 `json:"new"`
}

type householdDescription struct {
	People    map[string]map[string]any `json:"people"`
	Household map[string]any            `json:"household"`
}

func (r *Runtime) validateHousehold(ctx context.Context, p *Payload) error {
	if _, err := r.household(p); err != nil {
		return err
	}
	_, err := r.Compile(ctx, p)
	return err
}

// household decodes the payload's household description into the data of a
// one-household simulation.
func (r *Runtime) household(p *Payload) (*engine.Data, error) {
	raw, ok := p.Get(HouseholdField)
	if !ok || raw == nil {
		return nil, &HouseholdError{Field: "", Err: ErrNoHousehold}
	}
	desc, err := decodeHousehold(raw)
	if err != nil {
		return nil, err
	}
	return r.householdData(desc)
}

func decodeHousehold(raw any) (*householdDescription, error) {
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case map[string]any:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return nil, &HouseholdError{Field: "", Err: err}
		}
	default:
		return nil, &HouseholdError{Field: "", Err: fmt.Errorf("expected an object, got %T", raw)}
	}
	var desc householdDescription
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, &HouseholdError{Field: "", Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	return &desc, nil
}

func (r *Runtime) householdData(desc *householdDescription) (*engine.Data, error) {
	if len(desc.People) == 0 {
		return nil, &HouseholdError{Field: "people", Err: ErrNoPeople}
	}
	res := r.results
	ids := slices.Sorted(maps.Keys(desc.People))

	data := &engine.Data{
		Year:            r.country.DatasetYear(),
		PersonHousehold: make([]int, len(ids)),
		Households:      1,
		Inputs:          make(map[string][]float64),
	}
	for name, v := range r.inputs {
		n := 1
		if v.Entity == res.Person {
			n = len(ids)
		}
		values := make([]float64, n)
		for i := range values {
			values[i] = v.Default
		}
		data.Inputs[name] = values
	}

	for i, id := range ids {
		for name, raw := range desc.People[id] {
			field := "people." + id + "." + name
			if err := r.setInput(data, res.Person, name, i, raw, field); err != nil {
				return nil, err
			}
		}
	}
	for name, raw := range desc.Household {
		if err := r.setInput(data, res.Household, name, 0, raw, "household."+name); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func (r *Runtime) setInput(data *engine.Data, entity, name string, index int, raw any, field string) error {
	v, ok := r.inputs[name]
	if !ok || v.Entity != entity {
		return &HouseholdError{Field: field, Err: ErrUnknownInput}
	}
	value, err := inputValue(raw)
	if err != nil {
		return &HouseholdError{Field: field, Err: err}
	}
	data.Inputs[name][index] = value
	return nil
}

func inputValue(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInputValue, v)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrInputValue, raw)
}

// HouseholdReform compares one household's finances under the baseline and
// the reform, and the marginal tax rate of its first person.
func (r *Runtime) HouseholdReform(ctx context.Context, p *Payload, logger *slog.Logger) (any, error) {
	data, err := r.household(p)
	if err != nil {
		return nil, err
	}
	bundle, err := r.Compile(ctx, p)
	if err != nil {
		return nil, err
	}

	bumped := withEarnings(data, r.results.Earnings, earningsStep)
	baseline, err := r.householdSimulation(bundle.BaselinePatches, data)
	if err != nil {
		return nil, err
	}
	reformed, err := r.householdSimulation(bundle.ReformPatches, data)
	if err != nil {
		return nil, err
	}

	res := r.results
	out := make(map[string]any)
	for _, name := range []string{res.NetIncome, res.HouseholdNetIncome, res.Tax, res.Benefits} {
		old, err := r.total(baseline, name)
		if err != nil {
			return nil, err
		}
		updated, err := r.total(reformed, name)
		if err != nil {
			return nil, err
		}
		out[name] = Change{Old: old, New: updated, Difference: updated - old}
	}

	if bumped != nil {
		var mtr MarginalRate
		if mtr.Old, err = r.marginalRate(bundle.BaselinePatches, baseline, bumped); err != nil {
			return nil, err
		}
		if mtr.New, err = r.marginalRate(bundle.ReformPatches, reformed, bumped); err != nil {
			return nil, err
		}
		out["marginal_tax_rate"] = mtr
	}
	logger.DebugContext(ctx, "household computed", "people", data.People(), "provisions", len(bundle.Provisions))
	return out, nil
}

func (r *Runtime) householdSimulation(patches []patch.Patch, data *engine.Data) (*engine.Simulation, error) {
	system, err := r.NewSystem(patches)
	if err != nil {
		return nil, err
	}
	return engine.NewSimulation(system, data)
}

func (r *Runtime) total(sim *engine.Simulation, name string) (float64, error) {
	values, err := sim.Calculate(name, r.period)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum, nil
}

// marginalRate is the share of an earnings increase lost to tax and
// withdrawn benefits.
func (r *Runtime) marginalRate(patches []patch.Patch, sim *engine.Simulation, bumped *engine.Data) (float64, error) {
	before, err := r.total(sim, r.results.HouseholdNetIncome)
	if err != nil {
		return 0, err
	}
	next, err := r.householdSimulation(patches, bumped)
	if err != nil {
		return 0, err
	}
	after, err := r.total(next, r.results.HouseholdNetIncome)
	if err != nil {
		return 0, err
	}
	return 1 - (after-before)/earningsStep, nil
}

// withEarnings returns a copy of data with the first person's earnings
// raised by step, or nil if the data has no earnings input.
func withEarnings(data *engine.Data, earnings string, step float64) *engine.Data {
	values, ok := data.Inputs[earnings]
	if !ok || len(values) == 0 {
		return nil
	}
	out := *data
	out.Inputs = maps.Clone(data.Inputs)
	raised := slices.Clone(values)
	raised[0] += step
	out.Inputs[earnings] = raised
	return &out
}
