package reform

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"taxlab-hq/ledger/pkg/catalog"
	"taxlab-hq/ledger/pkg/engine"
	"taxlab-hq/ledger/pkg/patch"
)

// BaselinePrefix marks a lever that applies to the counterfactual baseline.
const BaselinePrefix = "baseline_"

// Policy date levers.
const (
	PolicyDate         = "policy_date"
	BaselinePolicyDate = "baseline_policy_date"
)

// reserved names never become patches.
var reserved = map[string]bool{
	"household":                 true,
	"country_specific":          true,
	"baseline_country_specific": true,
	"state_specific":            true,
	"baseline_state_specific":   true,
	PolicyDate:                  true,
	BaselinePolicyDate:          true,
}

// IsReserved reports whether name is excluded from patch generation.
func IsReserved(name string) bool {
	return reserved[name]
}

// LeverValue is one caller-supplied lever setting.
type LeverValue struct {
	Name  string
	Value any
}

// Provision is one reform-scoped lever's patch, the unit of marginal
// attribution.
type Provision struct {
	Name        string
	Label       string
	Description string
	Value       any
	Patch       patch.Patch
}

// Bundle is the pair of patch lists compiled from one request.
// ReformPatches always begins with BaselinePatches.
type Bundle struct {
	BaselinePatches []patch.Patch
	ReformPatches   []patch.Patch

	// BaselineDivergesFromDefault is set when the baseline differs from the
	// process-level default baseline.
	BaselineDivergesFromDefault bool

	Provisions []Provision
	PolicyDate time.Time
}

// Compile translates caller lever values into a reform bundle. Reserved
// names are skipped; any unknown lever or undecodable value fails the whole
// compile. now is used as the policy date when none is supplied.
func Compile(levers []LeverValue, cat *catalog.Catalog, defaults []patch.Patch, now time.Time) (*Bundle, error) {
	policyDate, dated, err := policyDateOf(levers, now)
	if err != nil {
		return nil, err
	}

	var baselineScoped, reformScoped []patch.Patch
	var provisions []Provision
	diverges := dated

	for _, lv := range levers {
		if reserved[lv.Name] {
			continue
		}
		name, isBaseline := strings.CutPrefix(lv.Name, BaselinePrefix)

		lever, ok := cat.Lookup(name)
		if !ok {
			return nil, &LeverError{Lever: lv.Name, Err: ErrUnknownLever}
		}
		value, err := Coerce(lever, lv.Value)
		if err != nil {
			return nil, &LeverError{Lever: lv.Name, Value: lv.Value, Err: err}
		}
		p, err := leverPatch(lever, value, patch.Window(policyDate))
		if err != nil {
			return nil, &LeverError{Lever: lv.Name, Value: lv.Value, Err: err}
		}

		if isBaseline {
			baselineScoped = append(baselineScoped, p)
			diverges = true
			continue
		}
		reformScoped = append(reformScoped, p)
		provisions = append(provisions, Provision{
			Name:        name,
			Label:       Label(lever, value),
			Description: Summary(lever, value),
			Value:       value,
			Patch:       p,
		})
	}

	baseline := patch.Concat(defaults, []patch.Patch{patch.FreezeParameters{Date: policyDate}}, baselineScoped)
	return &Bundle{
		BaselinePatches:             baseline,
		ReformPatches:               patch.Concat(baseline, reformScoped),
		BaselineDivergesFromDefault: diverges,
		Provisions:                  provisions,
		PolicyDate:                  policyDate,
	}, nil
}

func leverPatch(lever *catalog.Lever, value any, window engine.Period) (patch.Patch, error) {
	if lever.Kind == catalog.KindAbolition {
		enabled, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: abolition levers take a boolean", ErrInvalidValue)
		}
		return patch.AbolitionToggle{Variables: lever.Variables, Enabled: enabled}, nil
	}

	scale, index, component, isBracket, err := patch.SplitBracket(lever.Path)
	if err != nil {
		return nil, err
	}
	if isBracket {
		return patch.ScaleComponentSet{
			Path:      scale,
			Index:     index,
			Component: component,
			Value:     value,
			Period:    window,
		}, nil
	}
	return patch.ParametricSet{Path: lever.Path, Value: value, Period: window}, nil
}

// policyDateOf returns the date parameters are frozen at and whether the
// request supplied one. baseline_policy_date takes precedence.
func policyDateOf(levers []LeverValue, now time.Time) (time.Time, bool, error) {
	var raw any
	var name string
	for _, lv := range levers {
		switch lv.Name {
		case BaselinePolicyDate:
			raw, name = lv.Value, lv.Name
		case PolicyDate:
			if name != BaselinePolicyDate {
				raw, name = lv.Value, lv.Name
			}
		}
	}
	if name == "" {
		return now, false, nil
	}
	date, err := ParseDate(raw)
	if err != nil {
		return time.Time{}, false, &LeverError{Lever: name, Value: raw, Err: err}
	}
	return date, true, nil
}

// ParseDate decodes a policy date given as YYYYMMDD (string or number) or
// YYYY-MM-DD.
func ParseDate(raw any) (time.Time, error) {
	raw, err := first(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	var s string
	switch v := raw.(type) {
	case string:
		s = strings.TrimSpace(v)
	case float64:
		s = strconv.FormatFloat(v, 'f', 0, 64)
	case int:
		s = strconv.Itoa(v)
	default:
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidDate, raw)
	}
	for _, layout := range []string{"20060102", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}
