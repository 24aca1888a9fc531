package catalog

import (
	"fmt"
	"math"
	"strings"
	"time"

	"taxlab-hq/ledger/pkg/engine"
)

// Metadata keys read from the parameter tree.
const (
	metaName           = "name"
	metaLabel          = "label"
	metaUnit           = "unit"
	metaPeriod         = "period"
	metaValueType      = "value_type"
	metaVariable       = "variable"
	metaMin            = "min"
	metaMax            = "max"
	metaPossibleValues = "possible_values"
	metaReference      = "reference"
	metaBreakdown      = "breakdown"
	metaHidden         = "hidden"
)

// Build walks the parameter tree of system and returns its levers with values
// read at asOf. Items that cannot be adjusted as a single value are skipped.
func Build(system *engine.System, asOf time.Time) *Catalog {
	c := newCatalog(asOf)
	overrides := breakdownOverrides(system.Parameters)

	for _, item := range system.Parameters.Descendants() {
		switch it := item.(type) {
		case *engine.Parameter:
			meta := it.Metadata
			if o, ok := overrides[it.Name()]; ok {
				meta = o.meta
			}
			if l, ok := parameterLever(it, meta, asOf); ok {
				if o, ok := overrides[it.Name()]; ok {
					l.BreakdownParts = o.parts
				}
				c.add(l)
			}
		case *engine.Scale:
			for i, b := range it.Brackets {
				for _, component := range engine.BracketComponents {
					p, ok := b.Component(component)
					if !ok {
						continue
					}
					if l, ok := componentLever(it, p, i, component, asOf); ok {
						c.add(l)
					}
				}
			}
		}
	}
	return c
}

func parameterLever(p *engine.Parameter, meta engine.Metadata, asOf time.Time) (*Lever, bool) {
	if meta.Bool(metaHidden) {
		return nil, false
	}
	value := p.At(asOf)
	valueType, ok := valueTypeOf(meta, value)
	if !ok {
		return nil, false
	}

	l := &Lever{
		Name:           nameOr(meta, p.Name()),
		Label:          labelOr(meta, p.Name()),
		Description:    p.Description,
		Kind:           KindParametric,
		Path:           p.Name(),
		ValueType:      valueType,
		Unit:           meta.String(metaUnit),
		Period:         meta.String(metaPeriod),
		Value:          renderValue(value),
		Min:            floatPtr(meta, metaMin),
		Max:            floatPtr(meta, metaMax),
		PossibleValues: meta[metaPossibleValues],
		Reference:      references(meta[metaReference]),
	}
	if l.Unit == UnitAbolition {
		if vars := variables(meta[metaVariable]); len(vars) > 0 {
			l.Kind = KindAbolition
			l.Variables = vars
		}
	}
	return l, true
}

func componentLever(s *engine.Scale, p *engine.Parameter, index int, component string, asOf time.Time) (*Lever, bool) {
	meta := p.Metadata
	if s.Metadata.Bool(metaHidden) || meta.Bool(metaHidden) {
		return nil, false
	}
	value := p.At(asOf)
	valueType, ok := valueTypeOf(meta, value)
	if !ok {
		return nil, false
	}

	name := meta.String(metaName)
	if name == "" {
		name = fmt.Sprintf("%s_%d_%s", nameOr(s.Metadata, s.Name()), index+1, component)
	}
	label := meta.String(metaLabel)
	if label == "" {
		label = fmt.Sprintf("%s (%s %d)", labelOr(s.Metadata, s.Name()), component, index+1)
	}
	unit := meta.String(metaUnit)
	if unit == "" {
		unit = s.Metadata.String(component + "_unit")
	}
	period := meta.String(metaPeriod)
	if period == "" {
		period = s.Metadata.String(component + "_period")
	}
	if period == "" && component == engine.ComponentThreshold {
		period = "year"
	}

	return &Lever{
		Name:         name,
		Label:        label,
		Description:  s.Description,
		Kind:         KindScaleComponent,
		Path:         engine.ComponentPath(s.Name(), index, component),
		ValueType:    valueType,
		Unit:         unit,
		Period:       period,
		Value:        renderValue(value),
		Min:          floatPtr(meta, metaMin),
		Max:          floatPtr(meta, metaMax),
		Reference:    references(s.Metadata[metaReference]),
		BracketIndex: index,
		Component:    component,
	}, true
}

type override struct {
	meta  engine.Metadata
	parts []BreakdownPart
}

// breakdownOverrides computes the metadata a node marked with "breakdown"
// passes down to its descendant parameters. The tree is not modified.
func breakdownOverrides(root *engine.Node) map[string]override {
	out := make(map[string]override)
	for _, item := range root.Descendants() {
		node, ok := item.(*engine.Node)
		if !ok || node.Metadata[metaBreakdown] == nil {
			continue
		}
		stem := nameOr(node.Metadata, node.Name())
		label := labelOr(node.Metadata, node.Name())

		for _, d := range node.Descendants() {
			p, ok := d.(*engine.Parameter)
			if !ok {
				continue
			}
			rel := strings.Split(strings.TrimPrefix(p.Name(), node.Name()+"."), ".")

			meta := make(engine.Metadata, len(p.Metadata)+len(node.Metadata))
			for k, v := range p.Metadata {
				meta[k] = v
			}
			for k, v := range node.Metadata {
				if k != metaBreakdown {
					meta[k] = v
				}
			}

			parts := make([]BreakdownPart, len(rel))
			labels := make([]string, len(rel))
			for i, key := range rel {
				parts[i] = BreakdownPart{Key: key, Label: key}
				labels[i] = key
			}
			meta[metaName] = stem + "_" + strings.Join(rel, "_")
			meta[metaLabel] = label + " (" + strings.Join(labels, ", ") + ")"
			out[p.Name()] = override{meta: meta, parts: parts}
		}
	}
	return out
}

func valueTypeOf(meta engine.Metadata, value any) (ValueType, bool) {
	if vt := meta.String(metaValueType); vt != "" {
		switch ValueType(vt) {
		case ValueBool, ValueFloat, ValueInt, ValueEnum, ValueString:
			return ValueType(vt), true
		}
		return "", false
	}
	switch value.(type) {
	case bool:
		return ValueBool, true
	case float64:
		return ValueFloat, true
	case string:
		return ValueString, true
	}
	return "", false
}

func renderValue(v any) any {
	if f, ok := v.(float64); ok {
		switch {
		case math.IsInf(f, 1):
			return "inf"
		case math.IsInf(f, -1):
			return "-inf"
		}
	}
	return v
}

func nameOr(meta engine.Metadata, path string) string {
	if name := meta.String(metaName); name != "" {
		return name
	}
	return strings.ReplaceAll(path, ".", "_")
}

func labelOr(meta engine.Metadata, path string) string {
	if label := meta.String(metaLabel); label != "" {
		return label
	}
	return path
}

func floatPtr(meta engine.Metadata, key string) *float64 {
	f, ok := meta.Float(key)
	if !ok {
		return nil
	}
	return &f
}

func variables(raw any) []string {
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// references normalises reference metadata to a title -> href map. Entries
// may be plain URLs, {title, href} or {name, href} mappings, or a list of
// either.
func references(raw any) map[string]string {
	out := map[string]string{}
	var items []any
	switch v := raw.(type) {
	case nil:
		return out
	case []any:
		items = v
	default:
		items = []any{v}
	}
	for _, item := range items {
		switch ref := item.(type) {
		case string:
			out[ref] = ref
		case map[string]any:
			href, _ := ref["href"].(string)
			title, _ := ref["title"].(string)
			if name, ok := ref["name"].(string); ok {
				title = name
			}
			if title == "" {
				title = href
			}
			if href != "" {
				out[title] = href
			}
		}
	}
	return out
}
