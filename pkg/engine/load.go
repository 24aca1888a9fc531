package engine

import (
	"fmt"
	"io/fs"
	"math"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Reserved keys of a parameter YAML mapping.
const (
	keyDescription = "description"
	keyMetadata    = "metadata"
	keyValues      = "values"
	keyBrackets    = "brackets"
	keyValue       = "value"
)

// LoadParameters parses a parameter tree from YAML. Top-level keys become
// children of the returned root node in document order.
func LoadParameters(data []byte) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Err: err}
	}
	root := NewNode("")
	if len(doc.Content) == 0 {
		return root, nil
	}
	if err := loadChildren(root, doc.Content[0]); err != nil {
		return nil, err
	}
	return root, nil
}

// LoadParameterDir loads every *.yaml file directly under dir into a single
// tree. Each file becomes a top-level child named after the file stem.
// Files are loaded in lexical order.
func LoadParameterDir(fsys fs.FS, dir string) (*Node, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, &LoadError{Path: dir, Err: err}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	root := NewNode("")
	for _, entry := range entries {
		ext := path.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), ext)
		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, &LoadError{Path: entry.Name(), Err: err}
		}
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, &LoadError{Path: entry.Name(), Err: err}
		}
		if len(doc.Content) == 0 {
			continue
		}
		item, err := loadItem(stem, doc.Content[0])
		if err != nil {
			return nil, err
		}
		root.AddChild(stem, item)
	}
	return root, nil
}

func loadChildren(parent *Node, mapping *yaml.Node) error {
	if mapping.Kind != yaml.MappingNode {
		return &LoadError{Path: parent.name, Err: fmt.Errorf("expected mapping, got %s", kindName(mapping.Kind))}
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i].Value
		switch key {
		case keyDescription:
			parent.Description = mapping.Content[i+1].Value
			continue
		case keyMetadata:
			meta, err := decodeMetadata(mapping.Content[i+1])
			if err != nil {
				return &LoadError{Path: parent.name, Err: err}
			}
			parent.Metadata = meta
			continue
		}
		item, err := loadItem(joinPath(parent.name, key), mapping.Content[i+1])
		if err != nil {
			return err
		}
		parent.AddChild(key, item)
	}
	return nil
}

func loadItem(name string, value *yaml.Node) (Item, error) {
	if value.Kind != yaml.MappingNode {
		return nil, &LoadError{Path: name, Err: fmt.Errorf("expected mapping, got %s", kindName(value.Kind))}
	}
	fields := mappingFields(value)

	switch {
	case fields[keyValues] != nil:
		return loadParameter(name, fields)
	case fields[keyBrackets] != nil:
		return loadScale(name, fields)
	}

	node := NewNode(name)
	if err := loadChildren(node, value); err != nil {
		return nil, err
	}
	return node, nil
}

func loadParameter(name string, fields map[string]*yaml.Node) (*Parameter, error) {
	p := NewParameter(name)
	if d := fields[keyDescription]; d != nil {
		p.Description = d.Value
	}
	if m := fields[keyMetadata]; m != nil {
		meta, err := decodeMetadata(m)
		if err != nil {
			return nil, &LoadError{Path: name, Err: err}
		}
		p.Metadata = meta
	}
	if err := loadValues(p, fields[keyValues]); err != nil {
		return nil, err
	}
	return p, nil
}

func loadValues(p *Parameter, values *yaml.Node) error {
	if values.Kind != yaml.MappingNode {
		return &LoadError{Path: p.name, Err: fmt.Errorf("values must be a date mapping")}
	}
	for i := 0; i+1 < len(values.Content); i += 2 {
		start, err := time.Parse(DateLayout, values.Content[i].Value)
		if err != nil {
			return &LoadError{Path: p.name, Err: fmt.Errorf("bad date %q: %w", values.Content[i].Value, err)}
		}
		raw := values.Content[i+1]
		// Dated entries may be written as {value: x} or as the bare value.
		if raw.Kind == yaml.MappingNode {
			if v := mappingFields(raw)[keyValue]; v != nil {
				raw = v
			}
		}
		v, err := decodeScalar(raw)
		if err != nil {
			return &LoadError{Path: p.name, Err: err}
		}
		p.values = append(p.values, valueAt{start: start, value: v})
	}
	sort.SliceStable(p.values, func(i, j int) bool {
		return p.values[i].start.Before(p.values[j].start)
	})
	return nil
}

func loadScale(name string, fields map[string]*yaml.Node) (*Scale, error) {
	s := NewScale(name)
	if d := fields[keyDescription]; d != nil {
		s.Description = d.Value
	}
	if m := fields[keyMetadata]; m != nil {
		meta, err := decodeMetadata(m)
		if err != nil {
			return nil, &LoadError{Path: name, Err: err}
		}
		s.Metadata = meta
	}

	brackets := fields[keyBrackets]
	if brackets.Kind != yaml.SequenceNode {
		return nil, &LoadError{Path: name, Err: fmt.Errorf("brackets must be a list")}
	}
	for _, raw := range brackets.Content {
		if raw.Kind != yaml.MappingNode {
			return nil, &LoadError{Path: name, Err: fmt.Errorf("bracket must be a mapping")}
		}
		components := make(map[string]*Parameter)
		for key, value := range mappingFields(raw) {
			if !isComponent(key) {
				continue
			}
			values := value
			if value.Kind == yaml.MappingNode {
				if inner := mappingFields(value)[keyValues]; inner != nil {
					values = inner
				}
			}
			p := NewParameter(name)
			if err := loadValues(p, values); err != nil {
				return nil, err
			}
			components[key] = p
		}
		s.AddBracket(components)
	}
	return s, nil
}

func isComponent(key string) bool {
	for _, c := range BracketComponents {
		if c == key {
			return true
		}
	}
	return false
}

func mappingFields(n *yaml.Node) map[string]*yaml.Node {
	fields := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		fields[n.Content[i].Value] = n.Content[i+1]
	}
	return fields
}

func decodeScalar(n *yaml.Node) (any, error) {
	if n.Kind != yaml.ScalarNode {
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
	switch n.Tag {
	case "!!null":
		return nil, nil
	case "!!bool":
		return strconv.ParseBool(n.Value)
	case "!!int", "!!float":
		switch strings.ToLower(n.Value) {
		case ".inf", "+.inf":
			return math.Inf(1), nil
		case "-.inf":
			return math.Inf(-1), nil
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(n.Value, "_", ""), 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q: %w", n.Value, err)
		}
		return f, nil
	}
	return n.Value, nil
}

func decodeMetadata(n *yaml.Node) (Metadata, error) {
	var raw map[string]any
	if err := n.Decode(&raw); err != nil {
		return nil, err
	}
	meta := make(Metadata, len(raw))
	for k, v := range raw {
		meta[k] = normalizeValue(v)
	}
	return meta, nil
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "document"
}
