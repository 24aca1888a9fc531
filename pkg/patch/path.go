package patch

import (
	"fmt"
	"strconv"
	"strings"

	"taxlab-hq/ledger/pkg/engine"
)

// Reasons reported by PathError.
const (
	ReasonBracketSyntax = "invalid bracket syntax (should be e.g. tax.brackets[3].rate)"
	ReasonNotFound      = "could not find the parameter"
	ReasonBadIndex      = "bracket index out of range"
)

// Segment is one dot-separated part of a parameter path, optionally
// carrying a bracket index as in "bands[2]".
type Segment struct {
	Name     string
	Index    int
	HasIndex bool
}

// ParsePath splits a parameter path into segments.
func ParsePath(path string) ([]Segment, error) {
	if path == "" {
		return nil, &PathError{Path: path, Reason: ReasonNotFound}
	}
	parts := strings.Split(path, ".")
	segments := make([]Segment, 0, len(parts))
	for _, part := range parts {
		seg, err := parseSegment(part)
		if err != nil {
			return nil, &PathError{Path: path, Segment: part, Reason: err.Error()}
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

func parseSegment(part string) (Segment, error) {
	open := strings.IndexByte(part, '[')
	closing := strings.IndexByte(part, ']')
	if open < 0 && closing < 0 {
		if part == "" {
			return Segment{}, pathReason(ReasonNotFound)
		}
		return Segment{Name: part}, nil
	}
	if open <= 0 || closing != len(part)-1 || closing < open {
		return Segment{}, pathReason(ReasonBracketSyntax)
	}
	index, err := strconv.Atoi(part[open+1 : closing])
	if err != nil || index < 0 {
		return Segment{}, pathReason(ReasonBracketSyntax)
	}
	return Segment{Name: part[:open], Index: index, HasIndex: true}, nil
}

type pathReason string

func (r pathReason) Error() string { return string(r) }

// SplitBracket reports whether path addresses a scale bracket component and,
// if so, returns the scale path, the bracket index and the component name.
func SplitBracket(path string) (scale string, index int, component string, ok bool, err error) {
	segments, err := ParsePath(path)
	if err != nil {
		return "", 0, "", false, err
	}
	for i, seg := range segments {
		if !seg.HasIndex {
			continue
		}
		if i != len(segments)-2 {
			return "", 0, "", false, &PathError{Path: path, Segment: seg.Name, Reason: ReasonBracketSyntax}
		}
		names := make([]string, 0, i+1)
		for _, s := range segments[:i] {
			names = append(names, s.Name)
		}
		names = append(names, seg.Name)
		return strings.Join(names, "."), seg.Index, segments[i+1].Name, true, nil
	}
	return "", 0, "", false, nil
}

// Resolve walks path through the system's parameter tree. Bracket segments
// descend into a scale's bracket; the segment after them names a component.
func Resolve(system *engine.System, path string) (engine.Item, error) {
	segments, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	var current engine.Item = system.Parameters
	var bracket *engine.Bracket
	for _, seg := range segments {
		if bracket != nil {
			component, ok := bracket.Component(seg.Name)
			if !ok || seg.HasIndex {
				return nil, &PathError{Path: path, Segment: seg.Name, Reason: ReasonNotFound}
			}
			current, bracket = component, nil
			continue
		}

		node, ok := current.(*engine.Node)
		if !ok {
			return nil, &PathError{Path: path, Segment: seg.Name, Reason: ReasonNotFound}
		}
		child, ok := node.Child(seg.Name)
		if !ok {
			return nil, &PathError{Path: path, Segment: seg.Name, Reason: ReasonNotFound}
		}
		if !seg.HasIndex {
			current = child
			continue
		}

		scale, ok := child.(*engine.Scale)
		if !ok {
			return nil, &PathError{Path: path, Segment: seg.Name, Reason: ReasonBracketSyntax}
		}
		if seg.Index >= len(scale.Brackets) {
			return nil, &PathError{Path: path, Segment: seg.Name, Reason: ReasonBadIndex}
		}
		current, bracket = scale, scale.Brackets[seg.Index]
	}
	if bracket != nil {
		return nil, &PathError{Path: path, Segment: segments[len(segments)-1].Name, Reason: ReasonNotFound}
	}
	return current, nil
}

// ResolveParameter resolves path and requires it to address a parameter.
func ResolveParameter(system *engine.System, path string) (*engine.Parameter, error) {
	item, err := Resolve(system, path)
	if err != nil {
		return nil, err
	}
	p, ok := item.(*engine.Parameter)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotParameter, path)
	}
	return p, nil
}
