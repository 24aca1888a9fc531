package patch

import (
	"errors"
	"fmt"
)

var (
	// ErrNotParameter is returned when a path resolves to a node or scale
	// where a parameter was expected.
	ErrNotParameter = errors.New("path does not address a parameter")

	// ErrNotScale is returned when a scale-component patch addresses
	// something other than a scale.
	ErrNotScale = errors.New("path does not address a scale")
)

// PathError reports a parameter path that cannot be parsed or resolved.
// Segment names the offending part of the path.
type PathError struct {
	Path    string
	Segment string
	Reason  string
}

func (e *PathError) Error() string {
	if e.Segment == "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Path)
	}
	return fmt.Sprintf("%s (failed at %s in %s)", e.Reason, e.Segment, e.Path)
}

// ApplyError wraps the failure of one patch in a list.
type ApplyError struct {
	Index int
	Patch Patch
	Err   error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply patch %d (%s): %v", e.Index, e.Patch, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}
