package reform

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownLever is returned for a lever name that is neither in the
	// catalog nor reserved.
	ErrUnknownLever = errors.New("unknown lever")

	// ErrInvalidValue is returned when a value cannot be decoded to the
	// lever's value type.
	ErrInvalidValue = errors.New("invalid lever value")

	// ErrInvalidDate is returned for an unparsable policy date.
	ErrInvalidDate = errors.New("invalid policy date")
)

// LeverError is a client error attributable to one lever of a request.
type LeverError struct {
	Lever string
	Value any
	Err   error
}

func (e *LeverError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("lever %s: %v", e.Lever, e.Err)
	}
	return fmt.Sprintf("lever %s=%v: %v", e.Lever, e.Value, e.Err)
}

func (e *LeverError) Unwrap() error {
	return e.Err
}
