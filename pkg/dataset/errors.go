package dataset

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no dataset is stored for a year.
	ErrNotFound = errors.New("dataset not found")

	// ErrCorrupt is returned when a stored dataset fails its checksum or
	// cannot be decoded.
	ErrCorrupt = errors.New("dataset corrupt")
)

// StorageError represents an error from the dataset store.
type StorageError struct {
	Operation string
	Year      int
	Cause     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("dataset storage error [operation=%s, year=%d]: %v", e.Operation, e.Year, e.Cause)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

func newStorageError(operation string, year int, cause error) *StorageError {
	return &StorageError{Operation: operation, Year: year, Cause: cause}
}

// LoadError is returned when a dataset could not be produced even after a
// re-fetch.
type LoadError struct {
	Year  int
	Cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("dataset %d unavailable: %v", e.Year, e.Cause)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}
