package temporal

import (
	"errors"
	"fmt"
)

// Temporal type names accepted in stream configuration.
const (
	TypeElapsedSeconds = "elapsed_seconds"
	TypeTimestamp      = "timestamp"
)

// ErrUnsupportedType indicates an unknown temporal type name.
var ErrUnsupportedType = errors.New("unsupported temporal type")

// Validate reports whether name is a known temporal type.
func Validate(name string) bool {
	switch name {
	case TypeElapsedSeconds, TypeTimestamp:
		return true
	}
	return false
}

// Create returns a new Column for the named temporal type. Callers
// should Validate first; an unknown name never silently succeeds.
func Create(name string) (Column, error) {
	switch name {
	case TypeElapsedSeconds:
		return ElapsedSeconds{}, nil
	case TypeTimestamp:
		return Timestamp{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
}
