package units

import "errors"

// Domain errors for the units package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrUnknownUnit is returned when a unit symbol is not in the table.
	ErrUnknownUnit = errors.New("units: unknown unit")

	// ErrIncompatible is returned when converting between different dimensions.
	ErrIncompatible = errors.New("units: incompatible dimensions")
)
