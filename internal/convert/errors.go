package convert

import "errors"

// Domain errors for the convert package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidValue is returned when a value is outside the accepted
	// domain of a mapper, membership checker or unit converter.
	ErrInvalidValue = errors.New("convert: invalid value")

	// ErrOutOfRange is returned when a value falls outside every accepted range.
	ErrOutOfRange = errors.New("convert: out of range")

	// ErrBadSpec is returned when a converter spec has an unsupported type.
	// This is a programmer error raised at configuration time.
	ErrBadSpec = errors.New("convert: unsupported spec type")

	// ErrParse is returned when a string does not match a template pattern.
	ErrParse = errors.New("convert: parse failed")
)
