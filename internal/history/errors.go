package history

import "errors"

// Sentinel errors for history operations. Wrap with fmt.Errorf and %w,
// check with errors.Is.
var (
	// ErrInvalidEntry indicates a record is missing its instrument or
	// feat name.
	ErrInvalidEntry = errors.New("history entry missing instrument or feat")

	// ErrInvalidRetention indicates a non-positive retention duration
	// was passed to Prune.
	ErrInvalidRetention = errors.New("retention duration must be positive")

	// ErrClosed indicates an operation on a closed store.
	ErrClosed = errors.New("history store is closed")
)
