package instrument

import "errors"

// Domain errors for the instrument package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, instrument.ErrInvalidKey) {
//	    // handle bad dict-feat key
//	}
var (
	// ErrUnknownFeat is returned when a feat name is not registered.
	ErrUnknownFeat = errors.New("instrument: unknown feat")

	// ErrUnknownAction is returned when an action name is not registered.
	ErrUnknownAction = errors.New("instrument: unknown action")

	// ErrDuplicateName is returned when registering a feat or action whose
	// name is already taken in the class.
	ErrDuplicateName = errors.New("instrument: name already registered")

	// ErrNotReadable is returned when getting a feat that has no getter.
	ErrNotReadable = errors.New("instrument: feat is not readable")

	// ErrNotWritable is returned when setting a feat that has no setter.
	ErrNotWritable = errors.New("instrument: feat is not writable")

	// ErrInvalidKey is returned when a dict-feat key is outside the
	// declared key set. The underlying device is never touched.
	ErrInvalidKey = errors.New("instrument: invalid key")

	// ErrBadArguments is returned when an action is called with the wrong
	// number of arguments.
	ErrBadArguments = errors.New("instrument: bad arguments")
)
