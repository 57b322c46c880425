package flock

import "errors"

var (
	// ErrDuplicateMember is returned by Add when the name is already
	// registered.
	ErrDuplicateMember = errors.New("flock: duplicate member")

	// ErrUnknownDependency is returned by Add when a named dependency has
	// not been registered yet.
	ErrUnknownDependency = errors.New("flock: unknown dependency")

	// ErrUnknownMember is returned when an operation names a member that
	// was never added.
	ErrUnknownMember = errors.New("flock: unknown member")

	// ErrSelfDependency is returned by Add when a member depends on itself.
	ErrSelfDependency = errors.New("flock: member depends on itself")

	// ErrDependencyFailed marks a member that was skipped because something
	// it depends on failed to initialise.
	ErrDependencyFailed = errors.New("flock: dependency failed")

	// ErrNotReady is returned when finalising a member that never became
	// ready.
	ErrNotReady = errors.New("flock: member not ready")
)
