// Package modifier implements per-entity configuration stores for feats and
// actions.
//
// A Store holds a class-level default value for each recognised modifier key
// (values, units, limits, custom transform functions) and an override map
// keyed by owning-instance identity. Reading a modifier for an instance
// returns the override when present, the class default otherwise. Writing a
// modifier creates or updates the override and notifies the owning wrapper,
// which rebuilds its pipelines scoped to that instance (or to the class when
// written with a nil instance).
//
// The set of recognised keys is fixed when the store is created; writes and
// reads of unknown keys fail with ErrUnknownModifier naming the key and the
// owning entity.
package modifier
