package modifier

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownModifier is returned when reading or writing a key the owning
// wrapper does not declare. This is a programmer error raised at
// configuration time.
var ErrUnknownModifier = errors.New("modifier: unknown modifier")

// Key names one modifier slot in a store.
type Key string

// Modifier keys shared by feats and actions.
const (
	Values   Key = "values"
	Units    Key = "units"
	Limits   Key = "limits"
	GetFuncs Key = "get_funcs"
	SetFuncs Key = "set_funcs"
	Funcs    Key = "funcs"
)

// Owner is the wrapper that declared the store. OnModifierChange fires after
// every successful Set so the owner can rebuild derived pipelines; instance
// is nil when the class-level default changed.
type Owner interface {
	Name() string
	OnModifierChange(instance any, key Key, value any)
}

// Store holds class-level defaults and per-instance overrides for a fixed
// set of modifier keys. All methods are safe for concurrent use.
type Store struct {
	owner Owner
	keys  map[Key]struct{}

	mu        sync.RWMutex
	defaults  map[Key]any
	overrides map[any]map[Key]any
}

// NewStore creates a store owned by the given wrapper, recognising exactly
// the listed keys. Defaults start as nil for every key.
func NewStore(owner Owner, keys ...Key) *Store {
	ks := make(map[Key]struct{}, len(keys))
	defaults := make(map[Key]any, len(keys))
	for _, k := range keys {
		ks[k] = struct{}{}
		defaults[k] = nil
	}
	return &Store{
		owner:     owner,
		keys:      ks,
		defaults:  defaults,
		overrides: make(map[any]map[Key]any),
	}
}

// Keys returns the set of recognised modifier keys.
func (s *Store) Keys() []Key {
	out := make([]Key, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	return out
}

func (s *Store) check(key Key) error {
	if _, ok := s.keys[key]; !ok {
		return fmt.Errorf("%w: %q is not a valid modifier of %s", ErrUnknownModifier, key, s.owner.Name())
	}
	return nil
}

// Get returns the effective value of a modifier for an instance: the
// instance override when present, the class default otherwise. A nil
// instance reads the class default directly.
func (s *Store) Get(instance any, key Key) (any, error) {
	if err := s.check(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if instance != nil {
		if ov, ok := s.overrides[instance]; ok {
			if v, ok := ov[key]; ok {
				return v, nil
			}
		}
	}
	return s.defaults[key], nil
}

// Set writes a modifier and notifies the owner. A nil instance updates the
// class-level default; otherwise a per-instance override is created or
// updated, leaving other instances untouched.
func (s *Store) Set(instance any, key Key, value any) error {
	if err := s.check(key); err != nil {
		return err
	}

	s.mu.Lock()
	if instance == nil {
		s.defaults[key] = value
	} else {
		ov, ok := s.overrides[instance]
		if !ok {
			ov = make(map[Key]any)
			s.overrides[instance] = ov
		}
		ov[key] = value
	}
	s.mu.Unlock()

	s.owner.OnModifierChange(instance, key, value)
	return nil
}

// Iterate returns all effective key/value pairs for an instance, overrides
// merged over defaults.
func (s *Store) Iterate(instance any) map[Key]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[Key]any, len(s.defaults))
	for k, v := range s.defaults {
		out[k] = v
	}
	if instance != nil {
		if ov, ok := s.overrides[instance]; ok {
			for k, v := range ov {
				out[k] = v
			}
		}
	}
	return out
}

// HasOverrides reports whether the instance carries any override.
func (s *Store) HasOverrides(instance any) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.overrides[instance]) > 0
}

// Instances returns every instance that currently holds at least one
// override. Order is unspecified.
func (s *Store) Instances() []any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]any, 0, len(s.overrides))
	for inst := range s.overrides {
		if len(s.overrides[inst]) > 0 {
			out = append(out, inst)
		}
	}
	return out
}

// DropInstance removes every override held for an instance. Called when the
// owning device instance is destroyed.
func (s *Store) DropInstance(instance any) {
	s.mu.Lock()
	delete(s.overrides, instance)
	s.mu.Unlock()
}
