package convert

import (
	"fmt"
	"sort"

	"github.com/lantzproject/lantz-core/internal/pipeline"
)

// Mapping relates external representations to internal (device) values.
type Mapping map[any]any

// Set restricts values to a fixed membership without translating them.
type Set map[any]struct{}

// NewSet builds a Set from its members.
func NewSet(members ...any) Set {
	s := make(Set, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

// sortedKeys renders map keys deterministically for error messages.
func sortedKeys[K comparable, V any](m map[K]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, fmt.Sprintf("%v", k))
	}
	sort.Strings(keys)
	return keys
}

// Mapper returns a step that looks a value up in the mapping.
// Keys absent from the mapping fail with an error naming the valid key set.
func Mapper(m Mapping) pipeline.Step {
	return pipeline.Step{
		Name: "mapper",
		Apply: func(value any) (any, error) {
			mapped, ok := m[value]
			if !ok {
				return nil, fmt.Errorf("%w: %v not in %v", ErrInvalidValue, value, sortedKeys(m))
			}
			return mapped, nil
		},
	}
}

// ReverseMapper returns the inverse lookup for the same mapping, used to
// convert a raw device reading back to its external representation.
func ReverseMapper(m Mapping) pipeline.Step {
	reversed := make(Mapping, len(m))
	for k, v := range m {
		reversed[v] = k
	}
	step := Mapper(reversed)
	step.Name = "reverse mapper"
	return step
}

// Membership returns a step that passes a value through unchanged when it is
// in the set and fails otherwise.
func Membership(s Set) pipeline.Step {
	return pipeline.Step{
		Name: "membership",
		Apply: func(value any) (any, error) {
			if _, ok := s[value]; !ok {
				return nil, fmt.Errorf("%w: %v not in %v", ErrInvalidValue, value, sortedKeys(s))
			}
			return value, nil
		},
	}
}

// ValuesConverter builds the forward (set-direction) converter for a values
// spec: a Mapping translates, a Set checks membership.
func ValuesConverter(spec any) (pipeline.Step, error) {
	if step, ok := asStep(spec); ok {
		return step, nil
	}
	switch s := spec.(type) {
	case Mapping:
		return Mapper(s), nil
	case Set:
		return Membership(s), nil
	case []any:
		return perComponent("values", s, ValuesConverter)
	}
	return pipeline.Step{}, fmt.Errorf("%w: values spec must be a Mapping, Set or per-component list, not %T",
		ErrBadSpec, spec)
}

// ReverseValuesConverter builds the reverse (get-direction) converter for a
// values spec: a Mapping is inverted, a Set still checks membership.
func ReverseValuesConverter(spec any) (pipeline.Step, error) {
	if step, ok := asStep(spec); ok {
		return step, nil
	}
	switch s := spec.(type) {
	case Mapping:
		return ReverseMapper(s), nil
	case Set:
		return Membership(s), nil
	case []any:
		return perComponent("values", s, ReverseValuesConverter)
	}
	return pipeline.Step{}, fmt.Errorf("%w: values spec must be a Mapping, Set or per-component list, not %T",
		ErrBadSpec, spec)
}
