package depgraph

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCycle is returned when the dependency graph contains a true cycle.
var ErrCycle = errors.New("depgraph: dependency cycle detected")

// Set is a collection of member names.
type Set map[string]struct{}

// NewSet builds a Set from its members.
func NewSet(members ...string) Set {
	s := make(Set, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

// Contains reports whether the set holds the given name.
func (s Set) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the members in lexical order, for deterministic output.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Solve levels a dependency graph.
//
// dependencies maps each member name to the set of names it depends on;
// members lists the universe of names so disconnected members are not
// dropped. The result is an ordered list of disjoint sets: every dependency
// of a member in level k appears in some level before k.
//
// Each iteration extracts the names whose remaining dependency set is empty
// (or that appear only as dependencies of others), emits them as the next
// level, and removes them from every remaining dependency set. An iteration
// that makes no progress means a cycle; Solve reports it instead of looping.
func Solve(dependencies map[string]Set, members Set) ([]Set, error) {
	remaining := make(map[string]Set, len(dependencies)+len(members))
	for name, deps := range dependencies {
		copied := make(Set, len(deps))
		for d := range deps {
			copied[d] = struct{}{}
		}
		remaining[name] = copied
	}
	for name := range members {
		if _, ok := remaining[name]; !ok {
			remaining[name] = Set{}
		}
	}

	var levels []Set
	for len(remaining) > 0 {
		level := Set{}

		// Names referenced as dependencies but absent as keys are ready.
		for _, deps := range remaining {
			for d := range deps {
				if _, ok := remaining[d]; !ok {
					level[d] = struct{}{}
				}
			}
		}
		// As are names with no remaining dependency.
		for name, deps := range remaining {
			if len(deps) == 0 {
				level[name] = struct{}{}
			}
		}

		if len(level) == 0 {
			return nil, fmt.Errorf("%w: unresolved members %v", ErrCycle, Set(keysOf(remaining)).Sorted())
		}

		levels = append(levels, level)

		next := make(map[string]Set, len(remaining))
		for name, deps := range remaining {
			if level.Contains(name) {
				continue
			}
			for d := range level {
				delete(deps, d)
			}
			next[name] = deps
		}
		remaining = next
	}

	return levels, nil
}

func keysOf(m map[string]Set) Set {
	out := make(Set, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}
