package convert

import (
	"fmt"
	"math"

	"github.com/lantzproject/lantz-core/internal/pipeline"
)

// Range is an inclusive numeric range with an optional grid step.
// A zero Step means values are accepted anywhere in [Low, High]; a positive
// Step snaps accepted values to the grid Low + n*Step.
type Range struct {
	Low  float64
	High float64
	Step float64
}

// contains reports whether v lies in [Low, High].
func (r Range) contains(v float64) bool {
	return r.Low <= v && v <= r.High
}

// coerce snaps v to the nearest grid point, or returns it unchanged when the
// range has no step.
func (r Range) coerce(v float64) float64 {
	if r.Step == 0 {
		return v
	}
	return r.Low + math.Round((v-r.Low)/r.Step)*r.Step
}

// CheckRange returns a step that fails for values outside [Low, High] and
// snaps in-range values to the grid when a step is set.
//
// The step is idempotent: a valid, already-snapped value passes unchanged.
func CheckRange(r Range) pipeline.Step {
	return pipeline.Step{
		Name: "range checker",
		Apply: func(value any) (any, error) {
			v, ok := toFloat64(value)
			if !ok {
				return nil, fmt.Errorf("%w: %v (%T) is not numeric", ErrInvalidValue, value, value)
			}
			if !r.contains(v) {
				return nil, fmt.Errorf("%w: %v not in range (%v, %v)", ErrOutOfRange, value, r.Low, r.High)
			}
			if r.Step == 0 {
				return value, nil
			}
			return r.coerce(v), nil
		},
	}
}

// CheckRanges returns a step accepting values that fall in any one of the
// given disjoint ranges; the value is coerced against whichever range it
// fell into.
func CheckRanges(ranges []Range) pipeline.Step {
	return pipeline.Step{
		Name: "multi-range checker",
		Apply: func(value any) (any, error) {
			v, ok := toFloat64(value)
			if !ok {
				return nil, fmt.Errorf("%w: %v (%T) is not numeric", ErrInvalidValue, value, value)
			}
			for _, r := range ranges {
				if r.contains(v) {
					if r.Step == 0 {
						return value, nil
					}
					return r.coerce(v), nil
				}
			}
			return nil, fmt.Errorf("%w: %v not in any of %d ranges", ErrOutOfRange, value, len(ranges))
		},
	}
}

// LimitsConverter builds a range/grid checker from a limits spec: a single
// Range, a []Range of disjoint alternatives, or a per-component list.
func LimitsConverter(spec any) (pipeline.Step, error) {
	if step, ok := asStep(spec); ok {
		return step, nil
	}
	switch s := spec.(type) {
	case Range:
		return CheckRange(s), nil
	case []Range:
		return CheckRanges(s), nil
	case []any:
		return perComponent("limits", s, LimitsConverter)
	}
	return pipeline.Step{}, fmt.Errorf("%w: limits spec must be a Range, []Range or per-component list, not %T",
		ErrBadSpec, spec)
}
