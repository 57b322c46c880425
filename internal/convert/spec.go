package convert

import (
	"fmt"

	"github.com/lantzproject/lantz-core/internal/pipeline"
)

// Logger is the minimal logging interface used by converters that may warn
// (the unit-magnitude converter's dimensionless policy).
type Logger interface {
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// asStep recognises the spec forms shared by every constructor: nil means
// identity, and a ready-made step or bare function is used as-is.
func asStep(spec any) (pipeline.Step, bool) {
	switch s := spec.(type) {
	case nil:
		return pipeline.Identity(), true
	case pipeline.Step:
		return s, true
	case func(any) (any, error):
		return pipeline.Step{Name: "custom", Apply: s}, true
	}
	return pipeline.Step{}, false
}

// perComponent builds one tuple-aware step from a list of per-component
// specs. Element i of an incoming tuple is transformed by the converter
// built from spec i; nil specs pass their element through unchanged.
func perComponent(kind string, specs []any, build func(any) (pipeline.Step, error)) (pipeline.Step, error) {
	steps := make([]pipeline.Step, len(specs))
	for i, s := range specs {
		step, err := build(s)
		if err != nil {
			return pipeline.Step{}, fmt.Errorf("component %d: %w", i, err)
		}
		steps[i] = step
	}

	return pipeline.Step{
		Name:       kind + " (per component)",
		TupleAware: true,
		Apply: func(value any) (any, error) {
			tuple, ok := value.(pipeline.Tuple)
			if !ok {
				return nil, fmt.Errorf("%w: %s expects a tuple, got %T",
					ErrInvalidValue, kind, value)
			}
			if len(tuple) != len(steps) {
				return nil, fmt.Errorf("%w: %s expects %d components, got %d",
					ErrInvalidValue, kind, len(steps), len(tuple))
			}
			out := make(pipeline.Tuple, len(tuple))
			for i, v := range tuple {
				converted, err := steps[i].Apply(v)
				if err != nil {
					return nil, err
				}
				out[i] = converted
			}
			return out, nil
		},
	}, nil
}

// toFloat64 widens the numeric types a device value may arrive as.
func toFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}
