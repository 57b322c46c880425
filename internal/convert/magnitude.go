package convert

import (
	"fmt"

	"github.com/lantzproject/lantz-core/internal/pipeline"
	"github.com/lantzproject/lantz-core/internal/units"
)

// Policy selects how a unit converter reacts to a questionable input.
type Policy int

const (
	// Raise fails the conversion with an error.
	Raise Policy = iota

	// Warn logs a warning and proceeds.
	Warn

	// Ignore proceeds silently.
	Ignore
)

// unitOptions carries the configurable behaviour of the unit converters.
type unitOptions struct {
	onDimensionless Policy
	onIncompatible  Policy
	logger          Logger
}

// Option configures a unit converter.
type Option func(*unitOptions)

// OnDimensionless sets the policy applied when a bare number is given where
// a quantity is expected. The default is Warn.
func OnDimensionless(p Policy) Option {
	return func(o *unitOptions) { o.onDimensionless = p }
}

// OnIncompatible sets the policy applied when the source unit cannot be
// converted to the target unit. The default is Raise.
func OnIncompatible(p Policy) Option {
	return func(o *unitOptions) { o.onIncompatible = p }
}

// WithLogger sets the logger that receives Warn-policy messages.
func WithLogger(l Logger) Option {
	return func(o *unitOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildUnitOptions(opts []Option) unitOptions {
	o := unitOptions{
		onDimensionless: Warn,
		onIncompatible:  Raise,
		logger:          noopLogger{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// convertQuantity converts a known quantity, applying the incompatible policy.
func convertQuantity(q units.Quantity, unit string, o unitOptions) (units.Quantity, error) {
	converted, err := q.To(unit)
	if err == nil {
		return converted, nil
	}
	switch o.onIncompatible {
	case Raise:
		return units.Quantity{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	case Warn:
		o.logger.Warn("unable to convert, ignoring source units",
			"value", q.String(), "target", unit)
	}
	return units.New(q.Magnitude(), unit), nil
}

// ToMagnitude returns a step that converts an incoming quantity to a bare
// number in the target unit.
//
// A dimensionless input (a plain number) assumes the target unit; the
// OnDimensionless policy decides whether that warns (default), is silent,
// or fails. An incompatible source unit fails by default; OnIncompatible can
// soften that to warn-and-coerce or silent coercion.
func ToMagnitude(unit string, opts ...Option) pipeline.Step {
	o := buildUnitOptions(opts)
	return pipeline.Step{
		Name: "to magnitude " + unit,
		Apply: func(value any) (any, error) {
			if q, ok := value.(units.Quantity); ok && !q.Dimensionless() {
				converted, err := convertQuantity(q, unit, o)
				if err != nil {
					return nil, err
				}
				return converted.Magnitude(), nil
			}

			f, err := dimensionlessMagnitude(value)
			if err != nil {
				return nil, err
			}
			if unit != "" {
				switch o.onDimensionless {
				case Raise:
					return nil, fmt.Errorf("%w: unable to convert dimensionless %v to %s",
						ErrInvalidValue, value, unit)
				case Warn:
					o.logger.Warn("assuming units for dimensionless value",
						"value", value, "units", unit)
				}
			}
			return f, nil
		},
	}
}

// ToQuantity returns a step that converts an incoming value to a quantity in
// the target unit. Dimensionless inputs silently assume the target unit.
func ToQuantity(unit string, opts ...Option) pipeline.Step {
	o := buildUnitOptions(opts)
	return pipeline.Step{
		Name: "to quantity " + unit,
		Apply: func(value any) (any, error) {
			if q, ok := value.(units.Quantity); ok && !q.Dimensionless() {
				return convertQuantity(q, unit, o)
			}
			f, err := dimensionlessMagnitude(value)
			if err != nil {
				return nil, err
			}
			return units.New(f, unit), nil
		},
	}
}

// dimensionlessMagnitude extracts a float from a bare number or a
// dimensionless quantity.
func dimensionlessMagnitude(value any) (float64, error) {
	if q, ok := value.(units.Quantity); ok {
		return q.Magnitude(), nil
	}
	f, ok := toFloat64(value)
	if !ok {
		return 0, fmt.Errorf("%w: %v (%T) is not a number or quantity", ErrInvalidValue, value, value)
	}
	return f, nil
}

// MagnitudeConverter builds a unit→magnitude converter from a units spec:
// a unit symbol string or a per-component list of symbols.
func MagnitudeConverter(spec any, opts ...Option) (pipeline.Step, error) {
	if step, ok := asStep(spec); ok {
		return step, nil
	}
	switch s := spec.(type) {
	case string:
		return ToMagnitude(s, opts...), nil
	case []any:
		return perComponent("units", s, func(sub any) (pipeline.Step, error) {
			return MagnitudeConverter(sub, opts...)
		})
	}
	return pipeline.Step{}, fmt.Errorf("%w: units spec must be a string or per-component list, not %T",
		ErrBadSpec, spec)
}

// QuantityConverter builds a unit→quantity converter from a units spec.
func QuantityConverter(spec any, opts ...Option) (pipeline.Step, error) {
	if step, ok := asStep(spec); ok {
		return step, nil
	}
	switch s := spec.(type) {
	case string:
		return ToQuantity(s, opts...), nil
	case []any:
		return perComponent("units", s, func(sub any) (pipeline.Step, error) {
			return QuantityConverter(sub, opts...)
		})
	}
	return pipeline.Step{}, fmt.Errorf("%w: units spec must be a string or per-component list, not %T",
		ErrBadSpec, spec)
}
