package units

import "fmt"

// unitDef describes one unit symbol: the dimension it belongs to and the
// linear mapping to that dimension's base unit (base = value*scale + offset).
type unitDef struct {
	dimension string
	scale     float64
	offset    float64
}

// table maps unit symbols to their definitions. Base units have scale 1.
var table = map[string]unitDef{
	// time (base: s)
	"ns":  {"time", 1e-9, 0},
	"us":  {"time", 1e-6, 0},
	"ms":  {"time", 1e-3, 0},
	"s":   {"time", 1, 0},
	"min": {"time", 60, 0},
	"h":   {"time", 3600, 0},

	// frequency (base: Hz)
	"Hz":  {"frequency", 1, 0},
	"kHz": {"frequency", 1e3, 0},
	"MHz": {"frequency", 1e6, 0},
	"GHz": {"frequency", 1e9, 0},

	// length (base: m)
	"nm": {"length", 1e-9, 0},
	"um": {"length", 1e-6, 0},
	"mm": {"length", 1e-3, 0},
	"cm": {"length", 1e-2, 0},
	"m":  {"length", 1, 0},
	"km": {"length", 1e3, 0},

	// voltage (base: V)
	"uV": {"voltage", 1e-6, 0},
	"mV": {"voltage", 1e-3, 0},
	"V":  {"voltage", 1, 0},
	"kV": {"voltage", 1e3, 0},

	// current (base: A)
	"uA": {"current", 1e-6, 0},
	"mA": {"current", 1e-3, 0},
	"A":  {"current", 1, 0},

	// power (base: W)
	"mW": {"power", 1e-3, 0},
	"W":  {"power", 1, 0},
	"kW": {"power", 1e3, 0},

	// temperature (base: K)
	"K":    {"temperature", 1, 0},
	"degC": {"temperature", 1, 273.15},
}

// Quantity is an immutable magnitude paired with a unit symbol.
//
// The zero value is a dimensionless zero. Quantities are comparable with ==
// when the unit symbols match; use To() to normalise units first.
type Quantity struct {
	value float64
	unit  string
}

// New creates a Quantity from a magnitude and a unit symbol.
// An empty unit produces a dimensionless quantity.
func New(value float64, unit string) Quantity {
	return Quantity{value: value, unit: unit}
}

// Magnitude returns the bare numeric value in the quantity's own unit.
func (q Quantity) Magnitude() float64 { return q.value }

// Unit returns the unit symbol.
func (q Quantity) Unit() string { return q.unit }

// Dimensionless reports whether the quantity carries no unit.
func (q Quantity) Dimensionless() bool { return q.unit == "" }

// To converts the quantity to the target unit.
//
// Returns ErrUnknownUnit if either symbol is not in the table, and
// ErrIncompatible if the dimensions differ. Converting a dimensionless
// quantity assumes the target unit without scaling.
func (q Quantity) To(unit string) (Quantity, error) {
	if q.unit == unit {
		return q, nil
	}

	dst, ok := table[unit]
	if !ok {
		return Quantity{}, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}

	if q.Dimensionless() {
		return Quantity{value: q.value, unit: unit}, nil
	}

	src, ok := table[q.unit]
	if !ok {
		return Quantity{}, fmt.Errorf("%w: %q", ErrUnknownUnit, q.unit)
	}

	if src.dimension != dst.dimension {
		return Quantity{}, fmt.Errorf("%w: cannot convert %s (%s) to %s (%s)",
			ErrIncompatible, q.unit, src.dimension, unit, dst.dimension)
	}

	base := q.value*src.scale + src.offset
	return Quantity{value: (base - dst.offset) / dst.scale, unit: unit}, nil
}

// Known reports whether a unit symbol is in the conversion table.
func Known(unit string) bool {
	_, ok := table[unit]
	return ok
}

// String implements fmt.Stringer as "<magnitude> <unit>".
func (q Quantity) String() string {
	if q.Dimensionless() {
		return fmt.Sprintf("%g", q.value)
	}
	return fmt.Sprintf("%g %s", q.value, q.unit)
}
