// Package units provides the quantity type used by feat and action
// modifiers.
//
// A Quantity is a magnitude paired with a unit symbol. Conversion is
// table-driven: every known unit belongs to a dimension and carries a scale
// (and, for temperatures, an offset) relative to that dimension's base unit.
// Converting between units of different dimensions fails with
// ErrIncompatible; unknown symbols fail with ErrUnknownUnit.
//
// The table covers the dimensions that instrument drivers commonly exchange:
// time, frequency, length, voltage, current, power and temperature. It is
// deliberately not a general units system; drivers that need more register
// custom transform steps instead.
//
// # Usage
//
//	q := units.New(1, "V")
//	mv, err := q.To("mV") // 1000 mV
//	f := mv.Magnitude()   // 1000.0
package units
