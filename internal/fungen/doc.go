// Package fungen is a driver for the LSG series function generator,
// including a built-in protocol simulator for benches without hardware.
//
// The generator speaks a line-oriented text protocol: queries start with
// "?" and commands with "!", arguments are space separated and every
// exchange yields one response line ("OK", a value, or "ERROR").
//
// # Usage
//
//	dev := fungen.NewSimulated("fungen1")
//	defer fungen.Release(dev)
//
//	if err := dev.Set("frequency", units.New(5, "kHz")); err != nil {
//	    return err
//	}
//	v, err := dev.Get("amplitude")
//
// Against real hardware, pass any transport implementing Conn to New.
// Feat access, units, limits, caching and statistics behave identically
// in both modes because the simulator sits below the protocol layer.
package fungen
