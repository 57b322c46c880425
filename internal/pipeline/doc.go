// Package pipeline implements ordered value-transformation chains.
//
// A Pipeline is a sequence of Steps. Applying a pipeline to a scalar value
// threads it through every step in order. Applying it to a Tuple threads the
// whole tuple through tuple-aware steps, and each element independently
// through ordinary steps, never both within the same step.
//
// Steps may fail; the pipeline propagates the failure unchanged and the
// caller (the feat or action middleware) decides whether to log and re-raise.
// An empty pipeline is a no-op and costs nothing when applied.
//
// # Usage
//
//	p := pipeline.New(double, addOne)
//	v, err := p.Apply(3) // (3*2)+1 = 7
//
//	rev := p.Reversed() // addOne then double
package pipeline
