package pipeline

// Tuple is a multi-component value travelling through a pipeline, used when
// an attribute takes multiple positional sub-values.
type Tuple []any

// Step is a single transform in a pipeline.
//
// Apply takes a value and returns the transformed value, or an error when
// validation fails. A TupleAware step consumes and produces the entire Tuple
// at once instead of being mapped element-wise.
type Step struct {
	// Name identifies the step in diagnostics.
	Name string

	// Apply performs the transformation. Must not be nil.
	Apply func(value any) (any, error)

	// TupleAware marks the step as consuming whole tuples.
	TupleAware bool
}

// Identity returns a step that passes values through unchanged.
func Identity() Step {
	return Step{
		Name:  "identity",
		Apply: func(value any) (any, error) { return value, nil },
	}
}

// Pipeline is an ordered sequence of transform steps.
//
// The zero value is an empty, usable pipeline. Pipelines are not safe for
// concurrent mutation; build them fully before sharing.
type Pipeline struct {
	steps []Step
}

// New creates a pipeline from steps in execution order.
func New(steps ...Step) *Pipeline {
	p := &Pipeline{steps: make([]Step, 0, len(steps))}
	p.steps = append(p.steps, steps...)
	return p
}

// Append adds a step at the end of the pipeline.
func (p *Pipeline) Append(s Step) {
	p.steps = append(p.steps, s)
}

// Prepend adds a step at the start of the pipeline.
func (p *Pipeline) Prepend(s Step) {
	p.steps = append([]Step{s}, p.steps...)
}

// Len returns the number of steps.
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return len(p.steps)
}

// Empty reports whether the pipeline has no steps.
func (p *Pipeline) Empty() bool { return p.Len() == 0 }

// Reversed returns a new pipeline with the step order inverted.
// The receiver is not modified.
func (p *Pipeline) Reversed() *Pipeline {
	out := &Pipeline{steps: make([]Step, 0, len(p.steps))}
	for i := len(p.steps) - 1; i >= 0; i-- {
		out.steps = append(out.steps, p.steps[i])
	}
	return out
}

// Apply threads a value through every step in order.
//
// A Tuple value is handed whole to tuple-aware steps; ordinary steps are
// applied element-wise, producing a new Tuple. Step failures propagate
// unchanged.
func (p *Pipeline) Apply(value any) (any, error) {
	if p.Empty() {
		return value, nil
	}

	if tuple, ok := value.(Tuple); ok {
		return p.applyTuple(tuple)
	}

	var err error
	for _, step := range p.steps {
		value, err = step.Apply(value)
		if err != nil {
			return nil, err
		}
	}
	return value, nil
}

// applyTuple threads a tuple through the steps, fanning out over elements
// for steps that are not tuple-aware.
func (p *Pipeline) applyTuple(values Tuple) (any, error) {
	for idx, step := range p.steps {
		if step.TupleAware {
			out, err := step.Apply(values)
			if err != nil {
				return nil, err
			}
			next, ok := out.(Tuple)
			if !ok {
				// A tuple-aware step may collapse the tuple to a scalar;
				// the remaining steps then run in scalar mode.
				rest := Pipeline{steps: p.steps[idx+1:]}
				return rest.Apply(out)
			}
			values = next
			continue
		}

		next := make(Tuple, len(values))
		for i, v := range values {
			out, err := step.Apply(v)
			if err != nil {
				return nil, err
			}
			next[i] = out
		}
		values = next
	}
	return values, nil
}
