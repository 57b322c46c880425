package instrument

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lantzproject/lantz-core/internal/convert"
	"github.com/lantzproject/lantz-core/internal/modifier"
	"github.com/lantzproject/lantz-core/internal/pipeline"
)

// retParam is the store slot holding the return-value modifiers. Angle
// brackets keep it out of the legal parameter namespace.
const retParam = "<ret>"

// ActionFunc is the underlying device operation behind an action. args
// arrive already transformed by the per-parameter pipelines.
type ActionFunc func(d *Device, args ...any) (any, error)

// ParamModifiers declares the conversion stack of one action parameter or
// of the return value. The same order as a feat set applies on input:
// units, values, limits, then funcs in declaration order. On the return
// value the feat get order applies with the sequence reversed.
type ParamModifiers struct {
	Values any
	Units  any
	Limits any
	Funcs  []pipeline.Step
}

func (m ParamModifiers) empty() bool {
	return m.Values == nil && m.Units == nil && m.Limits == nil && len(m.Funcs) == 0
}

// ActionConfig declares an action: the operation, its named parameters and
// the optional per-parameter and return-value modifiers.
type ActionConfig struct {
	Do ActionFunc

	// Params names the positional parameters, in call order. Arity is
	// enforced against this list.
	Params []string

	// ParamMods maps a parameter name from Params to its modifiers.
	ParamMods map[string]ParamModifiers

	// Default applies to every parameter without a ParamMods entry,
	// resolved once when the action is built.
	Default ParamModifiers

	// Ret holds the return-value modifiers.
	Ret ParamModifiers

	// WarnLogger receives unit-conversion warnings. Optional.
	WarnLogger convert.Logger
}

// actionPipes is one built set of per-parameter input pipelines plus the
// return pipeline.
type actionPipes struct {
	params []*pipeline.Pipeline
	ret    *pipeline.Pipeline
	err    error
}

// Action is the middleware stack around one device operation: arguments are
// validated and converted per parameter, the operation runs under the
// device lock, and the return value passes back through its own pipeline.
type Action struct {
	name       string
	fn         ActionFunc
	params     []string
	warnLogger convert.Logger

	// stores holds one modifier store per parameter plus retParam.
	stores map[string]*modifier.Store

	pipeMu     sync.RWMutex
	classPipes actionPipes
	instPipes  map[*Device]actionPipes
}

// paramOwner routes modifier-change callbacks from one parameter's store
// back to the action.
type paramOwner struct {
	action *Action
	param  string
}

func (o paramOwner) Name() string { return o.action.name + "." + o.param }

func (o paramOwner) OnModifierChange(instance any, _ modifier.Key, _ any) {
	o.action.rebuild(instance)
}

// NewAction creates an action and builds its class-level pipelines. A bad
// modifier spec or a ParamMods entry naming an unknown parameter fails
// immediately.
func NewAction(name string, cfg ActionConfig) (*Action, error) {
	if cfg.Do == nil {
		return nil, fmt.Errorf("%w: %s has no operation", ErrBadArguments, name)
	}
	known := make(map[string]struct{}, len(cfg.Params))
	for _, p := range cfg.Params {
		if p == retParam {
			return nil, fmt.Errorf("%w: %s uses reserved parameter name %s", ErrBadArguments, name, retParam)
		}
		if _, dup := known[p]; dup {
			return nil, fmt.Errorf("%w: %s declares parameter %s twice", ErrBadArguments, name, p)
		}
		known[p] = struct{}{}
	}
	for p := range cfg.ParamMods {
		if _, ok := known[p]; !ok {
			return nil, fmt.Errorf("%w: %s has modifiers for unknown parameter %s", ErrBadArguments, name, p)
		}
	}

	a := &Action{
		name:       name,
		fn:         cfg.Do,
		params:     append([]string(nil), cfg.Params...),
		warnLogger: cfg.WarnLogger,
		stores:     make(map[string]*modifier.Store, len(cfg.Params)+1),
		instPipes:  make(map[*Device]actionPipes),
	}

	storeKeys := []modifier.Key{modifier.Values, modifier.Units, modifier.Limits, modifier.Funcs}
	for _, p := range append(append([]string(nil), cfg.Params...), retParam) {
		a.stores[p] = modifier.NewStore(paramOwner{action: a, param: p}, storeKeys...)
	}

	seed := func(param string, mods ParamModifiers) error {
		for _, kv := range []struct {
			key   modifier.Key
			value any
		}{
			{modifier.Values, mods.Values},
			{modifier.Units, mods.Units},
			{modifier.Limits, mods.Limits},
			{modifier.Funcs, stepsValue(mods.Funcs)},
		} {
			if kv.value == nil {
				continue
			}
			if err := a.stores[param].Set(nil, kv.key, kv.value); err != nil {
				return err
			}
		}
		return nil
	}
	for p, mods := range cfg.ParamMods {
		if err := seed(p, mods); err != nil {
			return nil, err
		}
	}
	if !cfg.Default.empty() {
		for _, p := range cfg.Params {
			if _, explicit := cfg.ParamMods[p]; explicit {
				continue
			}
			if err := seed(p, cfg.Default); err != nil {
				return nil, err
			}
		}
	}
	if !cfg.Ret.empty() {
		if err := seed(retParam, cfg.Ret); err != nil {
			return nil, err
		}
	}

	a.rebuild(nil)
	a.pipeMu.RLock()
	err := a.classPipes.err
	a.pipeMu.RUnlock()
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Name returns the action name.
func (a *Action) Name() string { return a.name }

// Params returns the declared parameter names in call order.
func (a *Action) Params() []string {
	return append([]string(nil), a.params...)
}

// SetParamModifier overrides one modifier of one parameter (or of the
// return value when param is "<ret>"). A nil device updates the class
// default.
func (a *Action) SetParamModifier(d *Device, param string, key modifier.Key, value any) error {
	store, ok := a.stores[param]
	if !ok {
		return fmt.Errorf("%w: %s has no parameter %s", ErrBadArguments, a.name, param)
	}
	if err := store.Set(instanceKey(d), key, value); err != nil {
		return err
	}
	return a.pipes(d).err
}

// ParamModifier reads the effective modifier of one parameter for a device.
func (a *Action) ParamModifier(d *Device, param string, key modifier.Key) (any, error) {
	store, ok := a.stores[param]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no parameter %s", ErrBadArguments, a.name, param)
	}
	return store.Get(instanceKey(d), key)
}

// rebuild reconstructs every pipeline from the effective modifiers of the
// given instance (nil: class level).
func (a *Action) rebuild(instance any) {
	var dev *Device
	if instance != nil {
		dev = instance.(*Device)
	}

	pipes := a.buildPipes(instance)

	a.pipeMu.Lock()
	if dev == nil {
		a.classPipes = pipes
	} else {
		a.instPipes[dev] = pipes
	}
	a.pipeMu.Unlock()
}

func (a *Action) buildPipes(instance any) actionPipes {
	var warnOpts []convert.Option
	if a.warnLogger != nil {
		warnOpts = append(warnOpts, convert.WithLogger(a.warnLogger))
	}

	pipes := actionPipes{params: make([]*pipeline.Pipeline, len(a.params))}

	for i, p := range a.params {
		pipe, err := a.buildParamPipe(a.stores[p].Iterate(instance), warnOpts, false)
		if err != nil {
			return actionPipes{err: fmt.Errorf("%s(%s): %w", a.name, p, err)}
		}
		pipes.params[i] = pipe
	}

	ret, err := a.buildParamPipe(a.stores[retParam].Iterate(instance), warnOpts, true)
	if err != nil {
		return actionPipes{err: fmt.Errorf("%s: return: %w", a.name, err)}
	}
	pipes.ret = ret.Reversed()

	return pipes
}

// buildParamPipe assembles one conversion pipeline. Input parameters use
// the magnitude direction; the return value uses the quantity direction and
// is reversed by the caller.
func (a *Action) buildParamPipe(mods map[modifier.Key]any, warnOpts []convert.Option, returning bool) (*pipeline.Pipeline, error) {
	pipe := pipeline.New()

	if units := mods[modifier.Units]; units != nil {
		var (
			step pipeline.Step
			err  error
		)
		if returning {
			step, err = convert.QuantityConverter(units, warnOpts...)
		} else {
			step, err = convert.MagnitudeConverter(units, warnOpts...)
		}
		if err != nil {
			return nil, err
		}
		pipe.Append(step)
	}

	if values := mods[modifier.Values]; values != nil {
		var (
			step pipeline.Step
			err  error
		)
		if returning {
			step, err = convert.ReverseValuesConverter(values)
		} else {
			step, err = convert.ValuesConverter(values)
		}
		if err != nil {
			return nil, err
		}
		pipe.Append(step)
	}

	if !returning {
		if limits := mods[modifier.Limits]; limits != nil {
			step, err := convert.LimitsConverter(limits)
			if err != nil {
				return nil, err
			}
			pipe.Append(step)
		}
	}

	for _, step := range asSteps(mods[modifier.Funcs]) {
		pipe.Append(step)
	}

	return pipe, nil
}

func (a *Action) pipes(d *Device) actionPipes {
	a.pipeMu.RLock()
	defer a.pipeMu.RUnlock()

	if p, ok := a.instPipes[d]; ok {
		return p
	}
	return a.classPipes
}

// dropInstance discards per-device state when a device is closed.
func (a *Action) dropInstance(d *Device) {
	for _, store := range a.stores {
		store.DropInstance(d)
	}
	a.pipeMu.Lock()
	delete(a.instPipes, d)
	a.pipeMu.Unlock()
}

// Call invokes the action under the device lock: arity check, per-parameter
// conversion, operation, return conversion, statistics.
func (a *Action) Call(d *Device, args ...any) (any, error) {
	if len(args) != len(a.params) {
		return nil, fmt.Errorf("%w: %s takes %d argument(s), got %d",
			ErrBadArguments, a.name, len(a.params), len(args))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	pipes := a.pipes(d)
	if pipes.err != nil {
		return nil, pipes.err
	}

	d.logger.Debug(fmt.Sprintf("Calling %s with %v", a.name, args))
	start := time.Now()

	converted := make([]any, len(args))
	for i, arg := range args {
		v, err := pipes.params[i].Apply(arg)
		if err != nil {
			d.logger.Error(fmt.Sprintf("While calling %s: bad %s: %v", a.name, a.params[i], err))
			d.stats.Record(a.name, OpFailedCall, time.Since(start))
			return nil, err
		}
		converted[i] = v
	}

	result, err := a.rawCall(d, converted)
	if err != nil {
		d.logger.Error(fmt.Sprintf("While calling %s: %v", a.name, err))
		d.stats.Record(a.name, OpFailedCall, time.Since(start))
		return nil, err
	}

	result, err = pipes.ret.Apply(result)
	if err != nil {
		d.logger.Error(fmt.Sprintf("While calling %s: bad return: %v", a.name, err))
		d.stats.Record(a.name, OpFailedCall, time.Since(start))
		return nil, err
	}

	d.logger.Debug(fmt.Sprintf("%s returned %v", a.name, result))
	d.stats.Record(a.name, OpCall, time.Since(start))
	return result, nil
}

// rawCall dispatches to the simulator when one defines this action,
// otherwise to the underlying operation.
func (a *Action) rawCall(d *Device, args []any) (any, error) {
	if sim := d.simulator(); sim != nil {
		if fn, ok := sim.Calls[a.name]; ok {
			return fn(d, args...)
		}
	}
	return a.fn(d, args...)
}

// CallAsync runs the action on a background goroutine and returns a future
// settling with its result.
func (a *Action) CallAsync(d *Device, args ...any) *Future {
	fut := &Future{done: make(chan struct{})}
	go func() {
		fut.value, fut.err = a.Call(d, args...)
		close(fut.done)
	}()
	return fut
}

// Future is the pending result of an asynchronous action call.
type Future struct {
	done  chan struct{}
	value any
	err   error
}

// Done returns a channel closed when the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result blocks until the call settles or the context is cancelled. The
// underlying call keeps running after cancellation; only the wait stops.
func (f *Future) Result(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
