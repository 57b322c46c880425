package instrument

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/lantzproject/lantz-core/internal/convert"
	"github.com/lantzproject/lantz-core/internal/modifier"
	"github.com/lantzproject/lantz-core/internal/pipeline"
)

// Getter reads the raw device value of a feat.
type Getter func(d *Device) (any, error)

// Setter writes a raw value to the device.
type Setter func(d *Device, value any) error

// FeatConfig declares a scalar feat: the underlying device calls plus the
// initial class-level modifiers.
type FeatConfig struct {
	// Get and Set are the underlying device calls. Either may be nil for a
	// write-only or read-only feat.
	Get Getter
	Set Setter

	// Values is a convert.Mapping (external <-> internal translation) or a
	// convert.Set (membership restriction). Optional.
	Values any

	// Units is a unit symbol (or per-component list) applied as
	// unit->magnitude on set and unit->quantity on get. Optional.
	Units any

	// Limits is a convert.Range or []convert.Range. Optional.
	Limits any

	// GetFuncs and SetFuncs are extra transform steps appended in
	// declaration order.
	GetFuncs []pipeline.Step
	SetFuncs []pipeline.Step

	// ReadOnce serves the cached value on every get after the first
	// successful one.
	ReadOnce bool

	// AllowRedundantSets disables unnecessary-set suppression. By default a
	// set whose value equals the cached value is skipped and only logged.
	// The comparison uses pre-pipeline user-facing values.
	AllowRedundantSets bool

	// WarnLogger receives unit-conversion warnings. Optional.
	WarnLogger convert.Logger
}

// featPipes is one built pair of get/set pipelines. A build error from a
// bad modifier spec is kept and surfaced on the next use.
type featPipes struct {
	get *pipeline.Pipeline
	set *pipeline.Pipeline
	err error
}

// Feat is the middleware stack around one scalar attribute: a validated,
// cached, observable property backed by a raw getter/setter pair.
//
// A Feat belongs to a Class and is shared read-only across that class's
// devices; per-device state (cache, lock, statistics, modifier overrides)
// lives on the Device or in the modifier store's override map.
type Feat struct {
	name   string
	getter Getter
	setter Setter

	readOnce           bool
	allowRedundantSets bool
	warnLogger         convert.Logger

	store *modifier.Store

	// simName/simKey route simulator lookups; sub-feats of a DictFeat
	// carry the parent name and their resolved internal key.
	simName string
	simKey  any

	// parent is set for materialized dict-feat sub-properties.
	parent *DictFeat

	pipeMu     sync.RWMutex
	classPipes featPipes
	instPipes  map[*Device]featPipes
}

// NewFeat creates a scalar feat and builds its class-level pipelines.
// A bad initial modifier spec fails immediately.
func NewFeat(name string, cfg FeatConfig) (*Feat, error) {
	f := &Feat{
		name:               name,
		getter:             cfg.Get,
		setter:             cfg.Set,
		readOnce:           cfg.ReadOnce,
		allowRedundantSets: cfg.AllowRedundantSets,
		warnLogger:         cfg.WarnLogger,
		simName:            name,
		instPipes:          make(map[*Device]featPipes),
	}
	f.store = modifier.NewStore(f,
		modifier.Values, modifier.Units, modifier.Limits,
		modifier.GetFuncs, modifier.SetFuncs)

	// Seed defaults directly; OnModifierChange rebuilds after each.
	for _, kv := range []struct {
		key   modifier.Key
		value any
	}{
		{modifier.Values, cfg.Values},
		{modifier.Units, cfg.Units},
		{modifier.Limits, cfg.Limits},
		{modifier.GetFuncs, stepsValue(cfg.GetFuncs)},
		{modifier.SetFuncs, stepsValue(cfg.SetFuncs)},
	} {
		if kv.value == nil {
			continue
		}
		if err := f.store.Set(nil, kv.key, kv.value); err != nil {
			return nil, err
		}
	}

	f.rebuild(nil)
	f.pipeMu.RLock()
	err := f.classPipes.err
	f.pipeMu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Name returns the feat name (display form for dict-feat sub-properties).
func (f *Feat) Name() string { return f.name }

// ReadOnce reports whether the feat serves its cache after the first get.
func (f *Feat) ReadOnce() bool { return f.readOnce }

// Modifier returns the effective modifier value for a device (nil device
// reads the class-level default).
func (f *Feat) Modifier(d *Device, key modifier.Key) (any, error) {
	return f.store.Get(instanceKey(d), key)
}

// SetModifier writes a modifier. A nil device updates the class default;
// otherwise the override is scoped to that device only and triggers a
// pipeline rebuild for that device alone.
func (f *Feat) SetModifier(d *Device, key modifier.Key, value any) error {
	if err := f.store.Set(instanceKey(d), key, value); err != nil {
		return err
	}
	return f.pipesErr(d)
}

// Modifiers returns all effective modifiers for a device.
func (f *Feat) Modifiers(d *Device) map[modifier.Key]any {
	return f.store.Iterate(instanceKey(d))
}

// OnModifierChange implements modifier.Owner: a recognised key change
// rebuilds the pipelines scoped to the changed instance.
func (f *Feat) OnModifierChange(instance any, _ modifier.Key, _ any) {
	f.rebuild(instance)
}

// instanceKey normalises a possibly-nil *Device into a store key, avoiding
// the typed-nil-in-interface trap.
func instanceKey(d *Device) any {
	if d == nil {
		return nil
	}
	return d
}

// rebuild reconstructs the get and set pipelines from the effective
// modifiers of the given instance (nil: class level).
func (f *Feat) rebuild(instance any) {
	var dev *Device
	if instance != nil {
		dev = instance.(*Device)
	}

	pipes := f.buildPipes(instance)

	f.pipeMu.Lock()
	if dev == nil {
		f.classPipes = pipes
	} else {
		f.instPipes[dev] = pipes
	}
	f.pipeMu.Unlock()
}

// buildPipes assembles the two pipelines.
//
// Set order (fixed): unit->magnitude, value mapper, range/grid checker,
// then each set_func in declaration order.
//
// Get order: unit->quantity, reverse value mapper, then each get_func in
// declaration order; the whole sequence is then reversed, so a raw device
// reading passes through the get_funcs (in reverse declaration order), the
// reverse mapper and finally the quantity conversion.
func (f *Feat) buildPipes(instance any) featPipes {
	mods := f.store.Iterate(instance)

	var warnOpts []convert.Option
	if f.warnLogger != nil {
		warnOpts = append(warnOpts, convert.WithLogger(f.warnLogger))
	}

	set := pipeline.New()
	get := pipeline.New()

	if units := mods[modifier.Units]; units != nil {
		step, err := convert.MagnitudeConverter(units, warnOpts...)
		if err != nil {
			return featPipes{err: fmt.Errorf("%s: %w", f.name, err)}
		}
		set.Append(step)

		step, err = convert.QuantityConverter(units, warnOpts...)
		if err != nil {
			return featPipes{err: fmt.Errorf("%s: %w", f.name, err)}
		}
		get.Append(step)
	}

	if values := mods[modifier.Values]; values != nil {
		step, err := convert.ValuesConverter(values)
		if err != nil {
			return featPipes{err: fmt.Errorf("%s: %w", f.name, err)}
		}
		set.Append(step)

		step, err = convert.ReverseValuesConverter(values)
		if err != nil {
			return featPipes{err: fmt.Errorf("%s: %w", f.name, err)}
		}
		get.Append(step)
	}

	if limits := mods[modifier.Limits]; limits != nil {
		step, err := convert.LimitsConverter(limits)
		if err != nil {
			return featPipes{err: fmt.Errorf("%s: %w", f.name, err)}
		}
		set.Append(step)
	}

	for _, step := range asSteps(mods[modifier.SetFuncs]) {
		set.Append(step)
	}
	for _, step := range asSteps(mods[modifier.GetFuncs]) {
		get.Append(step)
	}

	return featPipes{get: get.Reversed(), set: set}
}

// asSteps normalises a funcs modifier value.
func asSteps(v any) []pipeline.Step {
	if v == nil {
		return nil
	}
	steps, _ := v.([]pipeline.Step)
	return steps
}

// stepsValue boxes a step slice as a modifier value, mapping an empty slice
// to nil so it reads as "unset".
func stepsValue(steps []pipeline.Step) any {
	if len(steps) == 0 {
		return nil
	}
	return steps
}

// pipes returns the built pipelines effective for a device.
func (f *Feat) pipes(d *Device) featPipes {
	f.pipeMu.RLock()
	defer f.pipeMu.RUnlock()

	if p, ok := f.instPipes[d]; ok {
		return p
	}
	return f.classPipes
}

// pipesErr surfaces a deferred pipeline build failure.
func (f *Feat) pipesErr(d *Device) error {
	return f.pipes(d).err
}

// dropInstance discards per-device state when a device is closed.
func (f *Feat) dropInstance(d *Device) {
	f.store.DropInstance(d)
	f.pipeMu.Lock()
	delete(f.instPipes, d)
	f.pipeMu.Unlock()
}

// Get reads the feat through the middleware chain: lock, read-once check,
// simulator-or-device getter, get pipeline, cache update, logging,
// statistics, change notification.
func (f *Feat) Get(d *Device) (any, error) {
	value, old, changed, err := f.lockedGet(d)
	if err != nil {
		return nil, err
	}
	if changed {
		d.notify(f.name, old, value)
	}
	return value, nil
}

// lockedGet runs the get contract under the device lock; the change
// notification is delivered by the caller after the lock is released.
func (f *Feat) lockedGet(d *Device) (value, old any, changed bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if f.readOnce {
		if cached, ok := d.cacheGet(f.name); ok {
			return cached, cached, false, nil
		}
	}

	if pipes := f.pipes(d); pipes.err != nil {
		return nil, nil, false, pipes.err
	}

	d.logger.Debug("Getting " + f.name)
	start := time.Now()

	raw, err := f.rawGet(d)
	if err != nil {
		d.logger.Error(fmt.Sprintf("While getting %s: %v", f.name, err))
		d.stats.Record(f.name, OpFailedGet, time.Since(start))
		return nil, nil, false, err
	}

	value, err = f.pipes(d).get.Apply(raw)
	if err != nil {
		d.logger.Error(fmt.Sprintf("While getting %s: %v", f.name, err))
		d.stats.Record(f.name, OpFailedGet, time.Since(start))
		return nil, nil, false, err
	}

	old = d.cachePut(f.name, value)
	d.logger.Debug(fmt.Sprintf("Got %v for %s", value, f.name))
	d.stats.Record(f.name, OpGet, time.Since(start))

	return value, old, !sameValue(old, value), nil
}

// Set writes the feat through the middleware chain: lock, unnecessary-set
// suppression, set pipeline, simulator-or-device setter, cache update,
// logging, statistics, change notification.
func (f *Feat) Set(d *Device, value any) error {
	old, changed, err := f.lockedSet(d, value)
	if err != nil {
		return err
	}
	if changed {
		d.notify(f.name, old, value)
	}
	return nil
}

// lockedSet runs the set contract under the device lock.
func (f *Feat) lockedSet(d *Device, value any) (old any, changed bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !f.allowRedundantSets {
		if cached, ok := d.cacheGet(f.name); ok && sameValue(cached, value) {
			d.logger.Debug(fmt.Sprintf("No need to set %s = %v (current=%v)", f.name, value, cached))
			return nil, false, nil
		}
	}

	if pipes := f.pipes(d); pipes.err != nil {
		return nil, false, pipes.err
	}

	d.logger.Debug(fmt.Sprintf("Setting %s to %v", f.name, value))
	start := time.Now()

	transformed, err := f.pipes(d).set.Apply(value)
	if err != nil {
		d.logger.Error(fmt.Sprintf("While setting %s to %v: %v", f.name, value, err))
		d.stats.Record(f.name, OpFailedSet, time.Since(start))
		return nil, false, err
	}

	if err := f.rawSet(d, transformed); err != nil {
		d.logger.Error(fmt.Sprintf("While setting %s to %v: %v", f.name, value, err))
		d.stats.Record(f.name, OpFailedSet, time.Since(start))
		return nil, false, err
	}

	// The cache holds the pre-pipeline, user-facing value.
	old = d.cachePut(f.name, value)
	d.logger.Debug(fmt.Sprintf("%s was set to %v", f.name, value))
	d.stats.Record(f.name, OpSet, time.Since(start))

	return old, !sameValue(old, value), nil
}

// rawGet dispatches to the simulator when one defines this feat's getter,
// otherwise to the underlying device getter.
func (f *Feat) rawGet(d *Device) (any, error) {
	if f.getter == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotReadable, f.name)
	}
	if sim := d.simulator(); sim != nil {
		if g, ok := sim.Getters[f.simName]; ok {
			return g(d, f.simKey)
		}
	}
	return f.getter(d)
}

// rawSet dispatches to the simulator when one defines this feat's setter,
// otherwise to the underlying device setter.
func (f *Feat) rawSet(d *Device, value any) error {
	if f.setter == nil {
		return fmt.Errorf("%w: %s", ErrNotWritable, f.name)
	}
	if sim := d.simulator(); sim != nil {
		if s, ok := sim.Setters[f.simName]; ok {
			return s(d, f.simKey, value)
		}
	}
	return f.setter(d, value)
}

// sameValue compares cache contents, treating Unset as unequal to any
// device value.
func sameValue(a, b any) bool {
	if _, ok := a.(unsetType); ok {
		_, bok := b.(unsetType)
		return bok
	}
	return reflect.DeepEqual(a, b)
}
