package instrument

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// unsetType is the sentinel for a cache slot that was never read or written.
type unsetType struct{}

func (unsetType) String() string { return "UNSET" }

// Unset marks a feat cache slot that holds no value yet. It is distinct
// from every valid device value, including nil.
var Unset = unsetType{}

// ChangeFunc receives a feat change notification as (old, new). The old
// value is Unset on the first observation.
type ChangeFunc func(old, new any)

// NamedChangeFunc receives a change notification for any feat of a device,
// with the feat name in display form ("eggs['answer']" for a dict-feat key).
type NamedChangeFunc func(feat string, old, new any)

// Device is one instance of a driver Class.
//
// All feat gets/sets and action calls on a device are serialised behind one
// exclusive lock, so two concurrent callers touching the same device always
// contend while callers touching different devices never do. Change
// listeners run outside the lock and must not assume any cross-device
// ordering.
type Device struct {
	class *Class
	id    string
	name  string

	// mu serialises every get/set/call on this instance.
	mu sync.Mutex

	// cache holds the last seen value per feat, guarded by mu.
	cache map[string]any

	stats  *Stats
	logger Logger

	simMu sync.RWMutex
	sim   *Simulator

	listenerMu sync.RWMutex
	nextToken  int
	tokens     map[string]map[int]ChangeFunc
	anyTokens  map[int]NamedChangeFunc
}

// New creates a device instance of the class. An empty name yields
// "<ClassName><n>" with a per-class counter, like unnamed instruments.
func (c *Class) New(name string) *Device {
	n := c.instances.Add(1)
	if name == "" {
		name = fmt.Sprintf("%s%d", c.name, n-1)
	}
	d := &Device{
		class:  c,
		id:     uuid.NewString(),
		name:   name,
		cache:  make(map[string]any),
		stats:  NewStats(),
		logger: c.logger,
		tokens:    make(map[string]map[int]ChangeFunc),
		anyTokens: make(map[int]NamedChangeFunc),
	}
	d.logger.Info("Created " + name)
	return d
}

// ID returns the unique instance identifier.
func (d *Device) ID() string { return d.id }

// Name returns the instance name used in logs and flocks.
func (d *Device) Name() string { return d.name }

// Class returns the descriptor table this device was created from.
func (d *Device) Class() *Class { return d.class }

// Stats returns the per-instance call statistics.
func (d *Device) Stats() *Stats { return d.stats }

// SetLogger replaces the device logger.
func (d *Device) SetLogger(logger Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// AttachSimulator installs a simulator that intercepts feat and action
// calls before the underlying device functions. Pass nil to detach.
func (d *Device) AttachSimulator(sim *Simulator) {
	d.simMu.Lock()
	d.sim = sim
	d.simMu.Unlock()
}

// simulator returns the installed simulator, or nil.
func (d *Device) simulator() *Simulator {
	d.simMu.RLock()
	defer d.simMu.RUnlock()
	return d.sim
}

// cacheGet reads a cache slot; ok is false when the slot is unset.
// Caller must hold d.mu.
func (d *Device) cacheGet(key string) (any, bool) {
	v, ok := d.cache[key]
	if !ok {
		return Unset, false
	}
	return v, true
}

// cachePut writes a cache slot and returns the previous value (Unset when
// the slot was empty). Caller must hold d.mu.
func (d *Device) cachePut(key string, value any) any {
	old, ok := d.cache[key]
	d.cache[key] = value
	if !ok {
		return Unset
	}
	return old
}

// cacheDrop clears a cache slot. Caller must hold d.mu.
func (d *Device) cacheDrop(key string) {
	delete(d.cache, key)
}

// OnChange subscribes a listener to changes of one feat (use the display
// form "eggs['answer']" for a dict-feat key). It returns an unsubscribe
// function.
func (d *Device) OnChange(feat string, fn ChangeFunc) (unsubscribe func()) {
	d.listenerMu.Lock()
	defer d.listenerMu.Unlock()

	if d.tokens[feat] == nil {
		d.tokens[feat] = make(map[int]ChangeFunc)
	}
	token := d.nextToken
	d.nextToken++
	d.tokens[feat][token] = fn

	return func() {
		d.listenerMu.Lock()
		defer d.listenerMu.Unlock()
		delete(d.tokens[feat], token)
	}
}

// OnAnyChange subscribes a listener to every feat change of the device,
// covering dict-feat keys regardless of when they are first touched. It
// returns an unsubscribe function.
func (d *Device) OnAnyChange(fn NamedChangeFunc) (unsubscribe func()) {
	d.listenerMu.Lock()
	defer d.listenerMu.Unlock()

	token := d.nextToken
	d.nextToken++
	d.anyTokens[token] = fn

	return func() {
		d.listenerMu.Lock()
		defer d.listenerMu.Unlock()
		delete(d.anyTokens, token)
	}
}

// notify delivers a change to the feat's listeners and to the device-wide
// listeners. Runs outside d.mu.
func (d *Device) notify(feat string, old, new any) {
	d.listenerMu.RLock()
	fns := make([]ChangeFunc, 0, len(d.tokens[feat]))
	for _, fn := range d.tokens[feat] {
		fns = append(fns, fn)
	}
	anyFns := make([]NamedChangeFunc, 0, len(d.anyTokens))
	for _, fn := range d.anyTokens {
		anyFns = append(anyFns, fn)
	}
	d.listenerMu.RUnlock()

	for _, fn := range fns {
		fn(old, new)
	}
	for _, fn := range anyFns {
		fn(feat, old, new)
	}
}

// Get reads a scalar feat through the full middleware chain.
func (d *Device) Get(feat string) (any, error) {
	f, ok := d.class.feats[feat]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownFeat, d.class.name, feat)
	}
	return f.Get(d)
}

// Set writes a scalar feat through the full middleware chain.
func (d *Device) Set(feat string, value any) error {
	f, ok := d.class.feats[feat]
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownFeat, d.class.name, feat)
	}
	return f.Set(d, value)
}

// GetKeyed reads one key of a dict-feat.
func (d *Device) GetKeyed(feat string, key any) (any, error) {
	df, ok := d.class.dictFeats[feat]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownFeat, d.class.name, feat)
	}
	return df.Get(d, key)
}

// SetKeyed writes one key of a dict-feat.
func (d *Device) SetKeyed(feat string, key, value any) error {
	df, ok := d.class.dictFeats[feat]
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownFeat, d.class.name, feat)
	}
	return df.Set(d, key, value)
}

// Call invokes a registered action. Calling a generated "<name>_async"
// entry returns a *Future as the result.
func (d *Device) Call(action string, args ...any) (any, error) {
	if a, ok := d.class.actions[action]; ok {
		return a.Call(d, args...)
	}
	if a, ok := d.class.asyncActions[action]; ok {
		return a.CallAsync(d, args...), nil
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrUnknownAction, d.class.name, action)
}

// CallAsync invokes an action on a background worker, returning a future.
func (d *Device) CallAsync(action string, args ...any) (*Future, error) {
	a, ok := d.class.actions[action]
	if !ok {
		if a, ok = d.class.asyncActions[action]; !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownAction, d.class.name, action)
		}
	}
	return a.CallAsync(d, args...), nil
}

// Initialize brings the device up by invoking its "initialize" action when
// one is registered. Devices without one initialise trivially.
func (d *Device) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := d.class.actions["initialize"]; !ok {
		return nil
	}
	_, err := d.Call("initialize")
	return err
}

// Finalize shuts the device down by invoking its "finalize" action when one
// is registered.
func (d *Device) Finalize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := d.class.actions["finalize"]; !ok {
		return nil
	}
	_, err := d.Call("finalize")
	return err
}

// Recall returns a snapshot of the cached value of every feat slot that has
// been read or written on this device.
func (d *Device) Recall() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]any, len(d.cache))
	for k, v := range d.cache {
		out[k] = v
	}
	return out
}

// Update applies a new state in bulk, setting each named scalar feat.
func (d *Device) Update(state map[string]any) error {
	for name := range state {
		if _, ok := d.class.feats[name]; !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownFeat, d.class.name, name)
		}
	}
	for name, value := range state {
		if err := d.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}

// Refresh re-reads a scalar feat from the device, bypassing read-once and
// cache state.
func (d *Device) Refresh(feat string) (any, error) {
	f, ok := d.class.feats[feat]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownFeat, d.class.name, feat)
	}

	d.mu.Lock()
	d.cacheDrop(f.Name())
	d.mu.Unlock()

	return f.Get(d)
}

// Close drops per-instance modifier overrides held by the class's wrappers.
// Call when discarding a device instance.
func (d *Device) Close() {
	for _, f := range d.class.feats {
		f.dropInstance(d)
	}
	for _, df := range d.class.dictFeats {
		df.dropInstance(d)
	}
	for _, a := range d.class.actions {
		a.dropInstance(d)
	}
}
