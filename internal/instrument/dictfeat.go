package instrument

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lantzproject/lantz-core/internal/convert"
	"github.com/lantzproject/lantz-core/internal/modifier"
	"github.com/lantzproject/lantz-core/internal/pipeline"
)

// KeyedGetter reads the raw device value of a dict-feat element.
type KeyedGetter func(d *Device, key any) (any, error)

// KeyedSetter writes a raw value to a dict-feat element.
type KeyedSetter func(d *Device, key, value any) error

// DictFeatConfig declares a keyed feat family. Keys restricts and optionally
// translates the accepted keys; the remaining fields mirror FeatConfig and
// apply uniformly to every element.
type DictFeatConfig struct {
	Get KeyedGetter
	Set KeyedSetter

	// Keys restricts accepted keys: nil accepts anything, a convert.Set or
	// []any restricts membership, a convert.Mapping additionally translates
	// each external key to the internal key handed to Get/Set.
	Keys any

	Values   any
	Units    any
	Limits   any
	GetFuncs []pipeline.Step
	SetFuncs []pipeline.Step

	ReadOnce           bool
	AllowRedundantSets bool
	WarnLogger         convert.Logger
}

// DictFeat is the keyed counterpart of Feat: a family of per-key middleware
// stacks sharing one getter/setter pair and one modifier store.
//
// Each accessed key materialises a sub-feat named like eggs['answer'] that
// owns its cache slot, statistics bucket and change notifications, while
// modifiers stay shared across every key.
type DictFeat struct {
	name   string
	getter KeyedGetter
	setter KeyedSetter
	keys   any

	cfg FeatConfig

	store *modifier.Store

	mu   sync.Mutex
	subs map[any]*Feat
}

// NewDictFeat creates a keyed feat and validates the initial modifiers by
// building a probe pipeline.
func NewDictFeat(name string, cfg DictFeatConfig) (*DictFeat, error) {
	if err := checkKeySpec(cfg.Keys); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	df := &DictFeat{
		name:   name,
		getter: cfg.Get,
		setter: cfg.Set,
		keys:   cfg.Keys,
		cfg: FeatConfig{
			ReadOnce:           cfg.ReadOnce,
			AllowRedundantSets: cfg.AllowRedundantSets,
			WarnLogger:         cfg.WarnLogger,
		},
		subs: make(map[any]*Feat),
	}
	df.store = modifier.NewStore(df,
		modifier.Values, modifier.Units, modifier.Limits,
		modifier.GetFuncs, modifier.SetFuncs)

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
		if err := df.store.Set(nil, kv.key, kv.value); err != nil {
			return nil, err
		}
	}

	// Probe build so a bad spec fails at declaration, not first access.
	probe := df.newSub(nil)
	probe.rebuild(nil)
	if err := probe.pipesErr(nil); err != nil {
		return nil, err
	}
	return df, nil
}

// Name returns the dict-feat family name.
func (df *DictFeat) Name() string { return df.name }

// Get reads one element. The key is validated and translated before the
// device is touched.
func (df *DictFeat) Get(d *Device, key any) (any, error) {
	sub, err := df.sub(key)
	if err != nil {
		return nil, err
	}
	return sub.Get(d)
}

// Set writes one element. The key is validated and translated before the
// device is touched.
func (df *DictFeat) Set(d *Device, key, value any) error {
	sub, err := df.sub(key)
	if err != nil {
		return err
	}
	return sub.Set(d, value)
}

// Keys returns the allowed external keys in sorted order, or nil when the
// key space is unrestricted.
func (df *DictFeat) Keys() []any {
	switch spec := df.keys.(type) {
	case convert.Set:
		return sortedAny(mapKeys(map[any]struct{}(spec)))
	case convert.Mapping:
		out := make([]any, 0, len(spec))
		for k := range spec {
			out = append(out, k)
		}
		return sortedAny(out)
	case []any:
		out := make([]any, len(spec))
		copy(out, spec)
		return sortedAny(out)
	default:
		return nil
	}
}

// Modifier returns the effective modifier value for a device.
func (df *DictFeat) Modifier(d *Device, key modifier.Key) (any, error) {
	return df.store.Get(instanceKey(d), key)
}

// SetModifier writes a modifier shared by every key of the family. A nil
// device updates the class default.
func (df *DictFeat) SetModifier(d *Device, key modifier.Key, value any) error {
	if err := df.store.Set(instanceKey(d), key, value); err != nil {
		return err
	}
	df.mu.Lock()
	defer df.mu.Unlock()
	for _, sub := range df.subs {
		if err := sub.pipesErr(d); err != nil {
			return err
		}
	}
	return nil
}

// OnModifierChange implements modifier.Owner: rebuild every materialised
// sub-feat scoped to the changed instance.
func (df *DictFeat) OnModifierChange(instance any, _ modifier.Key, _ any) {
	df.mu.Lock()
	subs := make([]*Feat, 0, len(df.subs))
	for _, sub := range df.subs {
		subs = append(subs, sub)
	}
	df.mu.Unlock()

	for _, sub := range subs {
		sub.rebuild(instance)
	}
}

// dropInstance discards per-device state across the family.
func (df *DictFeat) dropInstance(d *Device) {
	df.store.DropInstance(d)
	df.mu.Lock()
	defer df.mu.Unlock()
	for _, sub := range df.subs {
		sub.pipeMu.Lock()
		delete(sub.instPipes, d)
		sub.pipeMu.Unlock()
	}
}

// sub resolves the external key and returns the materialised sub-feat,
// creating it on first access.
func (df *DictFeat) sub(key any) (*Feat, error) {
	internal, err := df.resolveKey(key)
	if err != nil {
		return nil, err
	}

	df.mu.Lock()
	defer df.mu.Unlock()

	if sub, ok := df.subs[internal]; ok {
		return sub, nil
	}

	sub := df.newSub(internal)
	sub.name = df.displayName(df.canonicalKey(internal, key))
	sub.rebuild(nil)
	for _, inst := range df.store.Instances() {
		sub.rebuild(inst)
	}
	df.subs[internal] = sub
	return sub, nil
}

// newSub builds a sub-feat bound to one internal key, sharing the family's
// modifier store.
func (df *DictFeat) newSub(internal any) *Feat {
	sub := &Feat{
		name:               df.name,
		readOnce:           df.cfg.ReadOnce,
		allowRedundantSets: df.cfg.AllowRedundantSets,
		warnLogger:         df.cfg.WarnLogger,
		store:              df.store,
		simName:            df.name,
		simKey:             internal,
		parent:             df,
		instPipes:          make(map[*Device]featPipes),
	}
	if df.getter != nil {
		sub.getter = func(d *Device) (any, error) { return df.getter(d, internal) }
	}
	if df.setter != nil {
		sub.setter = func(d *Device, value any) error { return df.setter(d, internal, value) }
	}
	return sub
}

// resolveKey validates an external key against the key spec and returns the
// internal key.
func (df *DictFeat) resolveKey(key any) (any, error) {
	switch spec := df.keys.(type) {
	case nil:
		return key, nil
	case convert.Set:
		if _, ok := spec[key]; !ok {
			return nil, fmt.Errorf("%w: %v not in %s keys", ErrInvalidKey, key, df.name)
		}
		return key, nil
	case convert.Mapping:
		internal, ok := spec[key]
		if !ok {
			return nil, fmt.Errorf("%w: %v not in %s keys", ErrInvalidKey, key, df.name)
		}
		return internal, nil
	case []any:
		for _, k := range spec {
			if k == key {
				return key, nil
			}
		}
		return nil, fmt.Errorf("%w: %v not in %s keys", ErrInvalidKey, key, df.name)
	default:
		return nil, fmt.Errorf("%w: %s has unusable key spec %T", ErrInvalidKey, df.name, df.keys)
	}
}

// canonicalKey picks the external key a sub-feat reports under. A key-alias
// mapping can resolve several external keys to one internal key; the
// sorted-first alias wins so the element name does not depend on which alias
// was accessed first.
func (df *DictFeat) canonicalKey(internal, external any) any {
	spec, ok := df.keys.(convert.Mapping)
	if !ok {
		return external
	}
	var aliases []any
	for k, v := range spec {
		if v == internal {
			aliases = append(aliases, k)
		}
	}
	if len(aliases) == 0 {
		return external
	}
	return sortedAny(aliases)[0]
}

// displayName renders the element name used in logs, cache slots and
// statistics. String keys are quoted: eggs['answer'].
func (df *DictFeat) displayName(key any) string {
	if s, ok := key.(string); ok {
		return fmt.Sprintf("%s['%s']", df.name, s)
	}
	return fmt.Sprintf("%s[%v]", df.name, key)
}

// checkKeySpec rejects unusable key specs at declaration time.
func checkKeySpec(spec any) error {
	switch spec.(type) {
	case nil, convert.Set, convert.Mapping, []any:
		return nil
	default:
		return fmt.Errorf("%w: unusable key spec %T", ErrInvalidKey, spec)
	}
}

func mapKeys(m map[any]struct{}) []any {
	out := make([]any, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func sortedAny(keys []any) []any {
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
	})
	return keys
}
