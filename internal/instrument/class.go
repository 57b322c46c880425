package instrument

import (
	"fmt"
	"sort"
	"sync/atomic"
)

// asyncSuffix names the auto-generated asynchronous variant of an action.
const asyncSuffix = "_async"

// Class is the static descriptor table for one driver type: its feats,
// dict-feats and actions, registered once at definition time.
//
// A subclass is created by passing parent classes to NewClass; the child's
// registries start as shallow copies of the parents', so entries added to
// the child never mutate a parent's registry.
type Class struct {
	name string

	feats     map[string]*Feat
	dictFeats map[string]*DictFeat
	actions   map[string]*Action

	// asyncActions maps generated "<name>_async" entries to their action.
	asyncActions map[string]*Action

	// instances counts created devices, for default naming.
	instances atomic.Uint64

	logger Logger
}

// NewClass creates a driver class, optionally inheriting the registries of
// one or more parent classes (later parents win on name clashes).
func NewClass(name string, parents ...*Class) *Class {
	c := &Class{
		name:         name,
		feats:        make(map[string]*Feat),
		dictFeats:    make(map[string]*DictFeat),
		actions:      make(map[string]*Action),
		asyncActions: make(map[string]*Action),
		logger:       noopLogger{},
	}
	for _, p := range parents {
		for n, f := range p.feats {
			c.feats[n] = f
		}
		for n, df := range p.dictFeats {
			c.dictFeats[n] = df
		}
		for n, a := range p.actions {
			c.actions[n] = a
		}
		for n, a := range p.asyncActions {
			c.asyncActions[n] = a
		}
		if p.logger != nil {
			c.logger = p.logger
		}
	}
	return c
}

// Name returns the class name.
func (c *Class) Name() string { return c.name }

// SetLogger sets the logger inherited by devices created from this class.
func (c *Class) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// taken reports whether a name is already registered in any registry.
func (c *Class) taken(name string) bool {
	if _, ok := c.feats[name]; ok {
		return true
	}
	if _, ok := c.dictFeats[name]; ok {
		return true
	}
	if _, ok := c.actions[name]; ok {
		return true
	}
	_, ok := c.asyncActions[name]
	return ok
}

// AddFeat registers a scalar feat on the class.
func (c *Class) AddFeat(f *Feat) error {
	if c.taken(f.Name()) {
		return fmt.Errorf("%w: %s.%s", ErrDuplicateName, c.name, f.Name())
	}
	c.feats[f.Name()] = f
	return nil
}

// AddDictFeat registers a keyed feat on the class.
func (c *Class) AddDictFeat(df *DictFeat) error {
	if c.taken(df.Name()) {
		return fmt.Errorf("%w: %s.%s", ErrDuplicateName, c.name, df.Name())
	}
	c.dictFeats[df.Name()] = df
	return nil
}

// AddAction registers an action on the class. An asynchronous counterpart is
// generated and registered as "<name>_async" unless that name is taken.
func (c *Class) AddAction(a *Action) error {
	if c.taken(a.Name()) {
		return fmt.Errorf("%w: %s.%s", ErrDuplicateName, c.name, a.Name())
	}
	c.actions[a.Name()] = a

	asyncName := a.Name() + asyncSuffix
	if !c.taken(asyncName) {
		c.asyncActions[asyncName] = a
	}
	return nil
}

// Feat returns a registered scalar feat.
func (c *Class) Feat(name string) (*Feat, bool) {
	f, ok := c.feats[name]
	return f, ok
}

// DictFeat returns a registered keyed feat.
func (c *Class) DictFeat(name string) (*DictFeat, bool) {
	df, ok := c.dictFeats[name]
	return df, ok
}

// Action returns a registered action.
func (c *Class) Action(name string) (*Action, bool) {
	a, ok := c.actions[name]
	return a, ok
}

// FeatNames returns the registered scalar feat names in lexical order.
func (c *Class) FeatNames() []string {
	names := make([]string, 0, len(c.feats))
	for n := range c.feats {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DictFeatNames returns the registered keyed feat names in lexical order.
func (c *Class) DictFeatNames() []string {
	names := make([]string, 0, len(c.dictFeats))
	for n := range c.dictFeats {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ActionNames returns the registered action names in lexical order,
// including generated asynchronous variants.
func (c *Class) ActionNames() []string {
	names := make([]string, 0, len(c.actions)+len(c.asyncActions))
	for n := range c.actions {
		names = append(names, n)
	}
	for n := range c.asyncActions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
