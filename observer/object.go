package observer

import (
	"fmt"
	"slices"
)

// Unobservable values are stored as-is: Observe never wraps them and their
// contents are never tracked.
type Unobservable interface {
	Unobservable()
}

type slot struct {
	value any
	dep   *Dep
	// fixed slots are not configurable: reads and writes pass through
	// without tracking.
	fixed bool
}

// Object is an observable record. Reads through Get register the reading
// watcher against the key's Dep; writes through Set notify it. Keys that did
// not exist at construction must be added with AddProperty and removed with
// RemoveProperty, which notify the object's shape Dep.
type Object struct {
	sys    *System
	shape  *Dep
	keys   []string
	slots  map[string]*slot
	raw    map[string]any
	frozen bool
}

func (sys *System) newObject(m map[string]any) *Object {
	o := &Object{
		sys:   sys,
		shape: sys.newDep(),
		keys:  make([]string, 0, len(m)),
		slots: make(map[string]*slot, len(m)),
		raw:   m,
	}
	sys.wrapped[mapKey(m)] = o
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		o.define(k, m[k], false)
	}
	return o
}

func (o *Object) define(key string, value any, fixed bool) *slot {
	s := &slot{fixed: fixed}
	if fixed {
		s.value = value
	} else {
		s.value = o.sys.Observe(value)
		s.dep = o.sys.newDep()
	}
	o.keys = append(o.keys, key)
	o.slots[key] = s
	return s
}

func (o *Object) trackShape() {
	if !o.frozen && o.sys.target() != nil {
		o.shape.Depend()
	}
}

// Get returns the value stored under key, nil when absent.
func (o *Object) Get(key string) any {
	s, ok := o.slots[key]
	if !ok {
		o.trackShape()
		return nil
	}
	if o.frozen || s.fixed {
		return s.value
	}
	if o.sys.target() != nil {
		s.dep.Depend()
		dependChild(s.value)
	}
	return s.value
}

// Set stores value under key and notifies the key's watchers unless value is
// the same as what is already stored. Setting a missing key adds it.
func (o *Object) Set(key string, value any) {
	s, ok := o.slots[key]
	if !ok {
		o.AddProperty(key, value)
		return
	}
	if o.frozen || s.fixed {
		s.value = value
		return
	}
	if sameValue(s.value, value) {
		return
	}
	s.value = o.sys.Observe(value)
	s.dep.Notify()
}

// Has reports whether key exists and tracks the object's shape.
func (o *Object) Has(key string) bool {
	o.trackShape()
	_, ok := o.slots[key]
	return ok
}

// Keys returns the keys in insertion order; keys present at construction
// come first, sorted.
func (o *Object) Keys() []string {
	o.trackShape()
	return slices.Clone(o.keys)
}

func (o *Object) Len() int {
	o.trackShape()
	return len(o.keys)
}

// AddProperty defines a new reactive key and notifies the shape Dep. If the
// key already exists this is Set.
func (o *Object) AddProperty(key string, value any) {
	if _, ok := o.slots[key]; ok {
		o.Set(key, value)
		return
	}
	if o.frozen {
		o.sys.warn(fmt.Errorf("observer: cannot add property %q to a frozen object", key))
		return
	}
	o.define(key, value, false)
	o.shape.Notify()
}

// RemoveProperty deletes key, notifies its watchers and the shape Dep, and
// discards the key's Dep.
func (o *Object) RemoveProperty(key string) {
	s, ok := o.slots[key]
	if !ok || o.frozen {
		return
	}
	delete(o.slots, key)
	if i := slices.Index(o.keys, key); i >= 0 {
		o.keys = slices.Delete(o.keys, i, i+1)
	}
	if s.dep != nil {
		s.dep.Notify()
		s.dep.discard()
	}
	o.shape.Notify()
}

// DefineFixed stores value under key as a non-configurable slot: it is never
// wrapped and reads and writes on it are not tracked. Watchers of a key that
// was reactive until now are notified once and then released.
func (o *Object) DefineFixed(key string, value any) {
	if s, ok := o.slots[key]; ok {
		dep := s.dep
		s.dep = nil
		s.fixed = true
		s.value = value
		if dep != nil {
			dep.Notify()
			dep.discard()
		}
		return
	}
	o.define(key, value, true)
	if !o.frozen {
		o.shape.Notify()
	}
}

// Freeze turns every slot into an untracked pass-through and stops the
// object from gaining or losing keys. Watchers holding its Deps are released.
func (o *Object) Freeze() {
	if o.frozen {
		return
	}
	o.frozen = true
	for _, s := range o.slots {
		if s.dep != nil {
			s.dep.discard()
		}
	}
	o.shape.discard()
}

func (o *Object) IsFrozen() bool {
	return o.frozen
}

// ToMap returns an untracked deep copy with reactive containers unwrapped.
// Containers reached more than once, cycles included, are copied once.
func (o *Object) ToMap() map[string]any {
	return o.toMap(map[any]any{})
}

func (o *Object) toMap(copies map[any]any) map[string]any {
	m := make(map[string]any, len(o.keys))
	copies[o] = m
	for _, k := range o.keys {
		m[k] = unwrap(o.slots[k].value, copies)
	}
	return m
}

// String lists the keys only; values may refer back to o.
func (o *Object) String() string {
	return fmt.Sprintf("Object%q", o.keys)
}

func unwrap(v any, copies map[any]any) any {
	switch x := v.(type) {
	case *Object:
		if c, ok := copies[x]; ok {
			return c
		}
		return x.toMap(copies)
	case *Array:
		if c, ok := copies[x]; ok {
			return c
		}
		return x.toSlice(copies)
	}
	return v
}

// dependChild registers the shape of a container read through a parent slot
// so in-place mutation of the child reaches whoever read the parent.
func dependChild(v any) {
	switch c := v.(type) {
	case *Object:
		if !c.frozen {
			c.shape.Depend()
		}
	case *Array:
		c.shape.Depend()
		c.dependItems(nil)
	}
}

// Watchers is the number of watchers subscribed to key; 0 for missing,
// fixed or frozen slots.
func (o *Object) Watchers(key string) int {
	s, ok := o.slots[key]
	if !ok || s.dep == nil {
		return 0
	}
	return s.dep.Len()
}

// ShapeWatchers is the number of watchers subscribed to the object's shape.
func (o *Object) ShapeWatchers() int {
	return o.shape.Len()
}

// System is the system the object belongs to.
func (o *Object) System() *System {
	return o.sys
}
