package observer

import (
	"fmt"
	"reflect"

	mapset "github.com/deckarep/golang-set/v2"
)

// rawKey identifies a raw container by its backing storage. Maps use a
// length of -1; slices are told apart by length as well as by their first
// element.
type rawKey struct {
	ptr uintptr
	len int
}

func mapKey(m map[string]any) rawKey {
	return rawKey{ptr: reflect.ValueOf(m).Pointer(), len: -1}
}

// sliceKey reports false for empty slices, which share no identity.
func sliceKey(items []any) (rawKey, bool) {
	if len(items) == 0 {
		return rawKey{}, false
	}
	return rawKey{ptr: reflect.ValueOf(items).Pointer(), len: len(items)}, true
}

// Observe makes v reactive. map[string]any becomes an *Object and []any an
// *Array, recursively for everything reachable from them. A raw container is
// wrapped once per System: observing it again, through any slot, yields the
// same wrapper, and a container that reaches itself resolves to itself.
// Reactive values are returned as they are; everything else, including
// Unobservable values and named map or slice types, passes through
// unwrapped.
func (sys *System) Observe(v any) any {
	switch x := v.(type) {
	case *Object, *Array, Unobservable:
		return v
	case map[string]any:
		if x == nil {
			return v
		}
		return sys.object(x)
	case []any:
		if x == nil {
			return v
		}
		return sys.array(x)
	}
	return v
}

func (sys *System) object(m map[string]any) *Object {
	if o, ok := sys.wrapped[mapKey(m)].(*Object); ok {
		return o
	}
	return sys.newObject(m)
}

func (sys *System) array(items []any) *Array {
	if k, ok := sliceKey(items); ok {
		if a, ok := sys.wrapped[k].(*Array); ok {
			return a
		}
	}
	return sys.newArray(items)
}

// Reactive wraps a record. A nil map yields an empty record.
func (sys *System) Reactive(m map[string]any) *Object {
	if m == nil {
		m = map[string]any{}
	}
	return sys.object(m)
}

// ReactiveArray wraps a sequence. A nil slice yields an empty sequence.
func (sys *System) ReactiveArray(items []any) *Array {
	if items == nil {
		items = []any{}
	}
	return sys.array(items)
}

// ReactiveData builds a root record from factory. The factory runs without
// tracking; if it panics the failure is reported under "data()" and the
// store starts out empty.
func (sys *System) ReactiveData(factory func() map[string]any) *Object {
	var data map[string]any
	failed := false
	sys.Untracked(func() {
		defer func() {
			if r := recover(); r != nil {
				failed = true
				sys.reportError(fmt.Errorf("%w: %w", ErrDataFactory, newPanicError(r)), "data()")
			}
		}()
		if factory != nil {
			data = factory()
		}
	})
	if data == nil && !failed {
		sys.warn(fmt.Errorf("%w: data functions should return a record", ErrDataFactory))
	}
	return sys.Reactive(data)
}

// traverse reads every nested reactive slot so a deep watcher depends on all
// of them.
func (sys *System) traverse(v any) {
	sys.walk(v, mapset.NewThreadUnsafeSet[uint64]())
}

func (sys *System) walk(v any, seen mapset.Set[uint64]) {
	switch x := v.(type) {
	case *Object:
		if x.frozen || !seen.Add(x.shape.id) {
			return
		}
		x.shape.Depend()
		for _, k := range x.keys {
			sys.walk(x.Get(k), seen)
		}
	case *Array:
		if !seen.Add(x.shape.id) {
			return
		}
		x.shape.Depend()
		for _, it := range x.items {
			sys.walk(it, seen)
		}
	}
}
