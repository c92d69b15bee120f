// Package persist snapshots observable records to YAML and restores them
// without replacing the containers watchers already hold.
package persist

import (
	"errors"
	"fmt"
	"slices"

	"github.com/delaneyj/watchparty/observer"
	"gopkg.in/yaml.v3"
)

var (
	ErrNotRecord = errors.New("persist: snapshot is not a record")
	ErrCyclic    = errors.New("persist: record contains itself")
)

// Marshal encodes an untracked snapshot of o. Records that reach themselves
// cannot be written as YAML and fail with ErrCyclic; shared containers that
// do not form a cycle are written once per place they appear.
func Marshal(o *observer.Object) ([]byte, error) {
	var err error
	o.System().Untracked(func() {
		err = acyclic(o, map[any]bool{})
	})
	if err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(o.ToMap())
	if err != nil {
		return nil, fmt.Errorf("yaml marshal: %w", err)
	}
	return data, nil
}

// acyclic walks the containers reachable from v; path holds the ones on the
// way down.
func acyclic(v any, path map[any]bool) error {
	var children []any
	switch c := v.(type) {
	case *observer.Object:
		for _, k := range c.Keys() {
			children = append(children, c.Get(k))
		}
	case *observer.Array:
		children = c.Items()
	default:
		return nil
	}
	if path[v] {
		return ErrCyclic
	}
	path[v] = true
	defer delete(path, v)
	for _, child := range children {
		if err := acyclic(child, path); err != nil {
			return err
		}
	}
	return nil
}

func decode(data []byte) (map[string]any, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if m == nil {
		return nil, ErrNotRecord
	}
	return m, nil
}

// Unmarshal decodes a snapshot into a new record owned by sys.
func Unmarshal(sys *observer.System, data []byte) (*observer.Object, error) {
	m, err := decode(data)
	if err != nil {
		return nil, err
	}
	return sys.Reactive(m), nil
}

// Restore applies a snapshot to o in one batch. Nested records and sequences
// are updated in place, so only slots whose value differs notify.
func Restore(o *observer.Object, data []byte) error {
	m, err := decode(data)
	if err != nil {
		return err
	}
	o.System().Batch(func() {
		restoreObject(o, m)
	})
	return nil
}

func restoreObject(o *observer.Object, m map[string]any) {
	for _, k := range o.Keys() {
		if _, ok := m[k]; !ok {
			o.RemoveProperty(k)
		}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		restoreValue(o.Get(k), m[k], func(v any) { o.Set(k, v) })
	}
}

func restoreArray(a *observer.Array, items []any) {
	for i, v := range items {
		restoreValue(a.Get(i), v, func(v any) { a.Set(i, v) })
	}
	if n := a.Len(); n > len(items) {
		a.Splice(len(items), n-len(items))
	}
}

func restoreValue(cur, next any, set func(any)) {
	switch c := cur.(type) {
	case *observer.Object:
		if m, ok := next.(map[string]any); ok && !c.IsFrozen() {
			restoreObject(c, m)
			return
		}
	case *observer.Array:
		if items, ok := next.([]any); ok {
			restoreArray(c, items)
			return
		}
	}
	set(next)
}
