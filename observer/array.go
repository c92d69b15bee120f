package observer

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// Array is an observable sequence. Positions are not tracked one by one:
// every read depends on the array's single shape Dep and every mutation
// notifies it once.
type Array struct {
	sys   *System
	shape *Dep
	items []any
	raw   []any
}

func (sys *System) newArray(items []any) *Array {
	a := &Array{
		sys:   sys,
		shape: sys.newDep(),
		items: make([]any, len(items)),
		raw:   items,
	}
	if k, ok := sliceKey(items); ok {
		sys.wrapped[k] = a
	}
	for i, v := range items {
		a.items[i] = sys.Observe(v)
	}
	return a
}

func (a *Array) track() {
	if a.sys.target() != nil {
		a.shape.Depend()
	}
}

// dependItems registers the shape of every nested container.
func (a *Array) dependItems(seen mapset.Set[uint64]) {
	for _, it := range a.items {
		switch c := it.(type) {
		case *Object:
			if !c.frozen {
				c.shape.Depend()
			}
		case *Array:
			if seen == nil {
				seen = mapset.NewThreadUnsafeSet(a.shape.id)
			}
			if seen.Add(c.shape.id) {
				c.shape.Depend()
				c.dependItems(seen)
			}
		}
	}
}

// Get returns the item at i, nil when out of range.
func (a *Array) Get(i int) any {
	a.track()
	if i < 0 || i >= len(a.items) {
		return nil
	}
	v := a.items[i]
	if a.sys.target() != nil {
		dependChild(v)
	}
	return v
}

func (a *Array) Len() int {
	a.track()
	return len(a.items)
}

// Items returns a copy of the current items.
func (a *Array) Items() []any {
	a.track()
	return slices.Clone(a.items)
}

// Set replaces the item at i, growing the array with nils when i is past
// the end. Writing the same value is a no-op.
func (a *Array) Set(i int, value any) {
	if i < 0 {
		return
	}
	if i < len(a.items) && sameValue(a.items[i], value) {
		return
	}
	if i >= len(a.items) {
		a.items = append(a.items, make([]any, i-len(a.items)+1)...)
	}
	a.items[i] = a.sys.Observe(value)
	a.shape.Notify()
}

func (a *Array) Push(values ...any) int {
	if len(values) == 0 {
		return len(a.items)
	}
	for _, v := range values {
		a.items = append(a.items, a.sys.Observe(v))
	}
	a.shape.Notify()
	return len(a.items)
}

func (a *Array) Pop() any {
	n := len(a.items)
	if n == 0 {
		return nil
	}
	v := a.items[n-1]
	a.items[n-1] = nil
	a.items = a.items[:n-1]
	a.shape.Notify()
	return v
}

func (a *Array) Shift() any {
	if len(a.items) == 0 {
		return nil
	}
	v := a.items[0]
	a.items = slices.Delete(a.items, 0, 1)
	a.shape.Notify()
	return v
}

func (a *Array) Unshift(values ...any) int {
	if len(values) == 0 {
		return len(a.items)
	}
	wrapped := make([]any, len(values))
	for i, v := range values {
		wrapped[i] = a.sys.Observe(v)
	}
	a.items = slices.Insert(a.items, 0, wrapped...)
	a.shape.Notify()
	return len(a.items)
}

// Splice removes deleteCount items at start and inserts values there. A
// negative start counts from the end. It returns the removed items.
func (a *Array) Splice(start, deleteCount int, values ...any) []any {
	n := len(a.items)
	if start < 0 {
		start = max(n+start, 0)
	}
	start = min(start, n)
	deleteCount = min(max(deleteCount, 0), n-start)
	if deleteCount == 0 && len(values) == 0 {
		return nil
	}
	removed := slices.Clone(a.items[start : start+deleteCount])
	wrapped := make([]any, len(values))
	for i, v := range values {
		wrapped[i] = a.sys.Observe(v)
	}
	a.items = slices.Replace(a.items, start, start+deleteCount, wrapped...)
	a.shape.Notify()
	return removed
}

// Sort orders the items with cmp, stably. A nil cmp leaves the array as it
// is.
func (a *Array) Sort(cmp func(x, y any) int) {
	if cmp == nil || len(a.items) < 2 {
		return
	}
	slices.SortStableFunc(a.items, cmp)
	a.shape.Notify()
}

func (a *Array) Reverse() {
	if len(a.items) < 2 {
		return
	}
	slices.Reverse(a.items)
	a.shape.Notify()
}

// ToSlice returns an untracked deep copy with reactive containers unwrapped.
func (a *Array) ToSlice() []any {
	return a.toSlice(map[any]any{})
}

func (a *Array) toSlice(copies map[any]any) []any {
	out := make([]any, len(a.items))
	copies[a] = out
	for i, v := range a.items {
		out[i] = unwrap(v, copies)
	}
	return out
}

// Watchers is the number of watchers subscribed to the array's shape.
func (a *Array) Watchers() int {
	return a.shape.Len()
}

func (a *Array) System() *System {
	return a.sys
}
