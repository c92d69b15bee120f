package observer_test

import (
	"testing"

	"github.com/delaneyj/watchparty/observer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// should wrap nested records and sequences at construction
func TestReactiveWrapsNested(t *testing.T) {
	sys := newSystem(t)
	store := sys.Reactive(map[string]any{
		"user":  map[string]any{"name": "a"},
		"items": []any{1, map[string]any{"b": 2}},
		"count": 3,
	})
	assert.IsType(t, &observer.Object{}, store.Get("user"))
	items, ok := store.Get("items").(*observer.Array)
	require.True(t, ok)
	assert.IsType(t, &observer.Object{}, items.Get(1))
	assert.Equal(t, 3, store.Get("count"))

	assert.Same(t, store, sys.Observe(store))
	assert.Equal(t, []string{"count", "items", "user"}, store.Keys())
}

type opaque struct{ m map[string]any }

func (opaque) Unobservable() {}

type namedMap map[string]any

// should pass through values it does not observe
func TestObservePassThrough(t *testing.T) {
	sys := newSystem(t)
	o := opaque{m: map[string]any{"a": 1}}
	assert.Equal(t, o, sys.Observe(o))
	nm := namedMap{"a": 1}
	assert.Equal(t, nm, sys.Observe(nm))
	assert.Nil(t, sys.Observe(nil))
	assert.Equal(t, 1, sys.Observe(1))
}

// should wrap records assigned later
func TestSetWrapsAssignedValue(t *testing.T) {
	sys := newSystem(t)
	store := sys.Reactive(map[string]any{"cfg": nil})
	store.Set("cfg", map[string]any{"debug": true})
	cfg, ok := store.Get("cfg").(*observer.Object)
	require.True(t, ok)
	assert.Equal(t, true, cfg.Get("debug"))
	assert.Equal(t, map[string]any{"cfg": map[string]any{"debug": true}}, store.ToMap())
}

// should treat the raw map a record was built from as the same value
func TestSetRawIdentityIsNoop(t *testing.T) {
	sys := newSystem(t)
	inner := map[string]any{"name": "a"}
	store := sys.Reactive(map[string]any{"user": inner})
	runs := 0
	sys.Watch(func() any {
		runs++
		return store.Get("user")
	}, nil, observer.Sync())

	store.Set("user", inner)
	assert.Equal(t, 1, runs)

	store.Set("user", map[string]any{"name": "a"})
	assert.Equal(t, 2, runs)
}

// should notify key readers when a key is added
func TestAddProperty(t *testing.T) {
	sys := newSystem(t)
	store := sys.Reactive(map[string]any{"a": 1})
	var keys [][]string
	sys.Watch(func() any {
		return store.Keys()
	}, func(n, _ any) error {
		keys = append(keys, n.([]string))
		return nil
	})
	var later []any
	sys.Watch(func() any {
		return store.Get("later")
	}, func(n, _ any) error {
		later = append(later, n)
		return nil
	})

	store.AddProperty("b", 2)
	sys.Flush()
	assert.Equal(t, [][]string{{"a", "b"}}, keys)
	assert.Empty(t, later)

	store.Set("later", 5)
	sys.Flush()
	assert.Equal(t, []any{5}, later)
	assert.Equal(t, [][]string{{"a", "b"}, {"a", "b", "later"}}, keys)
	assert.True(t, store.Has("later"))
	assert.Equal(t, 3, store.Len())
}

// should notify readers of a removed key and release its subscribers
func TestRemoveProperty(t *testing.T) {
	sys := newSystem(t)
	store := sys.Reactive(map[string]any{"a": 1, "b": 2})
	var got []any
	sys.Watch(func() any {
		return store.Get("a")
	}, func(n, _ any) error {
		got = append(got, n)
		return nil
	})
	assert.Equal(t, 1, store.Watchers("a"))

	store.RemoveProperty("a")
	assert.Equal(t, 0, store.Watchers("a"))
	sys.Flush()
	assert.Equal(t, []any{nil}, got)
	assert.False(t, store.Has("a"))
	assert.Equal(t, []string{"b"}, store.Keys())

	store.RemoveProperty("missing")
	assert.False(t, sys.Pending())

	store.AddProperty("a", 3)
	sys.Flush()
	assert.Equal(t, []any{nil, 3}, got)
}

// should pass frozen records through untracked
func TestFreeze(t *testing.T) {
	logger, buf := bufferLogger()
	sys := newSystem(t, observer.WithLogger(logger))
	store := sys.Reactive(map[string]any{"a": 1})
	runs := 0
	sys.Watch(func() any {
		runs++
		return store.Get("a")
	}, nil, observer.Sync())

	store.Freeze()
	assert.True(t, store.IsFrozen())
	assert.Equal(t, 0, store.Watchers("a"))

	store.Set("a", 2)
	assert.Equal(t, 1, runs)
	assert.Equal(t, 2, store.Get("a"))

	store.AddProperty("b", 1)
	assert.False(t, store.Has("b"))
	assert.Contains(t, buf.String(), "frozen")
}

// should never track a fixed slot
func TestDefineFixed(t *testing.T) {
	sys := newSystem(t)
	store := sys.Reactive(map[string]any{"a": 1})
	store.DefineFixed("id", map[string]any{"raw": true})
	store.DefineFixed("a", 1)

	runs := 0
	sys.Watch(func() any {
		runs++
		store.Get("a")
		return store.Get("id")
	}, nil, observer.Sync())
	assert.IsType(t, map[string]any{}, store.Get("id"))
	assert.Equal(t, 0, store.Watchers("a"))

	store.Set("a", 2)
	store.Set("id", "x")
	assert.Equal(t, 1, runs)
	assert.Equal(t, "x", store.Get("id"))
}

// should start empty when the data factory fails
func TestReactiveDataPanic(t *testing.T) {
	sys, reports := collectingSystem()
	store := sys.ReactiveData(func() map[string]any {
		panic("broken data")
	})
	assert.Equal(t, 0, store.Len())
	require.Len(t, *reports, 1)
	r := (*reports)[0]
	assert.Equal(t, "data()", r.info)
	assert.ErrorIs(t, r.err, observer.ErrDataFactory)
	var pe *observer.PanicError
	require.ErrorAs(t, r.err, &pe)
	assert.Equal(t, "broken data", pe.Value)
	assert.NotEmpty(t, pe.Stack)
}

// should warn when the data factory returns nothing
func TestReactiveDataNil(t *testing.T) {
	logger, buf := bufferLogger()
	sys := newSystem(t, observer.WithLogger(logger))
	store := sys.ReactiveData(func() map[string]any { return nil })
	assert.Equal(t, 0, store.Len())
	assert.Contains(t, buf.String(), "data factory failed")

	store = sys.ReactiveData(func() map[string]any {
		return map[string]any{"a": 1}
	})
	assert.Equal(t, 1, store.Get("a"))
}

// should not track reads made by the data factory
func TestReactiveDataUntracked(t *testing.T) {
	sys := newSystem(t)
	base := sys.Reactive(map[string]any{"seed": 1})
	d := sys.DefineDerived(func() any {
		return sys.ReactiveData(func() map[string]any {
			return map[string]any{"seed": base.Get("seed")}
		})
	})
	d.Read()
	assert.Equal(t, 0, base.Watchers("seed"))
}

// should share one wrapper for a raw record reached through two slots
func TestSharedRawRecord(t *testing.T) {
	sys := newSystem(t)
	inner := map[string]any{"x": 1}
	store := sys.Reactive(map[string]any{"a": inner, "b": inner})
	a := store.Get("a").(*observer.Object)
	b := store.Get("b").(*observer.Object)
	require.Same(t, a, b)
	assert.Same(t, a, sys.Observe(inner))

	var seen []any
	sys.Watch(func() any {
		return b.Get("x")
	}, func(n, _ any) error {
		seen = append(seen, n)
		return nil
	}, observer.Sync())
	a.Set("x", 2)
	assert.Equal(t, 2, b.Get("x"))
	assert.Equal(t, []any{2}, seen)
	assert.Equal(t, 1, a.Watchers("x"))
}

// should share one wrapper for a raw record added under two keys
func TestSharedRawRecordAdded(t *testing.T) {
	sys := newSystem(t)
	m := map[string]any{"x": 1}
	store := sys.Reactive(nil)
	store.AddProperty("a", m)
	store.AddProperty("b", m)
	store.Get("a").(*observer.Object).Set("x", 9)
	assert.Equal(t, 9, store.Get("b").(*observer.Object).Get("x"))
	assert.Same(t, store.Get("a"), sys.Reactive(m))
}

// should resolve a raw record that contains itself to its own wrapper
func TestSelfContainingRecord(t *testing.T) {
	sys := newSystem(t)
	m := map[string]any{"n": 1}
	m["self"] = m
	store := sys.Reactive(m)
	require.Same(t, store, store.Get("self"))
	assert.Equal(t, `Object["n" "self"]`, store.String())

	calls := 0
	sys.Watch(func() any {
		return store
	}, func(_, _ any) error {
		calls++
		return nil
	}, observer.Deep())
	store.Set("n", 2)
	sys.Flush()
	assert.Equal(t, 1, calls)

	got := store.ToMap()
	self, ok := got["self"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 2, self["n"])
	got["n"] = 42
	assert.Equal(t, 42, self["n"])
}

// should notify readers of a key that becomes fixed, then stop tracking it
func TestDefineFixedNotifiesReaders(t *testing.T) {
	sys := newSystem(t)
	store := sys.Reactive(map[string]any{"a": 1})
	var seen []any
	sys.Watch(func() any {
		return store.Get("a")
	}, func(n, _ any) error {
		seen = append(seen, n)
		return nil
	}, observer.Sync())

	store.DefineFixed("a", 2)
	assert.Equal(t, []any{2}, seen)
	assert.Equal(t, 0, store.Watchers("a"))

	store.Set("a", 3)
	assert.Equal(t, []any{2}, seen)
}
