package observer_test

import (
	"math"
	"testing"

	"github.com/delaneyj/watchparty/observer"
	"github.com/stretchr/testify/assert"
)

// should register a watcher once per dependency however often it reads it
func TestSingleRegistrationPerEvaluation(t *testing.T) {
	sys := newSystem(t)
	store := sys.Reactive(map[string]any{"a": 1})
	d := sys.DefineDerived(func() any {
		sum := 0
		for i := 0; i < 5; i++ {
			sum += store.Get("a").(int)
		}
		return sum
	})

	assert.Equal(t, 5, d.Read())
	assert.Equal(t, 1, d.DepCount())
	assert.Equal(t, 1, store.Watchers("a"))

	store.Set("a", 2)
	assert.Equal(t, 10, d.Read())
	assert.Equal(t, 1, d.DepCount())
	assert.Equal(t, 1, store.Watchers("a"))
}

// should not notify when the written value is the same
func TestEqualWriteIsNoop(t *testing.T) {
	sys := newSystem(t)
	store := sys.Reactive(map[string]any{"a": 1, "n": math.NaN()})
	runs := 0
	sys.Watch(func() any {
		runs++
		store.Get("n")
		return store.Get("a")
	}, nil, observer.Sync())
	assert.Equal(t, 1, runs)

	store.Set("a", 1)
	assert.Equal(t, 1, runs)
	store.Set("n", math.NaN())
	assert.Equal(t, 1, runs)

	store.Set("a", 2)
	assert.Equal(t, 2, runs)
	store.Set("a", 2)
	assert.Equal(t, 2, runs)
}

// should recompute a derived value only when read after a change
func TestLazyCoalescing(t *testing.T) {
	sys := newSystem(t)
	store := sys.Reactive(map[string]any{"a": 1})
	evals := 0
	c := sys.DefineDerived(func() any {
		evals++
		return store.Get("a").(int) * 2
	})
	assert.Equal(t, 0, evals)
	assert.True(t, c.Dirty())

	assert.Equal(t, 2, c.Read())
	assert.Equal(t, 1, evals)

	for i := 2; i <= 5; i++ {
		store.Set("a", i)
	}
	assert.True(t, c.Dirty())
	assert.Equal(t, 1, evals)

	assert.Equal(t, 10, c.Read())
	assert.Equal(t, 2, evals)
	assert.Equal(t, 10, c.Read())
	assert.Equal(t, 2, evals)
}

// should drop dependencies that the latest evaluation did not touch
func TestDynamicDependencyDrop(t *testing.T) {
	sys := newSystem(t)
	store := sys.Reactive(map[string]any{"flag": true, "a": 1})
	runs := 0
	sys.Watch(func() any {
		runs++
		if store.Get("flag").(bool) {
			return store.Get("a")
		}
		return nil
	}, nil, observer.Sync())
	assert.Equal(t, 1, runs)

	store.Set("a", 2)
	assert.Equal(t, 2, runs)

	store.Set("flag", false)
	assert.Equal(t, 3, runs)
	assert.Equal(t, 0, store.Watchers("a"))

	store.Set("a", 3)
	assert.Equal(t, 3, runs)
}

// should make a torn down watcher inert
func TestTeardownInertness(t *testing.T) {
	sys := newSystem(t)
	store := sys.Reactive(map[string]any{"a": 1})
	runs, calls := 0, 0
	stop := sys.Watch(func() any {
		runs++
		return store.Get("a")
	}, func(_, _ any) error {
		calls++
		return nil
	})
	assert.Equal(t, 1, store.Watchers("a"))

	stop()
	stop()
	assert.Equal(t, 0, store.Watchers("a"))

	store.Set("a", 2)
	sys.Flush()
	assert.Equal(t, 1, runs)
	assert.Equal(t, 0, calls)
}

// should skip a watcher torn down while it sits in the queue
func TestTeardownWhileQueued(t *testing.T) {
	sys := newSystem(t)
	store := sys.Reactive(map[string]any{"a": 1})
	runs := 0
	stop := sys.Watch(func() any {
		runs++
		return store.Get("a")
	}, nil)

	store.Set("a", 2)
	assert.True(t, sys.Pending())
	stop()
	sys.Flush()
	assert.Equal(t, 1, runs)
	assert.False(t, sys.Pending())
}

// should call the callback with the current value before returning
func TestImmediateCallback(t *testing.T) {
	sys := newSystem(t)
	store := sys.Reactive(map[string]any{"a": 1})
	var got [][2]any
	sys.Watch(func() any {
		return store.Get("a")
	}, func(n, o any) error {
		got = append(got, [2]any{n, o})
		return nil
	}, observer.Immediate())
	assert.Equal(t, [][2]any{{1, nil}}, got)

	store.Set("a", 2)
	sys.Flush()
	assert.Equal(t, [][2]any{{1, nil}, {2, 1}}, got)
}

// should not track reads made inside the immediate callback
func TestImmediateCallbackUntracked(t *testing.T) {
	sys := newSystem(t)
	store := sys.Reactive(map[string]any{"a": 1, "b": 1})
	sys.Watch(func() any {
		return store.Get("a")
	}, func(_, _ any) error {
		store.Get("b")
		return nil
	}, observer.Immediate())
	assert.Equal(t, 0, store.Watchers("b"))
}

// should fire on a reactive value even when it is the same container
func TestCallbackFiresForSameReactiveValue(t *testing.T) {
	sys := newSystem(t)
	store := sys.Reactive(map[string]any{
		"user": map[string]any{"name": "a"},
	})
	calls := 0
	sys.Watch(func() any {
		return store.Get("user")
	}, func(n, o any) error {
		calls++
		assert.Same(t, n, o)
		return nil
	})
	user := store.Get("user").(*observer.Object)

	user.AddProperty("age", 3)
	sys.Flush()
	assert.Equal(t, 1, calls)

	user.Set("name", "b")
	sys.Flush()
	assert.Equal(t, 1, calls)
}

// should depend on every nested slot when deep
func TestDeepWatch(t *testing.T) {
	sys := newSystem(t)
	store := sys.Reactive(map[string]any{
		"user": map[string]any{
			"name": "a",
			"tags": []any{"x"},
		},
	})
	calls := 0
	sys.Watch(func() any {
		return store.Get("user")
	}, func(_, _ any) error {
		calls++
		return nil
	}, observer.Deep())
	user := store.Get("user").(*observer.Object)

	user.Set("name", "b")
	sys.Flush()
	assert.Equal(t, 1, calls)

	user.Get("tags").(*observer.Array).Push("y")
	sys.Flush()
	assert.Equal(t, 2, calls)
}

// should resolve dotted paths through records and sequences
func TestWatchPath(t *testing.T) {
	sys := newSystem(t)
	store := sys.Reactive(map[string]any{
		"user": map[string]any{"tags": []any{"a", "b"}},
	})
	var got [][2]any
	stop := sys.WatchPath(store, "user.tags.1", func(n, o any) error {
		got = append(got, [2]any{n, o})
		return nil
	})
	tags := store.Get("user").(*observer.Object).Get("tags").(*observer.Array)

	tags.Set(1, "c")
	sys.Flush()
	assert.Equal(t, [][2]any{{"c", "b"}}, got)

	tags.Set(0, "z")
	sys.Flush()
	assert.Len(t, got, 1)

	stop()
	tags.Set(1, "d")
	sys.Flush()
	assert.Len(t, got, 1)
}

// should warn about a path it cannot parse and hold nil
func TestWatchPathInvalid(t *testing.T) {
	logger, buf := bufferLogger()
	sys := newSystem(t, observer.WithLogger(logger))
	store := sys.Reactive(map[string]any{"a": []any{1}})
	calls := 0
	stop := sys.WatchPath(store, "a[0]", func(_, _ any) error {
		calls++
		return nil
	}, observer.Immediate())
	assert.Contains(t, buf.String(), "invalid watch path")
	assert.Equal(t, 1, calls)
	stop()
}

// should stay quiet when debug warnings are off
func TestDebugOff(t *testing.T) {
	logger, buf := bufferLogger()
	sys := newSystem(t, observer.WithLogger(logger), observer.WithDebug(false))
	sys.Watch(nil, nil)
	assert.Empty(t, buf.String())
}

// should not track reads inside Untracked
func TestUntracked(t *testing.T) {
	sys := newSystem(t)
	store := sys.Reactive(map[string]any{"a": 1, "b": 1})
	var tracking []bool
	d := sys.DefineDerived(func() any {
		tracking = append(tracking, sys.Tracking())
		var b any
		sys.Untracked(func() {
			tracking = append(tracking, sys.Tracking())
			b = store.Get("b")
		})
		return store.Get("a").(int) + b.(int)
	})
	assert.False(t, sys.Tracking())
	assert.Equal(t, 2, d.Read())
	assert.Equal(t, []bool{true, false}, tracking)
	assert.Equal(t, 1, store.Watchers("a"))
	assert.Equal(t, 0, store.Watchers("b"))
}

// should name watchers by kind and id unless labelled
func TestWatcherLabels(t *testing.T) {
	sys := newSystem(t)
	d := sys.DefineDerived(func() any { return 1 })
	assert.Equal(t, "computed#1", d.Label())
	assert.Equal(t, observer.KindComputed, d.Kind())
	assert.Equal(t, uint64(1), d.ID())

	named := sys.DefineDerived(func() any { return 1 }, observer.Label("total"))
	assert.Equal(t, "total", named.Label())
	assert.Equal(t, "render", observer.KindRender.String())
	assert.Equal(t, "Kind(9)", observer.Kind(9).String())
}

// should hand every render tree to patch and run the before hook first
func TestRegisterRender(t *testing.T) {
	sys := newSystem(t)
	store := sys.Reactive(map[string]any{"title": "a"})
	var events []string
	w := sys.RegisterRender(func() any {
		events = append(events, "render")
		return "<h1>" + store.Get("title").(string) + "</h1>"
	}, func(tree any) error {
		events = append(events, "patch "+tree.(string))
		return nil
	}, observer.Before(func() {
		events = append(events, "before")
	}))
	assert.True(t, w.IsRender())
	assert.Equal(t, "<h1>a</h1>", w.Value())
	assert.Equal(t, []string{"render", "patch <h1>a</h1>"}, events)

	store.Set("title", "b")
	assert.Len(t, events, 2)
	sys.Flush()
	assert.Equal(t, []string{
		"render", "patch <h1>a</h1>",
		"before", "render", "patch <h1>b</h1>",
	}, events)
}

// should keep every dependency of a sync watcher that writes what it read
func TestSyncWatcherWritesOwnDependency(t *testing.T) {
	sys := newSystem(t)
	store := sys.Reactive(map[string]any{"a": 0, "c": 0})
	runs := 0
	sys.Watch(func() any {
		runs++
		if store.Get("a").(int) == 0 {
			store.Set("a", 1)
		}
		return store.Get("c")
	}, nil, observer.Sync())

	assert.Equal(t, 2, runs)
	assert.Equal(t, 1, store.Watchers("a"))
	assert.Equal(t, 1, store.Watchers("c"))

	store.Set("a", 5)
	assert.Equal(t, 3, runs)
	store.Set("c", 1)
	assert.Equal(t, 4, runs)
}

// should run a sync watcher again after the evaluation that notified it
func TestSyncWatcherRerunsAfterSelfWrite(t *testing.T) {
	sys := newSystem(t)
	store := sys.Reactive(map[string]any{"n": 0, "go": false})
	var seen []any
	sys.Watch(func() any {
		n := store.Get("n").(int)
		if store.Get("go").(bool) && n < 3 {
			store.Set("n", n+1)
		}
		return n
	}, func(v, _ any) error {
		seen = append(seen, v)
		return nil
	}, observer.Sync())

	store.Set("go", true)
	assert.Equal(t, []any{1, 2, 3}, seen)
	assert.Equal(t, 3, store.Get("n"))
	assert.Equal(t, 1, store.Watchers("n"))
}

// should report a sync watcher that keeps invalidating itself
func TestSyncWatcherSelfInvalidatingLoop(t *testing.T) {
	sys, reports := collectingSystem(observer.WithMaxUpdateCount(5))
	store := sys.Reactive(map[string]any{"a": 0})
	sys.Watch(func() any {
		v := store.Get("a").(int)
		store.Set("a", v+1)
		return v
	}, nil, observer.Sync(), observer.Label("spin"))

	assert.Equal(t, 6, store.Get("a"))
	if assert.Len(t, *reports, 1) {
		assert.ErrorIs(t, (*reports)[0].err, observer.ErrCircularUpdate)
		assert.Equal(t, `getter for watcher "spin"`, (*reports)[0].info)
	}
}

// should stay dirty when a derived value writes a slot it read
func TestLazyWriteDuringOwnEvaluation(t *testing.T) {
	sys := newSystem(t)
	store := sys.Reactive(map[string]any{"a": 0})
	evals := 0
	d := sys.DefineDerived(func() any {
		evals++
		v := store.Get("a").(int)
		if v == 0 {
			store.Set("a", 1)
		}
		return v
	})

	assert.Equal(t, 0, d.Read())
	assert.True(t, d.Dirty())
	assert.Equal(t, 1, d.Read())
	assert.False(t, d.Dirty())
	assert.Equal(t, 2, evals)
	assert.Equal(t, 1, store.Watchers("a"))
}
