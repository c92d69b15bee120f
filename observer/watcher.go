package observer

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
)

type Kind uint8

const (
	// KindComputed watchers are lazy: a notification only marks them dirty.
	KindComputed Kind = iota
	KindWatch
	KindRender
)

func (k Kind) String() string {
	switch k {
	case KindComputed:
		return "computed"
	case KindWatch:
		return "watch"
	case KindRender:
		return "render"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Callback is invoked by change-detecting watchers with the new and previous
// value. A returned error is reported and does not stop the flush.
type Callback func(newValue, oldValue any) error

// StopFunc tears a watcher down. Calling it more than once is harmless.
type StopFunc func()

// Watcher is the evaluatable unit of the engine: a getter, its cached value,
// and the Deps the last evaluation touched.
type Watcher struct {
	sys    *System
	id     uint64
	kind   Kind
	label  string
	getter func() (any, error)
	cb     Callback
	before func()

	lazy bool
	sync bool
	deep bool
	user bool

	dirty  bool
	active bool

	// evaluating is set while the getter runs. A sync watcher notified
	// then sets rerun instead of re-entering its own evaluation.
	evaluating bool
	rerun      bool

	value any

	deps      []*Dep
	depIDs    mapset.Set[uint64]
	newDeps   []*Dep
	newDepIDs mapset.Set[uint64]
}

func (sys *System) newWatcher(kind Kind, getter func() (any, error), cb Callback, cfg watchConfig) *Watcher {
	w := &Watcher{
		sys:       sys,
		id:        sys.nextWatcherID(),
		kind:      kind,
		label:     cfg.label,
		getter:    getter,
		cb:        cb,
		before:    cfg.before,
		lazy:      kind == KindComputed,
		sync:      cfg.sync,
		deep:      cfg.deep,
		user:      cfg.user,
		active:    true,
		value:     cfg.fallback,
		depIDs:    mapset.NewThreadUnsafeSet[uint64](),
		newDepIDs: mapset.NewThreadUnsafeSet[uint64](),
	}
	w.dirty = w.lazy
	if w.label == "" {
		w.label = fmt.Sprintf("%s#%d", kind, w.id)
	}
	sys.record(w)
	if !w.lazy {
		for n := 0; ; n++ {
			w.rerun = false
			w.value = w.get()
			if !w.rerun || w.tooManyReruns(n) {
				break
			}
		}
	}
	return w
}

// ID is the creation order of the watcher; flushes run in ascending ID.
func (w *Watcher) ID() uint64    { return w.id }
func (w *Watcher) Kind() Kind    { return w.kind }
func (w *Watcher) Label() string { return w.label }
func (w *Watcher) IsRender() bool {
	return w.kind == KindRender
}

// Active is false once the watcher has been torn down.
func (w *Watcher) Active() bool { return w.active }

// Dirty reports whether a lazy watcher must recompute on its next read.
func (w *Watcher) Dirty() bool { return w.dirty }

// DepCount is the number of Deps held from the last evaluation.
func (w *Watcher) DepCount() int { return len(w.deps) }

// Value returns the cached value without evaluating or tracking.
func (w *Watcher) Value() any { return w.value }

// get evaluates the getter with w on top of the evaluation stack and then
// replaces the held Deps with the ones this evaluation touched.
func (w *Watcher) get() any {
	w.evaluating = true
	depth := w.sys.pushTarget(w)
	value, err := w.call()
	if err != nil {
		w.sys.reportError(err, w.getterInfo())
		value = w.value
	} else if w.deep {
		w.sys.traverse(value)
	}
	w.sys.restoreTarget(depth)
	w.evaluating = false
	w.cleanupDeps()
	if !w.active {
		w.detach()
	}
	return value
}

func (w *Watcher) call() (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
	}()
	return w.getter()
}

func (w *Watcher) addDep(d *Dep) {
	if !w.active {
		return
	}
	if w.newDepIDs.Add(d.id) {
		w.newDeps = append(w.newDeps, d)
		if !w.depIDs.Contains(d.id) {
			d.addSub(w)
		}
	}
}

func (w *Watcher) cleanupDeps() {
	for _, d := range w.deps {
		if !w.newDepIDs.Contains(d.id) {
			d.removeSub(w)
		}
	}
	w.depIDs, w.newDepIDs = w.newDepIDs, w.depIDs
	w.newDepIDs.Clear()
	old := w.deps
	w.deps = w.newDeps
	clear(old)
	w.newDeps = old[:0]
}

func (w *Watcher) forgetDep(d *Dep) {
	if w.depIDs.Contains(d.id) {
		w.depIDs.Remove(d.id)
		for i, held := range w.deps {
			if held == d {
				w.deps = append(w.deps[:i], w.deps[i+1:]...)
				break
			}
		}
	}
}

// update is called by a Dep on notify.
func (w *Watcher) update() {
	if !w.active {
		return
	}
	switch {
	case w.lazy:
		w.dirty = true
	case w.sync && w.evaluating:
		w.rerun = true
	case w.sync:
		w.run()
	default:
		w.sys.sched.enqueue(w)
	}
}

// run re-evaluates a change-detecting watcher and fires its callback when
// the value changed, is a reactive container, or the watcher is deep. A sync
// watcher whose own evaluation notified it runs again once that evaluation
// has finished.
func (w *Watcher) run() {
	for n := 0; w.active; n++ {
		w.rerun = false
		w.runOnce()
		if !w.rerun || w.tooManyReruns(n) {
			return
		}
	}
}

// tooManyReruns reports a watcher that keeps invalidating itself and stops
// it from running again in this round.
func (w *Watcher) tooManyReruns(n int) bool {
	if n < w.sys.maxUpdateCount {
		return false
	}
	w.rerun = false
	w.sys.reportError(
		fmt.Errorf("%w in watcher %q", ErrCircularUpdate, w.label),
		w.getterInfo(),
	)
	return true
}

func (w *Watcher) runOnce() {
	if !w.active {
		return
	}
	value := w.get()
	if !w.active {
		return
	}
	old := w.value
	w.value = value
	if w.cb == nil {
		return
	}
	if !sameValue(value, old) || isReactive(value) || w.deep {
		w.invoke(value, old, w.callbackInfo())
	}
}

func (w *Watcher) invoke(value, old any, info string) {
	if w.cb == nil {
		return
	}
	w.sys.guard(info, func() {
		if err := w.cb(value, old); err != nil {
			w.sys.reportError(err, info)
		}
	})
}

// evaluate recomputes a lazy watcher. dirty is cleared first so a write the
// getter makes to one of its own Deps leaves it dirty.
func (w *Watcher) evaluate() {
	w.dirty = false
	w.value = w.get()
}

// Read returns the watcher's value, recomputing first if it is dirty. When
// another watcher is evaluating, every Dep this one holds is also registered
// against that watcher, so derived values are transparent for tracking.
func (w *Watcher) Read() any {
	if !w.active {
		return w.value
	}
	if w.evaluating {
		return w.value
	}
	if w.dirty {
		w.evaluate()
	}
	if w.sys.target() != nil {
		w.depend()
	}
	return w.value
}

func (w *Watcher) depend() {
	for _, d := range w.deps {
		d.Depend()
	}
}

// Teardown removes the watcher from every Dep it holds. A torn down watcher
// still sitting in the flush queue is skipped.
func (w *Watcher) Teardown() {
	if !w.active {
		return
	}
	w.active = false
	w.detach()
}

func (w *Watcher) detach() {
	for _, d := range w.deps {
		d.removeSub(w)
	}
	for _, d := range w.newDeps {
		d.removeSub(w)
	}
	clear(w.deps)
	clear(w.newDeps)
	w.deps = w.deps[:0]
	w.newDeps = w.newDeps[:0]
	w.depIDs.Clear()
	w.newDepIDs.Clear()
}

func (w *Watcher) getterInfo() string {
	switch {
	case w.kind == KindRender:
		return "render"
	case w.user:
		return fmt.Sprintf("getter for watcher %q", w.label)
	default:
		return fmt.Sprintf("getter for internal watcher %q", w.label)
	}
}

func (w *Watcher) callbackInfo() string {
	if w.user {
		return fmt.Sprintf("callback for watcher %q", w.label)
	}
	return fmt.Sprintf("callback for internal watcher %q", w.label)
}

func (w *Watcher) String() string {
	return fmt.Sprintf("Watcher{id: %d, kind: %s, label: %q}", w.id, w.kind, w.label)
}
