package observer

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// Dep is the subscriber list of one observable slot. Subscribers are kept in
// insertion order and registered at most once.
type Dep struct {
	id     uint64
	sys    *System
	subs   []*Watcher
	subIDs mapset.Set[uint64]
}

func (sys *System) newDep() *Dep {
	sys.depIDs++
	return &Dep{
		id:     sys.depIDs,
		sys:    sys,
		subIDs: mapset.NewThreadUnsafeSet[uint64](),
	}
}

func (d *Dep) ID() uint64 {
	return d.id
}

// Len is the number of watchers currently subscribed.
func (d *Dep) Len() int {
	return len(d.subs)
}

// Depend registers the currently evaluating watcher, if any.
func (d *Dep) Depend() {
	if w := d.sys.target(); w != nil {
		w.addDep(d)
	}
}

// Notify calls update on a snapshot of the subscribers; updates may change
// the live list.
func (d *Dep) Notify() {
	if len(d.subs) == 0 {
		return
	}
	subs := slices.Clone(d.subs)
	for _, w := range subs {
		w.update()
	}
}

func (d *Dep) addSub(w *Watcher) {
	if d.subIDs.Add(w.id) {
		d.subs = append(d.subs, w)
	}
}

func (d *Dep) removeSub(w *Watcher) {
	if !d.subIDs.Contains(w.id) {
		return
	}
	d.subIDs.Remove(w.id)
	if i := slices.Index(d.subs, w); i >= 0 {
		d.subs = slices.Delete(d.subs, i, i+1)
	}
}

// discard unlinks every subscriber; used when the owning slot goes away.
func (d *Dep) discard() {
	for _, w := range d.subs {
		w.forgetDep(d)
	}
	clear(d.subs)
	d.subs = d.subs[:0]
	d.subIDs.Clear()
}
