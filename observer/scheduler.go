package observer

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// FlushStats describes one completed flush pass.
type FlushStats struct {
	Cycle    uint64
	Queued   int
	Ran      int
	Skipped  int
	Deferred int
	Duration time.Duration
	Runs     map[Kind]int
}

// FlushObserver is told about every flush pass; metrics and tracing hang off
// it.
type FlushObserver interface {
	BeginFlush(cycle uint64, queued int)
	EndFlush(stats FlushStats)
}

type flushHook struct {
	id uint64
	fn func(ran []*Watcher)
}

type scheduler struct {
	sys *System

	queue []*Watcher
	has   mapset.Set[uint64]
	ran   mapset.Set[uint64]

	deferred    []*Watcher
	deferredIDs mapset.Set[uint64]
	circular    map[uint64]int

	waiting  bool
	flushing bool
	index    int
	cycle    uint64

	hooks   []flushHook
	hookIDs uint64
	ticks   []func()
}

func newScheduler(sys *System) *scheduler {
	return &scheduler{
		sys:         sys,
		has:         mapset.NewThreadUnsafeSet[uint64](),
		ran:         mapset.NewThreadUnsafeSet[uint64](),
		deferredIDs: mapset.NewThreadUnsafeSet[uint64](),
		circular:    map[uint64]int{},
	}
}

func compareID(w *Watcher, id uint64) int {
	return cmp.Compare(w.id, id)
}

// enqueue queues w at most once per pass. Outside a flush the queue is kept
// in ascending ID order. During a flush a watcher whose ID is at or below
// the one being processed goes right after the processing pointer so it
// still runs in this pass; a watcher that already ran in this pass is
// deferred to the next one.
func (s *scheduler) enqueue(w *Watcher) {
	id := w.id
	if s.has.Contains(id) {
		return
	}
	if s.flushing && s.ran.Contains(id) {
		if s.deferredIDs.Add(id) {
			s.deferred = append(s.deferred, w)
		}
		return
	}
	s.has.Add(id)

	if !s.flushing {
		i, _ := slices.BinarySearchFunc(s.queue, id, compareID)
		s.queue = slices.Insert(s.queue, i, w)
	} else {
		i := len(s.queue) - 1
		for i > s.index && s.queue[i].id > id {
			i--
		}
		s.queue = slices.Insert(s.queue, i+1, w)
	}

	s.request()
}

func (s *scheduler) request() {
	if s.waiting {
		return
	}
	s.waiting = true
	if s.sys.post != nil {
		s.sys.post(s.posted)
	}
}

func (s *scheduler) posted() {
	if !s.flushing {
		s.flush()
	}
}

func (s *scheduler) nextTick(fn func()) {
	s.ticks = append(s.ticks, fn)
	s.request()
}

func (s *scheduler) addHook(fn func(ran []*Watcher)) (remove func()) {
	s.hookIDs++
	id := s.hookIDs
	s.hooks = append(s.hooks, flushHook{id: id, fn: fn})
	return func() {
		s.hooks = slices.DeleteFunc(s.hooks, func(h flushHook) bool {
			return h.id == id
		})
	}
}

// flush runs one pass over the queue. The loop re-reads the queue length on
// every step so watchers queued during the pass are visited in it.
func (s *scheduler) flush() {
	if s.flushing || !s.waiting {
		return
	}
	s.flushing = true
	s.cycle++
	start := time.Now()
	obs := s.sys.observer
	if obs != nil {
		obs.BeginFlush(s.cycle, len(s.queue))
	}

	stats := FlushStats{
		Cycle: s.cycle,
		Runs:  map[Kind]int{},
	}
	ran := make([]*Watcher, 0, len(s.queue))
	for s.index = 0; s.index < len(s.queue); s.index++ {
		w := s.queue[s.index]
		s.has.Remove(w.id)
		s.ran.Add(w.id)
		if !w.active {
			stats.Skipped++
			continue
		}
		if w.before != nil {
			s.sys.guard(fmt.Sprintf("before hook for %q", w.label), w.before)
			if !w.active {
				stats.Skipped++
				continue
			}
		}
		w.run()
		ran = append(ran, w)
		stats.Runs[w.kind]++
	}
	stats.Queued = len(s.queue)
	stats.Ran = len(ran)

	deferred := s.deferred
	ticks := s.ticks
	s.reset()
	stats.Deferred = s.requeue(deferred)
	stats.Duration = time.Since(start)

	if obs != nil {
		obs.EndFlush(stats)
	}
	hooks := slices.Clone(s.hooks)
	for _, h := range hooks {
		s.sys.guard("post-flush hook", func() { h.fn(ran) })
	}
	for _, fn := range ticks {
		s.sys.guard("nextTick", fn)
	}
}

func (s *scheduler) reset() {
	clear(s.queue)
	s.queue = s.queue[:0]
	s.has.Clear()
	s.ran.Clear()
	s.deferred = nil
	s.deferredIDs.Clear()
	s.ticks = nil
	s.index = 0
	s.waiting = false
	s.flushing = false
}

// requeue moves watchers deferred out of the finished pass into the next
// one, dropping any that have been deferred too many passes in a row.
func (s *scheduler) requeue(deferred []*Watcher) int {
	if len(deferred) == 0 {
		clear(s.circular)
		return 0
	}
	n := 0
	for _, w := range deferred {
		if !w.active {
			continue
		}
		s.circular[w.id]++
		if s.circular[w.id] > s.sys.maxUpdateCount {
			delete(s.circular, w.id)
			s.sys.reportError(
				fmt.Errorf("%w in watcher %q", ErrCircularUpdate, w.label),
				"scheduler",
			)
			continue
		}
		s.enqueue(w)
		n++
	}
	return n
}
