// Package observer is a push-based reactivity engine: observable records and
// sequences, watchers that depend on them, and a scheduler that re-runs the
// affected watchers once per update cycle in creation order.
//
// A System is single-threaded. Every Object, Array, Watcher and Scope it
// creates must be used from one goroutine at a time; nothing here locks.
package observer

import (
	"fmt"
	"log/slog"
)

// DefaultMaxUpdateCount bounds how many consecutive flush passes a single
// watcher may be deferred into before it is reported as a circular update.
const DefaultMaxUpdateCount = 100

// ErrorHandler receives every failure the engine catches. info names the
// context the failure happened in, e.g. `getter for watcher "total"`.
type ErrorHandler func(err error, info string)

type Option func(*System)

// WithErrorHandler installs the host error-reporting hook.
func WithErrorHandler(h ErrorHandler) Option {
	return func(sys *System) {
		sys.onError = h
	}
}

// WithLogger sets the logger used for warnings and for errors when no
// ErrorHandler is installed. If nil, slog.Default() is used.
func WithLogger(l *slog.Logger) Option {
	return func(sys *System) {
		sys.logger = l
	}
}

// WithDebug toggles configuration warnings (missing getters, bad watch
// paths, writes to derived values without a setter). On by default.
func WithDebug(debug bool) Option {
	return func(sys *System) {
		sys.debug = debug
	}
}

func WithMaxUpdateCount(n int) Option {
	return func(sys *System) {
		if n > 0 {
			sys.maxUpdateCount = n
		}
	}
}

func WithFlushObserver(o FlushObserver) Option {
	return func(sys *System) {
		sys.observer = o
	}
}

// WithPoster sets the primitive used to schedule the coalesced flush, e.g. a
// function that pushes onto an event loop's task queue. post is called at
// most once per update cycle. Without a poster the flush runs when the
// outermost Batch returns or when Flush is called.
func WithPoster(post func(flush func())) Option {
	return func(sys *System) {
		sys.post = post
	}
}

type System struct {
	// active is the evaluation stack; nil entries pause tracking.
	active []*Watcher
	scopes []*Scope

	// wrapped maps raw containers to their wrappers.
	wrapped map[rawKey]any

	watcherIDs uint64
	depIDs     uint64
	batchDepth int

	sched *scheduler

	onError        ErrorHandler
	logger         *slog.Logger
	debug          bool
	maxUpdateCount int
	observer       FlushObserver
	post           func(func())
}

func New(opts ...Option) *System {
	sys := &System{
		debug:          true,
		maxUpdateCount: DefaultMaxUpdateCount,
		wrapped:        map[rawKey]any{},
	}
	for _, opt := range opts {
		opt(sys)
	}
	if sys.logger == nil {
		sys.logger = slog.Default()
	}
	sys.sched = newScheduler(sys)
	return sys
}

func (sys *System) target() *Watcher {
	if n := len(sys.active); n > 0 {
		return sys.active[n-1]
	}
	return nil
}

// pushTarget returns the stack depth before the push so callers can restore
// it even if the evaluation in between unwound abnormally.
func (sys *System) pushTarget(w *Watcher) int {
	depth := len(sys.active)
	sys.active = append(sys.active, w)
	return depth
}

func (sys *System) restoreTarget(depth int) {
	clear(sys.active[depth:])
	sys.active = sys.active[:depth]
}

// Tracking reports whether a read right now would register a dependency.
func (sys *System) Tracking() bool {
	return sys.target() != nil
}

// Untracked runs fn without registering any dependency for the watcher that
// is currently evaluating.
func (sys *System) Untracked(fn func()) {
	depth := sys.pushTarget(nil)
	defer sys.restoreTarget(depth)
	fn()
}

// Batch groups writes. Batches nest; when the outermost one returns and no
// poster is configured, the pending flush runs.
func (sys *System) Batch(fn func()) {
	sys.batchDepth++
	defer func() {
		sys.batchDepth--
		if sys.batchDepth == 0 && sys.post == nil {
			sys.Flush()
		}
	}()
	fn()
}

// Flush runs pending flush passes until nothing is queued. Watchers
// re-triggered after they already ran in a pass form the next pass. Calling
// Flush from inside a flush is a no-op.
func (sys *System) Flush() {
	for sys.sched.waiting && !sys.sched.flushing {
		sys.sched.flush()
	}
}

// Pending reports whether a flush has been requested and not yet run.
func (sys *System) Pending() bool {
	return sys.sched.waiting
}

// NextTick registers fn to run once after the next flush pass.
func (sys *System) NextTick(fn func()) {
	sys.sched.nextTick(fn)
}

// AfterFlush registers a hook that runs after every flush pass with the
// watchers evaluated in that pass, in evaluation order.
func (sys *System) AfterFlush(fn func(ran []*Watcher)) (remove func()) {
	return sys.sched.addHook(fn)
}

// ReportError hands err to the host error hook. It never panics.
func (sys *System) ReportError(err error, info string) {
	sys.reportError(err, info)
}

func (sys *System) reportError(err error, info string) {
	defer func() {
		if r := recover(); r != nil {
			sys.logger.Error("error handler panicked", "info", info, "err", err, "panic", r)
		}
	}()
	if sys.onError != nil {
		sys.onError(err, info)
		return
	}
	sys.logger.Error("observer error", "info", info, "err", err)
}

func (sys *System) warn(err error, args ...any) {
	if !sys.debug {
		return
	}
	sys.logger.Warn(err.Error(), args...)
}

// guard runs fn and reports a panic under info instead of propagating it.
func (sys *System) guard(info string, fn func()) {
	depth := len(sys.active)
	defer func() {
		if r := recover(); r != nil {
			sys.restoreTarget(depth)
			sys.reportError(newPanicError(r), info)
		}
	}()
	fn()
}

func (sys *System) nextWatcherID() uint64 {
	sys.watcherIDs++
	return sys.watcherIDs
}

func (sys *System) String() string {
	return fmt.Sprintf("observer.System{watchers: %d, deps: %d}", sys.watcherIDs, sys.depIDs)
}
