package observer

// Scope collects the watchers created while it runs so they can be torn
// down together, the way a component instance discards its watchers.
type Scope struct {
	sys      *System
	watchers []*Watcher
	children []*Scope
	cleanups []func()
	stopped  bool
}

// NewScope returns a scope. A scope created while another scope is running
// is its child and stops with it.
func (sys *System) NewScope() *Scope {
	sc := &Scope{sys: sys}
	if n := len(sys.scopes); n > 0 {
		parent := sys.scopes[n-1]
		parent.children = append(parent.children, sc)
	}
	return sc
}

// Run calls fn with sc as the current scope. It does nothing once sc is
// stopped.
func (sc *Scope) Run(fn func()) {
	if sc.stopped {
		return
	}
	sys := sc.sys
	sys.scopes = append(sys.scopes, sc)
	defer func() {
		sys.scopes = sys.scopes[:len(sys.scopes)-1]
	}()
	fn()
}

// OnStop registers fn to run when the scope stops.
func (sc *Scope) OnStop(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// Stop tears down every watcher recorded by sc and its children.
func (sc *Scope) Stop() {
	if sc.stopped {
		return
	}
	sc.stopped = true
	for _, child := range sc.children {
		child.Stop()
	}
	for _, w := range sc.watchers {
		w.Teardown()
	}
	for _, fn := range sc.cleanups {
		sc.sys.guard("scope cleanup", fn)
	}
	sc.children = nil
	sc.watchers = nil
	sc.cleanups = nil
}

func (sc *Scope) Stopped() bool {
	return sc.stopped
}

// Len is the number of watchers recorded directly by sc.
func (sc *Scope) Len() int {
	return len(sc.watchers)
}

func (sys *System) record(w *Watcher) {
	if n := len(sys.scopes); n > 0 {
		sys.scopes[n-1].watchers = append(sys.scopes[n-1].watchers, w)
	}
}
