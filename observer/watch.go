package observer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type watchConfig struct {
	immediate bool
	deep      bool
	sync      bool
	user      bool
	label     string
	before    func()
	fallback  any
}

type WatchOption func(*watchConfig)

// Immediate invokes the callback once with the current value before Watch
// returns.
func Immediate() WatchOption {
	return func(c *watchConfig) { c.immediate = true }
}

// Deep makes the watcher depend on every nested reactive slot of its value
// and fire its callback on every run.
func Deep() WatchOption {
	return func(c *watchConfig) { c.deep = true }
}

// Sync bypasses the scheduler: the watcher runs inline on every notify.
func Sync() WatchOption {
	return func(c *watchConfig) { c.sync = true }
}

// Internal clears the user marker, which changes the labels failures are
// reported under.
func Internal() WatchOption {
	return func(c *watchConfig) { c.user = false }
}

func Label(label string) WatchOption {
	return func(c *watchConfig) { c.label = label }
}

// Before runs fn right before the watcher is re-evaluated by a flush.
func Before(fn func()) WatchOption {
	return func(c *watchConfig) { c.before = fn }
}

// Fallback is the value a watcher holds when its very first evaluation fails.
func Fallback(v any) WatchOption {
	return func(c *watchConfig) { c.fallback = v }
}

func plainGetter(fn func() any) func() (any, error) {
	return func() (any, error) {
		return fn(), nil
	}
}

func nilGetter() (any, error) {
	return nil, nil
}

// DefineDerived registers a lazy watcher. Its value is computed on the first
// Read and recomputed on a Read after any of its dependencies changed.
func (sys *System) DefineDerived(getter func() any, opts ...WatchOption) *Watcher {
	cfg := watchConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	g := nilGetter
	if getter == nil {
		sys.warn(fmt.Errorf("%w for derived value", ErrGetterMissing), "label", cfg.label)
	} else {
		g = plainGetter(getter)
	}
	return sys.newWatcher(KindComputed, g, nil, cfg)
}

// Watch evaluates getter now to collect its dependencies and calls cb with
// the new and old value whenever a later evaluation produces a change.
func (sys *System) Watch(getter func() any, cb Callback, opts ...WatchOption) StopFunc {
	cfg := watchConfig{user: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	g := nilGetter
	if getter == nil {
		sys.warn(fmt.Errorf("%w for watcher", ErrGetterMissing), "label", cfg.label)
	} else {
		g = plainGetter(getter)
	}
	return sys.watch(g, cb, cfg)
}

// WatchPath watches a dot-separated path below root, e.g. "user.tags.0".
// Array segments are indices. An invalid path is warned about and the
// watcher's value stays nil.
func (sys *System) WatchPath(root *Object, path string, cb Callback, opts ...WatchOption) StopFunc {
	cfg := watchConfig{user: true, label: path}
	for _, opt := range opts {
		opt(&cfg)
	}
	g := nilGetter
	if segments, ok := parsePath(path); !ok {
		sys.warn(fmt.Errorf("%w %q: only simple dot-delimited paths are supported", ErrInvalidPath, path))
	} else {
		g = func() (any, error) {
			return resolvePath(root, segments), nil
		}
	}
	return sys.watch(g, cb, cfg)
}

func (sys *System) watch(getter func() (any, error), cb Callback, cfg watchConfig) StopFunc {
	w := sys.newWatcher(KindWatch, getter, cb, cfg)
	if cfg.immediate {
		info := fmt.Sprintf("callback for immediate watcher %q", w.label)
		sys.Untracked(func() {
			w.invoke(w.value, nil, info)
		})
	}
	return w.Teardown
}

// RegisterRender registers the watcher that drives a render surface: every
// evaluation calls render and hands the tree to patch. It runs once now and
// then through the scheduler whenever anything render read changes.
func (sys *System) RegisterRender(render func() any, patch func(tree any) error, opts ...WatchOption) *Watcher {
	cfg := watchConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.user = false
	cfg.sync = false
	g := nilGetter
	if render == nil {
		sys.warn(fmt.Errorf("%w for render", ErrGetterMissing), "label", cfg.label)
	} else {
		g = func() (any, error) {
			tree := render()
			if patch == nil {
				return tree, nil
			}
			return tree, patch(tree)
		}
	}
	return sys.newWatcher(KindRender, g, nil, cfg)
}

func parsePath(path string) ([]string, bool) {
	if path == "" {
		return nil, false
	}
	for _, r := range path {
		if r != '.' && r != '$' && r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return nil, false
		}
	}
	return strings.Split(path, "."), true
}

func resolvePath(root *Object, segments []string) any {
	if root == nil {
		return nil
	}
	var cur any = root
	for _, seg := range segments {
		switch x := cur.(type) {
		case *Object:
			cur = x.Get(seg)
		case *Array:
			i, err := strconv.Atoi(seg)
			if err != nil {
				return nil
			}
			cur = x.Get(i)
		default:
			return nil
		}
	}
	return cur
}
