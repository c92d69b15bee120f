package observer

import "fmt"

type computedConfig struct {
	setter   any
	uncached bool
	label    string
}

type ComputedOption func(*computedConfig)

// WithSetter gives a derived value a write path. T must match the Computed's
// type parameter.
func WithSetter[T any](fn func(T)) ComputedOption {
	return func(c *computedConfig) { c.setter = fn }
}

// Uncached makes every Value call run the getter directly, with no caching
// and no watcher.
func Uncached() ComputedOption {
	return func(c *computedConfig) { c.uncached = true }
}

func ComputedLabel(label string) ComputedOption {
	return func(c *computedConfig) { c.label = label }
}

// Computed is a typed derived value backed by a lazy watcher.
type Computed[T any] struct {
	sys    *System
	w      *Watcher
	getter func() T
	setter func(T)
	label  string
}

func NewComputed[T any](sys *System, getter func() T, opts ...ComputedOption) *Computed[T] {
	cfg := computedConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &Computed[T]{
		sys:    sys,
		getter: getter,
		label:  cfg.label,
	}
	if cfg.setter != nil {
		setter, ok := cfg.setter.(func(T))
		if !ok {
			sys.warn(fmt.Errorf("observer: setter %T does not match computed %q", cfg.setter, cfg.label))
		}
		c.setter = setter
	}
	if cfg.uncached {
		if getter == nil {
			sys.warn(fmt.Errorf("%w for derived value", ErrGetterMissing), "label", cfg.label)
		}
		return c
	}
	var g func() any
	if getter != nil {
		g = func() any { return getter() }
	}
	c.w = sys.DefineDerived(g, Label(cfg.label))
	if c.label == "" {
		c.label = c.w.label
	}
	return c
}

// Value returns the derived value, recomputing it only if a dependency
// changed since the last read.
func (c *Computed[T]) Value() T {
	if c.w != nil {
		v, _ := c.w.Read().(T)
		return v
	}
	var v T
	if c.getter == nil {
		return v
	}
	c.sys.guard(fmt.Sprintf("getter for computed %q", c.label), func() {
		v = c.getter()
	})
	return v
}

// Set runs the setter; without one it only warns.
func (c *Computed[T]) Set(v T) {
	if c.setter == nil {
		c.sys.warn(fmt.Errorf("%w: computed %q was assigned to", ErrNoSetter, c.label))
		return
	}
	c.setter(v)
}

// Watcher is nil for uncached values.
func (c *Computed[T]) Watcher() *Watcher {
	return c.w
}

func (c *Computed[T]) Teardown() {
	if c.w != nil {
		c.w.Teardown()
	}
}
