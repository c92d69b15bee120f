package observer

import (
	"errors"
	"fmt"
	"runtime/debug"
)

var (
	// ErrGetterMissing is warned when a derived value or watch is registered
	// without a getter. The registration still succeeds and yields nil.
	ErrGetterMissing = errors.New("observer: getter is missing")

	// ErrInvalidPath is warned when WatchPath is given a path containing
	// anything other than word characters, dots and dollar signs.
	ErrInvalidPath = errors.New("observer: invalid watch path")

	// ErrNoSetter is warned when a derived value without a setter is written.
	ErrNoSetter = errors.New("observer: derived value has no setter")

	// ErrCircularUpdate is reported when a watcher keeps re-triggering itself
	// across more flush passes than the configured maximum.
	ErrCircularUpdate = errors.New("observer: possible infinite update loop")

	// ErrDataFactory is reported when a root data factory panics or returns
	// no record; the store falls back to an empty record.
	ErrDataFactory = errors.New("observer: data factory failed")
)

// PanicError is what a recovered panic inside a getter, callback or hook is
// reported as.
type PanicError struct {
	Value any
	Stack []byte
}

func newPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
