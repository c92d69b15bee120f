package observer_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/delaneyj/watchparty/observer"
	"github.com/stretchr/testify/assert"
)

func newSystem(t *testing.T, opts ...observer.Option) *observer.System {
	t.Helper()
	return observer.New(append([]observer.Option{
		observer.WithErrorHandler(func(err error, info string) {
			assert.FailNow(t, err.Error(), info)
		}),
	}, opts...)...)
}

type report struct {
	err  error
	info string
}

// collectingSystem records every reported failure instead of failing.
func collectingSystem(opts ...observer.Option) (*observer.System, *[]report) {
	reports := &[]report{}
	sys := observer.New(append([]observer.Option{
		observer.WithErrorHandler(func(err error, info string) {
			*reports = append(*reports, report{err: err, info: info})
		}),
	}, opts...)...)
	return sys, reports
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewTextHandler(buf, nil)), buf
}

func labels(ws []*observer.Watcher) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.Label()
	}
	return out
}
