// Package instrument hangs Prometheus metrics and OpenTelemetry tracing off
// an observer.System through its FlushObserver and ErrorHandler hooks.
//
// # Prometheus Metrics
//
//	m := instrument.NewMetrics(instrument.WithRegistry(reg))
//	sys := observer.New(
//	    observer.WithFlushObserver(m.Observer()),
//	    observer.WithErrorHandler(m.ErrorHandler(nil)),
//	)
//
// Metrics collected:
//   - observer_flushes_total: Counter of flush passes
//   - observer_watcher_runs_total: Counter of watcher evaluations by kind
//   - observer_watchers_skipped_total: Counter of queued watchers torn down before they ran
//   - observer_watchers_deferred_total: Counter of watchers pushed into a later pass
//   - observer_flush_duration_seconds: Histogram of pass duration
//   - observer_flush_queue_length: Histogram of watchers visited per pass
//   - observer_errors_total: Counter of reported failures by context
//
// # OpenTelemetry Tracing
//
// Every flush pass becomes a span. Errors reported while a pass is open are
// recorded on its span.
//
//	tr := instrument.NewTracing(instrument.WithTracerName("todo"))
//	sys := observer.New(
//	    observer.WithFlushObserver(instrument.Chain(m.Observer(), tr)),
//	    observer.WithErrorHandler(tr.ErrorHandler(m.ErrorHandler(nil))),
//	)
package instrument
