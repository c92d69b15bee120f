package instrument

import (
	"strings"

	"github.com/delaneyj/watchparty/observer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "observer").
	Namespace string

	Subsystem string

	// ConstLabels are added to every metric.
	ConstLabels prometheus.Labels

	// Buckets are the flush duration histogram buckets.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry defaults to prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

type MetricsOption func(*MetricsConfig)

func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the registry the collectors are registered with.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "observer",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the Prometheus collectors for one or more systems.
type Metrics struct {
	flushes       prometheus.Counter
	runs          *prometheus.CounterVec
	skipped       prometheus.Counter
	deferred      prometheus.Counter
	flushDuration prometheus.Histogram
	queueLength   prometheus.Histogram
	errors        *prometheus.CounterVec
}

// NewMetrics registers the collectors. Registering twice against the same
// registry panics, as promauto does.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		flushes: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flushes_total",
			Help:        "Total number of flush passes",
			ConstLabels: config.ConstLabels,
		}),

		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "watcher_runs_total",
			Help:        "Total number of watcher evaluations run by a flush",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		skipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "watchers_skipped_total",
			Help:        "Queued watchers torn down before their turn",
			ConstLabels: config.ConstLabels,
		}),

		deferred: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "watchers_deferred_total",
			Help:        "Watchers re-triggered after running and pushed into the next pass",
			ConstLabels: config.ConstLabels,
		}),

		flushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flush_duration_seconds",
			Help:        "Flush pass duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		queueLength: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flush_queue_length",
			Help:        "Watchers visited per flush pass",
			ConstLabels: config.ConstLabels,
			Buckets:     prometheus.ExponentialBuckets(1, 4, 8), // 1 to 16384
		}),

		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "errors_total",
			Help:        "Failures reported by the engine, by context",
			ConstLabels: config.ConstLabels,
		}, []string{"context"}),
	}
}

// Observer returns the FlushObserver that feeds m.
func (m *Metrics) Observer() observer.FlushObserver {
	return metricsObserver{m}
}

// ErrorHandler counts every failure and then hands it to next, if any.
func (m *Metrics) ErrorHandler(next observer.ErrorHandler) observer.ErrorHandler {
	return func(err error, info string) {
		m.errors.WithLabelValues(categorizeInfo(info)).Inc()
		if next != nil {
			next(err, info)
		}
	}
}

func (m *Metrics) FlushesCounter() prometheus.Counter { return m.flushes }
func (m *Metrics) SkippedCounter() prometheus.Counter { return m.skipped }

func (m *Metrics) DeferredCounter() prometheus.Counter { return m.deferred }

func (m *Metrics) RunsCounter(kind observer.Kind) prometheus.Counter {
	return m.runs.WithLabelValues(kind.String())
}

// ErrorsCounter returns the counter for one error context: getter, callback,
// render, scheduler, data, hook or other.
func (m *Metrics) ErrorsCounter(context string) prometheus.Counter {
	return m.errors.WithLabelValues(context)
}

type metricsObserver struct {
	m *Metrics
}

func (o metricsObserver) BeginFlush(uint64, int) {}

func (o metricsObserver) EndFlush(stats observer.FlushStats) {
	m := o.m
	m.flushes.Inc()
	for kind, n := range stats.Runs {
		m.runs.WithLabelValues(kind.String()).Add(float64(n))
	}
	m.skipped.Add(float64(stats.Skipped))
	m.deferred.Add(float64(stats.Deferred))
	m.flushDuration.Observe(stats.Duration.Seconds())
	m.queueLength.Observe(float64(stats.Queued))
}

// categorizeInfo maps the free-form context string onto a small label set;
// the raw string carries watcher labels and would explode cardinality.
func categorizeInfo(info string) string {
	switch {
	case info == "render":
		return "render"
	case info == "scheduler":
		return "scheduler"
	case info == "data()":
		return "data"
	case strings.HasPrefix(info, "getter"):
		return "getter"
	case strings.HasPrefix(info, "callback"):
		return "callback"
	case strings.HasPrefix(info, "before hook"),
		info == "post-flush hook",
		info == "nextTick",
		info == "scope cleanup":
		return "hook"
	default:
		return "other"
	}
}
