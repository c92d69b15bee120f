package instrument

import (
	"context"

	"github.com/delaneyj/watchparty/observer"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "observer"

type TracingConfig struct {
	// TracerName is the name of the tracer (default: "observer").
	TracerName string

	// Provider defaults to the global provider.
	Provider trace.TracerProvider

	// Context is the parent of every flush span.
	Context context.Context

	// Attributes are added to every flush span.
	Attributes []attribute.KeyValue
}

type TracingOption func(*TracingConfig)

func WithTracerName(name string) TracingOption {
	return func(c *TracingConfig) {
		c.TracerName = name
	}
}

func WithTracerProvider(tp trace.TracerProvider) TracingOption {
	return func(c *TracingConfig) {
		c.Provider = tp
	}
}

// WithParentContext sets the context flush spans are started from.
func WithParentContext(ctx context.Context) TracingOption {
	return func(c *TracingConfig) {
		c.Context = ctx
	}
}

func WithAttributes(attrs ...attribute.KeyValue) TracingOption {
	return func(c *TracingConfig) {
		c.Attributes = append(c.Attributes, attrs...)
	}
}

// Tracing turns flush passes into spans. It belongs to a single System and,
// like the System, is not safe for concurrent use.
type Tracing struct {
	tracer trace.Tracer
	ctx    context.Context
	attrs  []attribute.KeyValue

	span   trace.Span
	errors int
}

func NewTracing(opts ...TracingOption) *Tracing {
	config := TracingConfig{
		TracerName: defaultTracerName,
		Context:    context.Background(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	tp := config.Provider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracing{
		tracer: tp.Tracer(config.TracerName),
		ctx:    config.Context,
		attrs:  config.Attributes,
	}
}

func (t *Tracing) BeginFlush(cycle uint64, queued int) {
	attrs := append([]attribute.KeyValue{
		attribute.Int64("observer.cycle", int64(cycle)),
		attribute.Int("observer.queued", queued),
	}, t.attrs...)
	_, t.span = t.tracer.Start(t.ctx, "observer.flush",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	t.errors = 0
}

func (t *Tracing) EndFlush(stats observer.FlushStats) {
	if t.span == nil {
		return
	}
	span := t.span
	t.span = nil
	span.SetAttributes(
		attribute.Int("observer.queued", stats.Queued),
		attribute.Int("observer.ran", stats.Ran),
		attribute.Int("observer.skipped", stats.Skipped),
		attribute.Int("observer.deferred", stats.Deferred),
		attribute.Int64("observer.duration_us", stats.Duration.Microseconds()),
	)
	if t.errors > 0 {
		span.SetStatus(codes.Error, "watcher failures during flush")
	}
	span.End()
}

// ErrorHandler records err on the open flush span, or on a span of its own
// outside a flush, and then hands it to next.
func (t *Tracing) ErrorHandler(next observer.ErrorHandler) observer.ErrorHandler {
	return func(err error, info string) {
		ctxAttr := attribute.String("observer.context", info)
		if t.span != nil {
			t.errors++
			t.span.RecordError(err, trace.WithAttributes(ctxAttr))
		} else {
			_, span := t.tracer.Start(t.ctx, "observer.error", trace.WithAttributes(ctxAttr))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
		}
		if next != nil {
			next(err, info)
		}
	}
}

// Chain fans flush events out to every non-nil observer in order.
func Chain(observers ...observer.FlushObserver) observer.FlushObserver {
	out := make(chain, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type chain []observer.FlushObserver

func (c chain) BeginFlush(cycle uint64, queued int) {
	for _, o := range c {
		o.BeginFlush(cycle, queued)
	}
}

func (c chain) EndFlush(stats observer.FlushStats) {
	for _, o := range c {
		o.EndFlush(stats)
	}
}
