// Package telemetry exports a span per MI command over OTLP.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dshills/gdbmi/internal/mi"
)

const instrumentation = "github.com/dshills/gdbmi"

// Setup installs a global tracer provider exporting to endpoint. With an
// empty endpoint nothing is configured and the returned shutdown does
// nothing.
func Setup(ctx context.Context, endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// CommandTracer is a command listener that opens a span when a command
// gets its token and ends it with the result.
type CommandTracer struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[uint64]trace.Span
}

// NewCommandTracer creates a tracer using tp, or the global provider when
// tp is nil.
func NewCommandTracer(tp trace.TracerProvider) *CommandTracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &CommandTracer{
		tracer: tp.Tracer(instrumentation),
		spans:  make(map[uint64]trace.Span),
	}
}

// CommandQueued starts the span.
func (c *CommandTracer) CommandQueued(token uint64, cmd mi.Command) {
	attrs := []attribute.KeyValue{
		attribute.Int64("mi.token", int64(token)),
		attribute.String("mi.operation", cmd.Operation),
	}
	if cmd.Context.ThreadGroup != "" {
		attrs = append(attrs, attribute.String("mi.thread_group", cmd.Context.ThreadGroup))
	}
	if cmd.Context.Thread != "" {
		attrs = append(attrs, attribute.String("mi.thread", cmd.Context.Thread))
	}
	if cmd.Context.Frame != "" {
		attrs = append(attrs, attribute.String("mi.frame", cmd.Context.Frame))
	}
	_, span := c.tracer.Start(context.Background(), cmd.Operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))

	c.mu.Lock()
	c.spans[token] = span
	c.mu.Unlock()
}

// CommandSent marks the write.
func (c *CommandTracer) CommandSent(token uint64, _ mi.Command) {
	c.mu.Lock()
	span, ok := c.spans[token]
	c.mu.Unlock()
	if ok {
		span.AddEvent("sent")
	}
}

// CommandDone ends the span with the result class or the error.
func (c *CommandTracer) CommandDone(token uint64, _ mi.Command, rec *mi.ResultRecord, err error) {
	c.mu.Lock()
	span, ok := c.spans[token]
	delete(c.spans, token)
	c.mu.Unlock()
	if !ok {
		return
	}

	if rec != nil {
		span.SetAttributes(attribute.String("mi.result_class", string(rec.Class)))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Outstanding returns the number of open spans.
func (c *CommandTracer) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spans)
}

// Close ends the spans of commands that never completed, such as
// cancelled ones.
func (c *CommandTracer) Close() {
	c.mu.Lock()
	spans := c.spans
	c.spans = make(map[uint64]trace.Span)
	c.mu.Unlock()

	for _, span := range spans {
		span.SetAttributes(attribute.Bool("mi.abandoned", true))
		span.End()
	}
}
