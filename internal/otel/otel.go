// Package otel turns gateway events into OpenTelemetry spans.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	eventbus "github.com/russellyou/nadel/internal/eventbus"
	events "github.com/russellyou/nadel/internal/events"
)

const instrumentation = "github.com/russellyou/nadel"

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	unregister := Register(tp)
	return func(ctx context.Context) error {
		unregister()
		return tp.Shutdown(ctx)
	}, nil
}

// Register subscribes span producers backed by tp to the global event bus.
//
// Span hierarchy: http.request > graphql.operation > service.call >
// grpc.client. HTTP and operation spans are keyed by execution id, call
// spans by call id.
func Register(tp trace.TracerProvider) (unregister func()) {
	s := &subscriber{tracer: tp.Tracer(instrumentation)}
	return s.register()
}

type subscriber struct {
	tracer       trace.Tracer
	httpSpans    sync.Map // execution id -> trace.Span
	gqlSpans     sync.Map // execution id -> trace.Span
	serviceSpans sync.Map // call id -> trace.Span
	grpcSpans    sync.Map // call id -> trace.Span
}

func parentOf(ctx context.Context, m *sync.Map, key string) context.Context {
	if v, ok := m.Load(key); ok {
		return trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	return ctx
}

func end(m *sync.Map, key string, f func(trace.Span)) {
	v, ok := m.LoadAndDelete(key)
	if !ok {
		return
	}
	span := v.(trace.Span)
	f(span)
	span.End()
}

func (s *subscriber) register() func() {
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPStart) {
			_, span := s.tracer.Start(ctx, "http.request")
			span.SetAttributes(
				semconv.HTTPMethodKey.String(e.Request.Method),
				attribute.String("http.target", e.Request.URL.Path),
			)
			s.httpSpans.Store(e.ExecutionID, span)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			end(&s.httpSpans, e.ExecutionID, func(span trace.Span) {
				span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
			})
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLStart) {
			_, span := s.tracer.Start(parentOf(ctx, &s.httpSpans, e.ExecutionID), "graphql.operation")
			span.SetAttributes(
				attribute.String("graphql.operation.name", e.OperationName),
				attribute.String("graphql.operation.type", e.OperationType),
				attribute.String("nadel.execution_id", e.ExecutionID),
			)
			s.gqlSpans.Store(e.ExecutionID, span)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
			end(&s.gqlSpans, e.ExecutionID, func(span trace.Span) {
				span.SetAttributes(attribute.Int("graphql.error_count", len(e.Errors)))
			})
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.ServiceCallStart) {
			_, span := s.tracer.Start(parentOf(ctx, &s.gqlSpans, e.ExecutionID), "service.call")
			span.SetAttributes(
				attribute.String("nadel.service", e.Service),
				attribute.String("nadel.execution_id", e.ExecutionID),
			)
			if e.Hydration != "" {
				span.SetAttributes(attribute.String("nadel.hydration", e.Hydration))
			}
			s.serviceSpans.Store(e.CallID, span)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.ServiceCallFinish) {
			end(&s.serviceSpans, e.CallID, func(span trace.Span) {
				span.SetAttributes(attribute.Int("graphql.error_count", e.ErrorCount))
				if e.Err != nil {
					span.RecordError(e.Err)
					span.SetStatus(codes.Error, e.Err.Error())
				}
			})
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.GRPCClientStart) {
			_, span := s.tracer.Start(parentOf(ctx, &s.serviceSpans, e.CallID), "grpc.client")
			span.SetAttributes(
				semconv.RPCServiceKey.String(e.Service),
				semconv.RPCMethodKey.String(e.Method),
				attribute.String("net.peer.name", e.Target),
			)
			s.grpcSpans.Store(e.CallID, span)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.GRPCClientFinish) {
			end(&s.grpcSpans, e.CallID, func(span trace.Span) {
				span.SetAttributes(attribute.String("grpc.code", e.Code.String()))
				if e.Err != nil {
					span.RecordError(e.Err)
				}
			})
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
