// Package metrics exports Prometheus collectors fed by gateway events.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	eventbus "github.com/russellyou/nadel/internal/eventbus"
	events "github.com/russellyou/nadel/internal/events"
)

const namespace = "nadel"

// Collectors holds the gateway metrics.
type Collectors struct {
	HTTPRequests        *prometheus.CounterVec
	Operations          *prometheus.CounterVec
	OperationDuration   *prometheus.HistogramVec
	ServiceCalls        *prometheus.CounterVec
	ServiceCallDuration *prometheus.HistogramVec
	GRPCCalls           *prometheus.CounterVec
}

func newCollectors() *Collectors {
	return &Collectors{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by status code.",
		}, []string{"code"}),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "GraphQL operations executed, by operation type and outcome.",
		}, []string{"type", "outcome"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "GraphQL operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		ServiceCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_calls_total",
			Help:      "Calls to services, by service, kind and outcome.",
		}, []string{"service", "kind", "outcome"}),
		ServiceCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "service_call_duration_seconds",
			Help:      "Service call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "kind"}),
		GRPCCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_client_calls_total",
			Help:      "gRPC client calls, by service and status code.",
		}, []string{"service", "code"}),
	}
}

func (c *Collectors) all() []prometheus.Collector {
	return []prometheus.Collector{
		c.HTTPRequests, c.Operations, c.OperationDuration,
		c.ServiceCalls, c.ServiceCallDuration, c.GRPCCalls,
	}
}

// Register creates the collectors, registers them with reg and subscribes
// them to the global event bus.
func Register(reg prometheus.Registerer) (*Collectors, func(), error) {
	c := newCollectors()
	for _, col := range c.all() {
		if err := reg.Register(col); err != nil {
			return nil, nil, err
		}
	}
	unsubs := []func(){
		eventbus.Subscribe(func(_ context.Context, e events.HTTPFinish) {
			c.HTTPRequests.WithLabelValues(strconv.Itoa(e.Status)).Inc()
		}),
		eventbus.Subscribe(func(_ context.Context, e events.GraphQLFinish) {
			c.Operations.WithLabelValues(e.OperationType, outcome(len(e.Errors) > 0)).Inc()
			c.OperationDuration.WithLabelValues(e.OperationType).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(_ context.Context, e events.ServiceCallFinish) {
			kind := "query"
			if e.Hydration != "" {
				kind = "hydration"
			}
			o := outcome(e.ErrorCount > 0)
			if e.Err != nil {
				o = "failure"
			}
			c.ServiceCalls.WithLabelValues(e.Service, kind, o).Inc()
			c.ServiceCallDuration.WithLabelValues(e.Service, kind).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(_ context.Context, e events.GRPCClientFinish) {
			c.GRPCCalls.WithLabelValues(e.Service, e.Code.String()).Inc()
		}),
	}
	return c, func() {
		for _, u := range unsubs {
			u()
		}
		for _, col := range c.all() {
			reg.Unregister(col)
		}
	}, nil
}

func outcome(withErrors bool) string {
	if withErrors {
		return "errors"
	}
	return "ok"
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
