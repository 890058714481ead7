package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Version is reported on traces and metrics; overridden at build time with -ldflags.
var Version = "dev"

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	GenerationCounter   metric.Int64Counter
	GenerationDuration  metric.Float64Histogram
	CircuitBreakerState metric.Int64Counter
	OutputsSwept        metric.Int64Counter
}

// InitMeterProvider installs a global MeterProvider that exports through a
// dedicated Prometheus registry, and returns the scrape handler for it.
func InitMeterProvider() (http.Handler, func(context.Context) error, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(mp)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return handler, mp.Shutdown, nil
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	return newMetrics(otel.Meter("depth-studio-backend"))
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	requestCounter, err := meter.Int64Counter(
		"http.requests",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	generationCounter, err := meter.Int64Counter(
		"depth.generations",
		metric.WithDescription("Image generations by outcome"),
	)
	if err != nil {
		return nil, err
	}

	generationDuration, err := meter.Float64Histogram(
		"depth.generation.duration",
		metric.WithDescription("Time spent in the image generator in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	outputsSwept, err := meter.Int64Counter(
		"depth.outputs.swept",
		metric.WithDescription("Generated images removed by the retention sweeper"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		GenerationCounter:   generationCounter,
		GenerationDuration:  generationDuration,
		CircuitBreakerState: circuitBreakerState,
		OutputsSwept:        outputsSwept,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordGeneration records one generator call. outcome is success, invalid_input or error.
func (m *Metrics) RecordGeneration(outcome string, duration float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))

	m.GenerationCounter.Add(context.Background(), 1, attrs)
	if duration > 0 {
		m.GenerationDuration.Record(context.Background(), duration, attrs)
	}
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordOutputsSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OutputsSwept.Add(context.Background(), int64(n))
}
