package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const (
	meterScope         = "github.com/lingodeck/hub/internal/observability"
	defaultServiceName = "lingodeck-hub"
	cardinalityLimit   = 2000
)

// latencyHistogramBoundaries are Prometheus-style buckets (seconds) shared by
// the request, search, and job duration histograms.
var latencyHistogramBoundaries = []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10}

// MeterProviderShutdown is the subset of the SDK MeterProvider needed for shutdown.
type MeterProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// MeterProviderConfig holds configuration for creating the MeterProvider.
type MeterProviderConfig struct {
	// ServiceName is used in the resource (default: lingodeck-hub).
	ServiceName string
}

// NewMeterProvider creates a MeterProvider with a Prometheus exporter and returns
// the provider, an HTTP handler for /metrics, and the Meter used to build the
// per-concern metrics (NewEmbeddingMetrics, NewRequestMetrics).
// Caller must call provider.Shutdown on exit.
func NewMeterProvider(_ context.Context, cfg MeterProviderConfig) (provider MeterProviderShutdown, metricsHandler http.Handler, meter metric.Meter, err error) {
	serviceNameVal := cfg.ServiceName
	if serviceNameVal == "" {
		serviceNameVal = defaultServiceName
	}

	// Use a single resource to avoid Schema URL conflicts when merging with resource.Default().
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceNameVal),
	)

	reg := prometheus.NewRegistry()

	exporter, err := prometheusexporter.New(
		prometheusexporter.WithRegisterer(reg),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
		sdkmetric.WithCardinalityLimit(cardinalityLimit),
		sdkmetric.WithView(
			durationView(MetricNameRequestDuration),
			durationView(MetricNameSearchDuration),
			durationView(MetricNameJobDuration),
		),
	)
	provider = mp
	meter = mp.Meter(meterScope)

	// Instrumented wrappers (otelhttp) resolve the provider globally.
	otel.SetMeterProvider(mp)

	metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return provider, metricsHandler, meter, nil
}

func durationView(name string) sdkmetric.View {
	return sdkmetric.NewView(
		sdkmetric.Instrument{Name: name},
		sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: latencyHistogramBoundaries}},
	)
}
