package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RequestMetrics records HTTP server metrics. The HTTP middleware calls it
// with the registered route pattern, never the raw path, to bound cardinality.
type RequestMetrics interface {
	RecordRequest(ctx context.Context, method, route, statusClass string, duration time.Duration)
	RecordRequestBodyTooLarge(ctx context.Context)
}

type requestMetrics struct {
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	bodyTooLarge    metric.Int64Counter
}

// NewRequestMetrics creates RequestMetrics. Returns (nil, nil) when meter is nil.
func NewRequestMetrics(meter metric.Meter) (RequestMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	requestCount, err := meter.Int64Counter(
		"hub_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("create request counter: %w", err)
	}

	requestDuration, err := meter.Float64Histogram(
		MetricNameRequestDuration,
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create request duration histogram: %w", err)
	}

	bodyTooLarge, err := meter.Int64Counter(
		"hub_http_request_body_too_large_total",
		metric.WithDescription("Requests rejected for exceeding the body size limit"),
	)
	if err != nil {
		return nil, fmt.Errorf("create body too large counter: %w", err)
	}

	return &requestMetrics{
		requestCount:    requestCount,
		requestDuration: requestDuration,
		bodyTooLarge:    bodyTooLarge,
	}, nil
}

func (m *requestMetrics) RecordRequestBodyTooLarge(ctx context.Context) {
	m.bodyTooLarge.Add(ctx, 1)
}

func (m *requestMetrics) RecordRequest(ctx context.Context, method, route, statusClass string, duration time.Duration) {
	attrs := attribute.NewSet(
		attribute.String(AttrMethod, method),
		attribute.String(AttrRoute, route),
		attribute.String(AttrStatus, statusClass),
	)
	m.requestCount.Add(ctx, 1, metric.WithAttributeSet(attrs))

	durAttrs := attribute.NewSet(
		attribute.String(AttrMethod, method),
		attribute.String(AttrRoute, route),
	)
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributeSet(durAttrs))
}
