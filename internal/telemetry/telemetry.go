package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Telemetry holds the metric instruments. A zero-value (disabled)
// Telemetry is safe to use: every record method is a no-op.
type Telemetry struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	exporter      *prometheus.Exporter

	apiRequestsTotal   metric.Int64Counter
	apiRequestDuration metric.Float64Histogram
	apiRetriesTotal    metric.Int64Counter

	downloadsTotal   metric.Int64Counter
	downloadsActive  metric.Int64UpDownCounter
	downloadDuration metric.Float64Histogram

	transfersTotal metric.Int64Counter
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
}

// New creates a telemetry instance backed by a Prometheus exporter. With
// Enabled unset it returns a disabled instance.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime instrumentation: %w", err)
	}

	t := &Telemetry{
		meterProvider: meterProvider,
		meter:         otel.Meter(cfg.ServiceName),
		exporter:      exporter,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return t, nil
}

// RecordAPIRequest records one request-layer call.
func (t *Telemetry) RecordAPIRequest(endpoint, outcome string, duration time.Duration) {
	if t.apiRequestsTotal != nil {
		t.apiRequestsTotal.Add(context.Background(), 1,
			metric.WithAttributes(
				attribute.String("endpoint", endpoint),
				attribute.String("outcome", outcome),
			),
		)
	}

	if t.apiRequestDuration != nil {
		t.apiRequestDuration.Record(context.Background(), duration.Seconds(),
			metric.WithAttributes(
				attribute.String("endpoint", endpoint),
				attribute.String("outcome", outcome),
			),
		)
	}
}

// RecordAPIRetry records a retried request-layer attempt.
func (t *Telemetry) RecordAPIRetry(endpoint string) {
	if t.apiRetriesTotal != nil {
		t.apiRetriesTotal.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("endpoint", endpoint)),
		)
	}
}

// DownloadStarted marks a fetch as in flight.
func (t *Telemetry) DownloadStarted() {
	if t.downloadsActive != nil {
		t.downloadsActive.Add(context.Background(), 1)
	}
}

// DownloadFinished records a settled fetch.
func (t *Telemetry) DownloadFinished(outcome string, duration time.Duration) {
	if t.downloadsActive != nil {
		t.downloadsActive.Add(context.Background(), -1)
	}

	if t.downloadsTotal != nil {
		t.downloadsTotal.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("outcome", outcome)),
		)
	}

	if t.downloadDuration != nil {
		t.downloadDuration.Record(context.Background(), duration.Seconds(),
			metric.WithAttributes(attribute.String("outcome", outcome)),
		)
	}
}

// RecordTransfer records a transfer lifecycle event.
func (t *Telemetry) RecordTransfer(operation, outcome string) {
	if t.transfersTotal != nil {
		t.transfersTotal.Add(context.Background(), 1,
			metric.WithAttributes(
				attribute.String("operation", operation),
				attribute.String("outcome", outcome),
			),
		)
	}
}

// Handler returns the HTTP handler for the metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t.exporter == nil {
		return http.NotFoundHandler()
	}

	return promhttp.Handler()
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.meterProvider == nil {
		return nil
	}

	return t.meterProvider.Shutdown(ctx)
}

func (t *Telemetry) initializeMetrics() error {
	var err error

	t.apiRequestsTotal, err = t.meter.Int64Counter(
		"api_requests_total",
		metric.WithDescription("Total number of cloud API requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create api_requests_total counter: %w", err)
	}

	t.apiRequestDuration, err = t.meter.Float64Histogram(
		"api_request_duration_seconds",
		metric.WithDescription("Cloud API request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create api_request_duration histogram: %w", err)
	}

	t.apiRetriesTotal, err = t.meter.Int64Counter(
		"api_retries_total",
		metric.WithDescription("Total number of retried cloud API requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create api_retries_total counter: %w", err)
	}

	t.downloadsTotal, err = t.meter.Int64Counter(
		"downloads_total",
		metric.WithDescription("Total number of downloads"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create downloads_total counter: %w", err)
	}

	t.downloadsActive, err = t.meter.Int64UpDownCounter(
		"downloads_active",
		metric.WithDescription("Number of active downloads"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create downloads_active counter: %w", err)
	}

	t.downloadDuration, err = t.meter.Float64Histogram(
		"download_duration_seconds",
		metric.WithDescription("Download duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create download_duration histogram: %w", err)
	}

	t.transfersTotal, err = t.meter.Int64Counter(
		"transfers_total",
		metric.WithDescription("Total number of transfer lifecycle events"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create transfers_total counter: %w", err)
	}

	return nil
}
