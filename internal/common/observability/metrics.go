package observability

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability owns the OpenTelemetry instruments of the anti-spam service.
// A zero value records nothing.
type Observability struct {
	provider *metric.MeterProvider

	checks        otelmetric.Int64Counter
	checkDuration otelmetric.Float64Histogram
	jobs          otelmetric.Int64Counter
	requests      otelmetric.Int64Counter
	requestTime   otelmetric.Float64Histogram
}

// New exports instruments through the default Prometheus registry.
func New(serviceName string) (*Observability, error) {
	return NewWithRegisterer(serviceName, promclient.DefaultRegisterer)
}

// NewWithRegisterer exports instruments through reg and installs the meter
// provider globally.
func NewWithRegisterer(serviceName string, reg promclient.Registerer) (*Observability, error) {
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(serviceName)

	o := &Observability{provider: provider}
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	o.checks, err = meter.Int64Counter("checks.processed",
		otelmetric.WithDescription("Anti-spam checks by remote method and verdict"))
	collect(err)
	o.checkDuration, err = meter.Float64Histogram("checks.duration",
		otelmetric.WithDescription("Anti-spam check duration including the remote call"),
		otelmetric.WithUnit("ms"))
	collect(err)
	o.jobs, err = meter.Int64Counter("jobs.processed",
		otelmetric.WithDescription("Workflow jobs by task type and status"))
	collect(err)
	o.requests, err = meter.Int64Counter("http.requests",
		otelmetric.WithDescription("HTTP requests by route and status"))
	collect(err)
	o.requestTime, err = meter.Float64Histogram("http.request.duration",
		otelmetric.WithDescription("HTTP request duration"),
		otelmetric.WithUnit("ms"))
	collect(err)

	if err := errors.Join(errs...); err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, fmt.Errorf("create instruments: %w", err)
	}
	return o, nil
}

// RecordCheck implements antispam.Recorder.
func (o *Observability) RecordCheck(ctx context.Context, method, verdict string, duration time.Duration) {
	if o.checks == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("method", method),
		attribute.String("verdict", verdict),
	)
	o.checks.Add(ctx, 1, attrs)
	o.checkDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordJobProcessed is called by the workers once per finished job.
func (o *Observability) RecordJobProcessed(ctx context.Context, taskType, status string) {
	if o.jobs == nil {
		return
	}
	o.jobs.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", status),
	))
}

// RecordRequest is called by the HTTP API once per served request.
func (o *Observability) RecordRequest(ctx context.Context, route string, status int, duration time.Duration) {
	if o.requests == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	o.requests.Add(ctx, 1, attrs)
	o.requestTime.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (o *Observability) Shutdown() {
	if o.provider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = o.provider.Shutdown(ctx)
}
