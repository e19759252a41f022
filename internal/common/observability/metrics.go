package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider   *metric.MeterProvider
	meter           otelmetric.Meter
	subjectCounter  otelmetric.Int64Counter
	subjectDuration otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	subjectCounter, _ := meter.Int64Counter(
		"subjects.processed",
		otelmetric.WithDescription("Number of subject pipelines processed"),
	)

	subjectDuration, _ := meter.Float64Histogram(
		"subjects.duration",
		otelmetric.WithDescription("Subject pipeline duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider:   provider,
		meter:           meter,
		subjectCounter:  subjectCounter,
		subjectDuration: subjectDuration,
	}
}

func (o *Observability) RecordSubjectProcessed(ctx context.Context, status string) {
	if o.subjectCounter != nil {
		o.subjectCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordSubjectDuration(ctx context.Context, duration time.Duration, status string) {
	if o.subjectDuration != nil {
		o.subjectDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
