// Package traces wires OpenTelemetry tracing for the ledger services.
package traces

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
)

const tracerName = "github.com/angelmondragon/partnerledger-backend"

// Init installs an OTLP tracer provider. With an empty endpoint the global
// no-op provider stays in place. The returned func flushes and stops the
// exporter.
func Init(ctx context.Context, serviceName, otlpEndpoint string, logg *logger.Logger) (func(context.Context) error, error) {
	if otlpEndpoint == "" {
		if logg != nil {
			logg.Info(ctx, "tracing disabled (no otlp endpoint set)")
		}
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(otlpEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	if logg != nil {
		logg.Info(logg.WithField(ctx, "endpoint", otlpEndpoint), "tracing enabled")
	}
	return tp.Shutdown, nil
}

// StartSpan starts a span on the package tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// End records err on the span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func AffiliateID(id string) attribute.KeyValue {
	return attribute.String("affiliate.id", id)
}

func InvoiceID(id string) attribute.KeyValue {
	return attribute.String("invoice.id", id)
}

func PayoutID(id string) attribute.KeyValue {
	return attribute.String("payout.id", id)
}

func AmountCents(cents int64) attribute.KeyValue {
	return attribute.Int64("amount.cents", cents)
}
