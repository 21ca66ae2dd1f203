package streams

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	streamMetricsOnce sync.Once
	eventsPublished   otelmetric.Int64Counter
	eventsDropped     otelmetric.Int64Counter
)

func initStreamMetrics() {
	meter := otel.Meter("morningdrive/queue/streams")
	var err error
	eventsPublished, err = meter.Int64Counter(
		"stream_events_published_total",
		otelmetric.WithDescription("Envelopes appended to Redis streams"),
	)
	if err != nil {
		log.Printf("queue streams metrics init: stream_events_published_total: %v", err)
	}
	eventsDropped, err = meter.Int64Counter(
		"stream_events_dropped_total",
		otelmetric.WithDescription("Stream entries acked without delivery because they could not be decoded or validated"),
	)
	if err != nil {
		log.Printf("queue streams metrics init: stream_events_dropped_total: %v", err)
	}
}

func recordPublished(ctx context.Context, stream, eventType string) {
	streamMetricsOnce.Do(initStreamMetrics)
	if eventsPublished == nil {
		return
	}
	eventsPublished.Add(contextOrBackground(ctx), 1, otelmetric.WithAttributes(
		attribute.String("stream", stream),
		attribute.String("event_type", eventType),
	))
}

func recordDropped(ctx context.Context, stream, reason string) {
	streamMetricsOnce.Do(initStreamMetrics)
	if eventsDropped == nil {
		return
	}
	eventsDropped.Add(contextOrBackground(ctx), 1, otelmetric.WithAttributes(
		attribute.String("stream", stream),
		attribute.String("reason", reason),
	))
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
