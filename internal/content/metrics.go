package content

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce   sync.Once
	fetchFailures otelmetric.Int64Counter
)

func initMetrics() {
	meter := otel.Meter("morningdrive/content")
	var err error
	fetchFailures, err = meter.Int64Counter(
		"content_fetch_failures_total",
		otelmetric.WithDescription("Content categories replaced by their fallback"),
	)
	if err != nil {
		log.Printf("content metrics init: content_fetch_failures_total: %v", err)
	}
}

func recordFetchFailure(ctx context.Context, category Category) {
	metricsOnce.Do(initMetrics)
	if fetchFailures == nil {
		return
	}
	fetchFailures.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("category", string(category))))
}
