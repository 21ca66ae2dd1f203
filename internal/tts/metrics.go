package tts

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce  sync.Once
	cacheHits    otelmetric.Int64Counter
	cacheMisses  otelmetric.Int64Counter
	itemFailures otelmetric.Int64Counter
)

func initMetrics() {
	meter := otel.Meter("morningdrive/tts")
	var err error
	if cacheHits, err = meter.Int64Counter("tts_cache_hits_total",
		otelmetric.WithDescription("Items served from the synthesis cache")); err != nil {
		log.Printf("tts metrics init: tts_cache_hits_total: %v", err)
	}
	if cacheMisses, err = meter.Int64Counter("tts_cache_misses_total",
		otelmetric.WithDescription("Items sent to a TTS backend")); err != nil {
		log.Printf("tts metrics init: tts_cache_misses_total: %v", err)
	}
	if itemFailures, err = meter.Int64Counter("tts_item_failures_total",
		otelmetric.WithDescription("Items that produced no clip")); err != nil {
		log.Printf("tts metrics init: tts_item_failures_total: %v", err)
	}
}

func countCache(ctx context.Context, hit bool, provider string) {
	metricsOnce.Do(initMetrics)
	c := cacheMisses
	if hit {
		c = cacheHits
	}
	if c == nil {
		return
	}
	c.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("provider", provider)))
}

func countFailure(ctx context.Context, provider string) {
	metricsOnce.Do(initMetrics)
	if itemFailures == nil {
		return
	}
	itemFailures.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("provider", provider)))
}
