package pipeline

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
)

var (
	metricsOnce sync.Once
	runsTotal   otelmetric.Int64Counter
	runSeconds  otelmetric.Float64Histogram
	phaseErrors otelmetric.Int64Counter
)

func initMetrics() {
	meter := otel.Meter("morningdrive/pipeline")
	var err error
	runsTotal, err = meter.Int64Counter(
		"briefing_runs_total",
		otelmetric.WithDescription("Briefing generation runs by terminal status"),
	)
	if err != nil {
		log.Printf("pipeline metrics init: briefing_runs_total: %v", err)
	}
	runSeconds, err = meter.Float64Histogram(
		"briefing_run_seconds",
		otelmetric.WithDescription("Wall time of a briefing generation run"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		log.Printf("pipeline metrics init: briefing_run_seconds: %v", err)
	}
	phaseErrors, err = meter.Int64Counter(
		"briefing_phase_errors_total",
		otelmetric.WithDescription("Generation errors recorded per phase and component"),
	)
	if err != nil {
		log.Printf("pipeline metrics init: briefing_phase_errors_total: %v", err)
	}
}

func recordRun(ctx context.Context, status briefing.Status, elapsed time.Duration, errs []briefing.GenerationError) {
	metricsOnce.Do(initMetrics)
	st := otelmetric.WithAttributes(attribute.String("status", string(status)))
	if runsTotal != nil {
		runsTotal.Add(ctx, 1, st)
	}
	if runSeconds != nil {
		runSeconds.Record(ctx, elapsed.Seconds(), st)
	}
	if phaseErrors == nil {
		return
	}
	for _, ge := range errs {
		phaseErrors.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("phase", string(ge.Phase)),
			attribute.String("component", ge.Component),
		))
	}
}
