package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/morningdrive/config"
)

func TestSetupTelemetryDisabled(t *testing.T) {
	tele, meter, tracer, err := SetupTelemetry(context.Background(), config.TelemetryConfig{}, TelemetryOptions{ServiceName: "test"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if meter == nil || tracer == nil {
		t.Fatalf("disabled telemetry must still hand out a meter and tracer")
	}
	if tele.Registry != nil {
		t.Fatalf("disabled telemetry should not own a registry")
	}
	if err := tele.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupTelemetryPrometheusOnly(t *testing.T) {
	ctx := context.Background()
	tele, meter, _, err := SetupTelemetry(ctx, config.TelemetryConfig{Enabled: true}, TelemetryOptions{ServiceName: "test", ServiceVersion: "dev"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer tele.Shutdown(ctx)

	runs, err := meter.Int64Counter("briefing_runs_total")
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	runs.Add(ctx, 2)

	rec := httptest.NewRecorder()
	tele.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "briefing_runs_total") {
		t.Fatalf("counter missing from scrape:\n%s", rec.Body.String())
	}
}
