package store_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
	"github.com/mohammad-safakhou/morningdrive/internal/store"
)

func startPostgres(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	pgC, err := tcPostgres.RunContainer(ctx,
		tcPostgres.WithDatabase("morningdrive"),
		tcPostgres.WithUsername("morningdrive"),
		tcPostgres.WithPassword("morningdrive"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	port, err := pgC.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://morningdrive:morningdrive@%s:%s/morningdrive?sslmode=disable", host, port.Port())

	m, err := migrate.New("file://../../migrations", dsn)
	if err != nil {
		t.Fatalf("migrate init: %v", err)
	}
	if err := m.Up(); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("store init: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestBriefingLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	st := startPostgres(t)

	b, err := st.CreateBriefing(ctx, "user-1", "Morning Briefing - January 5, 2026")
	if err != nil {
		t.Fatalf("CreateBriefing: %v", err)
	}
	if ok, err := st.UpdateBriefingStatus(ctx, b.ID, briefing.StatusSetup); err != nil || !ok {
		t.Fatalf("UpdateBriefingStatus: ok=%v err=%v", ok, err)
	}
	for _, c := range []string{"news", "sports"} {
		if err := st.AppendGenerationError(ctx, b.ID, briefing.GenerationError{Phase: briefing.PhaseGatheringContent, Component: c, Message: "down", Recoverable: true}); err != nil {
			t.Fatalf("AppendGenerationError: %v", err)
		}
	}
	if ok, err := st.CancelBriefing(ctx, b.ID); err != nil || !ok {
		t.Fatalf("CancelBriefing: ok=%v err=%v", ok, err)
	}
	if ok, err := st.UpdateBriefingStatus(ctx, b.ID, briefing.StatusGeneratingAudio); err != nil || ok {
		t.Fatalf("cancelled briefing must not move: ok=%v err=%v", ok, err)
	}
	if ok, err := st.FinalizeBriefing(ctx, b.ID, briefing.Result{Title: "x", Status: briefing.StatusCompleted}); err != nil || ok {
		t.Fatalf("cancelled briefing must not finalize: ok=%v err=%v", ok, err)
	}

	got, found, err := st.GetBriefing(ctx, b.ID)
	if err != nil || !found {
		t.Fatalf("GetBriefing: found=%v err=%v", found, err)
	}
	if got.Status != briefing.StatusCancelled || len(got.GenerationErrors) != 2 || got.GenerationErrors[1].Component != "sports" {
		t.Fatalf("unexpected briefing %+v", got)
	}
	if got.Script != nil || got.AudioKey != "" {
		t.Fatalf("cancelled briefing must not carry output")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	st := startPostgres(t)

	u := briefing.DefaultUserSettings("user-2")
	u.Exclusions = []string{"celebrity"}
	u.SportsTeams = []briefing.SportsTeam{{Name: "Yankees", League: "mlb"}}
	if err := st.UpsertUserSettings(ctx, u); err != nil {
		t.Fatalf("UpsertUserSettings: %v", err)
	}
	got, ok, err := st.SettingsForRun(ctx, "user-2")
	if err != nil || !ok {
		t.Fatalf("SettingsForRun: ok=%v err=%v", ok, err)
	}
	if len(got.SegmentOrder) != 4 || got.Exclusions[0] != "celebrity" || got.SportsTeams[0].Name != "Yankees" {
		t.Fatalf("unexpected settings %+v", got)
	}
}
