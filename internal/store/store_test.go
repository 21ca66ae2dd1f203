package store

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
)

const testBriefingID = "7d0c8f5e-3a4b-4c1d-9e2f-0a1b2c3d4e5f"

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{DB: db}, mock
}

func TestCreateBriefing(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO briefings (id, user_id, title, status)
VALUES ($1,$2,$3,$4)
RETURNING created_at, updated_at`)).
		WithArgs(sqlmock.AnyArg(), "user-1", "Morning Briefing", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	b, err := st.CreateBriefing(context.Background(), "user-1", "Morning Briefing")
	if err != nil {
		t.Fatalf("CreateBriefing: %v", err)
	}
	if b.ID == "" || b.Status != briefing.StatusPending || b.GenerationErrors == nil {
		t.Fatalf("unexpected briefing %+v", b)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetBriefingDecodesJSONColumns(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now()
	errs, _ := json.Marshal([]briefing.GenerationError{{Phase: briefing.PhaseGatheringContent, Component: "weather", Message: "timeout", Recoverable: true}})
	script, _ := json.Marshal(briefing.Script{Segments: []briefing.Segment{{Type: briefing.SegmentIntro, Items: []briefing.Item{{Voice: "host", Text: "Hi"}}}}})
	tl, _ := json.Marshal(briefing.Timeline{Segments: []briefing.TimelineEntry{{Type: briefing.SegmentIntro, StartTime: 0.5, EndTime: 1.5, Title: "Intro"}}})

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ` + briefingColumns + ` FROM briefings WHERE id=$1`)).
		WithArgs(testBriefingID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "status", "generation_errors", "pending_action", "script", "segments_metadata", "audio_key", "duration_seconds", "created_at", "updated_at"}).
			AddRow(testBriefingID, "user-1", "1/5/26 - Snow", "completed_with_warnings", errs, nil, script, tl, "briefings/x.wav", 312.5, now, now))

	b, ok, err := st.GetBriefing(context.Background(), testBriefingID)
	if err != nil || !ok {
		t.Fatalf("GetBriefing: ok=%v err=%v", ok, err)
	}
	if b.Status != briefing.StatusCompletedWithWarnings || len(b.GenerationErrors) != 1 || b.GenerationErrors[0].Component != "weather" {
		t.Fatalf("unexpected briefing %+v", b)
	}
	if b.Script == nil || len(b.Script.Segments) != 1 || b.Timeline == nil || b.Timeline.Segments[0].EndTime != 1.5 {
		t.Fatalf("script/timeline not decoded: %+v", b)
	}
	if b.PendingAction != nil {
		t.Fatalf("pending action should be nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetBriefingRejectsMalformedID(t *testing.T) {
	st, mock := newMock(t)
	_, ok, err := st.GetBriefing(context.Background(), "not-a-uuid")
	if err != nil || ok {
		t.Fatalf("expected not found, got ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no query expected: %v", err)
	}
}

func TestGetBriefingStatusNotFound(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM briefings WHERE id=$1`)).
		WithArgs(testBriefingID).
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	_, ok, err := st.GetBriefingStatus(context.Background(), testBriefingID)
	if err != nil || ok {
		t.Fatalf("expected not found, got ok=%v err=%v", ok, err)
	}
}

func TestUpdateBriefingStatusIsConditional(t *testing.T) {
	st, mock := newMock(t)
	query := regexp.QuoteMeta(`UPDATE briefings SET status=$2, updated_at=NOW() WHERE id=$1 AND status <> ALL($3)`)
	mock.ExpectExec(query).WithArgs(testBriefingID, "writing_script", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs(testBriefingID, "generating_audio", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := st.UpdateBriefingStatus(context.Background(), testBriefingID, briefing.StatusWritingScript)
	if err != nil || !ok {
		t.Fatalf("first update: ok=%v err=%v", ok, err)
	}
	ok, err = st.UpdateBriefingStatus(context.Background(), testBriefingID, briefing.StatusGeneratingAudio)
	if err != nil || ok {
		t.Fatalf("terminal row must not be updated: ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendGenerationError(t *testing.T) {
	st, mock := newMock(t)
	ge := briefing.GenerationError{Phase: briefing.PhaseWritingScript, Component: "script", Message: "bad json", Recoverable: true, Fallback: "minimal"}
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE briefings SET generation_errors = generation_errors || jsonb_build_array($2::jsonb), updated_at=NOW() WHERE id=$1`)).
		WithArgs(testBriefingID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := st.AppendGenerationError(context.Background(), testBriefingID, ge); err != nil {
		t.Fatalf("AppendGenerationError: %v", err)
	}

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE briefings SET generation_errors`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := st.AppendGenerationError(context.Background(), testBriefingID, ge); err != briefing.ErrBriefingNotFound {
		t.Fatalf("expected ErrBriefingNotFound, got %v", err)
	}
}

func TestFinalizeBriefingSkipsTerminalRows(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE briefings SET`)).
		WithArgs(testBriefingID, "1/5/26 - Snow", 300.0, "briefings/a.wav", sqlmock.AnyArg(), sqlmock.AnyArg(), "completed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := st.FinalizeBriefing(context.Background(), testBriefingID, briefing.Result{
		Title:           "1/5/26 - Snow",
		DurationSeconds: 300,
		AudioKey:        "briefings/a.wav",
		Script:          &briefing.Script{},
		Timeline:        &briefing.Timeline{Segments: []briefing.TimelineEntry{}},
		Status:          briefing.StatusCompleted,
	})
	if err != nil {
		t.Fatalf("FinalizeBriefing: %v", err)
	}
	if ok {
		t.Fatalf("cancelled briefing must not be finalized")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetUserSettings(t *testing.T) {
	st, mock := newMock(t)
	sources := []byte(`{"news_sources":["bbc"],"news_topics":["top"],"sports_leagues":["nba"],"sports_teams":[{"league":"nba","name":"Knicks"}],"weather_locations":[{"name":"Boston","latitude":42.36,"longitude":-71.06}],"fun_segments":["dad_joke"]}`)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM user_settings`)).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "length_mode", "timezone", "segment_order", "writing_style", "exclusions", "voice_id", "voice_style", "voice_speed", "tts_provider", "include_music", "include_intro", "include_transitions", "deep_dive_enabled", "sources"}).
			AddRow("user-1", "long", "America/Chicago", "{weather,news}", "firing_line", "{crypto}", "alice", "calm", 1.0, "elevenlabs", true, false, true, true, sources))

	u, ok, err := st.GetUserSettings(context.Background(), "user-1")
	if err != nil || !ok {
		t.Fatalf("GetUserSettings: ok=%v err=%v", ok, err)
	}
	if u.LengthMode != briefing.LengthLong || len(u.SegmentOrder) != 2 || u.SegmentOrder[0] != briefing.SegmentWeather {
		t.Fatalf("unexpected settings %+v", u)
	}
	if len(u.Exclusions) != 1 || u.Exclusions[0] != "crypto" || !u.IncludeMusic || u.IncludeIntro {
		t.Fatalf("unexpected flags %+v", u)
	}
	if len(u.WeatherLocations) != 1 || u.WeatherLocations[0].Name != "Boston" || u.FunSegments[0] != "dad_joke" {
		t.Fatalf("sources not decoded: %+v", u)
	}
}

func TestGetUserSettingsMissing(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM user_settings`)).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	if _, ok, err := st.GetUserSettings(context.Background(), "ghost"); err != nil || ok {
		t.Fatalf("expected not found, got ok=%v err=%v", ok, err)
	}
}

func TestUpsertUserSettings(t *testing.T) {
	st, mock := newMock(t)
	u := briefing.DefaultUserSettings("user-1")
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO user_settings`)).
		WithArgs("user-1", "short", "America/New_York", sqlmock.AnyArg(), "good_morning_america", sqlmock.AnyArg(), "host", "energetic", 1.1,
			"chatterbox", false, true, true, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := st.UpsertUserSettings(context.Background(), u); err != nil {
		t.Fatalf("UpsertUserSettings: %v", err)
	}
	if err := st.UpsertUserSettings(context.Background(), briefing.UserSettings{}); err == nil {
		t.Fatalf("expected error for missing user id")
	}
}

func TestListEnabledSchedules(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id, enabled, days_of_week, time_hour, time_minute, timezone FROM schedules WHERE enabled ORDER BY user_id`)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "enabled", "days_of_week", "time_hour", "time_minute", "timezone"}).
			AddRow("user-1", true, "{0,1,2,3,4}", 6, 30, "America/New_York"))

	out, err := st.ListEnabledSchedules(context.Background())
	if err != nil {
		t.Fatalf("ListEnabledSchedules: %v", err)
	}
	if len(out) != 1 || len(out[0].DaysOfWeek) != 5 || out[0].Minute != 30 {
		t.Fatalf("unexpected schedules %+v", out)
	}
	if spec := out[0].CronSpec(); spec != "30 6 * * 1,2,3,4,5" {
		t.Fatalf("unexpected cron spec %q", spec)
	}
}

func TestUpsertScheduleValidatesTime(t *testing.T) {
	st, _ := newMock(t)
	if err := st.UpsertSchedule(context.Background(), briefing.Schedule{UserID: "u", Hour: 24}); err == nil {
		t.Fatalf("expected invalid time error")
	}
}

func TestActiveMusicPieces(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ` + musicColumns + ` FROM music_pieces WHERE is_active ORDER BY id`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "composer", "title", "description", "duration_seconds", "s3_key", "day_of_year_start", "day_of_year_end", "is_active"}).
			AddRow(1, "Bach", "Air", "", 300.0, "music/air.wav", 1, 366, true))

	out, err := st.ActiveMusicPieces(context.Background())
	if err != nil {
		t.Fatalf("ActiveMusicPieces: %v", err)
	}
	if len(out) != 1 || out[0].ObjectKey != "music/air.wav" || !out[0].Active {
		t.Fatalf("unexpected catalog %+v", out)
	}
}

func TestClaimIdempotency(t *testing.T) {
	st, mock := newMock(t)
	query := regexp.QuoteMeta(`INSERT INTO idempotency_keys (scope, key) VALUES ($1,$2) ON CONFLICT (scope, key) DO NOTHING`)
	mock.ExpectExec(query).WithArgs("briefing.requested", "e-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("briefing.requested", "e-1").WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := st.ClaimIdempotency(context.Background(), "briefing.requested", "e-1")
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = st.ClaimIdempotency(context.Background(), "briefing.requested", "e-1")
	if err != nil || ok {
		t.Fatalf("second claim must fail: ok=%v err=%v", ok, err)
	}
	if _, err := st.ClaimIdempotency(context.Background(), "", "e-1"); err == nil {
		t.Fatalf("expected empty scope to be rejected")
	}
}
