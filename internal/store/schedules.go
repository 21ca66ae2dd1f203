package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
)

func scanSchedule(row rowScanner) (briefing.Schedule, error) {
	var sc briefing.Schedule
	var days pq.Int64Array
	if err := row.Scan(&sc.UserID, &sc.Enabled, &days, &sc.Hour, &sc.Minute, &sc.Timezone); err != nil {
		return briefing.Schedule{}, err
	}
	for _, d := range days {
		sc.DaysOfWeek = append(sc.DaysOfWeek, int(d))
	}
	return sc, nil
}

// GetSchedule loads a user's schedule.
func (s *Store) GetSchedule(ctx context.Context, userID string) (briefing.Schedule, bool, error) {
	sc, err := scanSchedule(s.DB.QueryRowContext(ctx, `SELECT user_id, enabled, days_of_week, time_hour, time_minute, timezone FROM schedules WHERE user_id=$1`, userID))
	if err == sql.ErrNoRows {
		return briefing.Schedule{}, false, nil
	}
	if err != nil {
		return briefing.Schedule{}, false, err
	}
	return sc, true, nil
}

// ListEnabledSchedules returns every schedule the scheduler should evaluate.
func (s *Store) ListEnabledSchedules(ctx context.Context) ([]briefing.Schedule, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT user_id, enabled, days_of_week, time_hour, time_minute, timezone FROM schedules WHERE enabled ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []briefing.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// UpsertSchedule stores a user's schedule.
func (s *Store) UpsertSchedule(ctx context.Context, sc briefing.Schedule) error {
	if sc.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if sc.Hour < 0 || sc.Hour > 23 || sc.Minute < 0 || sc.Minute > 59 {
		return fmt.Errorf("invalid schedule time %02d:%02d", sc.Hour, sc.Minute)
	}
	days := make(pq.Int64Array, 0, len(sc.DaysOfWeek))
	for _, d := range sc.DaysOfWeek {
		days = append(days, int64(d))
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO schedules (user_id, enabled, days_of_week, time_hour, time_minute, timezone, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW())
ON CONFLICT (user_id) DO UPDATE SET
  enabled = EXCLUDED.enabled,
  days_of_week = EXCLUDED.days_of_week,
  time_hour = EXCLUDED.time_hour,
  time_minute = EXCLUDED.time_minute,
  timezone = EXCLUDED.timezone,
  updated_at = NOW();
`, sc.UserID, sc.Enabled, days, sc.Hour, sc.Minute, sc.Timezone)
	return err
}
