package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
)

func terminalStatuses() pq.StringArray {
	ts := briefing.TerminalStatuses()
	out := make(pq.StringArray, len(ts))
	for i, s := range ts {
		out[i] = string(s)
	}
	return out
}

// CreateBriefing inserts a pending briefing for userID.
func (s *Store) CreateBriefing(ctx context.Context, userID, title string) (briefing.Briefing, error) {
	b := briefing.Briefing{
		ID:               uuid.NewString(),
		UserID:           userID,
		Title:            title,
		Status:           briefing.StatusPending,
		GenerationErrors: []briefing.GenerationError{},
	}
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO briefings (id, user_id, title, status)
VALUES ($1,$2,$3,$4)
RETURNING created_at, updated_at`, b.ID, userID, title, string(b.Status)).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return briefing.Briefing{}, fmt.Errorf("insert briefing: %w", err)
	}
	return b, nil
}

const briefingColumns = `id::text, user_id, title, status, generation_errors, pending_action, script, segments_metadata, audio_key, duration_seconds, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBriefing(row rowScanner) (briefing.Briefing, error) {
	var b briefing.Briefing
	var status string
	var errs, pending, script, timelineColumn []byte
	if err := row.Scan(&b.ID, &b.UserID, &b.Title, &status, &errs, &pending, &script, &timelineColumn, &b.AudioKey, &b.DurationSeconds, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return briefing.Briefing{}, err
	}
	b.Status = briefing.Status(status)
	b.GenerationErrors = []briefing.GenerationError{}
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &b.GenerationErrors); err != nil {
			return briefing.Briefing{}, fmt.Errorf("decode generation_errors: %w", err)
		}
	}
	if len(pending) > 0 && string(pending) != "null" {
		b.PendingAction = &briefing.PendingAction{}
		if err := json.Unmarshal(pending, b.PendingAction); err != nil {
			return briefing.Briefing{}, fmt.Errorf("decode pending_action: %w", err)
		}
	}
	if len(script) > 0 && string(script) != "null" {
		b.Script = &briefing.Script{}
		if err := json.Unmarshal(script, b.Script); err != nil {
			return briefing.Briefing{}, fmt.Errorf("decode script: %w", err)
		}
	}
	if len(timelineColumn) > 0 && string(timelineColumn) != "null" {
		b.Timeline = &briefing.Timeline{}
		if err := json.Unmarshal(timelineColumn, b.Timeline); err != nil {
			return briefing.Briefing{}, fmt.Errorf("decode segments_metadata: %w", err)
		}
	}
	return b, nil
}

// GetBriefing loads one briefing. The bool reports whether it exists.
func (s *Store) GetBriefing(ctx context.Context, id string) (briefing.Briefing, bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return briefing.Briefing{}, false, nil
	}
	b, err := scanBriefing(s.DB.QueryRowContext(ctx, `SELECT `+briefingColumns+` FROM briefings WHERE id=$1`, id))
	if err == sql.ErrNoRows {
		return briefing.Briefing{}, false, nil
	}
	if err != nil {
		return briefing.Briefing{}, false, err
	}
	return b, true, nil
}

// ListBriefings returns the user's most recent briefings, newest first.
func (s *Store) ListBriefings(ctx context.Context, userID string, limit int) ([]briefing.Briefing, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT `+briefingColumns+` FROM briefings WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []briefing.Briefing
	for rows.Next() {
		b, err := scanBriefing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// LatestBriefingTime is the creation time of the user's newest briefing, nil when none.
func (s *Store) LatestBriefingTime(ctx context.Context, userID string) (*time.Time, error) {
	var ts *time.Time
	err := s.DB.QueryRowContext(ctx, `SELECT MAX(created_at) FROM briefings WHERE user_id=$1`, userID).Scan(&ts)
	return ts, err
}

// GetBriefingStatus implements briefing.StatusStore.
func (s *Store) GetBriefingStatus(ctx context.Context, id string) (briefing.Status, bool, error) {
	var status string
	err := s.DB.QueryRowContext(ctx, `SELECT status FROM briefings WHERE id=$1`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return briefing.Status(status), true, nil
}

// UpdateBriefingStatus writes status unless the row is already terminal. It
// reports whether a row changed.
func (s *Store) UpdateBriefingStatus(ctx context.Context, id string, status briefing.Status) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `UPDATE briefings SET status=$2, updated_at=NOW() WHERE id=$1 AND status <> ALL($3)`, id, string(status), terminalStatuses())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// AppendGenerationError appends ge to the briefing's error log in one statement.
func (s *Store) AppendGenerationError(ctx context.Context, id string, ge briefing.GenerationError) error {
	payload, err := json.Marshal(ge)
	if err != nil {
		return fmt.Errorf("marshal generation error: %w", err)
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE briefings SET generation_errors = generation_errors || jsonb_build_array($2::jsonb), updated_at=NOW() WHERE id=$1`, id, payload)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return briefing.ErrBriefingNotFound
	}
	return nil
}

// CancelBriefing marks a non-terminal briefing cancelled. It reports whether
// the row changed; false means it was missing or already finished.
func (s *Store) CancelBriefing(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	return s.UpdateBriefingStatus(ctx, id, briefing.StatusCancelled)
}

// FinalizeBriefing persists the run output and terminal status in one update.
// It reports false when the briefing became terminal (e.g. cancelled) first,
// in which case nothing is written.
func (s *Store) FinalizeBriefing(ctx context.Context, id string, r briefing.Result) (bool, error) {
	script, err := json.Marshal(r.Script)
	if err != nil {
		return false, fmt.Errorf("marshal script: %w", err)
	}
	timeline, err := json.Marshal(r.Timeline)
	if err != nil {
		return false, fmt.Errorf("marshal timeline: %w", err)
	}
	res, err := s.DB.ExecContext(ctx, `
UPDATE briefings SET
  title = $2,
  duration_seconds = $3,
  audio_key = $4,
  script = $5,
  segments_metadata = $6,
  pending_action = NULL,
  status = $7,
  updated_at = NOW()
WHERE id = $1 AND status <> ALL($8)`, id, r.Title, r.DurationSeconds, r.AudioKey, script, timeline, string(r.Status), terminalStatuses())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
