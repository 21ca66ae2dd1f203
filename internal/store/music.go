package store

import (
	"context"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
)

const musicColumns = `id, composer, title, description, duration_seconds, s3_key, day_of_year_start, day_of_year_end, is_active`

func (s *Store) queryMusic(ctx context.Context, query string) ([]briefing.MusicPiece, error) {
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []briefing.MusicPiece
	for rows.Next() {
		var p briefing.MusicPiece
		if err := rows.Scan(&p.ID, &p.Composer, &p.Title, &p.Description, &p.DurationSeconds, &p.ObjectKey, &p.DayOfYearStart, &p.DayOfYearEnd, &p.Active); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ActiveMusicPieces implements content.CatalogStore.
func (s *Store) ActiveMusicPieces(ctx context.Context) ([]briefing.MusicPiece, error) {
	return s.queryMusic(ctx, `SELECT `+musicColumns+` FROM music_pieces WHERE is_active ORDER BY id`)
}

// ListMusicPieces returns the whole catalog for administration.
func (s *Store) ListMusicPieces(ctx context.Context) ([]briefing.MusicPiece, error) {
	return s.queryMusic(ctx, `SELECT `+musicColumns+` FROM music_pieces ORDER BY id`)
}

// InsertMusicPiece adds a catalog entry and returns its id.
func (s *Store) InsertMusicPiece(ctx context.Context, p briefing.MusicPiece) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO music_pieces (composer, title, description, duration_seconds, s3_key, day_of_year_start, day_of_year_end, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id`, p.Composer, p.Title, p.Description, p.DurationSeconds, p.ObjectKey, p.DayOfYearStart, p.DayOfYearEnd, p.Active).Scan(&id)
	return id, err
}
