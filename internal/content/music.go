package content

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
)

// CatalogStore lists active music pieces.
type CatalogStore interface {
	ActiveMusicPieces(ctx context.Context) ([]briefing.MusicPiece, error)
}

// MusicCatalog picks the piece of the day and writes its introduction brief.
type MusicCatalog struct {
	Store CatalogStore
}

func (m *MusicCatalog) Fetch(ctx context.Context, req Request) (Section, error) {
	if m.Store == nil {
		return Section{}, errors.New("music catalog not configured")
	}
	pieces, err := m.Store.ActiveMusicPieces(ctx)
	if err != nil {
		return Section{}, fmt.Errorf("list music: %w", err)
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	piece := SelectForDate(pieces, now.Format("2006-01-02"))
	if piece == nil {
		return Section{}, nil
	}
	return Section{Text: MusicBrief(*piece), Piece: piece}, nil
}

// SelectForDate deterministically picks a piece for date (YYYY-MM-DD). Pieces
// whose day-of-year window contains the date are preferred; when none match
// the whole catalog is used. The index is FNV-1a(date) modulo the candidate
// count over candidates ordered by id. It returns nil for an empty catalog.
func SelectForDate(pieces []briefing.MusicPiece, date string) *briefing.MusicPiece {
	var active []briefing.MusicPiece
	for _, p := range pieces {
		if p.Active {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		return nil
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	candidates := active
	if d, err := time.Parse("2006-01-02", date); err == nil {
		doy := d.YearDay()
		var inWindow []briefing.MusicPiece
		for _, p := range active {
			if p.DayOfYearStart <= doy && doy <= p.DayOfYearEnd {
				inWindow = append(inWindow, p)
			}
		}
		if len(inWindow) > 0 {
			candidates = inWindow
		}
	}

	h := fnv.New32a()
	h.Write([]byte(date))
	picked := candidates[int(h.Sum32()%uint32(len(candidates)))]
	return &picked
}

// MusicBrief is the instruction block the script writer uses to introduce the piece.
func MusicBrief(p briefing.MusicPiece) string {
	var b strings.Builder
	b.WriteString("=== MUSIC SEGMENT ===\n")
	fmt.Fprintf(&b, "Composer: %s\nPiece: %s\n", p.Composer, p.Title)
	if mins := int(p.DurationSeconds) / 60; mins > 0 {
		fmt.Fprintf(&b, "Duration: about %d minutes\n", mins)
	} else {
		b.WriteString("Duration: less than a minute\n")
	}
	if p.Description != "" {
		fmt.Fprintf(&b, "Description/Facts:\n%s\n", p.Description)
	}
	b.WriteString("\nInstructions: Create a brief, engaging introduction to this piece that helps the listener appreciate the music they're about to hear.\n")
	if p.Description != "" {
		b.WriteString("Use the description/facts above to make the introduction interesting and educational.\n")
	} else {
		b.WriteString("Keep the introduction warm and welcoming.\n")
	}
	fmt.Fprintf(&b, "The actual music WILL play after your introduction, so end with a smooth transition like:\n\"And now, here is %s by %s...\"\n", p.Title, p.Composer)
	b.WriteString("Keep the introduction under 30 seconds so listeners can enjoy the music.")
	return b.String()
}
