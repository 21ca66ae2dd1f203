package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
)

// contentSources is the JSONB part of user_settings.
type contentSources struct {
	NewsSources      []string                   `json:"news_sources"`
	NewsTopics       []string                   `json:"news_topics"`
	SportsLeagues    []string                   `json:"sports_leagues"`
	SportsTeams      []briefing.SportsTeam      `json:"sports_teams"`
	WeatherLocations []briefing.WeatherLocation `json:"weather_locations"`
	FunSegments      []string                   `json:"fun_segments"`
}

// GetUserSettings loads the user's preferences. The bool is false when the
// user never saved any; callers then use briefing.DefaultUserSettings.
func (s *Store) GetUserSettings(ctx context.Context, userID string) (briefing.UserSettings, bool, error) {
	var (
		u         briefing.UserSettings
		length    string
		order     pq.StringArray
		excl      pq.StringArray
		sourceRaw []byte
	)
	row := s.DB.QueryRowContext(ctx, `
SELECT user_id, length_mode, timezone, segment_order, writing_style, exclusions, voice_id, voice_style, voice_speed,
       tts_provider, include_music, include_intro, include_transitions, deep_dive_enabled, sources
FROM user_settings
WHERE user_id=$1`, userID)
	err := row.Scan(&u.UserID, &length, &u.Timezone, &order, &u.WritingStyle, &excl, &u.VoiceID, &u.VoiceStyle, &u.VoiceSpeed,
		&u.TTSProvider, &u.IncludeMusic, &u.IncludeIntro, &u.IncludeTransitions, &u.DeepDiveEnabled, &sourceRaw)
	if err == sql.ErrNoRows {
		return briefing.UserSettings{}, false, nil
	}
	if err != nil {
		return briefing.UserSettings{}, false, err
	}
	u.LengthMode = briefing.LengthMode(length)
	for _, t := range order {
		u.SegmentOrder = append(u.SegmentOrder, briefing.SegmentType(t))
	}
	u.Exclusions = []string(excl)
	if len(sourceRaw) > 0 {
		var src contentSources
		if err := json.Unmarshal(sourceRaw, &src); err != nil {
			return briefing.UserSettings{}, false, fmt.Errorf("decode sources: %w", err)
		}
		u.NewsSources = src.NewsSources
		u.NewsTopics = src.NewsTopics
		u.SportsLeagues = src.SportsLeagues
		u.SportsTeams = src.SportsTeams
		u.WeatherLocations = src.WeatherLocations
		u.FunSegments = src.FunSegments
	}
	return u, true, nil
}

// SettingsForRun returns the user's settings with defaults filled in.
func (s *Store) SettingsForRun(ctx context.Context, userID string) (briefing.UserSettings, bool, error) {
	u, ok, err := s.GetUserSettings(ctx, userID)
	if err != nil || !ok {
		return u, ok, err
	}
	return u.Normalize(), true, nil
}

// UpsertUserSettings stores the full preference snapshot.
func (s *Store) UpsertUserSettings(ctx context.Context, u briefing.UserSettings) error {
	if u.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	order := make(pq.StringArray, 0, len(u.SegmentOrder))
	for _, t := range u.SegmentOrder {
		order = append(order, string(t))
	}
	excl := pq.StringArray(u.Exclusions)
	if excl == nil {
		excl = pq.StringArray{}
	}
	sources, err := json.Marshal(contentSources{
		NewsSources:      u.NewsSources,
		NewsTopics:       u.NewsTopics,
		SportsLeagues:    u.SportsLeagues,
		SportsTeams:      u.SportsTeams,
		WeatherLocations: u.WeatherLocations,
		FunSegments:      u.FunSegments,
	})
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO user_settings (user_id, length_mode, timezone, segment_order, writing_style, exclusions, voice_id, voice_style, voice_speed,
  tts_provider, include_music, include_intro, include_transitions, deep_dive_enabled, sources, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW())
ON CONFLICT (user_id) DO UPDATE SET
  length_mode = EXCLUDED.length_mode,
  timezone = EXCLUDED.timezone,
  segment_order = EXCLUDED.segment_order,
  writing_style = EXCLUDED.writing_style,
  exclusions = EXCLUDED.exclusions,
  voice_id = EXCLUDED.voice_id,
  voice_style = EXCLUDED.voice_style,
  voice_speed = EXCLUDED.voice_speed,
  tts_provider = EXCLUDED.tts_provider,
  include_music = EXCLUDED.include_music,
  include_intro = EXCLUDED.include_intro,
  include_transitions = EXCLUDED.include_transitions,
  deep_dive_enabled = EXCLUDED.deep_dive_enabled,
  sources = EXCLUDED.sources,
  updated_at = NOW();
`, u.UserID, string(u.LengthMode), u.Timezone, order, u.WritingStyle, excl, u.VoiceID, u.VoiceStyle, u.VoiceSpeed,
		u.TTSProvider, u.IncludeMusic, u.IncludeIntro, u.IncludeTransitions, u.DeepDiveEnabled, sources)
	return err
}
