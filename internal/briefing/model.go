package briefing

import (
	"strconv"
	"strings"
	"time"
)

// Status is the persisted state of a briefing run.
type Status string

const (
	StatusPending               Status = "pending"
	StatusSetup                 Status = "setup"
	StatusGatheringContent      Status = "gathering_content"
	StatusWritingScript         Status = "writing_script"
	StatusResearchingStories    Status = "researching_stories"
	StatusGeneratingAudio       Status = "generating_audio"
	StatusFinalizing            Status = "finalizing"
	StatusCompleted             Status = "completed"
	StatusCompletedWithWarnings Status = "completed_with_warnings"
	StatusFailed                Status = "failed"
	StatusCancelled             Status = "cancelled"
)

var statusRank = map[Status]int{
	StatusPending:               0,
	StatusSetup:                 1,
	StatusGatheringContent:      2,
	StatusWritingScript:         3,
	StatusResearchingStories:    4,
	StatusGeneratingAudio:       5,
	StatusFinalizing:            6,
	StatusCompleted:             7,
	StatusCompletedWithWarnings: 7,
	StatusFailed:                7,
	StatusCancelled:             7,
}

// Rank orders statuses along the pipeline. Unknown statuses rank -1.
func (s Status) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// Terminal reports whether no further transition may happen after s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWithWarnings, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return s.Rank() >= 0 }

// TerminalStatuses lists every terminal status.
func TerminalStatuses() []Status {
	return []Status{StatusCompleted, StatusCompletedWithWarnings, StatusFailed, StatusCancelled}
}

// Phase names the pipeline step an error or cancellation is attributed to.
type Phase string

const (
	PhaseSetup              Phase = "setup"
	PhaseGatheringContent   Phase = "gathering_content"
	PhaseWritingScript      Phase = "writing_script"
	PhaseResearchingStories Phase = "researching_stories"
	PhaseGeneratingAudio    Phase = "generating_audio"
	PhaseUnknown            Phase = "unknown"
)

// PhaseOf maps an in-flight status to its phase.
func PhaseOf(s Status) Phase {
	switch s {
	case StatusSetup:
		return PhaseSetup
	case StatusGatheringContent:
		return PhaseGatheringContent
	case StatusWritingScript:
		return PhaseWritingScript
	case StatusResearchingStories:
		return PhaseResearchingStories
	case StatusGeneratingAudio:
		return PhaseGeneratingAudio
	default:
		return PhaseUnknown
	}
}

// SegmentType tags a script segment.
type SegmentType string

const (
	SegmentIntro   SegmentType = "intro"
	SegmentNews    SegmentType = "news"
	SegmentSports  SegmentType = "sports"
	SegmentWeather SegmentType = "weather"
	SegmentFun     SegmentType = "fun"
	SegmentMusic   SegmentType = "music"
	SegmentOutro   SegmentType = "outro"
	SegmentUnknown SegmentType = "unknown"
)

// Title renders the segment type for display, e.g. "fun_facts" -> "Fun Facts".
func (t SegmentType) Title() string {
	words := strings.Fields(strings.ReplaceAll(string(t), "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// GenerationError is one entry of a briefing's append-only error log.
type GenerationError struct {
	Phase       Phase     `json:"phase"`
	Component   string    `json:"component"`
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
	Fallback    string    `json:"fallback,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// PendingAction is reserved for interactive resolution flows.
type PendingAction struct {
	Type    string   `json:"type"`
	Message string   `json:"message"`
	Options []string `json:"options,omitempty"`
}

// Item is one spoken unit of a segment.
type Item struct {
	Voice        string `json:"voice"`
	VoiceProfile string `json:"voice_profile,omitempty"`
	Text         string `json:"text"`
	Attribution  string `json:"attribution,omitempty"`
}

// Segment is a typed block of the script.
type Segment struct {
	Type  SegmentType `json:"type"`
	Items []Item      `json:"items"`
}

// Script is the structured spoken-word document.
type Script struct {
	Date     string    `json:"date"`
	Title    string    `json:"title,omitempty"`
	Segments []Segment `json:"segments"`
}

// SegmentTypes returns every segment type that has at least one non-empty item.
func (s *Script) SegmentTypes() []SegmentType {
	if s == nil {
		return nil
	}
	seen := make(map[SegmentType]bool)
	var out []SegmentType
	for _, seg := range s.Segments {
		if seen[seg.Type] {
			continue
		}
		for _, it := range seg.Items {
			if strings.TrimSpace(it.Text) != "" {
				seen[seg.Type] = true
				out = append(out, seg.Type)
				break
			}
		}
	}
	return out
}

// WordCount counts words across every item.
func (s *Script) WordCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, seg := range s.Segments {
		for _, it := range seg.Items {
			n += len(strings.Fields(it.Text))
		}
	}
	return n
}

// TimelineEntry marks where a segment type sits in the final audio.
type TimelineEntry struct {
	Type      SegmentType `json:"type"`
	StartTime float64     `json:"start_time"`
	EndTime   float64     `json:"end_time"`
	Title     string      `json:"title"`
}

// Timeline is the mixer output persisted as segments metadata.
type Timeline struct {
	Segments      []TimelineEntry `json:"segments"`
	MusicAdded    bool            `json:"music_added"`
	MusicDuration float64         `json:"music_duration"`
	MusicError    string          `json:"music_error,omitempty"`
}

// Types lists the segment types in timeline order.
func (t Timeline) Types() []SegmentType {
	out := make([]SegmentType, 0, len(t.Segments))
	for _, e := range t.Segments {
		out = append(out, e.Type)
	}
	return out
}

// Briefing is one generation attempt for one user.
type Briefing struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user_id"`
	Title            string            `json:"title"`
	Status           Status            `json:"status"`
	GenerationErrors []GenerationError `json:"generation_errors"`
	PendingAction    *PendingAction    `json:"pending_action,omitempty"`
	Script           *Script           `json:"script,omitempty"`
	Timeline         *Timeline         `json:"segments_metadata,omitempty"`
	AudioKey         string            `json:"audio_key,omitempty"`
	DurationSeconds  float64           `json:"duration_seconds"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Result is what a successful run persists at finalize.
type Result struct {
	Title           string
	DurationSeconds float64
	AudioKey        string
	Script          *Script
	Timeline        *Timeline
	Status          Status
}

// WeatherLocation is a named coordinate.
type WeatherLocation struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SportsTeam is a favourite team in a league.
type SportsTeam struct {
	Name   string `json:"name"`
	League string `json:"league"`
}

// UserSettings is the preference snapshot a run reads.
type UserSettings struct {
	UserID             string            `json:"user_id"`
	LengthMode         LengthMode        `json:"length_mode"`
	Timezone           string            `json:"timezone"`
	SegmentOrder       []SegmentType     `json:"segment_order"`
	WritingStyle       string            `json:"writing_style"`
	Exclusions         []string          `json:"exclusions"`
	VoiceID            string            `json:"voice_id"`
	VoiceStyle         string            `json:"voice_style"`
	VoiceSpeed         float64           `json:"voice_speed"`
	TTSProvider        string            `json:"tts_provider"`
	IncludeMusic       bool              `json:"include_music"`
	IncludeIntro       bool              `json:"include_intro"`
	IncludeTransitions bool              `json:"include_transitions"`
	DeepDiveEnabled    bool              `json:"deep_dive_enabled"`
	NewsSources        []string          `json:"news_sources"`
	NewsTopics         []string          `json:"news_topics"`
	SportsLeagues      []string          `json:"sports_leagues"`
	SportsTeams        []SportsTeam      `json:"sports_teams"`
	WeatherLocations   []WeatherLocation `json:"weather_locations"`
	FunSegments        []string          `json:"fun_segments"`
}

// DefaultUserSettings returns the settings used for a user with no overrides.
func DefaultUserSettings(userID string) UserSettings {
	return UserSettings{
		UserID:             userID,
		LengthMode:         LengthShort,
		Timezone:           "America/New_York",
		SegmentOrder:       []SegmentType{SegmentNews, SegmentSports, SegmentWeather, SegmentFun},
		WritingStyle:       "good_morning_america",
		VoiceID:            "host",
		VoiceStyle:         "energetic",
		VoiceSpeed:         1.1,
		TTSProvider:        "chatterbox",
		IncludeIntro:       true,
		IncludeTransitions: true,
		NewsSources:        []string{"bbc", "npr", "nyt"},
		NewsTopics:         []string{"top", "technology", "business"},
		SportsLeagues:      []string{"nfl", "mlb", "nhl"},
		WeatherLocations:   []WeatherLocation{{Name: "New York", Latitude: 40.7128, Longitude: -74.0060}},
		FunSegments:        []string{"this_day_in_history", "quote_of_the_day"},
	}
}

// Normalize fills unset fields from the defaults.
func (u UserSettings) Normalize() UserSettings {
	def := DefaultUserSettings(u.UserID)
	if u.LengthMode == "" {
		u.LengthMode = def.LengthMode
	}
	if strings.TrimSpace(u.Timezone) == "" {
		u.Timezone = def.Timezone
	}
	if len(u.SegmentOrder) == 0 {
		u.SegmentOrder = def.SegmentOrder
	}
	if u.WritingStyle == "" {
		u.WritingStyle = def.WritingStyle
	}
	if u.VoiceID == "" {
		u.VoiceID = def.VoiceID
	}
	if u.VoiceStyle == "" {
		u.VoiceStyle = def.VoiceStyle
	}
	if u.VoiceSpeed <= 0 {
		u.VoiceSpeed = def.VoiceSpeed
	}
	if u.TTSProvider == "" {
		u.TTSProvider = def.TTSProvider
	}
	if len(u.NewsSources) == 0 {
		u.NewsSources = def.NewsSources
	}
	if len(u.NewsTopics) == 0 {
		u.NewsTopics = def.NewsTopics
	}
	if len(u.SportsLeagues) == 0 {
		u.SportsLeagues = def.SportsLeagues
	}
	if len(u.WeatherLocations) == 0 {
		u.WeatherLocations = def.WeatherLocations
	}
	if u.FunSegments == nil {
		u.FunSegments = def.FunSegments
	}
	return u
}

// HasFunSegment reports whether name is among the enabled fun segments.
func (u UserSettings) HasFunSegment(name string) bool {
	for _, s := range u.FunSegments {
		if s == name {
			return true
		}
	}
	return false
}

// Location resolves the user's timezone, falling back to UTC.
func (u UserSettings) Location() *time.Location {
	if loc, err := time.LoadLocation(u.Timezone); err == nil {
		return loc
	}
	return time.UTC
}

// Schedule is a per-user automatic generation schedule.
type Schedule struct {
	UserID     string `json:"user_id"`
	Enabled    bool   `json:"enabled"`
	DaysOfWeek []int  `json:"days_of_week"` // 0=Monday
	Hour       int    `json:"time_hour"`
	Minute     int    `json:"time_minute"`
	Timezone   string `json:"timezone"`
}

// CronSpec converts the schedule into a 5-field cron expression. Cron weekdays
// start at Sunday, so Monday-based days are shifted by one.
func (s Schedule) CronSpec() string {
	days := "*"
	if len(s.DaysOfWeek) > 0 {
		parts := make([]string, 0, len(s.DaysOfWeek))
		for _, d := range s.DaysOfWeek {
			parts = append(parts, strconv.Itoa((d+1)%7))
		}
		days = strings.Join(parts, ",")
	}
	return strconv.Itoa(s.Minute) + " " + strconv.Itoa(s.Hour) + " * * " + days
}

// MusicPiece is an entry in the music catalog.
type MusicPiece struct {
	ID              int64   `json:"id"`
	Composer        string  `json:"composer"`
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	ObjectKey       string  `json:"s3_key"`
	DayOfYearStart  int     `json:"day_of_year_start"`
	DayOfYearEnd    int     `json:"day_of_year_end"`
	Active          bool    `json:"is_active"`
}
