package content

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
	"github.com/mohammad-safakhou/morningdrive/internal/helpers"
)

const (
	defaultESPNBase    = "https://site.api.espn.com/apis/site/v2/sports"
	maxDaysAhead       = 5
	gamesPerList       = 5
	headlinesPerLeague = 2
	maxHeadlines       = 10
)

// LeaguePaths maps league keys to ESPN sport/league paths.
var LeaguePaths = map[string]string{
	"nfl":            "football/nfl",
	"mlb":            "baseball/mlb",
	"nba":            "basketball/nba",
	"nhl":            "hockey/nhl",
	"mls":            "soccer/usa.1",
	"premier_league": "soccer/eng.1",
	"ncaaf":          "football/college-football",
	"ncaab":          "basketball/mens-college-basketball",
}

// GameStatus is a normalised ESPN competition status.
type GameStatus string

const (
	GameScheduled  GameStatus = "scheduled"
	GameInProgress GameStatus = "in_progress"
	GameFinal      GameStatus = "final"
	GamePostponed  GameStatus = "postponed"
)

// Game is one scoreboard entry.
type Game struct {
	League    string
	Home      string
	Away      string
	HomeScore int
	AwayScore int
	Status    GameStatus
	Start     time.Time
	Summary   string
}

// Headline is one league news item.
type Headline struct {
	League      string
	Title       string
	Description string
	Published   time.Time
}

// ESPNSports reads ESPN scoreboards and league news.
type ESPNSports struct {
	BaseURL string
	Client  *http.Client
	Logger  *log.Logger
}

func (s *ESPNSports) base() string {
	if s.BaseURL != "" {
		return strings.TrimRight(s.BaseURL, "/")
	}
	return defaultESPNBase
}

func (s *ESPNSports) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

func (s *ESPNSports) Fetch(ctx context.Context, req Request) (Section, error) {
	loc := req.Settings.Location()
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(loc)

	leagues := uniqueLower(req.Settings.SportsLeagues)
	for _, t := range req.Settings.SportsTeams {
		leagues = appendUnique(leagues, strings.ToLower(t.League))
	}

	var sec Section
	scores := make(map[string][]Game)
	var headlines []Headline
	var ok int
	for _, lg := range leagues {
		path, known := LeaguePaths[lg]
		if !known {
			continue
		}
		games, err := s.scoreboard(ctx, lg, path)
		if err != nil {
			s.logger().Printf("warn: espn scoreboard %s: %v", lg, err)
			sec.Errors = append(sec.Errors, SourceError{Source: "espn:" + lg, Category: string(CategorySports), Message: err.Error()})
		} else {
			ok++
			scores[lg] = FilterGames(games, now)
		}
		news, err := s.news(ctx, lg, path)
		if err != nil {
			s.logger().Printf("warn: espn news %s: %v", lg, err)
			continue
		}
		headlines = append(headlines, news...)
	}
	if ok == 0 && len(sec.Errors) > 0 {
		return Section{}, fmt.Errorf("all %d scoreboards failed", len(sec.Errors))
	}
	sort.SliceStable(headlines, func(i, j int) bool { return headlines[i].Published.After(headlines[j].Published) })

	teamGames := TeamGames(scores, req.Settings.SportsTeams)
	if req.Rules.SportsFavoritesOnly && len(req.Settings.SportsTeams) > 0 {
		scores = nil
	}
	sec.Text = FormatSports(scores, leagues, headlines, teamGames, req.Settings.SportsTeams, now)
	return sec, nil
}

type espnScoreboard struct {
	Events []struct {
		Name         string `json:"name"`
		Date         string `json:"date"`
		Competitions []struct {
			Competitors []struct {
				HomeAway string `json:"homeAway"`
				Score    string `json:"score"`
				Team     struct {
					DisplayName string `json:"displayName"`
				} `json:"team"`
			} `json:"competitors"`
			Status struct {
				Type struct {
					Name string `json:"name"`
				} `json:"type"`
			} `json:"status"`
			Headlines []struct {
				Description string `json:"description"`
			} `json:"headlines"`
		} `json:"competitions"`
	} `json:"events"`
}

func (s *ESPNSports) scoreboard(ctx context.Context, league, path string) ([]Game, error) {
	var body espnScoreboard
	if err := getJSON(ctx, s.Client, s.base()+"/"+path+"/scoreboard", nil, &body); err != nil {
		return nil, err
	}
	var games []Game
	for _, ev := range body.Events {
		if len(ev.Competitions) == 0 {
			continue
		}
		comp := ev.Competitions[0]
		if len(comp.Competitors) < 2 {
			continue
		}
		home, away := comp.Competitors[0], comp.Competitors[1]
		for _, c := range comp.Competitors {
			switch c.HomeAway {
			case "home":
				home = c
			case "away":
				away = c
			}
		}
		g := Game{
			League: strings.ToUpper(league),
			Home:   orUnknown(home.Team.DisplayName),
			Away:   orUnknown(away.Team.DisplayName),
			Status: parseGameStatus(comp.Status.Type.Name),
		}
		if ts, err := time.Parse(time.RFC3339, ev.Date); err == nil {
			g.Start = ts
		} else if ts, err := time.Parse("2006-01-02T15:04Z", ev.Date); err == nil {
			g.Start = ts
		}
		if g.Status == GameFinal || g.Status == GameInProgress {
			g.HomeScore, _ = strconv.Atoi(home.Score)
			g.AwayScore, _ = strconv.Atoi(away.Score)
		}
		if len(comp.Headlines) > 0 {
			g.Summary = comp.Headlines[0].Description
		}
		games = append(games, g)
	}
	return games, nil
}

type espnNews struct {
	Articles []struct {
		Headline    string `json:"headline"`
		Description string `json:"description"`
		Published   string `json:"published"`
	} `json:"articles"`
}

func (s *ESPNSports) news(ctx context.Context, league, path string) ([]Headline, error) {
	var body espnNews
	url := fmt.Sprintf("%s/%s/news?limit=%d", s.base(), path, headlinesPerLeague)
	if err := getJSON(ctx, s.Client, url, nil, &body); err != nil {
		return nil, err
	}
	var out []Headline
	for i, a := range body.Articles {
		if i == headlinesPerLeague {
			break
		}
		h := Headline{League: strings.ToUpper(league), Title: a.Headline, Description: a.Description}
		if ts, err := time.Parse(time.RFC3339, a.Published); err == nil {
			h.Published = ts
		}
		out = append(out, h)
	}
	return out, nil
}

func parseGameStatus(name string) GameStatus {
	switch name {
	case "STATUS_FINAL":
		return GameFinal
	case "STATUS_IN_PROGRESS":
		return GameInProgress
	case "STATUS_SCHEDULED":
		return GameScheduled
	case "STATUS_POSTPONED":
		return GamePostponed
	}
	return GameStatus(strings.ToLower(strings.TrimPrefix(name, "STATUS_")))
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// FilterGames keeps what is relevant for a morning briefing: live games,
// finals from yesterday onwards, and scheduled or postponed games up to five
// days ahead. now must carry the user's location.
func FilterGames(games []Game, now time.Time) []Game {
	today := dateOf(now)
	yesterday := today.AddDate(0, 0, -1)
	horizon := today.AddDate(0, 0, maxDaysAhead)
	var out []Game
	for _, g := range games {
		if g.Status == GameInProgress {
			out = append(out, g)
			continue
		}
		if g.Start.IsZero() {
			continue
		}
		day := dateOf(g.Start.In(now.Location()))
		switch g.Status {
		case GameFinal:
			if !day.Before(yesterday) {
				out = append(out, g)
			}
		case GameScheduled:
			if !day.Before(today) && !day.After(horizon) {
				out = append(out, g)
			}
		case GamePostponed:
			if !day.Before(yesterday) && !day.After(horizon) {
				out = append(out, g)
			}
		}
	}
	return out
}

// TeamGames picks games involving any favourite team (substring match on
// the display name) from the filtered scoreboards.
func TeamGames(scores map[string][]Game, teams []briefing.SportsTeam) []Game {
	var out []Game
	for _, t := range teams {
		name := strings.ToLower(strings.TrimSpace(t.Name))
		if name == "" {
			continue
		}
		for _, g := range scores[strings.ToLower(t.League)] {
			if strings.Contains(strings.ToLower(g.Home), name) || strings.Contains(strings.ToLower(g.Away), name) {
				out = append(out, g)
			}
		}
	}
	return out
}

func gameTime(g Game, now time.Time) string {
	if g.Start.IsZero() {
		return "TBD"
	}
	local := g.Start.In(now.Location())
	if dateOf(local).Equal(dateOf(now)) {
		return "Today at " + local.Format("03:04 PM")
	}
	return local.Format("Jan 02 at 03:04 PM")
}

// FormatSports renders the sports brief.
func FormatSports(scores map[string][]Game, leagues []string, news []Headline, teamGames []Game, teams []briefing.SportsTeam, now time.Time) string {
	var b strings.Builder
	b.WriteString("# Sports Update\n\n")
	var names []string
	for _, t := range teams {
		if t.Name != "" {
			names = append(names, t.Name)
		}
	}
	if len(names) > 0 {
		fmt.Fprintf(&b, "**User's favorite teams:** %s\n\n", strings.Join(names, ", "))
	}

	if len(teamGames) > 0 {
		b.WriteString("## Your Teams\n\n")
		for _, g := range teamGames {
			switch g.Status {
			case GameFinal:
				fmt.Fprintf(&b, "**%s:** %s %d @ %s %d (Final)\n", g.League, g.Away, g.AwayScore, g.Home, g.HomeScore)
				if g.Summary != "" {
					fmt.Fprintf(&b, "  %s\n", g.Summary)
				}
			case GameInProgress:
				fmt.Fprintf(&b, "**%s:** %s %d @ %s %d (LIVE)\n", g.League, g.Away, g.AwayScore, g.Home, g.HomeScore)
			default:
				fmt.Fprintf(&b, "**%s:** %s @ %s (%s)\n", g.League, g.Away, g.Home, gameTime(g, now))
			}
		}
		b.WriteString("\n---\n\n")
	}

	for _, lg := range leagues {
		games := scores[lg]
		if len(games) == 0 {
			continue
		}
		var finals, upcoming []Game
		for _, g := range games {
			if g.Status == GameFinal {
				finals = append(finals, g)
			} else {
				upcoming = append(upcoming, g)
			}
		}
		fmt.Fprintf(&b, "## %s Scores\n\n", strings.ToUpper(lg))
		if len(finals) > 0 {
			b.WriteString("### Final\n")
			for i, g := range finals {
				if i == gamesPerList {
					break
				}
				fmt.Fprintf(&b, "- %s **%d** @ %s **%d**\n", g.Away, g.AwayScore, g.Home, g.HomeScore)
			}
			b.WriteString("\n")
		}
		if len(upcoming) > 0 {
			b.WriteString("### Upcoming/In Progress\n")
			for i, g := range upcoming {
				if i == gamesPerList {
					break
				}
				if g.Status == GameInProgress {
					fmt.Fprintf(&b, "- %s %d @ %s %d (LIVE)\n", g.Away, g.AwayScore, g.Home, g.HomeScore)
				} else {
					fmt.Fprintf(&b, "- %s @ %s (%s)\n", g.Away, g.Home, gameTime(g, now))
				}
			}
			b.WriteString("\n")
		}
		b.WriteString("---\n\n")
	}

	if len(news) > 0 {
		b.WriteString("## Sports Headlines\n\n")
		for i, h := range news {
			if i == maxHeadlines {
				break
			}
			fmt.Fprintf(&b, "**[%s]** %s\n", h.League, h.Title)
			if h.Description != "" {
				fmt.Fprintf(&b, "  %s...\n", helpers.Truncate(h.Description, 200))
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

func uniqueLower(in []string) []string {
	var out []string
	for _, s := range in {
		out = appendUnique(out, strings.ToLower(strings.TrimSpace(s)))
	}
	return out
}

func appendUnique(list []string, s string) []string {
	if s == "" {
		return list
	}
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
