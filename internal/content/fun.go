package content

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Fun segment names a user can enable.
const (
	FunHistory       = "this_day_in_history"
	FunQuote         = "quote_of_the_day"
	FunDadJoke       = "dad_joke"
	FunWordOfTheDay  = "word_of_the_day"
	FunSportsHistory = "sports_history"
)

const (
	defaultWikipedia  = "https://en.wikipedia.org/api/rest_v1/feed/onthisday"
	defaultZenQuotes  = "https://zenquotes.io/api/today"
	defaultDadJoke    = "https://icanhazdadjoke.com/"
	defaultDictionary = "https://api.dictionaryapi.dev/api/v2/entries/en"

	historyEvents = 5
	historyBirths = 3
	historyDeaths = 2
	sportsEvents  = 3
)

// HistoryEvent is one "on this day" entry.
type HistoryEvent struct {
	Year        int
	Description string
	Kind        string // event, birth or death
}

type quote struct{ Text, Author string }

var fallbackQuotes = []quote{
	{"The only way to do great work is to love what you do.", "Steve Jobs"},
	{"Innovation distinguishes between a leader and a follower.", "Steve Jobs"},
	{"The future belongs to those who believe in the beauty of their dreams.", "Eleanor Roosevelt"},
	{"It is during our darkest moments that we must focus to see the light.", "Aristotle"},
}

var fallbackJokes = []string{
	"Why don't scientists trust atoms? Because they make up everything!",
	"I used to hate facial hair, but then it grew on me.",
	"What do you call a fake noodle? An impasta!",
	"Why did the scarecrow win an award? Because he was outstanding in his field!",
}

var wordList = []string{
	"serendipity", "ephemeral", "eloquent", "resilience", "ubiquitous",
	"quintessential", "juxtaposition", "paradigm", "ethereal", "mellifluous",
	"perspicacious", "surreptitious", "ineffable", "luminous", "enigmatic",
	"cacophony", "epiphany", "labyrinthine", "vicissitude",
}

var sportsKeywords = []string{
	"world series", "super bowl", "olympics", "championship", "world cup",
	"nfl", "nba", "mlb", "nhl", "tennis", "golf", "boxing", "marathon",
	"tournament", "medal", "baseball", "football", "basketball", "hockey", "soccer",
}

// FunFacts assembles the enabled fun segments. Quote and joke fall back to a
// built-in list picked by day of year when their APIs fail.
type FunFacts struct {
	WikipediaURL  string
	ZenQuotesURL  string
	DadJokeURL    string
	DictionaryURL string
	Client        *http.Client
	Logger        *log.Logger
}

func or(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func (f *FunFacts) warn(format string, args ...any) {
	if f.Logger != nil {
		f.Logger.Printf("warn: "+format, args...)
	}
}

func (f *FunFacts) Fetch(ctx context.Context, req Request) (Section, error) {
	now := req.Now
	if now.IsZero() {
		now = time.Now().In(req.Settings.Location())
	}
	var sec Section
	var b strings.Builder
	var onThisDay *onThisDayResponse

	loadHistory := func() (*onThisDayResponse, error) {
		if onThisDay != nil {
			return onThisDay, nil
		}
		var body onThisDayResponse
		url := fmt.Sprintf("%s/all/%02d/%02d", or(f.WikipediaURL, defaultWikipedia), int(now.Month()), now.Day())
		if err := getJSON(ctx, f.Client, url, nil, &body); err != nil {
			return nil, err
		}
		onThisDay = &body
		return onThisDay, nil
	}
	fail := func(source string, err error) {
		f.warn("%s: %v", source, err)
		sec.Errors = append(sec.Errors, SourceError{Source: source, Category: string(CategoryFun), Message: err.Error()})
	}

	for _, seg := range req.Settings.FunSegments {
		switch seg {
		case FunHistory:
			data, err := loadHistory()
			if err != nil {
				fail("wikipedia", err)
				continue
			}
			events := SelectHistory(data.events(), req.Rules.HistoryEventCount)
			if len(events) == 0 {
				continue
			}
			fmt.Fprintf(&b, "## This Day in History\n\n*%s*\n\n", now.Format("January 02"))
			for _, e := range events {
				fmt.Fprintf(&b, "- **%d** (%s): %s\n", e.Year, e.Kind, e.Description)
			}
			b.WriteString("\n")
		case FunSportsHistory:
			data, err := loadHistory()
			if err != nil {
				fail("wikipedia", err)
				continue
			}
			events := sportsHistory(data)
			if len(events) == 0 {
				continue
			}
			b.WriteString("## On This Day in Sports\n\n")
			for _, e := range events {
				fmt.Fprintf(&b, "- **%d**: %s\n", e.Year, e.Description)
			}
			b.WriteString("\n")
		case FunQuote:
			q, err := f.quote(ctx)
			if err != nil {
				fail("zenquotes", err)
				q = fallbackQuotes[now.YearDay()%len(fallbackQuotes)]
			}
			fmt.Fprintf(&b, "## Quote of the Day\n\n> \"%s\"\n*- %s*\n\n", q.Text, q.Author)
		case FunDadJoke:
			joke, err := f.dadJoke(ctx)
			if err != nil {
				fail("icanhazdadjoke", err)
				joke = fallbackJokes[now.YearDay()%len(fallbackJokes)]
			}
			fmt.Fprintf(&b, "## Dad Joke\n\n%s\n\n", joke)
		case FunWordOfTheDay:
			word := wordList[now.YearDay()%len(wordList)]
			text, err := f.define(ctx, word)
			if err != nil {
				fail("dictionary", err)
				continue
			}
			fmt.Fprintf(&b, "## Word of the Day\n\n%s\n\n", text)
		}
	}
	if b.Len() == 0 {
		return sec, nil
	}
	sec.Text = "# Fun Segments\n\n" + strings.TrimSpace(b.String())
	return sec, nil
}

type onThisDayEntry struct {
	Year int    `json:"year"`
	Text string `json:"text"`
}

type onThisDayResponse struct {
	Selected []onThisDayEntry `json:"selected"`
	Births   []onThisDayEntry `json:"births"`
	Deaths   []onThisDayEntry `json:"deaths"`
}

func (r *onThisDayResponse) events() []HistoryEvent {
	var out []HistoryEvent
	for i, e := range r.Selected {
		if i == historyEvents {
			break
		}
		out = append(out, HistoryEvent{Year: e.Year, Description: e.Text, Kind: "event"})
	}
	for i, e := range r.Births {
		if i == historyBirths {
			break
		}
		out = append(out, HistoryEvent{Year: e.Year, Description: e.Text + " was born", Kind: "birth"})
	}
	for i, e := range r.Deaths {
		if i == historyDeaths {
			break
		}
		out = append(out, HistoryEvent{Year: e.Year, Description: e.Text + " passed away", Kind: "death"})
	}
	return out
}

var kindPriority = map[string]int{"event": 0, "birth": 1, "death": 2}

// SelectHistory keeps the limit most notable entries: events before births
// before deaths, more recent years first. limit <= 0 keeps everything.
func SelectHistory(events []HistoryEvent, limit int) []HistoryEvent {
	if limit <= 0 || len(events) <= limit {
		return events
	}
	out := append([]HistoryEvent(nil), events...)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := kindPriority[out[i].Kind], kindPriority[out[j].Kind]
		if pi != pj {
			return pi < pj
		}
		return out[i].Year > out[j].Year
	})
	return out[:limit]
}

func sportsHistory(r *onThisDayResponse) []HistoryEvent {
	var out []HistoryEvent
	for _, e := range r.Selected {
		desc := strings.ToLower(e.Text)
		for _, kw := range sportsKeywords {
			if strings.Contains(desc, kw) {
				out = append(out, HistoryEvent{Year: e.Year, Description: e.Text, Kind: "event"})
				break
			}
		}
		if len(out) == sportsEvents {
			break
		}
	}
	return out
}

func (f *FunFacts) quote(ctx context.Context) (quote, error) {
	var body []struct {
		Q string `json:"q"`
		A string `json:"a"`
	}
	if err := getJSON(ctx, f.Client, or(f.ZenQuotesURL, defaultZenQuotes), nil, &body); err != nil {
		return quote{}, err
	}
	if len(body) == 0 || body[0].Q == "" {
		return quote{}, fmt.Errorf("empty quote response")
	}
	return quote{Text: body[0].Q, Author: or(body[0].A, "Unknown")}, nil
}

func (f *FunFacts) dadJoke(ctx context.Context) (string, error) {
	var body struct {
		Joke string `json:"joke"`
	}
	if err := getJSON(ctx, f.Client, or(f.DadJokeURL, defaultDadJoke), nil, &body); err != nil {
		return "", err
	}
	if body.Joke == "" {
		return "", fmt.Errorf("empty joke response")
	}
	return body.Joke, nil
}

func (f *FunFacts) define(ctx context.Context, word string) (string, error) {
	var body []struct {
		Phonetics []struct {
			Text string `json:"text"`
		} `json:"phonetics"`
		Meanings []struct {
			PartOfSpeech string `json:"partOfSpeech"`
			Definitions  []struct {
				Definition string `json:"definition"`
				Example    string `json:"example"`
			} `json:"definitions"`
		} `json:"meanings"`
	}
	if err := getJSON(ctx, f.Client, or(f.DictionaryURL, defaultDictionary)+"/"+word, nil, &body); err != nil {
		return "", err
	}
	if len(body) == 0 || len(body[0].Meanings) == 0 || len(body[0].Meanings[0].Definitions) == 0 {
		return "", fmt.Errorf("no definition for %q", word)
	}
	m := body[0].Meanings[0]
	d := m.Definitions[0]
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** (%s)\n", strings.ToUpper(word[:1])+word[1:], m.PartOfSpeech)
	for _, p := range body[0].Phonetics {
		if p.Text != "" {
			fmt.Fprintf(&b, "*Pronunciation: %s*\n", p.Text)
			break
		}
	}
	fmt.Fprintf(&b, "\n%s", d.Definition)
	if d.Example != "" {
		fmt.Fprintf(&b, "\n\n*Example: \"%s\"*", d.Example)
	}
	return b.String(), nil
}
