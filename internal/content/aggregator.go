package content

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
)

// Category names one independent content source.
type Category string

const (
	CategoryNews    Category = "news"
	CategorySports  Category = "sports"
	CategoryWeather Category = "weather"
	CategoryFun     Category = "fun"
	CategoryMarket  Category = "market"
	CategoryMusic   Category = "music"
)

// Fallback texts used when a category fails completely.
const (
	FallbackNews    = "News unavailable."
	FallbackSports  = "Sports unavailable."
	FallbackWeather = "Weather unavailable."
)

// MarketSegment is the fun segment that opts a user into market content.
const MarketSegment = "market_minute"

const defaultSourceTimeout = 45 * time.Second

// Request is everything a source needs to fetch its category.
type Request struct {
	Settings     briefing.UserSettings
	Rules        briefing.GenerationRules
	IncludeMusic bool
	// Now is the current time in the user's timezone.
	Now time.Time
}

// SourceError is a structured, non-fatal failure inside one source.
type SourceError struct {
	Source   string `json:"source"`
	Category string `json:"category"`
	Message  string `json:"error"`
}

// Section is what one source returns.
type Section struct {
	Text     string
	Errors   []SourceError
	Articles []Article
	Piece    *briefing.MusicPiece
}

// Source fetches and formats one category. Implementations should report
// partial failures in Section.Errors and return an error only when nothing
// usable was produced.
type Source interface {
	Fetch(ctx context.Context, req Request) (Section, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, req Request) (Section, error)

func (f SourceFunc) Fetch(ctx context.Context, req Request) (Section, error) { return f(ctx, req) }

// Bundle is the merged output of one gather.
type Bundle struct {
	News     string
	Sports   string
	Weather  string
	Fun      string
	Market   string
	Music    string
	Articles []Article
	Piece    *briefing.MusicPiece
	Errors   []SourceError
}

// Text returns the formatted text for a script segment type.
func (b Bundle) Text(t briefing.SegmentType) string {
	switch t {
	case briefing.SegmentNews:
		return b.News
	case briefing.SegmentSports:
		return b.Sports
	case briefing.SegmentWeather:
		return b.Weather
	case briefing.SegmentFun:
		return b.Fun
	case briefing.SegmentMusic:
		return b.Music
	}
	return ""
}

// Aggregator fans out to every configured source and merges the results.
type Aggregator struct {
	News    Source
	Sports  Source
	Weather Source
	Fun     Source
	Market  Source
	Music   Source

	Timeout time.Duration
	Logger  *log.Logger
}

type task struct {
	category Category
	source   Source
	fallback string
}

// Gather fetches every category concurrently. It never fails: a category
// whose source errors is replaced with its fallback text and recorded on rec.
func (a *Aggregator) Gather(ctx context.Context, rec briefing.Recorder, req Request) Bundle {
	logger := a.Logger
	if logger == nil {
		logger = log.Default()
	}
	tasks := []task{
		{category: CategoryNews, source: a.News, fallback: FallbackNews},
		{category: CategorySports, source: a.Sports, fallback: FallbackSports},
		{category: CategoryWeather, source: a.Weather, fallback: FallbackWeather},
		{category: CategoryFun, source: a.Fun},
	}
	if req.Settings.HasFunSegment(MarketSegment) {
		tasks = append(tasks, task{category: CategoryMarket, source: a.Market})
	}
	if req.IncludeMusic {
		tasks = append(tasks, task{category: CategoryMusic, source: a.Music})
	}

	results := make([]Section, len(tasks))
	var wg sync.WaitGroup
	for i, t := range tasks {
		wg.Add(1)
		go func(i int, t task) {
			defer wg.Done()
			results[i] = a.fetch(ctx, rec, req, t)
		}(i, t)
	}
	wg.Wait()

	var b Bundle
	for i, t := range tasks {
		sec := results[i]
		b.Errors = append(b.Errors, sec.Errors...)
		switch t.category {
		case CategoryNews:
			b.News = sec.Text
			b.Articles = sec.Articles
		case CategorySports:
			b.Sports = sec.Text
		case CategoryWeather:
			b.Weather = sec.Text
		case CategoryFun:
			b.Fun = sec.Text
		case CategoryMarket:
			b.Market = sec.Text
		case CategoryMusic:
			b.Music = sec.Text
			b.Piece = sec.Piece
		}
	}
	logger.Printf("gathered content: %d categories, %d source errors", len(tasks), len(b.Errors))
	return b
}

func (a *Aggregator) fetch(ctx context.Context, rec briefing.Recorder, req Request, t task) Section {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = defaultSourceTimeout
	}
	step := briefing.Step[Section]{
		Name:  string(t.category),
		Phase: briefing.PhaseGatheringContent,
		Fallback: func(err error) (Section, string) {
			recordFetchFailure(ctx, t.category)
			return Section{
				Text:   t.fallback,
				Errors: []SourceError{{Source: string(t.category), Category: string(t.category), Message: err.Error()}},
			}, fallbackDescription(t.fallback)
		},
	}
	sec, _ := briefing.RunStep(ctx, rec, step, func(ctx context.Context) (Section, error) {
		if t.source == nil {
			return Section{Text: t.fallback}, nil
		}
		fctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		sec, err := t.source.Fetch(fctx, req)
		if err != nil {
			return Section{}, fmt.Errorf("%s: %w", t.category, err)
		}
		return sec, nil
	})
	return sec
}

func fallbackDescription(text string) string {
	if text == "" {
		return "empty section"
	}
	return text
}
