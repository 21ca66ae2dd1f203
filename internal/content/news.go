package content

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/mohammad-safakhou/morningdrive/internal/helpers"
)

// Article is one news story, from RSS or NewsAPI.
type Article struct {
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Source    string    `json:"source"`
	URL       string    `json:"url"`
	Category  string    `json:"category"`
	Author    string    `json:"author,omitempty"`
	Published time.Time `json:"published"`
}

const (
	itemsPerFeed     = 10
	summaryMaxRunes  = 500
	defaultNewsTopic = "top"
	defaultNewsAPI   = "https://newsapi.org/v2"
)

// DefaultFeeds maps source -> topic -> RSS URL.
var DefaultFeeds = map[string]map[string]string{
	"bbc": {
		"top":           "http://feeds.bbci.co.uk/news/rss.xml",
		"world":         "http://feeds.bbci.co.uk/news/world/rss.xml",
		"technology":    "http://feeds.bbci.co.uk/news/technology/rss.xml",
		"business":      "http://feeds.bbci.co.uk/news/business/rss.xml",
		"science":       "http://feeds.bbci.co.uk/news/science_and_environment/rss.xml",
		"health":        "http://feeds.bbci.co.uk/news/health/rss.xml",
		"entertainment": "http://feeds.bbci.co.uk/news/entertainment_and_arts/rss.xml",
	},
	"npr": {
		"top":        "https://feeds.npr.org/1001/rss.xml",
		"world":      "https://feeds.npr.org/1004/rss.xml",
		"technology": "https://feeds.npr.org/1019/rss.xml",
		"business":   "https://feeds.npr.org/1006/rss.xml",
		"science":    "https://feeds.npr.org/1007/rss.xml",
		"health":     "https://feeds.npr.org/1128/rss.xml",
	},
	"nyt": {
		"top":        "https://rss.nytimes.com/services/xml/rss/nyt/HomePage.xml",
		"world":      "https://rss.nytimes.com/services/xml/rss/nyt/World.xml",
		"technology": "https://rss.nytimes.com/services/xml/rss/nyt/Technology.xml",
		"business":   "https://rss.nytimes.com/services/xml/rss/nyt/Business.xml",
		"science":    "https://rss.nytimes.com/services/xml/rss/nyt/Science.xml",
		"health":     "https://rss.nytimes.com/services/xml/rss/nyt/Health.xml",
	},
	"techcrunch": {
		"top":        "https://techcrunch.com/feed/",
		"technology": "https://techcrunch.com/feed/",
	},
	"hackernews": {
		"top":        "https://hnrss.org/frontpage",
		"technology": "https://hnrss.org/frontpage",
	},
	"arstechnica": {
		"top":        "https://feeds.arstechnica.com/arstechnica/index",
		"technology": "https://feeds.arstechnica.com/arstechnica/technology-lab",
		"science":    "https://feeds.arstechnica.com/arstechnica/science",
	},
}

// RSSNews reads the configured feeds and, when NewsAPIKey is set, the
// NewsAPI top headlines for each topic.
type RSSNews struct {
	Feeds          map[string]map[string]string
	Client         *http.Client
	NewsAPIKey     string
	NewsAPIBaseURL string
	Logger         *log.Logger
}

type feedRef struct {
	source string
	topic  string
	url    string
}

func (n *RSSNews) feeds() map[string]map[string]string {
	if n.Feeds != nil {
		return n.Feeds
	}
	return DefaultFeeds
}

func (n *RSSNews) logger() *log.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return log.Default()
}

// plan resolves source/topic pairs to feed URLs. Topics a source does not
// carry fall back to its "top" feed; unknown sources are skipped.
func (n *RSSNews) plan(sources, topics []string) []feedRef {
	var refs []feedRef
	seen := make(map[string]bool)
	for _, src := range sources {
		table, ok := n.feeds()[src]
		if !ok {
			continue
		}
		for _, topic := range topics {
			u, ok := table[topic]
			resolved := topic
			if !ok {
				u, ok = table[defaultNewsTopic]
				resolved = defaultNewsTopic
			}
			if !ok || seen[src+"|"+u] {
				continue
			}
			seen[src+"|"+u] = true
			refs = append(refs, feedRef{source: src, topic: resolved, url: u})
		}
	}
	return refs
}

func (n *RSSNews) Fetch(ctx context.Context, req Request) (Section, error) {
	sources := req.Settings.NewsSources
	topics := req.Settings.NewsTopics
	refs := n.plan(sources, topics)

	type feedResult struct {
		articles []Article
		err      error
	}
	results := make([]feedResult, len(refs))
	var wg sync.WaitGroup
	for i, ref := range refs {
		wg.Add(1)
		go func(i int, ref feedRef) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = feedResult{err: fmt.Errorf("panic: %v", r)}
				}
			}()
			arts, err := n.fetchFeed(ctx, ref)
			results[i] = feedResult{articles: arts, err: err}
		}(i, ref)
	}
	wg.Wait()

	var sec Section
	var all []Article
	for i, r := range results {
		if r.err != nil {
			n.logger().Printf("warn: rss %s/%s: %v", refs[i].source, refs[i].topic, r.err)
			sec.Errors = append(sec.Errors, SourceError{Source: refs[i].source, Category: string(CategoryNews), Message: r.err.Error()})
			continue
		}
		all = append(all, r.articles...)
	}

	all = n.exclude(all, req.Settings.Exclusions)

	perSource := req.Rules.NewsStoriesPerSource
	if perSource <= 0 {
		perSource = 1
	}
	limit := perSource * len(sources)
	arts := rankArticles(all, limit)

	if n.NewsAPIKey != "" {
		extra, errs := n.fetchNewsAPI(ctx, topics, perSource)
		sec.Errors = append(sec.Errors, errs...)
		extra = n.exclude(extra, req.Settings.Exclusions)
		arts = rankArticles(append(arts, extra...), limit)
	}

	if len(arts) == 0 && len(sec.Errors) > 0 {
		return Section{}, fmt.Errorf("no articles: %d of %d feeds failed", len(sec.Errors), len(refs))
	}
	sec.Articles = arts
	sec.Text = FormatNews(arts)
	return sec, nil
}

// exclude applies the user's exclusions; an index failure keeps every article
// and leaves the filtering to the script prompt.
func (n *RSSNews) exclude(arts []Article, phrases []string) []Article {
	out, dropped, err := ExcludeArticles(arts, phrases)
	if err != nil {
		n.logger().Printf("warn: exclusions: %v", err)
		return arts
	}
	if dropped > 0 {
		n.logger().Printf("excluded %d articles", dropped)
	}
	return out
}

func (n *RSSNews) fetchFeed(ctx context.Context, ref feedRef) ([]Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	resp, err := clientOrDefault(n.Client).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	out := make([]Article, 0, itemsPerFeed)
	for _, item := range feed.Items {
		if len(out) == itemsPerFeed {
			break
		}
		if item == nil || strings.TrimSpace(item.Title) == "" {
			continue
		}
		summary := item.Description
		if summary == "" {
			summary = item.Content
		}
		a := Article{
			Title:    helpers.PlainText(item.Title),
			Summary:  helpers.Truncate(helpers.PlainText(summary), summaryMaxRunes),
			Source:   strings.ToUpper(ref.source),
			URL:      item.Link,
			Category: ref.topic,
		}
		if len(item.Authors) > 0 && item.Authors[0] != nil {
			a.Author = item.Authors[0].Name
		}
		if item.PublishedParsed != nil {
			a.Published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			a.Published = *item.UpdatedParsed
		}
		out = append(out, a)
	}
	return out, nil
}

type newsAPIResponse struct {
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		Author      string `json:"author"`
		PublishedAt string `json:"publishedAt"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

// NewsAPI categories differ from feed topics; "top" and "world" map to general.
func newsAPICategory(topic string) string {
	switch topic {
	case "top", "world":
		return "general"
	}
	return topic
}

func (n *RSSNews) fetchNewsAPI(ctx context.Context, topics []string, pageSize int) ([]Article, []SourceError) {
	base := n.NewsAPIBaseURL
	if base == "" {
		base = defaultNewsAPI
	}
	var out []Article
	var errs []SourceError
	seen := make(map[string]bool)
	for _, topic := range topics {
		cat := newsAPICategory(topic)
		if seen[cat] {
			continue
		}
		seen[cat] = true
		q := url.Values{}
		q.Set("category", cat)
		q.Set("language", "en")
		q.Set("pageSize", fmt.Sprint(pageSize))
		var body newsAPIResponse
		err := getJSON(ctx, n.Client, base+"/top-headlines?"+q.Encode(), map[string]string{"X-Api-Key": n.NewsAPIKey}, &body)
		if err != nil {
			n.logger().Printf("warn: newsapi %s: %v", cat, err)
			errs = append(errs, SourceError{Source: "newsapi", Category: string(CategoryNews), Message: err.Error()})
			continue
		}
		for _, a := range body.Articles {
			art := Article{
				Title:    helpers.PlainText(a.Title),
				Summary:  helpers.Truncate(helpers.PlainText(a.Description), summaryMaxRunes),
				Source:   a.Source.Name,
				URL:      a.URL,
				Category: topic,
				Author:   a.Author,
			}
			if art.Source == "" {
				art.Source = "NewsAPI"
			}
			if ts, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
				art.Published = ts
			}
			out = append(out, art)
		}
	}
	return out, errs
}

// rankArticles dedupes by normalised title (and canonical link), orders by
// published time descending and keeps at most limit entries.
func rankArticles(in []Article, limit int) []Article {
	seen := make(map[string]bool, len(in))
	var out []Article
	for _, a := range in {
		key := strings.ToLower(strings.TrimSpace(a.Title))
		if key == "" || seen[key] {
			continue
		}
		dup := false
		for _, kept := range out {
			if a.URL != "" && helpers.SameArticle(kept.URL, a.URL) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Published.After(out[j].Published) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FormatNews renders articles as the markdown brief handed to the script writer.
func FormatNews(arts []Article) string {
	if len(arts) == 0 {
		return "No news articles available."
	}
	var b strings.Builder
	b.WriteString("# Top News Stories\n\n")
	for i, a := range arts {
		fmt.Fprintf(&b, "## %d. %s\n", i+1, a.Title)
		cat := a.Category
		if cat == "" {
			cat = "General"
		}
		fmt.Fprintf(&b, "**Source:** %s | **Category:** %s\n", a.Source, cat)
		if !a.Published.IsZero() {
			fmt.Fprintf(&b, "**Published:** %s\n", a.Published.Format("January 02, 2006 at 03:04 PM"))
		}
		if a.URL != "" {
			fmt.Fprintf(&b, "**URL:** %s\n", a.URL)
		}
		fmt.Fprintf(&b, "\n%s\n\n---\n\n", a.Summary)
	}
	return strings.TrimSpace(b.String())
}
