package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
	"github.com/mohammad-safakhou/morningdrive/internal/helpers"
	"github.com/mohammad-safakhou/morningdrive/internal/llm"
	"github.com/mohammad-safakhou/morningdrive/tools/web_fetch"
	"github.com/mohammad-safakhou/morningdrive/tools/web_search"
)

// DeepDiveTag matches the placeholder the writer leaves for researched coverage.
var DeepDiveTag = regexp.MustCompile(`\[DEEP_DIVE topic="([^"]+)" context="([^"]+)"(?: url="([^"]+)")?\]`)

const (
	contextBeforeChars = 800
	contextAfterChars  = 500

	deepDiveMaxTokens  = 2000
	deepDiveIterations = 2
	searchMaxUses      = 3
	fetchMaxUses       = 2
	searchResults      = 5
	fetchedTextChars   = 6000
)

var errEmptyResearch = errors.New("research returned no text")

// DeepDive is one placeholder found in a script.
type DeepDive struct {
	Topic   string
	Context string
	URL     string

	Segment int
	Item    int
	start   int
	end     int
}

// FallbackText is the plain mention used when a deep dive cannot be researched.
func (d DeepDive) FallbackText() string {
	return fmt.Sprintf("Now, about %s. %s.", d.Topic, strings.TrimRight(strings.TrimSpace(d.Context), "."))
}

// FindDeepDives lists every placeholder in script order.
func FindDeepDives(s *briefing.Script) []DeepDive {
	if s == nil {
		return nil
	}
	var out []DeepDive
	for si, seg := range s.Segments {
		for ii, it := range seg.Items {
			for _, m := range DeepDiveTag.FindAllStringSubmatchIndex(it.Text, -1) {
				d := DeepDive{
					Topic:   it.Text[m[2]:m[3]],
					Context: it.Text[m[4]:m[5]],
					Segment: si,
					Item:    ii,
					start:   m[0],
					end:     m[1],
				}
				if m[6] >= 0 {
					d.URL = it.Text[m[6]:m[7]]
				}
				out = append(out, d)
			}
		}
	}
	return out
}

// Surroundings returns the script text before and after d, across items and
// segments, with other placeholders removed. before keeps the last 800
// characters and after the first 500.
func Surroundings(s *briefing.Script, d DeepDive) (before, after string) {
	var pre, post []string
	for si, seg := range s.Segments {
		for ii, it := range seg.Items {
			switch {
			case si < d.Segment || (si == d.Segment && ii < d.Item):
				pre = append(pre, it.Text)
			case si == d.Segment && ii == d.Item:
				pre = append(pre, it.Text[:d.start])
				post = append(post, it.Text[d.end:])
			default:
				post = append(post, it.Text)
			}
		}
	}
	before = cleanContext(strings.Join(pre, "\n"))
	after = cleanContext(strings.Join(post, "\n"))
	if r := []rune(before); len(r) > contextBeforeChars {
		before = string(r[len(r)-contextBeforeChars:])
	}
	return strings.TrimSpace(before), strings.TrimSpace(helpers.Truncate(after, contextAfterChars))
}

func cleanContext(s string) string {
	return strings.TrimSpace(DeepDiveTag.ReplaceAllString(s, ""))
}

// ExpandReport summarises one expansion pass.
type ExpandReport struct {
	Found      int
	Researched int
	Failed     int
}

// Expander replaces deep-dive placeholders with researched paragraphs.
type Expander struct {
	LLM     llm.Completer
	Search  web_search.WebSearcher
	Fetcher web_fetch.WebFetcher
	Styles  *Styles
	Logger  *log.Logger
}

func (e *Expander) logf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
	}
}

// Expand researches up to limit placeholders in script order and substitutes
// the result for each tag. A failed research step is recorded as a
// recoverable error and its tag becomes FallbackText; tags beyond limit
// become FallbackText without research. The input script is not modified.
func (e *Expander) Expand(ctx context.Context, rec briefing.Recorder, s *briefing.Script, style string, limit int) (*briefing.Script, ExpandReport, error) {
	var report ExpandReport
	dives := FindDeepDives(s)
	report.Found = len(dives)
	if len(dives) == 0 {
		return s, report, nil
	}

	var ws WritingStyle
	if e.Styles != nil {
		ws = e.Styles.Get(style)
	} else if st, err := LoadStyles(); err == nil {
		ws = st.Get(style)
	}

	replacements := make([]string, len(dives))
	for i, d := range dives {
		fallback := d.FallbackText()
		if i >= limit || e.LLM == nil {
			replacements[i] = fallback
			continue
		}
		before, after := Surroundings(s, d)
		text, err := briefing.RunStep(ctx, rec, briefing.Step[string]{
			Name:  "deep_dive",
			Phase: briefing.PhaseResearchingStories,
			Fallback: func(err error) (string, string) {
				report.Failed++
				return fallback, "plain mention of " + d.Topic
			},
		}, func(ctx context.Context) (string, error) {
			return e.research(ctx, ws, deepDiveData{Topic: d.Topic, Context: d.Context, URL: d.URL, Before: before, After: after})
		})
		if err != nil {
			return nil, report, err
		}
		if text != fallback {
			report.Researched++
		}
		replacements[i] = text
		e.logf("deep dive %d/%d %q: %d chars", i+1, len(dives), d.Topic, len(text))
	}
	return substitute(s, dives, replacements), report, nil
}

// StripDeepDives replaces every placeholder with its FallbackText. It is used
// when no research runs, so the mention is still spoken.
func StripDeepDives(s *briefing.Script) *briefing.Script {
	dives := FindDeepDives(s)
	if len(dives) == 0 {
		return s
	}
	repl := make([]string, len(dives))
	for i, d := range dives {
		repl[i] = d.FallbackText()
	}
	return substitute(s, dives, repl)
}

func (e *Expander) research(ctx context.Context, style WritingStyle, data deepDiveData) (string, error) {
	system, err := render(deepDiveSystemTmpl, style)
	if err != nil {
		return "", fmt.Errorf("render deep dive system prompt: %w", err)
	}
	user, err := render(deepDiveUserTmpl, data)
	if err != nil {
		return "", fmt.Errorf("render deep dive prompt: %w", err)
	}
	text, err := e.LLM.CompleteWithTools(ctx, llm.ToolRequest{
		Request:       llm.Request{System: system, User: user, MaxTokens: deepDiveMaxTokens},
		Tools:         e.tools(),
		MaxIterations: deepDiveIterations,
	})
	if err != nil {
		return "", fmt.Errorf("research %q: %w", data.Topic, err)
	}
	text = strings.TrimSpace(DeepDiveTag.ReplaceAllString(text, ""))
	if text == "" {
		return "", errEmptyResearch
	}
	return text, nil
}

func (e *Expander) tools() []llm.Tool {
	var tools []llm.Tool
	if e.Search != nil {
		tools = append(tools, llm.Tool{
			Name:        "web_search",
			Description: "Search the web for recent coverage of a story. Returns titles, URLs and snippets.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "string"}},
				"required":   []string{"query"},
			},
			MaxUses: searchMaxUses,
			Handler: e.search,
		})
	}
	if e.Fetcher != nil {
		tools = append(tools, llm.Tool{
			Name:        "web_fetch",
			Description: "Fetch a web page and return its readable article text.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"url": map[string]any{"type": "string"}},
				"required":   []string{"url"},
			},
			MaxUses: fetchMaxUses,
			Handler: e.fetch,
		})
	}
	return tools
}

func (e *Expander) search(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &in); err != nil || strings.TrimSpace(in.Query) == "" {
		return "", fmt.Errorf("web_search needs a query")
	}
	e.logf("deep dive search: %q", in.Query)
	results, err := e.Search.Discover(ctx, in.Query, searchResults)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "no results", nil
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, helpers.PlainText(r.Snippet))
	}
	return b.String(), nil
}

func (e *Expander) fetch(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &in); err != nil || strings.TrimSpace(in.URL) == "" {
		return "", fmt.Errorf("web_fetch needs a url")
	}
	e.logf("deep dive fetch: %s", in.URL)
	res, err := e.Fetcher.Exec(ctx, in.URL)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if res.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", res.Title)
	}
	if res.SiteName != "" {
		fmt.Fprintf(&b, "Site: %s\n", res.SiteName)
	}
	b.WriteString(helpers.Truncate(res.Text, fetchedTextChars))
	return b.String(), nil
}

// substitute rebuilds the script with each placeholder replaced. dives are in
// script order, so offsets within an item are increasing.
func substitute(s *briefing.Script, dives []DeepDive, repl []string) *briefing.Script {
	out := &briefing.Script{Date: s.Date, Title: s.Title, Segments: make([]briefing.Segment, len(s.Segments))}
	for si, seg := range s.Segments {
		out.Segments[si] = briefing.Segment{Type: seg.Type, Items: append([]briefing.Item(nil), seg.Items...)}
	}
	type key struct{ seg, item int }
	grouped := make(map[key][]int)
	for i, d := range dives {
		k := key{d.Segment, d.Item}
		grouped[k] = append(grouped[k], i)
	}
	for k, idxs := range grouped {
		orig := s.Segments[k.seg].Items[k.item].Text
		var b strings.Builder
		last := 0
		for _, i := range idxs {
			b.WriteString(orig[last:dives[i].start])
			b.WriteString(repl[i])
			last = dives[i].end
		}
		b.WriteString(orig[last:])
		out.Segments[k.seg].Items[k.item].Text = strings.TrimSpace(b.String())
	}
	return out
}
