package script

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
	"github.com/mohammad-safakhou/morningdrive/internal/llm"
	fetchmodels "github.com/mohammad-safakhou/morningdrive/tools/web_fetch/models"
	searchmodels "github.com/mohammad-safakhou/morningdrive/tools/web_search/models"
)

type fakeSearch struct{ queries []string }

func (f *fakeSearch) Discover(_ context.Context, q string, k int) ([]searchmodels.Result, error) {
	f.queries = append(f.queries, q)
	return []searchmodels.Result{{Title: "Ship found", URL: "https://news.test/ship", Snippet: "<b>Divers</b> located the wreck"}}, nil
}

type fakeFetcher struct{}

func (fakeFetcher) Exec(_ context.Context, url string) (fetchmodels.Result, error) {
	return fetchmodels.Result{URL: url, Title: "Ship found", Text: "Long article text."}, nil
}

func deepDiveScript() *briefing.Script {
	return &briefing.Script{Segments: []briefing.Segment{
		{Type: briefing.SegmentIntro, Items: []briefing.Item{{Voice: "host", Text: "Good morning."}}},
		{Type: briefing.SegmentNews, Items: []briefing.Item{
			{Voice: "host", Text: `First up, a shipwreck. [DEEP_DIVE topic="Shipwreck discovery" context="Divers found a 17th century wreck." url="https://news.test/ship"] Next, rates.`},
			{Voice: "host", Text: `Rates held steady. [DEEP_DIVE topic="Fed rates" context="The Fed held rates"]`},
		}},
		{Type: briefing.SegmentOutro, Items: []briefing.Item{{Voice: "host", Text: "See you tomorrow."}}},
	}}
}

func TestFindDeepDives(t *testing.T) {
	dives := FindDeepDives(deepDiveScript())
	if len(dives) != 2 {
		t.Fatalf("expected 2 tags, got %d", len(dives))
	}
	if dives[0].Topic != "Shipwreck discovery" || dives[0].URL != "https://news.test/ship" || dives[0].Segment != 1 || dives[0].Item != 0 {
		t.Fatalf("unexpected first tag: %+v", dives[0])
	}
	if dives[1].URL != "" || dives[1].Item != 1 {
		t.Fatalf("unexpected second tag: %+v", dives[1])
	}
	if got := dives[1].FallbackText(); got != "Now, about Fed rates. The Fed held rates." {
		t.Fatalf("got %q", got)
	}
}

func TestSurroundings(t *testing.T) {
	s := deepDiveScript()
	dives := FindDeepDives(s)
	before, after := Surroundings(s, dives[0])
	if !strings.HasPrefix(before, "Good morning.") || !strings.HasSuffix(before, "First up, a shipwreck.") {
		t.Fatalf("unexpected before: %q", before)
	}
	if !strings.HasPrefix(after, "Next, rates.") || strings.Contains(after, "DEEP_DIVE") || !strings.Contains(after, "See you tomorrow.") {
		t.Fatalf("unexpected after: %q", after)
	}

	long := &briefing.Script{Segments: []briefing.Segment{{Type: briefing.SegmentNews, Items: []briefing.Item{
		{Text: strings.Repeat("b", 2000) + `[DEEP_DIVE topic="t" context="c"]` + strings.Repeat("a", 2000)},
	}}}}
	before, after = Surroundings(long, FindDeepDives(long)[0])
	if len(before) != contextBeforeChars || len(after) != contextAfterChars {
		t.Fatalf("context windows not bounded: before=%d after=%d", len(before), len(after))
	}
}

func TestExpandResearchesWithinLimit(t *testing.T) {
	search := &fakeSearch{}
	fake := &fakeLLM{toolReply: func(req llm.ToolRequest) (string, error) {
		if req.MaxTokens != deepDiveMaxTokens || req.MaxIterations != deepDiveIterations {
			t.Errorf("unexpected bounds: %+v", req)
		}
		uses := map[string]int{}
		for _, tool := range req.Tools {
			uses[tool.Name] = tool.MaxUses
		}
		if uses["web_search"] != 3 || uses["web_fetch"] != 2 {
			t.Errorf("unexpected tool limits: %v", uses)
		}
		out, err := req.Tools[0].Handler(context.Background(), json.RawMessage(`{"query":"shipwreck divers"}`))
		if err != nil || !strings.Contains(out, "Divers located the wreck") {
			t.Errorf("search tool output %q, err %v", out, err)
		}
		return "Divers off the coast found the wreck on Tuesday.", nil
	}}
	e := &Expander{LLM: fake, Search: search, Fetcher: fakeFetcher{}}
	rec := &memRecorder{}
	src := deepDiveScript()
	out, report, err := e.Expand(context.Background(), rec, src, "firing_line", 1)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if report.Found != 2 || report.Researched != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(fake.toolReqs) != 1 {
		t.Fatalf("only one tag should be researched, got %d", len(fake.toolReqs))
	}
	if !strings.Contains(fake.toolReqs[0].System, "Firing Line") || !strings.Contains(fake.toolReqs[0].User, "Good morning.") {
		t.Fatalf("research prompt missing style or surrounding script")
	}
	first := out.Segments[1].Items[0].Text
	if first != "First up, a shipwreck. Divers off the coast found the wreck on Tuesday. Next, rates." {
		t.Fatalf("unexpected substitution: %q", first)
	}
	if second := out.Segments[1].Items[1].Text; second != "Rates held steady. Now, about Fed rates. The Fed held rates." {
		t.Fatalf("surplus tag should use the plain mention: %q", second)
	}
	if len(rec.errs) != 0 {
		t.Fatalf("no errors expected, got %+v", rec.errs)
	}
	if !strings.Contains(src.Segments[1].Items[0].Text, "DEEP_DIVE") {
		t.Fatalf("input script must not be modified")
	}
	if len(search.queries) != 1 {
		t.Fatalf("expected one search, got %v", search.queries)
	}
}

func TestExpandFailureFallsBackPerTag(t *testing.T) {
	calls := 0
	fake := &fakeLLM{toolReply: func(req llm.ToolRequest) (string, error) {
		calls++
		if strings.Contains(req.User, "Shipwreck") {
			return "", errors.New("rate limited")
		}
		return "The Fed held rates for a third meeting.", nil
	}}
	rec := &memRecorder{}
	out, report, err := (&Expander{LLM: fake}).Expand(context.Background(), rec, deepDiveScript(), "", 2)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if calls != 2 || report.Failed != 1 || report.Researched != 1 {
		t.Fatalf("calls=%d report=%+v", calls, report)
	}
	if got := out.Segments[1].Items[0].Text; !strings.Contains(got, "Now, about Shipwreck discovery. Divers found a 17th century wreck.") {
		t.Fatalf("failed tag should degrade to a plain mention: %q", got)
	}
	if got := out.Segments[1].Items[1].Text; got != "Rates held steady. The Fed held rates for a third meeting." {
		t.Fatalf("got %q", got)
	}
	if len(rec.errs) != 1 || rec.errs[0].Phase != briefing.PhaseResearchingStories || rec.errs[0].Component != "deep_dive" || !rec.errs[0].Recoverable {
		t.Fatalf("unexpected recorded errors: %+v", rec.errs)
	}
}

func TestExpandWithoutTagsIsNoop(t *testing.T) {
	s := FallbackScript(monday)
	out, report, err := (&Expander{LLM: &fakeLLM{}}).Expand(context.Background(), nil, s, "", 2)
	if err != nil || out != s || report.Found != 0 {
		t.Fatalf("expected untouched script, got %v %+v %v", out, report, err)
	}
}

func TestStripDeepDivesWithoutExpander(t *testing.T) {
	in := deepDiveScript()
	out := StripDeepDives(in)
	news := out.Segments[1].Items
	want0 := "First up, a shipwreck. Now, about Shipwreck discovery. Divers found a 17th century wreck. Next, rates."
	if news[0].Text != want0 {
		t.Fatalf("item 0 = %q", news[0].Text)
	}
	if news[1].Text != "Rates held steady. Now, about Fed rates. The Fed held rates." {
		t.Fatalf("item 1 = %q", news[1].Text)
	}
	if len(FindDeepDives(out)) != 0 {
		t.Fatalf("tags left after strip")
	}
	if len(FindDeepDives(in)) != 2 {
		t.Fatalf("input script was modified")
	}
	plain := &briefing.Script{Segments: []briefing.Segment{{Type: briefing.SegmentIntro, Items: []briefing.Item{{Text: "Hi."}}}}}
	if StripDeepDives(plain) != plain {
		t.Fatalf("script without tags should be returned as is")
	}
}
